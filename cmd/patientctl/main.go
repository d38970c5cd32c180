package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patientctl",
		Short: "Practice sessions with a simulated patient",
		Long: `patientctl runs the patient conversation state machine from a terminal.

Examples:
  patientctl chat                                  # Talk to the default persona
  patientctl chat --persona monae --session demo   # Pick persona and session id
  patientctl export --session demo --dsn sqlite://./data/transcripts.db`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		chatCmd(),
		exportCmd(),
	)

	return cmd
}
