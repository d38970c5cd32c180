package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-clinic/backend/internal/store/transcript"
)

func exportCmd() *cobra.Command {
	var (
		sessionID string
		dsn       string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a session transcript as JSON lines",
		Long: `Write the stored transcript of one session to stdout, one JSON object per turn:
{"timestamp", "user_message", "assistant_response", "sentiment", "negative_count"}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("TRANSCRIPT_DSN")
			}
			backend, _, err := transcript.ParseDSN(dsn)
			if err != nil {
				return err
			}
			if backend == transcript.BackendMemory {
				return fmt.Errorf("export needs a persistent store: pass --dsn or set TRANSCRIPT_DSN")
			}

			store, err := transcript.NewStore(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			return transcript.Export(cmd.Context(), store, sessionID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to export")
	cmd.Flags().StringVar(&dsn, "dsn", "", "transcript store DSN (default from TRANSCRIPT_DSN)")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}
