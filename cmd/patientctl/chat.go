package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-clinic/backend/internal/app"
	"github.com/zhouzirui/z-clinic/backend/internal/config"
	"github.com/zhouzirui/z-clinic/backend/internal/service/chat"
)

func chatCmd() *cobra.Command {
	var (
		personaID string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session in the terminal",
		Long: `Start an interactive session. Type a message and press enter.

In-session commands:
  /restart   reset the session and start again
  /status    show phase and remaining turns
  quit, exit leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = false

			built, err := app.Build(ctx, *cfg)
			if err != nil {
				return err
			}
			defer built.Cleanup()

			if personaID == "" {
				personaID = cfg.Session.PersonaID
			}
			if sessionID == "" {
				sess, err := built.Sessions.CreateSession(ctx, personaID)
				if err != nil {
					return err
				}
				sessionID = sess.ID
			}

			speaker := personaID
			if p, ok := built.Personas.FindByID(personaID); ok {
				speaker = p.Name
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "session %s (generator: %s)\n", sessionID, built.Generator.Name())
			return runChat(ctx, built.Sessions, sessionID, speaker, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "persona id (default from PERSONA_ID)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: random)")

	return cmd
}

// runChat drives one session from line-oriented input until quit, EOF or ctx ends.
func runChat(ctx context.Context, svc *chat.Service, sessionID, speaker string, in io.Reader, out io.Writer) error {
	if _, err := svc.Start(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintln(out, color.New(color.Faint).Sprint("Session started. Type quit to leave."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, color.CyanString("Clinician: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "/status":
			st, err := svc.Status(ctx, sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s phase=%s turns_remaining=%d negative=%.1f\n",
				color.YellowString("[status]"), st.Phase, st.TurnsRemaining, st.NegativeCount)
			continue
		case "/restart":
			if err := svc.Restart(ctx, sessionID); err != nil {
				return err
			}
			if _, err := svc.Start(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintln(out, color.YellowString("[session restarted]"))
			continue
		}

		res, err := svc.SubmitTurn(ctx, sessionID, line, "")
		if err != nil {
			return err
		}

		label := color.MagentaString(speaker + ":")
		if res.Outcome != chat.OutcomeReply {
			label = color.YellowString("[notice]")
		}
		fmt.Fprintf(out, "%s %s\n", label, res.Response)

		if res.Ended {
			fmt.Fprintln(out, color.RedString("[session ended] type /restart to begin again or quit to leave"))
		}
	}
}
