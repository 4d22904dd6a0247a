package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/monitor"
)

// NewMonitorCmd constructs the `qaforge monitor` command, which captures
// expert answers from a Telegram group chat into the database.
func NewMonitorCmd() *cobra.Command {
	var expert string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Capture expert answers from a Telegram chat",
		Long: `Run the Telegram chat monitor.

The bot long-polls for updates in the chats it has been added to. Whenever the
configured expert replies to a message, the question and the reply are cleaned
and saved as a QA pair, deduplicated against previous captures.

Requires TELEGRAM_BOT_TOKEN and the expert's username.

Examples:
  qaforge monitor --expert ivanov_legal
  TELEGRAM_EXPERT_USERNAME=ivanov_legal qaforge monitor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			cfg := config.FromEnv()

			if expert != "" {
				cfg.Telegram.ExpertUsername = expert
			}

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("monitor: failed to open database: %w", err)
			}
			defer st.Close()

			m, err := monitor.New(cfg.Telegram, st)
			if err != nil {
				return err
			}

			log.Info("monitor starting", slog.String("expert", cfg.Telegram.ExpertUsername))
			m.Start(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&expert, "expert", "", "Telegram username (without @) whose replies become answers")

	return cmd
}
