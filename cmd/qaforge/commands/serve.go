package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/server"
	"github.com/qaforge/qaforge/internal/tracing"
)

// NewServeCmd constructs the `qaforge serve` command, which starts the
// question-answering HTTP server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the question-answering HTTP server",
		Long: `Start the qaforge HTTP server.

The server exposes POST /api/ask for blocking answers, POST /api/ask_stream
for SSE streaming answers, plus /api/health, /api/ready, and /metrics.

Examples:
  qaforge serve
  qaforge serve --port 9090
  MODEL_PROVIDER=ollama qaforge serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			cfg := config.FromEnv()

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Set up Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			engine, vectors, cleanup, err := buildEngine(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to open database: %w", err)
			}
			defer st.Close()

			srv, err := server.New(engine, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				APIKey: cfg.Server.APIKey,
				Pingers: []server.Pinger{
					server.NewVectorPinger(vectors),
					server.NewStorePinger(st),
				},
				Health: server.HealthInfo{
					EmbeddingProvider: cfg.Embedding.Provider,
					EmbeddingModel:    cfg.Embedding.Model,
					EmbeddingDevice:   cfg.Embedding.Device,
					TopK:              engine.TopK(),
					Threshold:         engine.Threshold(),
					Streaming:         engine.Streaming(),
					ShowSources:       engine.ShowSources(),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
