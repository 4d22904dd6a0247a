package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/logging"
)

// NewAskCmd constructs the `qaforge ask` command: a one-shot question against
// the knowledge base, printed to stdout.
func NewAskCmd() *cobra.Command {
	var noStream bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the knowledge base a question",
		Long: `Ask a single question and print the retrieval-augmented answer.

The answer streams to stdout by default. Retrieved source pairs are listed
after the answer when show_sources is enabled.

Examples:
  qaforge ask "Как вернуть товар без чека?"
  qaforge ask --no-stream --json "Какие документы нужны для возврата?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cfg := config.FromEnv()

			engine, _, cleanup, err := buildEngine(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			streaming := !noStream && !asJSON
			answer := engine.AnswerQuestion(ctx, args[0], &streaming)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}

			if answer.Stream != nil {
				defer answer.Stream.Close()
				for {
					chunk, err := answer.Stream.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						fmt.Println()
						return fmt.Errorf("ask: stream failed: %w", err)
					}
					fmt.Print(chunk)
				}
				fmt.Println()
			} else {
				fmt.Println(answer.Text)
			}

			if len(answer.Evidence) > 0 {
				fmt.Printf("\nИсточники (%d):\n", len(answer.Evidence))
				for i, ev := range answer.Evidence {
					fmt.Printf("  %d. [%.2f%%] %s\n", i+1, ev.Similarity*100, ev.Question)
				}
			}

			if answer.Err != nil {
				return fmt.Errorf("ask: %w", answer.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the complete answer instead of streaming")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full answer document as JSON")

	return cmd
}
