package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/extraction"
	"github.com/qaforge/qaforge/internal/logging"
)

// NewExtractCmd constructs the `qaforge extract` command, which runs the LLM
// extraction pipeline over a directory of transcript files.
func NewExtractCmd() *cobra.Command {
	var dir string
	var force bool
	var noScore bool
	var limit int

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract QA pairs from call transcripts into the database",
		Long: `Process a directory of call transcript .txt files.

Each file is cleaned, parsed for call metadata, and sent to the LLM, which
extracts business question/answer pairs. Valid pairs are saved to SQLite and
the file is recorded as processed so repeated runs skip it.

Examples:
  qaforge extract --dir ./transcripts
  qaforge extract --dir ./transcripts --force
  qaforge extract --dir ./transcripts --limit 10 --no-score`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cfg := config.FromEnv()

			if dir == "" {
				return fmt.Errorf("extract: --dir is required")
			}

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("extract: failed to open database: %w", err)
			}
			defer st.Close()

			client, err := buildLLMClient(ctx, cfg)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			processor := extraction.NewProcessor(extraction.NewExtractor(client), !noScore)

			files, err := listTranscripts(dir)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			log.Info("transcripts found", slog.Int("count", len(files)), slog.String("dir", dir))

			var processed, skipped, failed, saved int
			for _, path := range files {
				if limit > 0 && processed >= limit {
					break
				}

				filename := filepath.Base(path)
				if !force {
					done, err := st.IsFileProcessed(ctx, filename)
					if err != nil {
						return fmt.Errorf("extract: %w", err)
					}
					if done {
						skipped++
						continue
					}
				}

				result := processor.ProcessFile(ctx, path)
				processed++

				if result.Err == "" && len(result.Pairs) > 0 {
					if err := st.SavePairs(ctx, result.Pairs); err != nil {
						return fmt.Errorf("extract: failed to save pairs for %s: %w", filename, err)
					}
					saved += len(result.Pairs)
				}
				if result.Err != "" {
					failed++
				}

				if err := st.MarkFileProcessed(ctx, filename, len(result.Pairs),
					result.HasBusinessPairs, result.Err, result.Meta); err != nil {
					return fmt.Errorf("extract: failed to record %s: %w", filename, err)
				}

				log.Info("file processed",
					slog.String("file", filename),
					slog.Int("pairs", len(result.Pairs)),
					slog.Bool("has_business_pairs", result.HasBusinessPairs),
				)
			}

			log.Info("extraction finished",
				slog.Int("processed", processed),
				slog.Int("skipped", skipped),
				slog.Int("failed", failed),
				slog.Int("pairs_saved", saved),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory containing transcript .txt files")
	cmd.Flags().BoolVar(&force, "force", false, "Re-process files already recorded as processed")
	cmd.Flags().BoolVar(&noScore, "no-score", false, "Skip the LLM quality-scoring pass")
	cmd.Flags().IntVar(&limit, "limit", 0, "Process at most N files (0 = no limit)")

	return cmd
}

// listTranscripts returns the .txt files directly inside dir, sorted by name
// so runs are deterministic.
func listTranscripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
