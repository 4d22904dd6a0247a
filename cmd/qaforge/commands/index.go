package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/indexer"
	"github.com/qaforge/qaforge/internal/logging"
)

// NewIndexCmd constructs the `qaforge index` command, which rebuilds the
// Qdrant collection from the pairs stored in SQLite.
func NewIndexCmd() *cobra.Command {
	var all bool
	var auditedOnly bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from stored QA pairs",
		Long: `Rebuild the Qdrant collection from scratch.

Eligible pairs are read from SQLite, embedded in batches, and upserted into a
freshly created collection. By default every non-irrelevant pair is indexed;
with --audited-only the index is restricted to pairs a reviewer approved.

Examples:
  qaforge index
  qaforge index --audited-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cfg := config.FromEnv()

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("index: failed to open database: %w", err)
			}
			defer st.Close()

			emb, err := buildEmbedder(cfg, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			vectors, err := buildVectorStore(cfg)
			if err != nil {
				return fmt.Errorf("index: failed to connect to Qdrant: %w", err)
			}
			defer vectors.Close()

			indexAll := config.BoolOr(cfg.RAG.IndexAll, true)
			if all {
				indexAll = true
			}
			if auditedOnly {
				indexAll = false
			}

			ix := indexer.New(st, emb, vectors, indexer.Config{
				IndexAll:          indexAll,
				ExcludeIrrelevant: config.BoolOr(cfg.RAG.ExcludeIrrelevant, true),
				BatchSize:         cfg.Embedding.BatchSize,
			})

			result, err := ix.Run(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			log.Info("index rebuilt",
				slog.Int("loaded", result.Loaded),
				slog.Int("indexed", result.Indexed),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Index every eligible pair regardless of audit status")
	cmd.Flags().BoolVar(&auditedOnly, "audited-only", false, "Index only pairs approved by a reviewer")

	return cmd
}
