package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/logging"
)

// NewStatsCmd constructs the `qaforge stats` command, which prints a summary
// of the knowledge base contents.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print knowledge base statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cfg := config.FromEnv()

			st, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("stats: failed to open database: %w", err)
			}
			defer st.Close()

			stats, err := st.Statistics(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			fmt.Printf("Files processed:   %d (%d with pairs)\n", stats.TotalFiles, stats.FilesWithPairs)
			fmt.Printf("QA pairs:          %d\n", stats.TotalPairs)
			fmt.Printf("Audited:           %d\n", stats.AuditedPairs)
			fmt.Printf("Irrelevant:        %d\n", stats.IrrelevantPairs)
			if stats.AvgQualityScore > 0 {
				fmt.Printf("Avg quality score: %.2f\n", stats.AvgQualityScore)
			}

			printGroup := func(title string, group map[string]int) {
				if len(group) == 0 {
					return
				}
				fmt.Printf("\n%s:\n", title)
				keys := make([]string, 0, len(group))
				for k := range group {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %-30s %d\n", k, group[k])
				}
			}
			printGroup("By direction", stats.ByDirection)
			printGroup("By question type", stats.ByType)

			return nil
		},
	}
}
