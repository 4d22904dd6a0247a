package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/store"
)

// NewAuditCmd constructs the `qaforge audit` command group for expert review
// of extracted pairs. Approved pairs become eligible for audited-only
// indexing; irrelevant pairs are excluded from indexing entirely. Changes
// reach the vector index on the next `qaforge index` run.
func NewAuditCmd() *cobra.Command {
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Review extracted QA pairs",
	}
	audit.AddCommand(
		newAuditShowCmd(),
		newAuditApproveCmd(),
		newAuditIrrelevantCmd(),
		newAuditScoreCmd(),
		newAuditEditCmd(),
	)
	return audit
}

func newAuditShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pair-id>",
		Short: "Print a QA pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(cmd, args[0], func(ctx context.Context, st *store.Store, id int64) error {
				p, err := st.GetPair(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Pair #%d (%s)\n", p.ID, p.Filename)
				fmt.Printf("Вопрос: %s\n", p.Question)
				fmt.Printf("Ответ:  %s\n", p.Answer)
				fmt.Printf("Направление: %s\n", p.Direction)
				if p.QuestionType != "" {
					fmt.Printf("Тип вопроса: %s\n", p.QuestionType)
				}
				if len(p.Keywords) > 0 {
					fmt.Printf("Ключевые слова: %s\n", strings.Join(p.Keywords, ", "))
				}
				if p.QualityScore != nil {
					fmt.Printf("Оценка качества: %.1f\n", *p.QualityScore)
				}
				fmt.Printf("Проверена: %v, нерелевантна: %v\n", p.IsAudited, p.IsIrrelevant)
				return nil
			})
		},
	}
}

func newAuditApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <pair-id>",
		Short: "Mark a pair as expert-approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(cmd, args[0], func(ctx context.Context, st *store.Store, id int64) error {
				if err := st.SetAudited(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Pair %d approved\n", id)
				return nil
			})
		},
	}
}

func newAuditIrrelevantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "irrelevant <pair-id>",
		Short: "Flag a pair as irrelevant noise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPair(cmd, args[0], func(ctx context.Context, st *store.Store, id int64) error {
				if err := st.SetIrrelevant(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Pair %d flagged irrelevant\n", id)
				return nil
			})
		},
	}
}

func newAuditScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <pair-id> <score>",
		Short: "Set the quality score (1-10) of a pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("audit: invalid score %q", args[1])
			}
			if score < 1 || score > 10 {
				return fmt.Errorf("audit: score %v outside [1, 10]", score)
			}
			return withPair(cmd, args[0], func(ctx context.Context, st *store.Store, id int64) error {
				if err := st.SetQualityScore(ctx, id, score); err != nil {
					return err
				}
				fmt.Printf("Pair %d scored %.1f\n", id, score)
				return nil
			})
		},
	}
}

func newAuditEditCmd() *cobra.Command {
	var answer string
	cmd := &cobra.Command{
		Use:   "edit <pair-id>",
		Short: "Replace the answer text of a pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(answer) == "" {
				return fmt.Errorf("audit: --answer must not be empty")
			}
			return withPair(cmd, args[0], func(ctx context.Context, st *store.Store, id int64) error {
				if err := st.UpdateAnswer(ctx, id, answer); err != nil {
					return err
				}
				fmt.Printf("Pair %d answer updated\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&answer, "answer", "", "New answer text")
	_ = cmd.MarkFlagRequired("answer")
	return cmd
}

// withPair opens the store, parses the pair ID, and runs fn against it.
func withPair(cmd *cobra.Command, rawID string, fn func(context.Context, *store.Store, int64) error) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("audit: invalid pair id %q", rawID)
	}

	log := logging.New()
	ctx := logging.WithLogger(cmd.Context(), log)
	cfg := config.FromEnv()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("audit: failed to open database: %w", err)
	}
	defer st.Close()

	return fn(ctx, st, id)
}
