package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rubric/internal/adapters/export"
	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/pkg/logger"
)

// Export kinds accepted by --kind.
const (
	kindSummary  = "summary"
	kindDetailed = "detailed"
	kindAll      = "all"
)

func newExportCommand(c *cli) *cobra.Command {
	var (
		out     string
		kind    string
		refined bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write CSV reports of the graded records",
		Long: `Write CSV reports of the graded records.

summary has one row per criterion and a total row per group; detailed has
one row per group with a score and comment column per criterion plus the
normalization details. Comments from refined_comments/ are used when
present unless --refined=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var kinds []string
			switch kind {
			case kindSummary:
				kinds = []string{export.KindSummary}
			case kindDetailed:
				kinds = []string{export.KindDetailed}
			case kindAll:
				kinds = []string{export.KindSummary, export.KindDetailed}
			default:
				return fmt.Errorf("unknown --kind %q (want summary, detailed or all)", kind)
			}
			if out == "" {
				out = c.cfg.ResultsDir
			}

			v := c.vault()
			records, err := loadValid(ctx, v.Live(), c.log)
			if err != nil {
				return err
			}
			criteria := c.active().Rubric()
			names := make([]string, len(criteria))
			for i, cr := range criteria {
				names[i] = cr.Name
			}
			opts := []export.Option{export.WithCriteria(names...)}
			if refined {
				rs, err := loadValid(ctx, v.Refined(), c.log)
				if err != nil {
					return err
				}
				opts = append(opts, export.WithRefined(rs))
			}

			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			exp := export.New(opts...)
			now := time.Now()
			for _, k := range kinds {
				path, err := exp.WriteFile(out, c.cfg.Course, k, now, records)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory (default: results directory)")
	cmd.Flags().StringVar(&kind, "kind", kindAll, "Report kind: summary, detailed or all")
	cmd.Flags().BoolVar(&refined, "refined", true, "Use refined comments when available")
	return cmd
}

func loadValid(ctx context.Context, store repository.Store, log logger.Logger) ([]model.ScoreRecord, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoreRecord, 0, len(entries))
	for _, e := range entries {
		if e.Err != nil {
			log.Warn(ctx, "record left out of export", logger.String("record", e.ID), logger.Error(e.Err))
			continue
		}
		out = append(out, e.Record)
	}
	return out, nil
}
