package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/rubric/internal/app"
)

func newNormalizeCommand(c *cli) *cobra.Command {
	var (
		mean, lo, hi float64
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize the cohort toward the course's target distribution",
		Long: `Normalize the cohort toward the course's target distribution.

The first run that changes anything copies every record to
pre_normalization_backup/ and later runs always start from that baseline,
so repeated runs never compound. Each later run also snapshots the live
records under snapshots/ before writing. A cohort already within the
target band is left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			target := c.active().Target()
			flags := cmd.Flags()
			if flags.Changed("mean") {
				target.Mean = mean
			}
			if flags.Changed("min") {
				target.Min = lo
			}
			if flags.Changed("max") {
				target.Max = hi
			}

			opts := []service.NormalizerOption{
				service.WithSkipTolerance(c.cfg.SkipTolerance),
				service.WithNormalizerLogger(c.log),
			}
			if j := c.journal(ctx); j != nil {
				defer func() { _ = j.Close() }()
				opts = append(opts, service.WithJournal(j))
			}

			rep, err := service.NewNormalizer(service.VaultStores(c.vault()), opts...).Run(ctx, target)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				printNormalization(cmd.OutOrStdout(), rep)
			}
			if rep.Partial() {
				return &PartialError{Message: fmt.Sprintf("normalization completed with %d skipped and %d failed record(s)", rep.Skipped, rep.Failed)}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&mean, "mean", 0, "Target mean (default: course target_mean)")
	cmd.Flags().Float64Var(&lo, "min", 0, "Target minimum (default: course target_min)")
	cmd.Flags().Float64Var(&hi, "max", 0, "Target maximum (default: course target_max)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run report as JSON")
	return cmd
}
