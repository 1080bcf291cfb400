package main

import (
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/rubric/internal/app"
)

func newRefineCommand(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Rewrite feedback comments for tone into refined_comments/",
		Long: `Rewrite every component comment for tone, in the course's graduate or
undergraduate persona, without changing any score. Results are written to
refined_comments/ and preferred by export. A comment that cannot be
refined keeps its original text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			engine, err := c.engine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			v := c.vault()
			r := service.NewRefinement(engine, v.Live(), v.Refined(),
				service.WithRefineLevel(c.active().Level),
				service.WithRefineForce(force),
				service.WithRefineLogger(c.log),
			)
			rep, err := r.Run(ctx)
			printRefinement(cmd.OutOrStdout(), rep)
			if err != nil {
				return err
			}
			if rep.Kept > 0 || rep.Failed > 0 {
				return &PartialError{Message: fmt.Sprintf("refinement kept %d original comment(s) and failed %d record(s)", rep.Kept, rep.Failed)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Refine records that already have a refined copy")
	return cmd
}
