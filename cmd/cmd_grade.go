package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rubric/internal/adapters/evidence"
	"github.com/okian/rubric/internal/adapters/mq/worker"
	service "github.com/okian/rubric/internal/app"
	"github.com/okian/rubric/internal/config"
	"github.com/okian/rubric/internal/domain/scoring"
)

func newGradeCommand(c *cli) *cobra.Command {
	var (
		submissions string
		rubricPath  string
		force       bool
		offline     bool
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade every group directory under the submissions directory",
		Long: `Grade every group directory under the submissions directory.

Evidence (videos, images, code, archives, documents) is collected once per
group and each rubric criterion is assessed separately. A criterion whose
assessment fails after retries scores 0 and marks the record partial.
Groups that already have a record are skipped unless --force is given.

--offline grades with a fixed share of each criterion's maximum instead of
calling the model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			course := c.active()
			if submissions == "" {
				submissions = c.cfg.SubmissionsDir
			}
			if workers <= 0 {
				workers = c.cfg.WorkerCount
			}
			criteria := course.Rubric()
			if rubricPath != "" {
				var err error
				if criteria, err = config.LoadRubric(rubricPath); err != nil {
					return err
				}
			}

			var grader scoring.Grader
			modelName := "offline"
			if offline {
				grader = scoring.NewStaticGrader()
			} else {
				engine, err := c.engine(ctx)
				if err != nil {
					return fmt.Errorf("%w (use --offline to grade without the model)", err)
				}
				defer func() { _ = engine.Close() }()
				grader, modelName = engine, engine.Model()
			}

			pool := worker.NewPool(worker.WithName("grading-pool"), worker.WithSize(workers), worker.WithLogger(c.log))
			g := service.NewGrading(
				scoring.WithRetry(grader, c.cfg.RetryPolicy()),
				evidence.NewCollector(),
				c.vault().Live(),
				criteria,
				service.WithCourse(c.cfg.Course, course.Level),
				service.WithModelName(modelName),
				service.WithForce(force),
				service.WithPool(pool),
				service.WithGradingLogger(c.log),
			)
			rep, err := g.Run(ctx, submissions)
			printGrading(cmd.OutOrStdout(), rep)
			if err != nil {
				return err
			}
			if rep.Partial > 0 || rep.Failed > 0 {
				return &PartialError{Message: fmt.Sprintf("grading completed with %d partial and %d failed group(s)", rep.Partial, rep.Failed)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&submissions, "submissions", "", "Submissions directory, one sub-directory per group (default: submissions_dir)")
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "YAML rubric overriding the course criteria")
	cmd.Flags().BoolVar(&force, "force", false, "Regrade groups that already have a record")
	cmd.Flags().BoolVar(&offline, "offline", false, "Grade without calling the model")
	cmd.Flags().IntVar(&workers, "workers", 0, "Groups graded at once (default: worker_count)")
	return cmd
}
