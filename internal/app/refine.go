package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/domain/scoring"
	"github.com/okian/rubric/pkg/logger"
	"github.com/okian/rubric/pkg/metrics"
)

// RefineReport summarizes a refinement run.
type RefineReport struct {
	Records  int    `json:"records"`
	Refined  int    `json:"refined"`
	Kept     int    `json:"kept"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Location string `json:"location"`
}

// RefinerOption configures a Refinement.
type RefinerOption func(*Refinement)

// WithRefineLevel selects the persona the comments are rewritten for.
func WithRefineLevel(level string) RefinerOption {
	return func(r *Refinement) {
		if level != "" {
			r.level = level
		}
	}
}

// WithRefineForce rewrites records that already have a refined copy.
func WithRefineForce(force bool) RefinerOption {
	return func(r *Refinement) { r.force = force }
}

// WithRefineLogger sets the logger.
func WithRefineLogger(l logger.Logger) RefinerOption {
	return func(r *Refinement) {
		if l != nil {
			r.logger = l
		}
	}
}

// Refinement rewrites record comments for tone and stores the results next
// to the live records. Scores are never changed.
type Refinement struct {
	refiner scoring.Refiner
	live    repository.Store
	refined repository.Store
	level   string
	force   bool
	logger  logger.Logger
}

// NewRefinement creates a refinement orchestrator reading live and writing
// refined.
func NewRefinement(refiner scoring.Refiner, live, refined repository.Store, opts ...RefinerOption) *Refinement {
	r := &Refinement{
		refiner: refiner,
		live:    live,
		refined: refined,
		level:   scoring.LevelGraduate,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Named("refine")
	}
	return r
}

// Run refines every valid live record. A comment whose refinement fails
// keeps its original text.
func (r *Refinement) Run(ctx context.Context) (RefineReport, error) {
	rep := RefineReport{Location: r.refined.Location()}
	entries, err := r.live.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load records: %w", err)
	}

	for _, e := range entries {
		if e.Err != nil {
			rep.Skipped++
			r.logger.Warn(ctx, "record not refined", logger.String("record", e.ID), logger.Error(e.Err))
			continue
		}
		rep.Records++
		if !r.force {
			if _, err := r.refined.Get(ctx, e.ID); err == nil {
				rep.Skipped++
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				r.logger.Warn(ctx, "refined copy unreadable, rewriting", logger.String("record", e.ID), logger.Error(err))
			}
		}

		out := e.Record.Clone()
		for i, c := range out.Components {
			text, err := r.refiner.Refine(ctx, scoring.RefineRequest{
				SubmissionID: out.ID,
				Component:    c.Name,
				Score:        c.Score,
				MaxScore:     c.MaxScore,
				Comment:      c.Comment,
				Level:        r.level,
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return rep, ctxErr
				}
				rep.Kept++
				metrics.RecordCommentRefined("failed")
				r.logger.Warn(ctx, "comment kept as is",
					logger.String("record", out.ID), logger.String("component", c.Name), logger.Error(err))
				continue
			}
			out.Components[i].Comment = text
			rep.Refined++
			metrics.RecordCommentRefined("refined")
		}

		if err := r.refined.Save(ctx, out); err != nil {
			rep.Failed++
			r.logger.Error(ctx, "refined record not saved", logger.String("record", out.ID), logger.Error(err))
			continue
		}
		r.logger.Debug(ctx, "record refined", logger.String("record", out.ID))
	}

	r.logger.Info(ctx, "refinement finished",
		logger.Int("records", rep.Records),
		logger.Int("refined", rep.Refined),
		logger.Int("kept", rep.Kept),
		logger.Int("skipped", rep.Skipped),
		logger.Int("failed", rep.Failed),
	)
	return rep, nil
}
