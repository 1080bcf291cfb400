// Package worker runs grading jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rubric/pkg/logger"
)

// defaultSize is the number of jobs run at once.
const defaultSize = 2

// Func processes one job identified by id.
type Func func(ctx context.Context, id string) error

// Result is the outcome of one job.
type Result struct {
	ID       string
	Err      error
	Duration time.Duration
}

// Pool runs jobs with bounded concurrency. A failing job does not stop the
// others; only cancellation of the context does.
type Pool struct {
	name   string
	size   int
	logger logger.Logger
}

// NewPool creates a pool. Without WithLogger the global logger is used.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		name: "worker-pool",
		size: defaultSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get()
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return p.size }

// Run calls fn for every id and returns one result per id in input order.
// Jobs not started before ctx is cancelled are reported with the context
// error, which is also returned.
func (p *Pool) Run(ctx context.Context, ids []string, fn Func) ([]Result, error) {
	results := make([]Result, len(ids))
	for i, id := range ids {
		results[i] = Result{ID: id}
	}

	var g errgroup.Group
	g.SetLimit(p.size)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(ids); j++ {
				results[j].Err = err
			}
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			start := time.Now()
			err := fn(ctx, id)
			results[i].Err = err
			results[i].Duration = time.Since(start)
			if err != nil {
				p.logger.Warn(ctx, "job failed",
					logger.String("id", id),
					logger.Duration("duration", results[i].Duration),
					logger.Error(err),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
	return results, ctx.Err()
}
