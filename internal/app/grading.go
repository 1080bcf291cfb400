package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/rubric/internal/adapters/evidence"
	"github.com/okian/rubric/internal/adapters/mq/worker"
	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/internal/domain/scoring"
	"github.com/okian/rubric/pkg/logger"
	"github.com/okian/rubric/pkg/metrics"
)

// Group outcomes of a grading run.
const (
	GroupGraded  = "graded"
	GroupPartial = "partial"
	GroupSkipped = "skipped"
	GroupFailed  = "failed"
)

// Collector gathers the evidence of one submission directory.
type Collector interface {
	Collect(ctx context.Context, dir string) ([]scoring.Evidence, error)
}

// GroupOutcome is the result of grading one submission.
type GroupOutcome struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Total  float64       `json:"total_score"`
	Failed []string      `json:"failed_criteria,omitempty"`
	Error  string        `json:"error,omitempty"`
	Took   time.Duration `json:"duration_ns"`
}

// GradingReport summarizes a grading run.
type GradingReport struct {
	Graded  int            `json:"graded"`
	Partial int            `json:"partial"`
	Skipped int            `json:"skipped"`
	Failed  int            `json:"failed"`
	Groups  []GroupOutcome `json:"groups"`
}

// GradingOption configures a Grading orchestrator.
type GradingOption func(*Grading)

// WithCourse names the course and its prompt level.
func WithCourse(name, level string) GradingOption {
	return func(g *Grading) {
		g.course, g.level = name, level
	}
}

// WithForce regrades submissions that already have a record.
func WithForce(force bool) GradingOption {
	return func(g *Grading) { g.force = force }
}

// WithPool sets the pool groups are graded on.
func WithPool(p *worker.Pool) GradingOption {
	return func(g *Grading) {
		if p != nil {
			g.pool = p
		}
	}
}

// WithModelName records the model name on graded records.
func WithModelName(name string) GradingOption {
	return func(g *Grading) { g.model = name }
}

// WithGradingLogger sets the logger.
func WithGradingLogger(l logger.Logger) GradingOption {
	return func(g *Grading) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithGradingClock overrides the time source.
func WithGradingClock(now func() time.Time) GradingOption {
	return func(g *Grading) {
		if now != nil {
			g.now = now
		}
	}
}

// Grading turns submission directories into score records, one criterion
// at a time.
type Grading struct {
	grader    scoring.Grader
	collector Collector
	store     repository.Store
	criteria  []scoring.Criterion
	pool      *worker.Pool
	course    string
	level     string
	model     string
	force     bool
	now       func() time.Time
	logger    logger.Logger
}

// NewGrading creates a grading orchestrator writing to store.
func NewGrading(grader scoring.Grader, collector Collector, store repository.Store, criteria []scoring.Criterion, opts ...GradingOption) *Grading {
	g := &Grading{
		grader:    grader,
		collector: collector,
		store:     store,
		criteria:  criteria,
		level:     scoring.LevelGraduate,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Named("grading")
	}
	if g.pool == nil {
		g.pool = worker.NewPool(worker.WithName("grading-pool"), worker.WithLogger(g.logger))
	}
	return g
}

// Run grades every group directory under root. Only cancellation stops the
// run early; per-group failures are reported.
func (g *Grading) Run(ctx context.Context, root string) (GradingReport, error) {
	groups, err := evidence.Submissions(root)
	if err != nil {
		return GradingReport{}, err
	}
	g.logger.Info(ctx, "grading submissions",
		logger.String("root", root),
		logger.Int("groups", len(groups)),
		logger.Int("workers", g.pool.Size()),
		logger.Bool("force", g.force),
	)

	outcomes := make([]GroupOutcome, len(groups))
	index := make(map[string]int, len(groups))
	for i, id := range groups {
		index[id] = i
		outcomes[i] = GroupOutcome{ID: id}
	}

	results, runErr := g.pool.Run(ctx, groups, func(ctx context.Context, id string) error {
		out := &outcomes[index[id]]
		start := time.Now()
		defer func() { out.Took = time.Since(start) }()

		if !g.force {
			if _, err := g.store.Get(ctx, id); err == nil {
				out.Status = GroupSkipped
				return nil
			}
		}
		rec, err := g.GradeGroup(ctx, id, filepath.Join(root, id))
		if err != nil {
			return err
		}
		out.Total = rec.TotalScore
		out.Status = GroupGraded
		if rec.Partial {
			out.Status = GroupPartial
			for _, c := range rec.Components {
				if failedComment(c.Comment) {
					out.Failed = append(out.Failed, c.Name)
				}
			}
		}
		return nil
	})

	var rep GradingReport
	for _, r := range results {
		out := &outcomes[index[r.ID]]
		if r.Err != nil {
			out.Status, out.Error = GroupFailed, r.Err.Error()
		}
		switch out.Status {
		case GroupGraded:
			rep.Graded++
		case GroupPartial:
			rep.Partial++
		case GroupSkipped:
			rep.Skipped++
		default:
			out.Status = GroupFailed
			rep.Failed++
		}
		metrics.RecordGradedRecord(out.Status)
	}
	rep.Groups = outcomes

	g.logger.Info(ctx, "grading finished",
		logger.Int("graded", rep.Graded),
		logger.Int("partial", rep.Partial),
		logger.Int("skipped", rep.Skipped),
		logger.Int("failed", rep.Failed),
	)
	return rep, runErr
}

const failurePrefix = "Assessment failed: "

func failedComment(c string) bool { return strings.HasPrefix(c, failurePrefix) }

// GradeGroup grades one submission and saves the record. A criterion whose
// assessment fails scores 0 and marks the record partial.
func (g *Grading) GradeGroup(ctx context.Context, id, dir string) (model.ScoreRecord, error) {
	ctx = logger.WithFields(ctx, logger.String("group", id))
	items, err := g.collector.Collect(ctx, dir)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	g.logger.Debug(ctx, "evidence collected", logger.Int("items", len(items)))

	rec := model.ScoreRecord{
		ID:         id,
		Course:     g.course,
		Model:      g.model,
		GradedAt:   g.now().UTC(),
		Components: make([]model.ComponentScore, 0, len(g.criteria)),
	}
	for _, c := range g.criteria {
		comp, err := g.assess(ctx, id, c, items)
		if err != nil {
			if ctx.Err() != nil {
				return model.ScoreRecord{}, ctx.Err()
			}
			rec.Partial = true
			comp = model.ComponentScore{
				Name:     c.Name,
				MaxScore: c.MaxScore,
				Comment:  failurePrefix + err.Error(),
			}
			g.logger.Warn(ctx, "criterion not assessed, scored 0",
				logger.String("criterion", c.Name), logger.Error(err))
		}
		rec.Components = append(rec.Components, comp)
	}
	rec.Recompute()

	if err := g.store.Save(ctx, rec); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("save %s: %w", id, err)
	}
	g.logger.Info(ctx, "group graded",
		logger.Float64("total", rec.TotalScore),
		logger.Float64("max_total", rec.MaxTotal()),
		logger.Bool("partial", rec.Partial),
	)
	return rec, nil
}

func (g *Grading) assess(ctx context.Context, id string, c scoring.Criterion, items []scoring.Evidence) (model.ComponentScore, error) {
	start := time.Now()
	res, err := g.grader.Assess(ctx, scoring.Request{
		SubmissionID: id,
		Criterion:    c,
		Prompt:       scoring.BuildPrompt(id, g.level, c),
		Evidence:     evidence.Filter(items, c),
	})
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, scoring.ErrRateLimited):
		status = "rate_limited"
	case errors.Is(err, scoring.ErrInvalidResponse):
		status = "invalid_response"
	default:
		status = "error"
	}
	metrics.RecordAssessment(status, time.Since(start).Seconds())
	if err != nil {
		return model.ComponentScore{}, err
	}

	res = res.Clamp(c.MaxScore)
	return model.ComponentScore{
		Name:     c.Name,
		Score:    math.Round(res.Score*10) / 10,
		MaxScore: c.MaxScore,
		Comment:  res.Comment,
	}, nil
}
