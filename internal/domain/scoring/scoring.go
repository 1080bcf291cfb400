// Package scoring defines the contract for assessing one rubric criterion
// from submission evidence.
package scoring

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Default static grader configuration.
const (
	defaultRatio      = 0.7
	defaultMinLatency = 0
	defaultMaxLatency = 0
	defaultRandomSeed = 42
)

// EvidenceKind classifies a submission artifact.
type EvidenceKind string

// Evidence kinds.
const (
	EvidenceVideo    EvidenceKind = "video"
	EvidenceImage    EvidenceKind = "image"
	EvidenceCode     EvidenceKind = "code"
	EvidenceDocument EvidenceKind = "document"
	EvidenceArchive  EvidenceKind = "archive"
)

// Evidence is one artifact handed to a grader. Text carries extracted
// content (source code, archive listings); Data carries raw bytes for
// inline media; Path points at the original file.
type Evidence struct {
	Kind     EvidenceKind
	Name     string
	Path     string
	MIMEType string
	Text     string
	Data     []byte
	Size     int64
}

// Criterion is one rubric line.
type Criterion struct {
	Name     string         `json:"name" yaml:"name" koanf:"name"`
	MaxScore float64        `json:"max_score" yaml:"max_score" koanf:"max_score"`
	Evidence []EvidenceKind `json:"evidence" yaml:"evidence" koanf:"evidence"`
	Guidance string         `json:"guidance" yaml:"guidance" koanf:"guidance"`
}

// Accepts reports whether evidence of kind k is relevant to the criterion.
// A criterion without an evidence list accepts everything.
func (c Criterion) Accepts(k EvidenceKind) bool {
	if len(c.Evidence) == 0 {
		return true
	}
	for _, e := range c.Evidence {
		if e == k {
			return true
		}
	}
	return false
}

// Request asks a grader to assess one criterion for one submission.
type Request struct {
	SubmissionID string
	Criterion    Criterion
	Prompt       string
	Evidence     []Evidence
}

// Result is a grader's verdict for one criterion.
type Result struct {
	Score   float64 `json:"score"`
	Comment string  `json:"comment"`
}

// Clamp bounds the score to [0, max].
func (r Result) Clamp(maxScore float64) Result {
	if math.IsNaN(r.Score) {
		r.Score = 0
	}
	r.Score = math.Max(0, math.Min(maxScore, r.Score))
	return r
}

// Grader assesses a criterion. Implementations mark retryable failures with
// ErrTransient or ErrRateLimited.
type Grader interface {
	// Assess grades one criterion, honoring ctx for cancellation.
	Assess(ctx context.Context, req Request) (Result, error)
}

// GraderFunc adapts a function to Grader.
type GraderFunc func(ctx context.Context, req Request) (Result, error)

// Assess calls f.
func (f GraderFunc) Assess(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Option applies a configuration option to the StaticGrader.
type Option func(*StaticGrader)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *StaticGrader) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithRatios sets the share of each criterion's maximum awarded by name.
func WithRatios(ratios map[string]float64, defaultRatio float64) Option {
	return func(s *StaticGrader) {
		// Copy the map to avoid external modifications
		s.ratios = make(map[string]float64, len(ratios))
		for name, r := range ratios {
			if r >= 0 && r <= 1 {
				s.ratios[name] = r
			}
		}
		if defaultRatio >= 0 && defaultRatio <= 1 {
			s.defaultRatio = defaultRatio
		}
	}
}

// StaticGrader awards a fixed share of each criterion's maximum. It backs
// offline runs and tests where no model is available.
type StaticGrader struct {
	ratios       map[string]float64
	defaultRatio float64
	minLatency   time.Duration
	maxLatency   time.Duration
	rng          *rand.Rand
}

// NewStaticGrader creates a static grader with configuration options.
func NewStaticGrader(opts ...Option) *StaticGrader {
	s := &StaticGrader{
		ratios:       make(map[string]float64),
		defaultRatio: defaultRatio,
		minLatency:   defaultMinLatency,
		maxLatency:   defaultMaxLatency,
		rng:          rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible runs
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assess returns ratio * max score, rounded to one decimal.
func (s *StaticGrader) Assess(ctx context.Context, req Request) (Result, error) {
	if s.maxLatency > s.minLatency {
		latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("assess %q: %w", req.Criterion.Name, ctx.Err())
		case <-time.After(latency):
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("assess %q: %w", req.Criterion.Name, err)
	}

	ratio, ok := s.ratios[req.Criterion.Name]
	if !ok {
		ratio = s.defaultRatio
	}
	score := math.Round(req.Criterion.MaxScore*ratio*10) / 10
	return Result{
		Score:   score,
		Comment: fmt.Sprintf("Offline assessment from %d evidence item(s).", len(req.Evidence)),
	}.Clamp(req.Criterion.MaxScore), nil
}
