package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rubric/pkg/metrics"
)

// Default retry policy.
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 2 * time.Second
	DefaultRateLimitDelay = 30 * time.Second
)

// Policy is the caller supplied retry policy.
type Policy struct {
	MaxAttempts int
	// BaseDelay grows linearly: attempt n waits n * BaseDelay.
	BaseDelay time.Duration
	// RateLimitDelay replaces the backoff after ErrRateLimited.
	RateLimitDelay time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		RateLimitDelay: DefaultRateLimitDelay,
	}
}

func (p Policy) delay(attempt int, err error) time.Duration {
	if errors.Is(err, ErrRateLimited) && p.RateLimitDelay > 0 {
		return p.RateLimitDelay
	}
	return time.Duration(attempt) * p.BaseDelay
}

// RetryingGrader retries retryable failures of an inner grader.
type RetryingGrader struct {
	inner  Grader
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps g with policy. A policy with fewer than one attempt makes
// a single attempt.
func WithRetry(g Grader, policy Policy) *RetryingGrader {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingGrader{inner: g, policy: policy, sleep: sleepCtx}
}

// Assess calls the inner grader until it succeeds, fails permanently, or
// the attempts run out.
func (r *RetryingGrader) Assess(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		res, err := r.inner.Assess(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == r.policy.MaxAttempts {
			break
		}
		metrics.RecordAssessmentRetry()
		if err := r.sleep(ctx, r.policy.delay(attempt, lastErr)); err != nil {
			return Result{}, fmt.Errorf("assess %q: %w", req.Criterion.Name, err)
		}
	}
	return Result{}, fmt.Errorf("assess %q: %w", req.Criterion.Name, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
