package scoring_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	scoring "github.com/okian/rubric/internal/domain/scoring"
)

var coding = scoring.Criterion{
	Name:     "Coding Quality",
	MaxScore: 20,
	Evidence: []scoring.EvidenceKind{scoring.EvidenceCode, scoring.EvidenceArchive},
}

func TestStaticGrader_Assess(t *testing.T) {
	Convey("Given a static grader with per-criterion ratios", t, func() {
		grader := scoring.NewStaticGrader(
			scoring.WithRatios(map[string]float64{"Coding Quality": 0.8, "bogus": 3}, 0.5),
		)

		Convey("When assessing a configured criterion", func() {
			res, err := grader.Assess(context.Background(), scoring.Request{Criterion: coding})

			Convey("Then it awards the configured share of the maximum", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 16.0)
				So(res.Comment, ShouldNotBeEmpty)
			})
		})

		Convey("When assessing an unknown criterion", func() {
			res, err := grader.Assess(context.Background(), scoring.Request{
				Criterion: scoring.Criterion{Name: "Testing & Validation", MaxScore: 10},
			})

			Convey("Then it uses the default ratio", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 5.0)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := grader.Assess(ctx, scoring.Request{Criterion: coding})

			Convey("Then it returns the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When latency is simulated and the context expires", func() {
			slow := scoring.NewStaticGrader(scoring.WithLatencyRange(50*time.Millisecond, 60*time.Millisecond))
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			defer cancel()
			_, err := slow.Assess(ctx, scoring.Request{Criterion: coding})

			Convey("Then it gives up with the deadline error", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestCriterionAndResult(t *testing.T) {
	Convey("Given a criterion with an evidence filter", t, func() {
		So(coding.Accepts(scoring.EvidenceCode), ShouldBeTrue)
		So(coding.Accepts(scoring.EvidenceVideo), ShouldBeFalse)
		So(scoring.Criterion{Name: "any"}.Accepts(scoring.EvidenceVideo), ShouldBeTrue)
	})

	Convey("Given results outside the rubric", t, func() {
		So(scoring.Result{Score: 24}.Clamp(20).Score, ShouldEqual, 20)
		So(scoring.Result{Score: -3}.Clamp(20).Score, ShouldEqual, 0)
		So(scoring.Result{Score: 12.5, Comment: "ok"}.Clamp(20), ShouldResemble, scoring.Result{Score: 12.5, Comment: "ok"})
	})
}

func TestWithRetry(t *testing.T) {
	Convey("Given a grader that fails before succeeding", t, func() {
		policy := scoring.Policy{MaxAttempts: 3}

		Convey("When failures are transient", func() {
			calls := 0
			inner := scoring.GraderFunc(func(ctx context.Context, req scoring.Request) (scoring.Result, error) {
				calls++
				if calls < 3 {
					return scoring.Result{}, fmt.Errorf("upstream 503: %w", scoring.ErrTransient)
				}
				return scoring.Result{Score: 9, Comment: "fine"}, nil
			})
			res, err := scoring.WithRetry(inner, policy).Assess(context.Background(), scoring.Request{Criterion: coding})

			Convey("Then it retries until success", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldEqual, 9)
				So(calls, ShouldEqual, 3)
			})
		})

		Convey("When every attempt is rate limited", func() {
			calls := 0
			inner := scoring.GraderFunc(func(ctx context.Context, req scoring.Request) (scoring.Result, error) {
				calls++
				return scoring.Result{}, scoring.ErrRateLimited
			})
			_, err := scoring.WithRetry(inner, policy).Assess(context.Background(), scoring.Request{Criterion: coding})

			Convey("Then it stops after the attempt budget", func() {
				So(calls, ShouldEqual, 3)
				So(errors.Is(err, scoring.ErrRateLimited), ShouldBeTrue)
			})
		})

		Convey("When the failure is permanent", func() {
			calls := 0
			inner := scoring.GraderFunc(func(ctx context.Context, req scoring.Request) (scoring.Result, error) {
				calls++
				return scoring.Result{}, scoring.ErrInvalidResponse
			})
			_, err := scoring.WithRetry(inner, policy).Assess(context.Background(), scoring.Request{Criterion: coding})

			Convey("Then it does not retry", func() {
				So(calls, ShouldEqual, 1)
				So(errors.Is(err, scoring.ErrInvalidResponse), ShouldBeTrue)
				So(scoring.Retryable(err), ShouldBeFalse)
			})
		})

		Convey("When the context is cancelled during backoff", func() {
			ctx, cancel := context.WithCancel(context.Background())
			inner := scoring.GraderFunc(func(ctx context.Context, req scoring.Request) (scoring.Result, error) {
				cancel()
				return scoring.Result{}, scoring.ErrTransient
			})
			_, err := scoring.WithRetry(inner, scoring.Policy{MaxAttempts: 3, BaseDelay: time.Hour}).Assess(ctx, scoring.Request{Criterion: coding})

			Convey("Then it returns the context error", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When the policy has no attempts", func() {
			calls := 0
			inner := scoring.GraderFunc(func(ctx context.Context, req scoring.Request) (scoring.Result, error) {
				calls++
				return scoring.Result{}, scoring.ErrTransient
			})
			_, _ = scoring.WithRetry(inner, scoring.Policy{}).Assess(context.Background(), scoring.Request{Criterion: coding})
			So(calls, ShouldEqual, 1)
		})
	})

	Convey("Given the default policy", t, func() {
		p := scoring.DefaultPolicy()
		So(p.MaxAttempts, ShouldEqual, scoring.DefaultMaxAttempts)
		So(p.RateLimitDelay, ShouldEqual, scoring.DefaultRateLimitDelay)
	})
}

func TestPrompts(t *testing.T) {
	Convey("Given a criterion with guidance", t, func() {
		c := scoring.Criterion{
			Name:     "Testing & Validation",
			MaxScore: 10,
			Guidance: "- Excellent (7.1 to 10 pts): thorough, documented testing.",
		}

		Convey("When building the assessment prompt", func() {
			p := scoring.BuildPrompt("GC4", "undergraduate", c)

			Convey("Then it names the submission, maximum and guidance", func() {
				So(p, ShouldContainSubstring, "undergraduate coursework")
				So(p, ShouldContainSubstring, "submission GC4")
				So(p, ShouldContainSubstring, "(/10 pts)")
				So(p, ShouldContainSubstring, "thorough, documented testing")
				So(p, ShouldContainSubstring, "'score'")
			})
		})

		Convey("When building a refinement prompt", func() {
			long := strings.Repeat("x", 2500)
			p := scoring.RefinePrompt(scoring.RefineRequest{
				Component: c.Name, Score: 7.5, MaxScore: 10, Comment: long, Level: "graduate",
			})

			Convey("Then it uses the course persona and truncates long comments", func() {
				So(p, ShouldContainSubstring, "graduate-level research")
				So(p, ShouldContainSubstring, "7.5 / 10 points")
				So(p, ShouldNotContainSubstring, strings.Repeat("x", 2001))
			})
		})
	})
}
