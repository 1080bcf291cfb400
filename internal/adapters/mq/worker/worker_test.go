package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	worker "github.com/okian/rubric/internal/adapters/mq/worker"
	logging "github.com/okian/rubric/pkg/logger"
)

func TestPoolRun(t *testing.T) {
	convey.Convey("Given a pool of two workers", t, func() {
		pool := worker.NewPool(worker.WithSize(2), worker.WithName("test-pool"), worker.WithLogger(logging.Nop()))
		convey.So(pool.Size(), convey.ShouldEqual, 2)

		convey.Convey("When running more jobs than workers", func() {
			var running, peak int32
			var mu sync.Mutex
			seen := make(map[string]bool)
			ids := []string{"GC1", "GC2", "GC3", "GC4", "GC5"}

			results, err := pool.Run(context.Background(), ids, func(ctx context.Context, id string) error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
				return nil
			})

			convey.Convey("Then every job runs once within the bound", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(results), convey.ShouldEqual, len(ids))
				convey.So(len(seen), convey.ShouldEqual, len(ids))
				convey.So(atomic.LoadInt32(&peak), convey.ShouldBeLessThanOrEqualTo, 2)
				for i, r := range results {
					convey.So(r.ID, convey.ShouldEqual, ids[i])
					convey.So(r.Err, convey.ShouldBeNil)
				}
			})
		})

		convey.Convey("When one job fails", func() {
			boom := errors.New("assessment failed")
			results, err := pool.Run(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, id string) error {
				if id == "b" {
					return boom
				}
				return nil
			})

			convey.Convey("Then the others still complete", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(results[0].Err, convey.ShouldBeNil)
				convey.So(errors.Is(results[1].Err, boom), convey.ShouldBeTrue)
				convey.So(results[2].Err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			var calls int32
			results, err := pool.Run(ctx, []string{"a", "b"}, func(ctx context.Context, id string) error {
				atomic.AddInt32(&calls, 1)
				return nil
			})

			convey.Convey("Then no job runs and each reports cancellation", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				convey.So(atomic.LoadInt32(&calls), convey.ShouldEqual, 0)
				for _, r := range results {
					convey.So(errors.Is(r.Err, context.Canceled), convey.ShouldBeTrue)
				}
			})
		})
	})

	convey.Convey("Given default options", t, func() {
		pool := worker.NewPool(worker.WithSize(0))
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		results, err := pool.Run(context.Background(), nil, func(context.Context, string) error { return nil })
		convey.So(err, convey.ShouldBeNil)
		convey.So(results, convey.ShouldBeEmpty)
	})
}

// recorder is a Logger that keeps the messages it receives.
type recorder struct {
	mu    sync.Mutex
	names []string
	msgs  []string
}

func (r *recorder) add(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) Info(_ context.Context, msg string, _ ...logging.Field)  { r.add(msg) }
func (r *recorder) Error(_ context.Context, msg string, _ ...logging.Field) { r.add(msg) }
func (r *recorder) Debug(_ context.Context, msg string, _ ...logging.Field) { r.add(msg) }
func (r *recorder) Warn(_ context.Context, msg string, _ ...logging.Field)  { r.add(msg) }
func (r *recorder) Fatal(_ context.Context, msg string, _ ...logging.Field) { r.add(msg) }

func (r *recorder) Named(name string) logging.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r
}

func TestPoolLogger(t *testing.T) {
	convey.Convey("Given a pool built with its own logger", t, func() {
		rec := &recorder{}
		pool := worker.NewPool(worker.WithLogger(rec), worker.WithName("grading-pool"), worker.WithSize(1))

		convey.Convey("Then the logger is named after the pool", func() {
			convey.So(rec.names, convey.ShouldResemble, []string{"grading-pool"})
		})

		convey.Convey("When a job fails", func() {
			_, err := pool.Run(context.Background(), []string{"GC1"}, func(context.Context, string) error {
				return errors.New("boom")
			})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the failure reaches the injected logger", func() {
				convey.So(rec.msgs, convey.ShouldResemble, []string{"job failed"})
			})
		})
	})
}

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}
