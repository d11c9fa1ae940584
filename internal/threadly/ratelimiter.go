// Rate limiter executor: a throughput shaper that defers submissions onto
// a Scheduler so that total permit consumption never exceeds a configured
// permits-per-second, tracked as a single monotonic watermark under a
// mutex -- credit under one lock, but computing a one-shot delay instead of
// replenishing a pool on a ticker.

package threadly

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiterExecutor paces task submission onto an underlying Scheduler.
type RateLimiterExecutor struct {
	mu               sync.Mutex
	lastScheduleTime int64

	cfg   *RateLimiterConfig
	sched *Scheduler
	log   logCompLogger
}

// NewRateLimiterExecutor builds a limiter pacing submissions onto sched at
// cfg.PermitsPerSecond (>= 1).
func NewRateLimiterExecutor(sched *Scheduler, cfg *RateLimiterConfig) (*RateLimiterExecutor, error) {
	if sched == nil {
		return nil, fmt.Errorf("threadly: %w: scheduler is nil", ErrInvalidArgument)
	}
	if cfg == nil {
		cfg = DefaultRateLimiterConfig()
	}
	cfg = CloneRateLimiterConfig(cfg)
	if cfg.PermitsPerSecond < 1 {
		return nil, fmt.Errorf("threadly: %w: permits per second must be >= 1", ErrInvalidArgument)
	}
	return &RateLimiterExecutor{
		cfg:              cfg,
		sched:            sched,
		lastScheduleTime: nowMillis(),
		log:              NewCompLogger("ratelimiter"),
	}, nil
}

// reserve advances the watermark by permits worth of budget and returns the
// delay the caller's submission must observe before it may run.
func (r *RateLimiterExecutor) reserve(permits float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := nowMillis()
	delayFromNow := r.lastScheduleTime - now
	if delayFromNow < 0 {
		delayFromNow = 0
	}
	r.lastScheduleTime = now + delayFromNow + int64(permits*1000/r.cfg.PermitsPerSecond)
	return time.Duration(delayFromNow) * time.Millisecond
}

// Execute is Submit with no result value.
func (r *RateLimiterExecutor) Execute(permits float64, task func(context.Context)) (*TypedFuture[any], error) {
	return r.SubmitValue(permits, task, nil)
}

// Submit is SubmitValue with a nil result.
func (r *RateLimiterExecutor) Submit(permits float64, task func(context.Context)) (*TypedFuture[any], error) {
	return r.SubmitValue(permits, task, nil)
}

// SubmitValue reserves permits worth of budget, then schedules task to run
// once that delay has elapsed, completing its future with result.
func (r *RateLimiterExecutor) SubmitValue(permits float64, task func(context.Context), result any) (*TypedFuture[any], error) {
	if permits < 0 {
		return nil, fmt.Errorf("threadly: %w: permits must be >= 0", ErrInvalidArgument)
	}
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	delay := r.reserve(permits)
	fn := func(ctx context.Context) (any, error) {
		task(ctx)
		return result, nil
	}
	return r.sched.schedule(r.sched.cfg.DefaultPriority, fn, delay, 0, recurNone)
}

// SubmitCallableRateLimited reserves permits worth of budget, then
// schedules a T-returning task to run once that delay has elapsed.
func SubmitCallableRateLimited[T any](r *RateLimiterExecutor, permits float64, task func(context.Context) (T, error)) (*TypedFuture[T], error) {
	if permits < 0 {
		return nil, fmt.Errorf("threadly: %w: permits must be >= 0", ErrInvalidArgument)
	}
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	delay := r.reserve(permits)
	fn := func(ctx context.Context) (any, error) { return task(ctx) }
	tf, err := r.sched.schedule(r.sched.cfg.DefaultPriority, fn, delay, 0, recurNone)
	if err != nil {
		return nil, err
	}
	return &TypedFuture[T]{inner: tf.inner}, nil
}

// GetMinimumDelay returns the delay a submission made right now would
// incur, without reserving any budget.
func (r *RateLimiterExecutor) GetMinimumDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.lastScheduleTime - nowMillis()
	if d < 0 {
		d = 0
	}
	return time.Duration(d) * time.Millisecond
}

// GetFutureTillDelay returns an already-complete future if the current
// minimum delay is within maxDelay; otherwise it schedules a no-op task
// for minDelay-maxDelay from now (without consuming any permit budget) and
// returns its future, so a caller can wait exactly until the limiter would
// admit a submission within maxDelay.
func (r *RateLimiterExecutor) GetFutureTillDelay(maxDelay time.Duration) Future[any] {
	minDelay := r.GetMinimumDelay()
	if minDelay <= maxDelay {
		f := NewSettableFuture[any]()
		f.SetResult(nil)
		return f
	}
	wait := minDelay - maxDelay
	noop := func(context.Context) (any, error) { return nil, nil }
	tf, err := r.sched.schedule(r.sched.cfg.DefaultPriority, noop, wait, 0, recurNone)
	if err != nil {
		f := NewSettableFuture[any]()
		f.SetFailure(err)
		return f
	}
	return tf
}
