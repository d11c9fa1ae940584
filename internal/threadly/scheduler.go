// Priority scheduler: a fixed-size worker pool consuming a dynamic delay
// queue of task wrappers, honoring priority and a starvation guard, and
// supporting one-shot, fixed-delay and fixed-rate recurring tasks.

package threadly

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const workerIdlePoll = 200 * time.Millisecond

// Scheduler runs submitted tasks across a fixed pool of worker goroutines,
// dispatched by priority with a starvation guard for Low tasks.
type Scheduler struct {
	cfg     *SchedulerConfig
	queue   *DelayQueue[*taskEntry]
	limiter *ConcurrencyLimiter[int32]

	liveWorkers atomic.Int32
	shutdown    atomic.Bool
	terminated  chan struct{}
	closeOnce   sync.Once

	log logCompLogger
}

// logCompLogger is the subset of *logrus.Entry's API this file uses,
// named here so the file doesn't need to import logrus just for a field
// type.
type logCompLogger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// NewScheduler starts a scheduler with poolSize workers (from cfg, or
// runtime.NumCPU() if cfg.PoolSize <= 0, capped at
// SCHEDULER_MAX_POOL_SIZE). cfg is deep-copied; the caller's copy may be
// freely reused or mutated afterward.
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	cfg = CloneSchedulerConfig(cfg)
	if cfg.MaxWaitForLow < 0 {
		return nil, fmt.Errorf("threadly: %w: max wait for low must be >= 0", ErrInvalidArgument)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	if poolSize > SCHEDULER_MAX_POOL_SIZE {
		poolSize = SCHEDULER_MAX_POOL_SIZE
	}

	s := &Scheduler{
		cfg:        cfg,
		queue:      NewDelayQueue[*taskEntry](),
		limiter:    NewConcurrencyLimiter[int32](int32(poolSize)),
		terminated: make(chan struct{}),
		log:        NewCompLogger("scheduler"),
	}
	s.liveWorkers.Store(int32(poolSize))
	for i := 0; i < poolSize; i++ {
		go s.workerLoop(i)
	}
	s.log.Infof("pool_size=%d max_wait_for_low=%s", poolSize, cfg.MaxWaitForLow)
	return s, nil
}

// ActiveCount returns the number of tasks currently executing.
func (s *Scheduler) ActiveCount() int { return int(s.limiter.InUse()) }

// AvailableWorkers returns the number of workers not currently executing a
// task.
func (s *Scheduler) AvailableWorkers() int { return int(s.limiter.Available()) }

func (s *Scheduler) workerExit() {
	if s.liveWorkers.Add(-1) == 0 {
		s.closeOnce.Do(func() { close(s.terminated) })
	}
}

func (s *Scheduler) workerLoop(id int) {
	defer s.workerExit()
	for {
		entry, err := s.queue.TakeFuncTimeout(s.selectNext, workerIdlePoll)
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				return
			}
			if errors.Is(err, ErrTimeout) && s.shutdown.Load() && s.queue.Len() == 0 {
				return
			}
			continue
		}
		s.runEntry(entry)
	}
}

// selectNext is the TakeFunc(Timeout) selector implementing priority
// dispatch with a starvation guard: a Low task waiting at least
// MaxWaitForLow since it became ready is treated as indistinguishable from
// High.
func (s *Scheduler) selectNext(ready []*taskEntry) int {
	if len(ready) == 0 {
		return -1
	}
	maxWaitMillis := s.cfg.MaxWaitForLow.Milliseconds()
	now := nowMillis()
	for i, e := range ready {
		if e.priority == High {
			return i
		}
		if maxWaitMillis > 0 && e.priority == Low && now-e.readyAtSnapshot() >= maxWaitMillis {
			return i
		}
	}
	return 0
}

func (s *Scheduler) runEntry(e *taskEntry) {
	if e.cancelled.Load() {
		return
	}

	s.limiter.Acquire()
	ctx, cancel := context.WithCancel(context.Background())
	result, err := func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &ExecutionError{Cause: asError(r)}
			}
		}()
		return e.fn(ctx)
	}()
	cancel()
	s.limiter.Release()
	completedAt := nowMillis()

	switch e.mode {
	case recurNone:
		if err != nil {
			e.future.complete(Failed, nil, err)
		} else {
			e.future.complete(Succeeded, result, nil)
		}

	case recurFixedDelay:
		if err != nil {
			e.future.complete(Failed, nil, err)
			reportUncaught(&ExecutionError{Cause: err})
			return
		}
		e.future.complete(Succeeded, result, nil)
		if e.cancelled.Load() || s.shutdown.Load() {
			return
		}
		e.setReadyAt(completedAt + e.period.Milliseconds())
		s.queue.Add(e)

	case recurFixedRate:
		if err != nil {
			e.future.complete(Failed, nil, err)
			reportUncaught(&ExecutionError{Cause: err})
			return
		}
		e.future.complete(Succeeded, result, nil)
		if e.cancelled.Load() || s.shutdown.Load() {
			return
		}
		next := e.readyAtSnapshot() + e.period.Milliseconds()
		if next < completedAt {
			next = completedAt
		}
		e.setReadyAt(next)
		s.queue.Add(e)
	}
}

func (s *Scheduler) newEntry(priority Priority, fn func(context.Context) (any, error), delay, period time.Duration, mode recurMode) (*taskEntry, error) {
	if fn == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	if mode == recurFixedDelay && period < 0 {
		return nil, fmt.Errorf("threadly: %w: fixed-delay period must be >= 0", ErrInvalidArgument)
	}
	if mode == recurFixedRate && period <= 0 {
		return nil, fmt.Errorf("threadly: %w: fixed-rate period must be > 0", ErrInvalidArgument)
	}
	if s.shutdown.Load() {
		return nil, ErrIllegalState
	}

	e := &taskEntry{
		fn:       fn,
		priority: priority,
		readyAt:  nowMillis() + delay.Milliseconds(),
		period:   period,
		mode:     mode,
		future:   newListenableFuture[any](mode != recurNone),
	}
	e.future.AddListener(func() {
		if e.future.State() == Cancelled {
			e.cancelled.Store(true)
		}
	}, nil)
	return e, nil
}

func (s *Scheduler) schedule(priority Priority, fn func(context.Context) (any, error), delay, period time.Duration, mode recurMode) (*TypedFuture[any], error) {
	e, err := s.newEntry(priority, fn, delay, period, mode)
	if err != nil {
		return nil, err
	}
	s.queue.Add(e)
	return &TypedFuture[any]{inner: e.future}, nil
}

// Execute runs task once, at the default priority, with no result value.
func (s *Scheduler) Execute(task func(context.Context)) error {
	_, err := s.Submit(task)
	return err
}

// ExecutePriority is Execute with an explicit priority.
func (s *Scheduler) ExecutePriority(task func(context.Context), priority Priority) error {
	_, err := s.SubmitPriority(task, priority)
	return err
}

// Submit runs task once and completes its future with a nil result.
func (s *Scheduler) Submit(task func(context.Context)) (*TypedFuture[any], error) {
	return s.SubmitPriority(task, s.cfg.DefaultPriority)
}

// SubmitPriority is Submit with an explicit priority.
func (s *Scheduler) SubmitPriority(task func(context.Context), priority Priority) (*TypedFuture[any], error) {
	return s.SubmitValuePriority(task, nil, priority)
}

// SubmitValue runs task once and completes its future with result.
func (s *Scheduler) SubmitValue(task func(context.Context), result any) (*TypedFuture[any], error) {
	return s.SubmitValuePriority(task, result, s.cfg.DefaultPriority)
}

// SubmitValuePriority is SubmitValue with an explicit priority.
func (s *Scheduler) SubmitValuePriority(task func(context.Context), result any, priority Priority) (*TypedFuture[any], error) {
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	fn := func(ctx context.Context) (any, error) {
		task(ctx)
		return result, nil
	}
	return s.schedule(priority, fn, 0, 0, recurNone)
}

// SubmitCallable runs a T-returning task once.
func SubmitCallable[T any](s *Scheduler, task func(context.Context) (T, error)) (*TypedFuture[T], error) {
	return ScheduleCallable(s, task, 0)
}

// Schedule runs task once, after delay.
func (s *Scheduler) Schedule(task func(context.Context), delay time.Duration) (*TypedFuture[any], error) {
	return s.SchedulePriority(task, delay, s.cfg.DefaultPriority)
}

// SchedulePriority is Schedule with an explicit priority.
func (s *Scheduler) SchedulePriority(task func(context.Context), delay time.Duration, priority Priority) (*TypedFuture[any], error) {
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	fn := func(ctx context.Context) (any, error) {
		task(ctx)
		return nil, nil
	}
	return s.schedule(priority, fn, delay, 0, recurNone)
}

// ScheduleCallable runs a T-returning task once, after delay.
func ScheduleCallable[T any](s *Scheduler, task func(context.Context) (T, error), delay time.Duration) (*TypedFuture[T], error) {
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	fn := func(ctx context.Context) (any, error) { return task(ctx) }
	tf, err := s.schedule(s.cfg.DefaultPriority, fn, delay, 0, recurNone)
	if err != nil {
		return nil, err
	}
	return &TypedFuture[T]{inner: tf.inner}, nil
}

// ScheduleWithFixedDelay repeats task every period after its previous
// completion, starting after initialDelay. period must be >= 0.
func (s *Scheduler) ScheduleWithFixedDelay(task func(context.Context), initialDelay, period time.Duration) (*TypedFuture[any], error) {
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	fn := func(ctx context.Context) (any, error) {
		task(ctx)
		return nil, nil
	}
	return s.schedule(s.cfg.DefaultPriority, fn, initialDelay, period, recurFixedDelay)
}

// ScheduleAtFixedRate repeats task every period measured from the previous
// scheduled start, never overlapping itself. period must be > 0.
func (s *Scheduler) ScheduleAtFixedRate(task func(context.Context), initialDelay, period time.Duration) (*TypedFuture[any], error) {
	if task == nil {
		return nil, fmt.Errorf("threadly: %w: task is nil", ErrInvalidArgument)
	}
	fn := func(ctx context.Context) (any, error) {
		task(ctx)
		return nil, nil
	}
	return s.schedule(s.cfg.DefaultPriority, fn, initialDelay, period, recurFixedRate)
}

// InvokeAll submits every task and waits for all to reach a terminal state,
// returning their futures in input order.
func InvokeAll[T any](s *Scheduler, tasks []func(context.Context) (T, error)) ([]*TypedFuture[T], error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("threadly: %w: empty task list", ErrInvalidArgument)
	}
	futures := make([]*TypedFuture[T], len(tasks))
	for i, t := range tasks {
		if t == nil {
			return nil, fmt.Errorf("threadly: %w: nil task", ErrInvalidArgument)
		}
		f, err := ScheduleCallable(s, t, 0)
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}
	for _, f := range futures {
		f.Get()
	}
	return futures, nil
}

// InvokeAllTimeout is InvokeAll bounded by timeout; tasks not done by the
// deadline are cancelled.
func InvokeAllTimeout[T any](s *Scheduler, tasks []func(context.Context) (T, error), timeout time.Duration) ([]*TypedFuture[T], error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("threadly: %w: empty task list", ErrInvalidArgument)
	}
	futures := make([]*TypedFuture[T], len(tasks))
	for i, t := range tasks {
		if t == nil {
			return nil, fmt.Errorf("threadly: %w: nil task", ErrInvalidArgument)
		}
		f, err := ScheduleCallable(s, t, 0)
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}
	deadline := time.Now().Add(timeout)
	for _, f := range futures {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if _, err := f.GetTimeout(remaining); err != nil {
			f.Cancel(false)
		}
	}
	return futures, nil
}

type invokeOutcome[T any] struct {
	v   T
	err error
	idx int
}

// InvokeAny submits every task and returns the first successful result; if
// all fail, the last failure observed is returned.
func InvokeAny[T any](s *Scheduler, tasks []func(context.Context) (T, error)) (T, error) {
	var zero T
	if len(tasks) == 0 {
		return zero, fmt.Errorf("threadly: %w: empty task list", ErrInvalidArgument)
	}
	ch := make(chan invokeOutcome[T], len(tasks))
	futures := make([]*TypedFuture[T], len(tasks))
	for i, t := range tasks {
		if t == nil {
			return zero, fmt.Errorf("threadly: %w: nil task", ErrInvalidArgument)
		}
		f, err := ScheduleCallable(s, t, 0)
		if err != nil {
			return zero, err
		}
		futures[i] = f
		idx := i
		f.AddListener(func() {
			v, err := f.Get()
			ch <- invokeOutcome[T]{v: v, err: err, idx: idx}
		}, nil)
	}

	var lastErr error
	for range tasks {
		o := <-ch
		if o.err == nil {
			for i, f := range futures {
				if i != o.idx {
					f.Cancel(false)
				}
			}
			return o.v, nil
		}
		lastErr = o.err
	}
	return zero, lastErr
}

// InvokeAnyTimeout is InvokeAny bounded by timeout, returning ErrTimeout if
// no task succeeds within the window.
func InvokeAnyTimeout[T any](s *Scheduler, tasks []func(context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T
	if len(tasks) == 0 {
		return zero, fmt.Errorf("threadly: %w: empty task list", ErrInvalidArgument)
	}
	ch := make(chan invokeOutcome[T], len(tasks))
	futures := make([]*TypedFuture[T], len(tasks))
	for i, t := range tasks {
		if t == nil {
			return zero, fmt.Errorf("threadly: %w: nil task", ErrInvalidArgument)
		}
		f, err := ScheduleCallable(s, t, 0)
		if err != nil {
			return zero, err
		}
		futures[i] = f
		idx := i
		f.AddListener(func() {
			v, err := f.Get()
			ch <- invokeOutcome[T]{v: v, err: err, idx: idx}
		}, nil)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var lastErr error = ErrTimeout
	for range tasks {
		select {
		case o := <-ch:
			if o.err == nil {
				for i, f := range futures {
					if i != o.idx {
						f.Cancel(false)
					}
				}
				return o.v, nil
			}
			lastErr = o.err
		case <-timer.C:
			for _, f := range futures {
				f.Cancel(false)
			}
			return zero, ErrTimeout
		}
	}
	return zero, lastErr
}

// Shutdown stops accepting new tasks; already-queued tasks continue to be
// drained by the workers until none remain, at which point every worker
// exits. Recurring tasks do not schedule a further run once Shutdown has
// been called, so draining always completes.
func (s *Scheduler) Shutdown() {
	s.shutdown.Store(true)
}

// ShutdownNow is Shutdown plus: every not-yet-started task is removed from
// the queue, its future transitions to Cancelled, and idle workers are
// woken with an interrupt on their next wait. Returns the futures of the
// tasks that were discarded. In-flight tasks are allowed to finish.
func (s *Scheduler) ShutdownNow() []*TypedFuture[any] {
	s.shutdown.Store(true)
	drained := s.queue.Clear()
	out := make([]*TypedFuture[any], 0, len(drained))
	for _, e := range drained {
		e.cancelled.Store(true)
		e.future.Cancel(true)
		out = append(out, &TypedFuture[any]{inner: e.future})
	}
	s.queue.Interrupt()
	return out
}

// IsShutdown reports whether Shutdown or ShutdownNow has been called.
func (s *Scheduler) IsShutdown() bool { return s.shutdown.Load() }

// IsTerminated reports whether shutdown has been requested and every
// worker has exited.
func (s *Scheduler) IsTerminated() bool {
	if !s.shutdown.Load() {
		return false
	}
	select {
	case <-s.terminated:
		return true
	default:
		return false
	}
}

// AwaitTermination blocks until IsTerminated would return true, or timeout
// elapses, returning which happened.
func (s *Scheduler) AwaitTermination(timeout time.Duration) bool {
	if !s.shutdown.Load() {
		return false
	}
	select {
	case <-s.terminated:
		return true
	case <-time.After(timeout):
		return false
	}
}
