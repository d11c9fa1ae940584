// Task wrapper: the payload, priority and recurrence bookkeeping the
// scheduler inserts into its delay queue, plus the generic shim that lets
// callers see a typed Future[T] on top of the scheduler's internal
// any-typed future.

package threadly

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Priority orders ready tasks relative to one another; High runs before Low
// except when the starvation guard overrides that.
type Priority int

const (
	Low Priority = iota
	High
)

var priorityNames = map[Priority]string{Low: "Low", High: "High"}

func (p Priority) String() string { return priorityNames[p] }

type recurMode int

const (
	recurNone recurMode = iota
	recurFixedDelay
	recurFixedRate
)

// taskEntry is the delay queue element a Scheduler schedules. It is always
// handled by pointer: *taskEntry is what satisfies Delayed, since a
// comparable generic constraint cannot be met by a struct holding a func
// field, and pointer identity is exactly the "reference equality" the
// queue's reposition contract wants.
type taskEntry struct {
	mu       sync.Mutex
	fn       func(context.Context) (any, error)
	priority Priority
	readyAt  int64
	period   time.Duration
	mode     recurMode

	cancelled atomic.Bool
	running   atomic.Bool

	future *listenableFuture[any]
}

// DelayMillis implements Delayed.
func (t *taskEntry) DelayMillis() int64 {
	t.mu.Lock()
	ready := t.readyAt
	t.mu.Unlock()
	return ready - nowMillis()
}

func (t *taskEntry) setReadyAt(ms int64) {
	t.mu.Lock()
	t.readyAt = ms
	t.mu.Unlock()
}

func (t *taskEntry) readyAtSnapshot() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readyAt
}

// castAny converts the scheduler's any-typed result into T, preserving a
// propagated error untouched.
func castAny[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("threadly: unexpected result type %T", v)
	}
	return t, nil
}

// TypedFuture adapts the scheduler's internal *listenableFuture[any] to a
// typed Future[T], the "generic shim" callers of Submit/Schedule see.
type TypedFuture[T any] struct {
	inner *listenableFuture[any]
}

var _ Future[int] = (*TypedFuture[int])(nil)

func (tf *TypedFuture[T]) Get() (T, error) {
	return castAny[T](tf.inner.Get())
}

func (tf *TypedFuture[T]) GetTimeout(d time.Duration) (T, error) {
	return castAny[T](tf.inner.GetTimeout(d))
}

func (tf *TypedFuture[T]) IsDone() bool { return tf.inner.IsDone() }

func (tf *TypedFuture[T]) IsCancelled() bool { return tf.inner.IsCancelled() }

func (tf *TypedFuture[T]) State() FutureState { return tf.inner.State() }

func (tf *TypedFuture[T]) Cancel(mayInterruptIfRunning bool) bool {
	return tf.inner.Cancel(mayInterruptIfRunning)
}

func (tf *TypedFuture[T]) AddListener(fn func(), exec Executor) ListenerToken {
	return tf.inner.AddListener(fn, exec)
}

func (tf *TypedFuture[T]) AddCallback(cb Callback[T], exec Executor) ListenerToken {
	return tf.inner.AddCallback(CallbackFuncs[any]{
		OnResultFunc: func(v any) {
			result, err := castAny[T](v, nil)
			if err != nil {
				cb.OnFailure(err)
				return
			}
			cb.OnResult(result)
		},
		OnFailureFunc: cb.OnFailure,
	}, exec)
}
