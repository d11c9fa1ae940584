// Listenable future: a future that accepts listeners and typed
// result/failure callbacks, invoking them after completion (or immediately
// if already complete), plus a settable variant for cross-goroutine result
// publication.

package threadly

import (
	"errors"
	"sync"
	"time"
)

// FutureState is the lifecycle state of a Future. Transitions out of
// Pending happen exactly once and are absorbing.
type FutureState int

const (
	Pending FutureState = iota
	Succeeded
	Failed
	Cancelled
)

var futureStateNames = map[FutureState]string{
	Pending:   "Pending",
	Succeeded: "Succeeded",
	Failed:    "Failed",
	Cancelled: "Cancelled",
}

func (s FutureState) String() string { return futureStateNames[s] }

// Callback receives a future's typed result or failure.
type Callback[T any] interface {
	OnResult(T)
	OnFailure(error)
}

// CallbackFuncs adapts two plain functions to Callback[T].
type CallbackFuncs[T any] struct {
	OnResultFunc  func(T)
	OnFailureFunc func(error)
}

func (c CallbackFuncs[T]) OnResult(v T) {
	if c.OnResultFunc != nil {
		c.OnResultFunc(v)
	}
}

func (c CallbackFuncs[T]) OnFailure(err error) {
	if c.OnFailureFunc != nil {
		c.OnFailureFunc(err)
	}
}

// Future is a value of kind Pending | Succeeded(T) | Failed(error) |
// Cancelled, observable via blocking Get, listeners and typed callbacks.
type Future[T any] interface {
	// Get blocks until terminal and returns the result, or an
	// *ExecutionError / ErrCancelled.
	Get() (T, error)
	// GetTimeout is Get bounded by d, returning ErrTimeout if it elapses
	// first.
	GetTimeout(d time.Duration) (T, error)
	// IsDone reports whether the future has left Pending. Monotonic: never
	// transitions true -> false, except for a recurring future which is
	// reset to Pending before its next run.
	IsDone() bool
	IsCancelled() bool
	State() FutureState
	// Cancel sets Cancelled iff still Pending. mayInterruptIfRunning is
	// ignored: it neither stops an in-progress task body nor wakes a
	// waiting worker.
	Cancel(mayInterruptIfRunning bool) bool
	// AddListener queues fn to run after completion (inline, or via exec if
	// non-nil), or runs it immediately if already terminal.
	AddListener(fn func(), exec Executor) ListenerToken
	// AddCallback is AddListener with the result/failure routed to cb.
	AddCallback(cb Callback[T], exec Executor) ListenerToken
}

// listenableFuture is the shared implementation behind SettableFuture and
// the scheduler's internal task future.
type listenableFuture[T any] struct {
	mu        sync.Mutex
	cond      *sync.Cond
	state     FutureState
	result    T
	err       error
	listeners *ListenerHelper
	recurring bool
}

func newListenableFuture[T any](recurring bool) *listenableFuture[T] {
	f := &listenableFuture[T]{
		recurring: recurring,
		listeners: NewListenerHelper(!recurring),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// complete transitions Pending -> state exactly once, returning false if the
// future was already terminal. Listeners are dispatched outside the lock.
// A recurring future is reset to Pending immediately after its listeners
// have run, ready for its next cycle.
func (f *listenableFuture[T]) complete(state FutureState, result T, err error) bool {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return false
	}
	f.state = state
	f.result = result
	f.err = err
	f.cond.Broadcast()
	f.mu.Unlock()

	f.listeners.CallListeners()

	if f.recurring {
		f.mu.Lock()
		f.state = Pending
		f.mu.Unlock()
	}
	return true
}

func (f *listenableFuture[T]) waitTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	f.cond.Wait()
	timer.Stop()
}

func (f *listenableFuture[T]) resultLocked() (T, error) {
	var zero T
	switch f.state {
	case Succeeded:
		return f.result, nil
	case Failed:
		return zero, &ExecutionError{Cause: f.err}
	case Cancelled:
		return zero, ErrCancelled
	default:
		return zero, nil
	}
}

func (f *listenableFuture[T]) Get() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.state == Pending {
		f.cond.Wait()
	}
	return f.resultLocked()
}

func (f *listenableFuture[T]) GetTimeout(d time.Duration) (T, error) {
	deadline := time.Now().Add(d)
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.state == Pending {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero T
			return zero, ErrTimeout
		}
		f.waitTimeout(remaining)
	}
	return f.resultLocked()
}

func (f *listenableFuture[T]) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != Pending
}

func (f *listenableFuture[T]) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == Cancelled
}

func (f *listenableFuture[T]) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *listenableFuture[T]) Cancel(mayInterruptIfRunning bool) bool {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return false
	}
	var zero T
	f.state = Cancelled
	f.result = zero
	f.cond.Broadcast()
	f.mu.Unlock()

	f.listeners.CallListeners()
	return true
}

func (f *listenableFuture[T]) AddListener(fn func(), exec Executor) ListenerToken {
	return f.listeners.AddListener(fn, exec)
}

func (f *listenableFuture[T]) AddCallback(cb Callback[T], exec Executor) ListenerToken {
	return f.listeners.AddListener(func() {
		f.mu.Lock()
		state, result, err := f.state, f.result, f.err
		f.mu.Unlock()
		switch state {
		case Succeeded:
			cb.OnResult(result)
		case Failed:
			cb.OnFailure(err)
		case Cancelled:
			cb.OnFailure(ErrCancelled)
		}
	}, exec)
}

// SettableFuture is a Future completed exactly once, manually, via
// SetResult or SetFailure -- typically used to publish a result computed on
// another goroutine.
type SettableFuture[T any] struct {
	*listenableFuture[T]
}

var _ Future[int] = (*SettableFuture[int])(nil)

// NewSettableFuture constructs a pending future.
func NewSettableFuture[T any]() *SettableFuture[T] {
	return &SettableFuture[T]{listenableFuture: newListenableFuture[T](false)}
}

// SetResult completes the future successfully. A second call (in any
// combination with SetFailure) returns ErrIllegalState.
func (f *SettableFuture[T]) SetResult(v T) error {
	if !f.complete(Succeeded, v, nil) {
		return ErrIllegalState
	}
	return nil
}

// SetFailure completes the future with err. A nil err is replaced with a
// synthetic failure so Get always has a cause to expose.
func (f *SettableFuture[T]) SetFailure(err error) error {
	if err == nil {
		err = errors.New("threadly: settable future failed with no cause")
	}
	var zero T
	if !f.complete(Failed, zero, err) {
		return ErrIllegalState
	}
	return nil
}
