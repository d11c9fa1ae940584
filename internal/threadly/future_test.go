package threadly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingCallback[T any] struct {
	results []T
	errs    []error
}

func (c *recordingCallback[T]) OnResult(v T)    { c.results = append(c.results, v) }
func (c *recordingCallback[T]) OnFailure(e error) { c.errs = append(c.errs, e) }

// Settable future, mirrors scenario 3: addCallback before completion fires
// exactly once on SetResult; a second SetResult signals IllegalState; a
// callback added after completion fires synchronously with the already-known
// result.
func TestSettableFutureOneShot(t *testing.T) {
	f := NewSettableFuture[string]()
	cb := &recordingCallback[string]{}
	f.AddCallback(cb, nil)

	require.NoError(t, f.SetResult("x"))
	require.Equal(t, []string{"x"}, cb.results)

	require.ErrorIs(t, f.SetResult("y"), ErrIllegalState)

	cb2 := &recordingCallback[string]{}
	f.AddCallback(cb2, nil)
	require.Equal(t, []string{"x"}, cb2.results)
}

func TestSettableFutureSetFailure(t *testing.T) {
	f := NewSettableFuture[int]()
	require.NoError(t, f.SetFailure(ErrCancelled))

	_, err := f.Get()
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.ErrorIs(t, execErr.Unwrap(), ErrCancelled)

	require.ErrorIs(t, f.SetResult(1), ErrIllegalState)
}

func TestFutureIsDoneMonotonic(t *testing.T) {
	f := NewSettableFuture[int]()
	require.False(t, f.IsDone())
	require.NoError(t, f.SetResult(42))
	require.True(t, f.IsDone())
}

func TestFutureGetTimeout(t *testing.T) {
	f := NewSettableFuture[int]()
	_, err := f.GetTimeout(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, f.SetResult(7))
	v, err := f.GetTimeout(time.Second)
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestFutureCancelBeforeCompletion(t *testing.T) {
	f := NewSettableFuture[int]()
	require.True(t, f.Cancel(false))
	require.True(t, f.IsCancelled())
	require.Equal(t, Cancelled, f.State())

	_, err := f.Get()
	require.ErrorIs(t, err, ErrCancelled)

	// Cancel is absorbing: a later SetResult cannot revive it.
	require.ErrorIs(t, f.SetResult(1), ErrIllegalState)
	require.False(t, f.Cancel(false))
}

// Recurring futures reset to Pending right after their listeners run, so
// Get/GetTimeout called on a recurring future observes the NEXT cycle's
// completion rather than the one just finished.
func TestRecurringFutureResetsToPendingAfterListeners(t *testing.T) {
	f := newListenableFuture[int](true)

	var observedDuringListener FutureState
	f.AddListener(func() { observedDuringListener = f.State() }, nil)

	f.complete(Succeeded, 1, nil)
	require.Equal(t, Succeeded, observedDuringListener)
	require.Equal(t, Pending, f.State())

	done := make(chan struct{})
	var gotV int
	var gotErr error
	go func() {
		gotV, gotErr = f.Get()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	f.complete(Succeeded, 2, nil)
	<-done

	require.NoError(t, gotErr)
	require.Equal(t, 2, gotV)
}
