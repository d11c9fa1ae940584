package threadly

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// One-shot listener helper, mirrors scenario 1: addListener(A); addListener(B);
// callListeners(); addListener(C) -> A, B, C each ran exactly once, C fired
// immediately on registration, and no listener remains pending afterward.
func TestListenerHelperOneShot(t *testing.T) {
	h := NewListenerHelper(true)

	var aRuns, bRuns, cRuns int32
	h.AddListener(func() { atomic.AddInt32(&aRuns, 1) }, nil)
	h.AddListener(func() { atomic.AddInt32(&bRuns, 1) }, nil)

	require.Equal(t, 2, h.RegisteredListenerCount())
	require.NoError(t, h.CallListeners())

	h.AddListener(func() { atomic.AddInt32(&cRuns, 1) }, nil)

	require.EqualValues(t, 1, atomic.LoadInt32(&aRuns))
	require.EqualValues(t, 1, atomic.LoadInt32(&bRuns))
	require.EqualValues(t, 1, atomic.LoadInt32(&cRuns))
	require.Equal(t, 0, h.RegisteredListenerCount())
}

func TestListenerHelperOneShotCallTwiceFails(t *testing.T) {
	h := NewListenerHelper(true)
	require.NoError(t, h.CallListeners())
	require.ErrorIs(t, h.CallListeners(), ErrIllegalState)
}

// Repeated listener helper, mirrors scenario 2: L re-registers L2 on itself;
// after the first callListeners, L and M have each run once and L2 has not
// yet run (it was registered mid-dispatch); after the second, L and M have
// each run twice and L2 has run once.
func TestListenerHelperRepeated(t *testing.T) {
	h := NewListenerHelper(false)

	var lRuns, mRuns, l2Runs int32
	var l func()
	l = func() {
		atomic.AddInt32(&lRuns, 1)
		h.AddListener(func() { atomic.AddInt32(&l2Runs, 1) }, nil)
	}
	h.AddListener(l, nil)
	h.AddListener(func() { atomic.AddInt32(&mRuns, 1) }, nil)

	require.NoError(t, h.CallListeners())
	require.EqualValues(t, 1, atomic.LoadInt32(&lRuns))
	require.EqualValues(t, 1, atomic.LoadInt32(&mRuns))
	require.EqualValues(t, 0, atomic.LoadInt32(&l2Runs))

	require.NoError(t, h.CallListeners())
	require.EqualValues(t, 2, atomic.LoadInt32(&lRuns))
	require.EqualValues(t, 2, atomic.LoadInt32(&mRuns))
	require.EqualValues(t, 1, atomic.LoadInt32(&l2Runs))
}

func TestListenerHelperRegistrationOrder(t *testing.T) {
	h := NewListenerHelper(true)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		h.AddListener(func() { order = append(order, i) }, nil)
	}
	require.NoError(t, h.CallListeners())
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestListenerHelperRemoveListener(t *testing.T) {
	h := NewListenerHelper(false)
	ran := false
	tok := h.AddListener(func() { ran = true }, nil)

	require.True(t, h.RemoveListener(tok))
	require.False(t, h.RemoveListener(tok))

	require.NoError(t, h.CallListeners())
	require.False(t, ran)
}

func TestListenerHelperPanicSwallowedIntoUncaughtHandler(t *testing.T) {
	var caught error
	SetUncaughtExceptionHandler(func(err error) { caught = err })
	defer SetUncaughtExceptionHandler(nil)

	h := NewListenerHelper(false)
	h.AddListener(func() { panic("boom") }, nil)

	require.NoError(t, h.CallListeners())
	require.Error(t, caught)
}
