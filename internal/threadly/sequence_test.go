package threadly

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequenceLockViolationPanics(t *testing.T) {
	mu := &sync.Mutex{}
	seq := NewSequence[int](mu)

	require.Panics(t, func() { seq.Len() })
	require.Panics(t, func() { seq.Append(1) })
	require.Panics(t, func() { seq.At(0) })

	mu.Lock()
	require.NotPanics(t, func() { seq.Append(1) })
	mu.Unlock()
}

func TestSequenceInsertAtOrdering(t *testing.T) {
	mu := &sync.Mutex{}
	seq := NewSequence[int](mu)

	mu.Lock()
	defer mu.Unlock()

	seq.Append(10)
	seq.Append(30)
	seq.InsertAt(1, 20)

	require.Equal(t, []int{10, 20, 30}, seq.Snapshot())
}

func TestSequenceIndexOfAndContains(t *testing.T) {
	mu := &sync.Mutex{}
	seq := NewSequence[string](mu)

	mu.Lock()
	defer mu.Unlock()

	seq.Append("a")
	seq.Append("b")
	seq.Append("a")

	require.True(t, seq.Contains("b"))
	require.False(t, seq.Contains("z"))
	require.Equal(t, 0, seq.IndexOf("a", false))
	require.Equal(t, 2, seq.IndexOf("a", true))
}

func TestSequenceReposition(t *testing.T) {
	mu := &sync.Mutex{}
	seq := NewSequence[int](mu)

	mu.Lock()
	defer mu.Unlock()

	for _, v := range []int{1, 2, 3, 4, 5} {
		seq.Append(v)
	}

	ok := seq.Reposition(2, 4, false)
	require.True(t, ok)
	require.Equal(t, []int{1, 3, 4, 2, 5}, seq.Snapshot())

	ok = seq.Reposition(99, 0, false)
	require.False(t, ok)
}

func TestSequenceRemoveAt(t *testing.T) {
	mu := &sync.Mutex{}
	seq := NewSequence[int](mu)

	mu.Lock()
	defer mu.Unlock()

	seq.Append(1)
	seq.Append(2)
	seq.Append(3)

	v, ok := seq.RemoveAt(1)
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, []int{1, 3}, seq.Snapshot())

	_, ok = seq.RemoveAt(5)
	require.False(t, ok)
}
