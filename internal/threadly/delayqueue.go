// Dynamic delay queue: a blocking priority queue ordered by each element's
// runtime-computed delay, in which any element's effective delay may change
// after insertion (via Reposition) and the queue responds by repositioning
// it, rather than requiring a full re-sort.

package threadly

import (
	"sort"
	"sync"
	"time"
)

// Delayed is an element whose readiness is expressed as a signed delay in
// milliseconds; <= 0 means ready now. Delay queue elements must be
// comparable so identity (==) can be used for containment and repositioning.
type Delayed interface {
	comparable
	DelayMillis() int64
}

// DelayUpdater is the single opportunity, granted by Reposition while the
// queue lock is held and after the element has been moved, for an element
// to mutate the value its DelayMillis will subsequently return.
type DelayUpdater interface {
	AllowDelayUpdate()
}

// DelayQueue is a blocking, unbounded, dynamically-reorderable priority
// queue over T, ordered by DelayMillis with stable FIFO tie-breaking.
type DelayQueue[T Delayed] struct {
	mu          sync.Mutex
	cond        *sync.Cond
	seq         *Sequence[T]
	interrupted bool
}

// NewDelayQueue constructs an empty delay queue.
func NewDelayQueue[T Delayed]() *DelayQueue[T] {
	q := &DelayQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	q.seq = NewSequence[T](&q.mu)
	return q
}

// Lock returns the queue's own mutex, for callers that need to iterate the
// sequence or drive ConsumeIterator themselves.
func (q *DelayQueue[T]) Lock() *sync.Mutex {
	return &q.mu
}

// upperBoundIndex returns the index following every element whose current
// DelayMillis is <= key (preserving stable FIFO for equal delays). Must be
// called with the lock held.
func (q *DelayQueue[T]) upperBoundIndex(key int64) int {
	n := q.seq.Len()
	return sort.Search(n, func(i int) bool {
		v, _ := q.seq.At(i)
		return v.DelayMillis() > key
	})
}

// Add inserts e at the stable upper-bound position for its current
// DelayMillis. A zero-value (null-ish) T is not special-cased here since Go
// has no universal "null" for a value type; callers passing a nil pointer
// wrapped in T get ordinary insertion behaviour.
func (q *DelayQueue[T]) Add(e T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.upperBoundIndex(e.DelayMillis())
	q.seq.InsertAt(idx, e)
	q.cond.Broadcast()
	return true
}

// Put is an alias for Add.
func (q *DelayQueue[T]) Put(e T) bool { return q.Add(e) }

// AddLast appends e unconditionally, the fast path for an element known to
// carry a far-future (e.g. MAX) delay pending a subsequent Reposition.
func (q *DelayQueue[T]) AddLast(e T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.Append(e)
	q.cond.Broadcast()
}

// Offer is identical to Add; the queue is unbounded so timeout never
// applies.
func (q *DelayQueue[T]) Offer(e T, timeout time.Duration) bool {
	return q.Add(e)
}

// Peek returns the head iff its delay is <= 0, without blocking or removing
// it.
func (q *DelayQueue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.seq.Len() == 0 {
		return zero, false
	}
	head, _ := q.seq.At(0)
	if head.DelayMillis() > 0 {
		return zero, false
	}
	return head, true
}

// Poll returns and removes the head iff its delay is <= 0; else returns
// false without blocking.
func (q *DelayQueue[T]) Poll() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.seq.Len() == 0 {
		return zero, false
	}
	head, _ := q.seq.At(0)
	if head.DelayMillis() > 0 {
		return zero, false
	}
	v, _ := q.seq.RemoveAt(0)
	q.cond.Broadcast()
	return v, true
}

// waitTimeout waits on the condition variable for at most d (or
// indefinitely if d <= 0), using a timer to force a wake-up.
func (q *DelayQueue[T]) waitTimeout(d time.Duration) {
	if d <= 0 {
		q.cond.Wait()
		return
	}
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	q.cond.Wait()
	timer.Stop()
}

// PollTimeout waits up to timeout for the head to become ready, re-reading
// the head on every wake-up. Returns ErrTimeout if the deadline elapses
// first, or ErrInterrupted if the queue is interrupted meanwhile.
func (q *DelayQueue[T]) PollTimeout(timeout time.Duration) (T, error) {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for {
		if q.interrupted {
			return zero, ErrInterrupted
		}
		if q.seq.Len() > 0 {
			head, _ := q.seq.At(0)
			if d := head.DelayMillis(); d <= 0 {
				v, _ := q.seq.RemoveAt(0)
				q.cond.Broadcast()
				return v, nil
			} else {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return zero, ErrTimeout
				}
				wait := time.Duration(d) * time.Millisecond
				if wait > remaining {
					wait = remaining
				}
				q.waitTimeout(wait)
			}
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return zero, ErrTimeout
			}
			q.waitTimeout(remaining)
		}
	}
}

// TakeFunc blocks until selector picks an index within the current
// ready-prefix (elements with DelayMillis <= 0, in head-to-tail order), then
// removes and returns that element. It is the primitive both Take and the
// priority scheduler are built on. Returns ErrInterrupted once Interrupt has
// been called.
func (q *DelayQueue[T]) TakeFunc(selector func(ready []T) int) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for {
		if q.interrupted {
			return zero, ErrInterrupted
		}
		n := q.seq.Len()
		if n > 0 {
			k := 0
			for k < n {
				v, _ := q.seq.At(k)
				if v.DelayMillis() > 0 {
					break
				}
				k++
			}
			if k > 0 {
				ready := make([]T, k)
				for i := 0; i < k; i++ {
					ready[i], _ = q.seq.At(i)
				}
				idx := selector(ready)
				if idx >= 0 && idx < k {
					v, _ := q.seq.RemoveAt(idx)
					q.cond.Broadcast()
					return v, nil
				}
			}
			head, _ := q.seq.At(0)
			if d := head.DelayMillis(); d > 0 {
				q.waitTimeout(time.Duration(d) * time.Millisecond)
				continue
			}
		}
		q.cond.Wait()
	}
}

// TakeFuncTimeout is TakeFunc bounded by timeout: it returns ErrTimeout if
// selector has no ready element to choose from before the deadline, and
// ErrInterrupted if the queue is interrupted meanwhile. Used by the
// scheduler's workers to periodically recheck shutdown state without
// blocking forever on an empty queue.
func (q *DelayQueue[T]) TakeFuncTimeout(selector func(ready []T) int, timeout time.Duration) (T, error) {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for {
		if q.interrupted {
			return zero, ErrInterrupted
		}
		n := q.seq.Len()
		if n > 0 {
			k := 0
			for k < n {
				v, _ := q.seq.At(k)
				if v.DelayMillis() > 0 {
					break
				}
				k++
			}
			if k > 0 {
				ready := make([]T, k)
				for i := 0; i < k; i++ {
					ready[i], _ = q.seq.At(i)
				}
				idx := selector(ready)
				if idx >= 0 && idx < k {
					v, _ := q.seq.RemoveAt(idx)
					q.cond.Broadcast()
					return v, nil
				}
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, ErrTimeout
		}
		wait := remaining
		if n > 0 {
			head, _ := q.seq.At(0)
			if d := head.DelayMillis(); d > 0 {
				if hw := time.Duration(d) * time.Millisecond; hw < wait {
					wait = hw
				}
			}
		}
		q.waitTimeout(wait)
	}
}

func takeHead[T any](ready []T) int { return 0 }

// Take blocks indefinitely until the head's delay is <= 0, then removes and
// returns it.
func (q *DelayQueue[T]) Take() (T, error) {
	return q.TakeFunc(takeHead[T])
}

// Reposition atomically moves the identity e to the position that preserves
// order for newKey, then invokes updater.AllowDelayUpdate while still
// holding the lock -- e's sole opportunity to change what its DelayMillis
// will subsequently report. A no-op if e is not present.
func (q *DelayQueue[T]) Reposition(e T, newKey int64, updater DelayUpdater) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seq.IndexOf(e, false) < 0 {
		return
	}
	idx := q.upperBoundIndex(newKey)
	q.seq.Reposition(e, idx, false)
	if updater != nil {
		updater.AllowDelayUpdate()
	}
	q.cond.Broadcast()
}

// SortQueue performs a full stable re-sort by current DelayMillis. Only
// needed after elements have had their delay mutated out of band (i.e.
// without going through Reposition).
func (q *DelayQueue[T]) SortQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.seq.Snapshot()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DelayMillis() < items[j].DelayMillis()
	})
	q.seq.Replace(items)
	q.cond.Broadcast()
}

// DrainTo removes and returns up to max ready (delay <= 0) elements, under a
// single lock hold.
func (q *DelayQueue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, max)
	for len(out) < max && q.seq.Len() > 0 {
		head, _ := q.seq.At(0)
		if head.DelayMillis() > 0 {
			break
		}
		v, _ := q.seq.RemoveAt(0)
		out = append(out, v)
	}
	if len(out) > 0 {
		q.cond.Broadcast()
	}
	return out
}

// Clear removes every element and returns them, in order.
func (q *DelayQueue[T]) Clear() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.seq.Snapshot()
	q.seq.Replace(nil)
	if len(out) > 0 {
		q.cond.Broadcast()
	}
	return out
}

// Len returns the current element count.
func (q *DelayQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.Len()
}

// Interrupt unblocks every waiter in Take/TakeFunc/TakeFuncTimeout/
// PollTimeout with ErrInterrupted; a ConsumeIterator call blocked waiting for
// the head stops waiting and returns its iterator. Used by ShutdownNow to
// release idle workers.
func (q *DelayQueue[T]) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupted = true
	q.cond.Broadcast()
}

// ConsumeIterator returns a short-lived iterator over the live queue. The
// caller must already hold the queue's lock (via Lock()); the first call
// blocks, once, for head availability. hasNext/Peek/Remove detect
// concurrent modification by comparing head identity between Peek and
// Remove.
type ConsumeIterator[T Delayed] struct {
	q          *DelayQueue[T]
	lastPeeked T
	hasPeeked  bool
}

func (q *DelayQueue[T]) ConsumeIterator() *ConsumeIterator[T] {
	if q.mu.TryLock() {
		q.mu.Unlock()
		panic("threadly: ConsumeIterator called without holding the queue lock")
	}
	for !q.interrupted {
		if q.seq.Len() > 0 {
			head, _ := q.seq.At(0)
			if head.DelayMillis() <= 0 {
				break
			}
			q.waitTimeout(time.Duration(head.DelayMillis()) * time.Millisecond)
		} else {
			q.cond.Wait()
		}
	}
	return &ConsumeIterator[T]{q: q}
}

// HasNext reports whether the queue currently has any element at all.
func (it *ConsumeIterator[T]) HasNext() bool {
	return it.q.seq.Len() > 0
}

// Peek returns the current head without removing it.
func (it *ConsumeIterator[T]) Peek() (T, bool) {
	var zero T
	if it.q.seq.Len() == 0 {
		return zero, false
	}
	v, _ := it.q.seq.At(0)
	it.lastPeeked = v
	it.hasPeeked = true
	return v, true
}

// Remove removes and returns the current head, failing with
// ErrConcurrentModification if the head identity changed since the last
// Peek.
func (it *ConsumeIterator[T]) Remove() (T, error) {
	var zero T
	if it.q.seq.Len() == 0 {
		return zero, ErrConcurrentModification
	}
	head, _ := it.q.seq.At(0)
	if it.hasPeeked && head != it.lastPeeked {
		return zero, ErrConcurrentModification
	}
	v, _ := it.q.seq.RemoveAt(0)
	it.q.cond.Broadcast()
	it.hasPeeked = false
	return v, nil
}
