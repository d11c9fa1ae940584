// Limiter abstraction: generic max-concurrency bookkeeping, used by the
// scheduler for active-worker accounting. The rate limiter executor does not
// use it.

package threadly

import (
	"sync"

	"golang.org/x/exp/constraints"
)

// ConcurrencyLimiter tracks how many of a bounded resource are currently in
// use, out of a fixed ceiling, without requiring callers to scan workers or
// maintain their own atomics.
type ConcurrencyLimiter[N constraints.Integer] struct {
	mu      sync.Mutex
	ceiling N
	inUse   N
}

// NewConcurrencyLimiter constructs a limiter admitting up to ceiling
// concurrent holders.
func NewConcurrencyLimiter[N constraints.Integer](ceiling N) *ConcurrencyLimiter[N] {
	return &ConcurrencyLimiter[N]{ceiling: ceiling}
}

// Acquire blocks the caller's intent only in the sense of reporting whether
// a slot was available; it never waits. Callers needing to block should
// retry via TryAcquire against their own suspension mechanism (the
// scheduler uses the delay queue's condition variable for that, not this
// limiter).
func (l *ConcurrencyLimiter[N]) Acquire() bool {
	return l.TryAcquire()
}

// TryAcquire claims one slot if available, returning whether it succeeded.
func (l *ConcurrencyLimiter[N]) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse >= l.ceiling {
		return false
	}
	l.inUse++
	return true
}

// Release returns one slot. Releasing more often than acquired is a
// programmer error and clamps at zero rather than going negative.
func (l *ConcurrencyLimiter[N]) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse > 0 {
		l.inUse--
	}
}

// Available returns the number of unclaimed slots.
func (l *ConcurrencyLimiter[N]) Available() N {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ceiling - l.inUse
}

// InUse returns the number of currently claimed slots.
func (l *ConcurrencyLimiter[N]) InUse() N {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}
