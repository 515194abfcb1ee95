package transport

import (
	"sync"
	"time"
)

// circuitBreaker is per-target connect-failure bookkeeping. After
// consecutiveFailureLimit consecutive connect failures the breaker opens and
// further calls fail fast. Once coolDown has elapsed since it tripped, the
// next caller is let through as a half-open probe: success closes the
// breaker, failure re-trips it with a fresh cool-down window. Reset (and so
// an operator-triggered reconciliation) can also close it early.
type circuitBreaker struct {
	consecutiveFailureLimit int
	coolDown                time.Duration

	mu       sync.Mutex
	failures map[string]int
	openedAt map[string]time.Time
}

func newCircuitBreaker(limit int, coolDown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		consecutiveFailureLimit: limit,
		coolDown:                coolDown,
		failures:                make(map[string]int),
		openedAt:                make(map[string]time.Time),
	}
}

func (b *circuitBreaker) isOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	opened, tripped := b.openedAt[key]
	if !tripped {
		return false
	}
	if time.Since(opened) < b.coolDown {
		return true
	}
	// Cool-down elapsed: let exactly one caller through as a half-open
	// probe. recordFailure re-trips with a new timestamp if it fails too.
	delete(b.openedAt, key)
	return false
}

// recordFailure returns true if this failure just (re-)tripped the breaker.
func (b *circuitBreaker) recordFailure(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures[key]++
	if b.failures[key] >= b.consecutiveFailureLimit {
		_, alreadyOpen := b.openedAt[key]
		b.openedAt[key] = time.Now()
		return !alreadyOpen
	}
	return false
}

func (b *circuitBreaker) recordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[key] = 0
	delete(b.openedAt, key)
}

// Reset clears the breaker for key, allowing calls through again. Used by
// reconciliation after a host has been confirmed reachable out-of-band.
func (b *circuitBreaker) Reset(key string) {
	b.recordSuccess(key)
}
