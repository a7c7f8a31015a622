package adapter

import (
	"sync"
	"time"
)

// breakerState is the classic closed/open/half-open circuit breaker state.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a per-session, per-adapter-name circuit breaker. It opens after
// a run of consecutive recorded failures and fails fast for a cooldown
// period, then moves to half-open, where calls are allowed through until
// the next recorded result closes it again or re-opens it.
type Breaker struct {
	mu               sync.Mutex
	threshold        int
	cooldown         time.Duration
	failures         map[string]int
	state            map[string]breakerState
	openedAt         map[string]time.Time
}

// NewBreaker builds a breaker that opens after `threshold` consecutive
// failures on a given adapter name and stays open for `cooldown`.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		failures:  make(map[string]int),
		state:     make(map[string]breakerState),
		openedAt:  make(map[string]time.Time),
	}
}

// Allow reports whether a call to the named adapter may proceed. It
// transitions Open -> HalfOpen once the cooldown elapses.
func (b *Breaker) Allow(adapterName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state[adapterName] {
	case stateOpen:
		if time.Since(b.openedAt[adapterName]) >= b.cooldown {
			b.state[adapterName] = stateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess(adapterName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[adapterName] = 0
	b.state[adapterName] = stateClosed
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached, or immediately re-opens it from half-open.
func (b *Breaker) RecordFailure(adapterName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state[adapterName] == stateHalfOpen {
		b.state[adapterName] = stateOpen
		b.openedAt[adapterName] = time.Now()
		return
	}

	b.failures[adapterName]++
	if b.failures[adapterName] >= b.threshold {
		b.state[adapterName] = stateOpen
		b.openedAt[adapterName] = time.Now()
	}
}

// IsOpen reports the current breaker state without mutating it.
func (b *Breaker) IsOpen(adapterName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state[adapterName] != stateOpen {
		return false
	}
	return time.Since(b.openedAt[adapterName]) < b.cooldown
}
