package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by backend operations while the circuit is
// open. The manager reports it and degrades the operation like any other
// storage failure.
var ErrBreakerOpen = errors.New("cache: circuit breaker is open")

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed means backend I/O flows normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means backend I/O is short-circuited.
	BreakerOpen
	// BreakerHalfOpen means one probe operation is allowed through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker short-circuits backend I/O after repeated failures so a broken
// backend costs one error check instead of a timeout per call. After the
// cooldown a single probe is allowed; success closes the circuit again.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	probing     bool
	lastFailure time.Time
}

// NewBreaker creates a closed breaker. A threshold <= 0 defaults to 5
// failures; a cooldown <= 0 defaults to 30 seconds.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Do runs op through the breaker, counting its outcome.
func (b *Breaker) Do(op func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := op()
	b.after(err)
	return err
}

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		if err != nil {
			b.failures++
			b.lastFailure = time.Now()
			if b.failures >= b.threshold {
				b.state = BreakerOpen
			}
		} else {
			b.failures = 0
		}
	case BreakerHalfOpen:
		b.probing = false
		if err != nil {
			// Probe failed, restart the cooldown.
			b.lastFailure = time.Now()
			b.state = BreakerOpen
		} else {
			b.state = BreakerClosed
			b.failures = 0
		}
	}
}

func (b *Breaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cooldown {
		b.state = BreakerHalfOpen
		b.probing = false
	}
	return b.state
}
