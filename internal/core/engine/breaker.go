package engine

import (
	"time"

	"github.com/dmbot/dmbot/internal/core"
)

// CircuitBreaker stops sends after repeated exhausted failures.
//
// It is open while Failures >= Threshold and the last failure is younger
// than ResetWindow. A tripped breaker whose window has elapsed returns to
// zero failures; below the threshold failures keep accumulating regardless
// of age. CircuitBreaker is not safe for concurrent use; RateLimiter guards it.
type CircuitBreaker struct {
	Threshold   uint
	ResetWindow time.Duration

	state core.BreakerState
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold uint, resetWindow time.Duration) *CircuitBreaker {
	return &CircuitBreaker{Threshold: threshold, ResetWindow: resetWindow}
}

// RecordFailure counts one failure at now.
func (b *CircuitBreaker) RecordFailure(now time.Time) {
	at := now.UTC()
	b.state.Failures++
	b.state.LastFailure = &at
}

// RecordSuccess is a no-op: only the reset window clears failures.
func (b *CircuitBreaker) RecordSuccess() {}

// IsOpen reports whether sends must be refused at now.
func (b *CircuitBreaker) IsOpen(now time.Time) bool {
	if b.state.Failures == 0 || b.state.Failures < b.Threshold {
		return false
	}
	if b.state.LastFailure == nil || now.Sub(*b.state.LastFailure) >= b.ResetWindow {
		b.state.Failures = 0
		return false
	}
	return true
}

// Remaining returns how long the breaker stays open, or zero when closed.
func (b *CircuitBreaker) Remaining(now time.Time) time.Duration {
	if !b.IsOpen(now) {
		return 0
	}
	return b.state.LastFailure.Add(b.ResetWindow).Sub(now)
}

// State returns a copy of the persisted state.
func (b *CircuitBreaker) State() core.BreakerState {
	out := core.BreakerState{Failures: b.state.Failures}
	if b.state.LastFailure != nil {
		at := *b.state.LastFailure
		out.LastFailure = &at
	}
	return out
}

// Restore replaces the state with a persisted copy.
func (b *CircuitBreaker) Restore(state core.BreakerState) {
	b.state = core.BreakerState{Failures: state.Failures}
	if state.LastFailure != nil {
		at := state.LastFailure.UTC()
		b.state.LastFailure = &at
	}
}
