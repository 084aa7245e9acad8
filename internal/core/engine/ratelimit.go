package engine

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
)

// Limits are the admission limits. They are validated once by config and
// never change while a limiter is running.
type Limits struct {
	MaxPerHour            uint
	MaxPerDay             uint
	MinDelay              time.Duration
	Jitter                time.Duration
	MaxPerRecipientPerDay uint
	MaxUserBackoff        time.Duration
	BreakerThreshold      uint
	BreakerResetWindow    time.Duration
}

// DefaultLimits returns the conservative built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPerHour:            30,
		MaxPerDay:             100,
		MinDelay:              60 * time.Second,
		Jitter:                5 * time.Second,
		MaxPerRecipientPerDay: 3,
		MaxUserBackoff:        300 * time.Second,
		BreakerThreshold:      5,
		BreakerResetWindow:    300 * time.Second,
	}
}

// LimitsFromConfig maps the rate_limits config section.
func LimitsFromConfig(cfg config.RateLimitConfig) Limits {
	return Limits{
		MaxPerHour:            cfg.MessagesPerHour,
		MaxPerDay:             cfg.MessagesPerDay,
		MinDelay:              cfg.MinDelay,
		Jitter:                cfg.Jitter,
		MaxPerRecipientPerDay: cfg.MaxPerUser,
		MaxUserBackoff:        cfg.MaxUserBackoff,
		BreakerThreshold:      cfg.BreakerThreshold,
		BreakerResetWindow:    cfg.BreakerResetWindow,
	}
}

// Usage is a point-in-time view of the counters against their limits.
type Usage struct {
	HourCount       uint
	DayCount        uint
	MaxPerHour      uint
	MaxPerDay       uint
	BreakerFailures uint
	BreakerOpen     bool
	LastSendTime    time.Time
}

// HourlyPressure is HourCount/MaxPerHour.
func (u Usage) HourlyPressure() float64 {
	if u.MaxPerHour == 0 {
		return 0
	}
	return float64(u.HourCount) / float64(u.MaxPerHour)
}

// DailyPressure is DayCount/MaxPerDay.
func (u Usage) DailyPressure() float64 {
	if u.MaxPerDay == 0 {
		return 0
	}
	return float64(u.DayCount) / float64(u.MaxPerDay)
}

// RateLimiter admits message sends against hourly, daily and per-recipient
// caps, a jittered minimum delay, and the circuit breaker.
//
// All state mutation happens under mu. Waits never hold the lock.
type RateLimiter struct {
	Limits Limits
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	// Rand returns a value in [0,1) used for jitter.
	Rand func() float64

	mu      sync.Mutex
	state   *core.RateLimitState
	breaker *CircuitBreaker
}

// NewRateLimiter creates a limiter with empty state.
func NewRateLimiter(limits Limits) *RateLimiter {
	return &RateLimiter{
		Limits:  limits,
		state:   core.NewRateLimitState(),
		breaker: NewCircuitBreaker(limits.BreakerThreshold, limits.BreakerResetWindow),
	}
}

// Admit runs the admission checks in order; the first failing check wins.
// It may block for the minimum delay or the per-recipient backoff; a
// cancelled ctx turns any wait into Deny(cancelled).
func (r *RateLimiter) Admit(ctx context.Context, recipient string) core.Decision {
	if ctx.Err() != nil {
		return core.Deny(core.ReasonCancelled)
	}

	r.mu.Lock()
	r.ensure()
	now := r.now()
	if r.breaker.IsOpen(now) {
		r.mu.Unlock()
		return core.Deny(core.ReasonCircuitOpen)
	}
	if r.state.HourCount(now) >= r.Limits.MaxPerHour {
		r.mu.Unlock()
		return core.Deny(core.ReasonHourlyLimit)
	}
	if r.state.DayCount(now) >= r.Limits.MaxPerDay {
		r.mu.Unlock()
		return core.Deny(core.ReasonDailyLimit)
	}
	wait := r.pendingDelay(now)
	r.mu.Unlock()

	if wait > 0 {
		if err := r.sleep(ctx, wait); err != nil {
			return core.Deny(core.ReasonCancelled)
		}
	}

	r.mu.Lock()
	rec := r.state.User(userKey(recipient), core.DayKey(r.now()))
	if rec.Count >= r.Limits.MaxPerRecipientPerDay {
		backoff := UserBackoff(rec.ConsecutiveFailures, r.Limits.MaxUserBackoff)
		r.mu.Unlock()
		if err := r.sleep(ctx, backoff); err != nil {
			return core.Deny(core.ReasonCancelled)
		}
		return core.Deny(core.ReasonUserLimit)
	}
	r.mu.Unlock()

	return core.Allow()
}

// Check evaluates the same rules as Admit without waiting. A pending minimum
// delay is reported as Delay.
func (r *RateLimiter) Check(recipient string) core.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	now := r.now()
	switch {
	case r.breaker.IsOpen(now):
		return core.Deny(core.ReasonCircuitOpen)
	case r.state.HourCount(now) >= r.Limits.MaxPerHour:
		return core.Deny(core.ReasonHourlyLimit)
	case r.state.DayCount(now) >= r.Limits.MaxPerDay:
		return core.Deny(core.ReasonDailyLimit)
	}

	if rec, ok := r.state.PerUser[userKey(recipient)]; ok && rec.LastResetDay >= core.DayKey(now) &&
		rec.Count >= r.Limits.MaxPerRecipientPerDay {
		return core.Deny(core.ReasonUserLimit)
	}

	if elapsed := now.Sub(r.state.LastSendTime); !r.state.LastSendTime.IsZero() && elapsed < r.Limits.MinDelay {
		return core.Delay(r.Limits.MinDelay - elapsed)
	}
	return core.Allow()
}

// RecordSend counts a delivered message and clears the recipient's failures.
func (r *RateLimiter) RecordSend(recipient string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	now := r.now()
	r.state.Hourly[core.HourKey(now)]++
	r.state.Daily[core.DayKey(now)]++
	rec := r.state.User(userKey(recipient), core.DayKey(now))
	rec.Count++
	rec.ConsecutiveFailures = 0
	r.state.LastSendTime = now
	r.breaker.RecordSuccess()
}

// RecordFailure counts one exhausted send against the breaker and recipient.
func (r *RateLimiter) RecordFailure(recipient string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	now := r.now()
	r.breaker.RecordFailure(now)
	rec := r.state.User(userKey(recipient), core.DayKey(now))
	rec.ConsecutiveFailures++
}

// Prune drops expired buckets and stale per-recipient records.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()
	r.state.Prune(r.now())
}

// Snapshot returns deep copies of the counters and breaker state.
func (r *RateLimiter) Snapshot() (*core.RateLimitState, core.BreakerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()
	return r.state.Clone(), r.breaker.State()
}

// Restore replaces the counters and breaker state with persisted copies.
func (r *RateLimiter) Restore(state *core.RateLimitState, breaker core.BreakerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	next := state.Clone()
	next.Normalize()
	r.state = next
	r.breaker.Restore(breaker)
}

// Usage reports the current counters against their limits.
func (r *RateLimiter) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	now := r.now()
	open := r.breaker.IsOpen(now)
	return Usage{
		HourCount:       r.state.HourCount(now),
		DayCount:        r.state.DayCount(now),
		MaxPerHour:      r.Limits.MaxPerHour,
		MaxPerDay:       r.Limits.MaxPerDay,
		BreakerFailures: r.breaker.State().Failures,
		BreakerOpen:     open,
		LastSendTime:    r.state.LastSendTime,
	}
}

// pendingDelay returns how much of the jittered minimum delay is left.
func (r *RateLimiter) pendingDelay(now time.Time) time.Duration {
	if r.state.LastSendTime.IsZero() {
		return 0
	}
	required := r.Limits.MinDelay + r.jitter()
	elapsed := now.Sub(r.state.LastSendTime)
	if elapsed >= required {
		return 0
	}
	return required - elapsed
}

// jitter is uniform in [-Jitter, +Jitter].
func (r *RateLimiter) jitter() time.Duration {
	if r.Limits.Jitter <= 0 {
		return 0
	}
	f := rand.Float64
	if r.Rand != nil {
		f = r.Rand
	}
	return time.Duration((f()*2 - 1) * float64(r.Limits.Jitter))
}

func (r *RateLimiter) ensure() {
	if r.state == nil {
		r.state = core.NewRateLimitState()
	}
	if r.breaker == nil {
		r.breaker = NewCircuitBreaker(r.Limits.BreakerThreshold, r.Limits.BreakerResetWindow)
	}
}

func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return core.Sleep(ctx, d)
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock().UTC()
	}
	return core.Now()
}

// userKey folds recipient names; Reddit usernames are case-insensitive.
func userKey(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}
