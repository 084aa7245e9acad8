package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
)

func TestRateLimiterHourlyCap(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	limits := noDelayLimits()
	limits.MaxPerHour = 2
	l := newTestLimiter(clock, limits)

	for i := 0; i < 2; i++ {
		recipient := fmt.Sprintf("user%d", i)
		require.True(t, l.Admit(ctx, recipient).Allowed())
		l.RecordSend(recipient)
		clock.Advance(time.Minute)
	}

	state, _ := l.Snapshot()
	assert.Equal(t, uint(2), state.Hourly["2024-01-01-10"])

	decision := l.Admit(ctx, "user9")
	assert.Equal(t, core.DecisionDeny, decision.Kind)
	assert.Equal(t, core.ReasonHourlyLimit, decision.Reason)

	// Next hour bucket is empty again.
	clock.Advance(time.Hour)
	assert.True(t, l.Admit(ctx, "user9").Allowed())
}

func TestRateLimiterDailyCap(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	limits := noDelayLimits()
	limits.MaxPerHour = 100
	limits.MaxPerDay = 3
	l := newTestLimiter(clock, limits)

	for i := 0; i < 3; i++ {
		recipient := fmt.Sprintf("user%d", i)
		require.True(t, l.Admit(ctx, recipient).Allowed())
		l.RecordSend(recipient)
		clock.Advance(2 * time.Hour)
	}

	decision := l.Admit(ctx, "other")
	assert.Equal(t, core.ReasonDailyLimit, decision.Reason)

	state, _ := l.Snapshot()
	assert.Equal(t, uint(3), state.Daily["2024-01-01"])

	clock.Advance(24 * time.Hour)
	assert.True(t, l.Admit(ctx, "other").Allowed())
}

func TestRateLimiterPerRecipientCapWaitsThenDenies(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	limits := noDelayLimits()
	limits.MaxPerRecipientPerDay = 2
	l := newTestLimiter(clock, limits)

	for i := 0; i < 2; i++ {
		require.True(t, l.Admit(ctx, "Alice").Allowed())
		l.RecordSend("Alice")
	}
	l.RecordFailure("alice")
	l.RecordFailure("alice")

	before := len(clock.Sleeps())
	decision := l.Admit(ctx, "ALICE")
	assert.Equal(t, core.ReasonUserLimit, decision.Reason)

	sleeps := clock.Sleeps()[before:]
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 4*time.Second, sleeps[len(sleeps)-1], "2^failures seconds")

	// Other recipients are unaffected.
	assert.True(t, l.Admit(ctx, "bob").Allowed())

	// A new UTC day resets the recipient's record.
	clock.Advance(16 * time.Hour)
	assert.True(t, l.Admit(ctx, "alice").Allowed())
}

func TestRateLimiterMinDelayWithJitter(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	limits := DefaultLimits()
	l := newTestLimiter(clock, limits)
	l.Rand = func() float64 { return 1.0 } // +Jitter

	require.True(t, l.Admit(ctx, "a").Allowed())
	assert.Empty(t, clock.Sleeps(), "first send never waits")
	l.RecordSend("a")

	clock.Advance(20 * time.Second)
	require.True(t, l.Admit(ctx, "b").Allowed())

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 45*time.Second, sleeps[0], "60s + 5s jitter - 20s elapsed")
}

func TestRateLimiterJitterNeverNegative(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	limits := noDelayLimits()
	limits.MinDelay = time.Second
	limits.Jitter = 10 * time.Second
	l := newTestLimiter(clock, limits)
	l.Rand = func() float64 { return 0 } // -Jitter

	l.RecordSend("a")
	require.True(t, l.Admit(ctx, "b").Allowed())
	assert.Empty(t, clock.Sleeps())
}

func TestRateLimiterCancelledWait(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	l := newTestLimiter(clock, DefaultLimits())
	l.RecordSend("a")

	ctx, cancel := context.WithCancel(context.Background())
	l.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	decision := l.Admit(ctx, "b")
	assert.Equal(t, core.ReasonCancelled, decision.Reason)
	assert.Equal(t, core.ReasonCancelled, l.Admit(ctx, "b").Reason)
}

func TestRateLimiterBreakerScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	l := newTestLimiter(clock, noDelayLimits())

	for i := 0; i < 5; i++ {
		l.RecordFailure(fmt.Sprintf("user%d", i))
	}

	decision := l.Admit(ctx, "anyone")
	assert.Equal(t, core.ReasonCircuitOpen, decision.Reason)
	assert.True(t, l.Usage().BreakerOpen)

	clock.Advance(301 * time.Second)
	assert.True(t, l.Admit(ctx, "anyone").Allowed())
	_, breaker := l.Snapshot()
	assert.Equal(t, uint(0), breaker.Failures)
}

func TestRateLimiterCheckDoesNotWait(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	l := newTestLimiter(clock, DefaultLimits())

	assert.True(t, l.Check("a").Allowed())
	l.RecordSend("a")
	clock.Advance(10 * time.Second)

	decision := l.Check("b")
	assert.Equal(t, core.DecisionDelay, decision.Kind)
	assert.Equal(t, 50*time.Second, decision.Wait)
	assert.Empty(t, clock.Sleeps())
}

func TestRateLimiterSnapshotRestore(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	l := newTestLimiter(clock, noDelayLimits())
	l.RecordSend("a")
	l.RecordFailure("b")

	state, breaker := l.Snapshot()

	restored := newTestLimiter(clock, noDelayLimits())
	restored.Restore(state, breaker)
	gotState, gotBreaker := restored.Snapshot()
	assert.Equal(t, state, gotState)
	assert.Equal(t, breaker, gotBreaker)

	// Snapshot is a copy.
	state.Hourly["2024-01-01-10"] = 99
	again, _ := restored.Snapshot()
	assert.Equal(t, uint(1), again.Hourly["2024-01-01-10"])
}

func TestRateLimiterPrune(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	l := newTestLimiter(clock, noDelayLimits())
	l.RecordSend("a")

	clock.Advance(8 * 24 * time.Hour)
	l.RecordSend("b")
	l.Prune()

	state, _ := l.Snapshot()
	assert.NotContains(t, state.Hourly, "2024-01-01-10")
	assert.NotContains(t, state.Daily, "2024-01-01")
	assert.Contains(t, state.Hourly, "2024-01-09-10")
	assert.Contains(t, state.Daily, "2024-01-09")
	assert.NotContains(t, state.PerUser, "a")
	assert.Contains(t, state.PerUser, "b")
}

func TestRateLimiterUsage(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	limits := noDelayLimits()
	limits.MaxPerHour = 4
	l := newTestLimiter(clock, limits)
	for i := 0; i < 3; i++ {
		l.RecordSend("a")
	}

	usage := l.Usage()
	assert.Equal(t, uint(3), usage.HourCount)
	assert.InDelta(t, 0.75, usage.HourlyPressure(), 1e-9)
	assert.InDelta(t, 0.03, usage.DailyPressure(), 1e-9)
}

func TestLimitsFromConfig(t *testing.T) {
	limits := LimitsFromConfig(config.RateLimitConfig{
		MessagesPerHour:    30,
		MessagesPerDay:     100,
		MinDelay:           60 * time.Second,
		Jitter:             5 * time.Second,
		MaxPerUser:         3,
		MaxUserBackoff:     300 * time.Second,
		BreakerThreshold:   5,
		BreakerResetWindow: 300 * time.Second,
	})
	assert.Equal(t, DefaultLimits(), limits)
}
