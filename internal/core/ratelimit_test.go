package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketKeysAreUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2024, 1, 1, 22, 30, 0, 0, loc)

	assert.Equal(t, "2024-01-02-03", HourKey(at))
	assert.Equal(t, "2024-01-02", DayKey(at))
}

func TestUserLazyReset(t *testing.T) {
	s := NewRateLimitState()
	rec := s.User("alice", "2024-01-01")
	rec.Count = 3
	rec.ConsecutiveFailures = 2

	same := s.User("alice", "2024-01-01")
	assert.Equal(t, uint(3), same.Count)

	next := s.User("alice", "2024-01-02")
	assert.Equal(t, uint(0), next.Count)
	assert.Equal(t, uint(0), next.ConsecutiveFailures)
	assert.Equal(t, "2024-01-02", next.LastResetDay)
}

func TestPruneAfterEightDays(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewRateLimitState()
	for i := 0; i < 9; i++ {
		at := start.Add(time.Duration(i) * 24 * time.Hour)
		s.Hourly[HourKey(at)]++
		s.Daily[DayKey(at)]++
	}
	now := start.Add(8 * 24 * time.Hour)
	s.Hourly[HourKey(now.Add(-3*time.Hour))] = 4
	s.User("stale", DayKey(start))
	s.User("fresh", DayKey(now))

	s.Prune(now)

	hourly, daily := s.BucketKeys()
	assert.Equal(t, []string{"2024-01-08-10", "2024-01-09-07", "2024-01-09-10"}, hourly)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05",
		"2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09"}, daily)
	assert.NotContains(t, s.PerUser, "stale")
	assert.Contains(t, s.PerUser, "fresh")
	assert.Equal(t, uint(4), s.Hourly["2024-01-09-07"])
}

func TestCloneIsDeep(t *testing.T) {
	s := NewRateLimitState()
	s.Hourly["2024-01-01-10"] = 1
	s.User("alice", "2024-01-01").Count = 2

	c := s.Clone()
	c.Hourly["2024-01-01-10"] = 5
	c.PerUser["alice"].Count = 9

	assert.Equal(t, uint(1), s.Hourly["2024-01-01-10"])
	assert.Equal(t, uint(2), s.PerUser["alice"].Count)
}

func TestSnapshotNormalize(t *testing.T) {
	snap := &Snapshot{}
	snap.Normalize()
	require.NotNil(t, snap.History)
	assert.NotNil(t, snap.History.Hourly)
	assert.Equal(t, HealthUnknown, snap.Metrics.HealthStatus)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow().String())
	assert.Equal(t, "deny(hourly_limit)", Deny(ReasonHourlyLimit).String())
	assert.True(t, Allow().Allowed())
	assert.False(t, Delay(time.Second).Allowed())
}
