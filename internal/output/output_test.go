package output

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
)

var fixedNow = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

func sampleSnapshot() *core.Snapshot {
	snap := core.NewSnapshot()
	snap.CurrentSubreddit = "golang"
	snap.ProtectedUsers = []string{"alice"}
	snap.SavedAt = fixedNow.Add(-time.Minute)
	snap.History.Hourly[core.HourKey(fixedNow)] = 4
	snap.History.Daily[core.DayKey(fixedNow)] = 12
	snap.History.LastSendTime = fixedNow.Add(-2 * time.Minute)
	snap.History.PerUser["zed"] = &core.UserRecord{Count: 2, LastResetDay: core.DayKey(fixedNow)}
	snap.History.PerUser["bob"] = &core.UserRecord{Count: 3, LastResetDay: "2026-10-17", ConsecutiveFailures: 1}
	last := fixedNow.Add(-time.Minute)
	snap.Breaker = core.BreakerState{Failures: 5, LastFailure: &last}
	snap.Metrics.TotalMessages = 10
	snap.Metrics.SuccessfulMessages = 8
	snap.Metrics.FailedMessages = 2
	return snap
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":         FormatTable,
		"table":    FormatTable,
		"JSON":     FormatJSON,
		"yml":      FormatYAML,
		"yaml":     FormatYAML,
		"markdown": FormatMarkdown,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
}

func TestNewStateView(t *testing.T) {
	view := NewStateView("file", sampleSnapshot(), engine.DefaultLimits(), fixedNow)

	assert.Equal(t, uint(4), view.Usage.HourCount)
	assert.Equal(t, uint(12), view.Usage.DayCount)
	assert.Equal(t, uint(30), view.Usage.MaxPerHour)
	assert.True(t, view.Breaker.Open)
	assert.Equal(t, 4*time.Minute, view.Breaker.Remaining)
	assert.InDelta(t, 0.8, view.Metrics.SuccessRate, 1e-9)

	require.Len(t, view.Recipients, 2)
	assert.Equal(t, "bob", view.Recipients[0].Username)
	assert.Zero(t, view.Recipients[0].CountToday, "stale day should read as zero")
	assert.Equal(t, uint(2), view.Recipients[1].CountToday)
}

func TestNewStateViewEmpty(t *testing.T) {
	view := NewStateView("libsql", nil, engine.DefaultLimits(), fixedNow)
	assert.False(t, view.Breaker.Open)
	assert.Nil(t, view.SavedAt)
	assert.Empty(t, view.Recipients)
	assert.Equal(t, core.HealthUnknown, view.Metrics.Health)
}

func TestFormatStateStructured(t *testing.T) {
	view := NewStateView("redis", sampleSnapshot(), engine.DefaultLimits(), fixedNow)

	rendered, err := FormatState(FormatJSON, view)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	assert.Equal(t, "redis", decoded["driver"])
	assert.Equal(t, "golang", decoded["current_subreddit"])

	rendered, err = FormatState(FormatYAML, view)
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &fromYAML))
	assert.Equal(t, "redis", fromYAML["driver"])
	breaker, ok := fromYAML["circuit_breaker"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, breaker["open"])
}

func TestFormatStateTable(t *testing.T) {
	view := NewStateView("file", sampleSnapshot(), engine.DefaultLimits(), fixedNow)

	rendered, err := FormatState(FormatTable, view)
	require.NoError(t, err)
	assert.Contains(t, rendered, "r/golang")
	assert.Contains(t, rendered, "4/30")
	assert.Contains(t, rendered, "OPEN")
	assert.Contains(t, rendered, "Recipients")

	rendered, err = FormatState(FormatMarkdown, view)
	require.NoError(t, err)
	assert.Contains(t, rendered, "| Username |")
}

func TestFormatSendResult(t *testing.T) {
	failed := core.SendResult{
		Recipient: "bob",
		Outcome:   core.OutcomeFailed,
		Attempts:  3,
		Err:       errors.New("reddit api 500"),
	}

	rendered, err := FormatSendResult(FormatJSON, failed)
	require.NoError(t, err)
	assert.Contains(t, rendered, `"error": "reddit api 500"`)
	assert.Contains(t, rendered, `"attempts": 3`)

	rendered, err = FormatSendResult(FormatTable, core.SendResult{
		Recipient: "bob",
		Outcome:   core.OutcomeDenied,
		Reason:    core.ReasonHourlyLimit,
	})
	require.NoError(t, err)
	assert.Contains(t, rendered, string(core.ReasonHourlyLimit))
}

func TestFormatDecision(t *testing.T) {
	rendered, err := FormatDecision(FormatJSON, "bob", core.Delay(42*time.Second))
	require.NoError(t, err)
	assert.Contains(t, rendered, `"decision": "delay"`)
	assert.Contains(t, rendered, `"wait": "42s"`)

	rendered, err = FormatDecision(FormatTable, "bob", core.Deny(core.ReasonUserLimit))
	require.NoError(t, err)
	assert.Contains(t, rendered, "user_limit")
}
