package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/store"
	"github.com/dmbot/dmbot/internal/output"
	"github.com/dmbot/dmbot/internal/reddit"
)

func seededSnapshot() *core.Snapshot {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	failedAt := now.Add(-time.Minute)
	snap := core.NewSnapshot()
	snap.History.Hourly[core.HourKey(now)] = 4
	snap.History.Daily[core.DayKey(now)] = 9
	snap.History.PerUser["alice"] = &core.UserRecord{Count: 2, LastResetDay: core.DayKey(now)}
	snap.History.PerUser["bob"] = &core.UserRecord{Count: 1, LastResetDay: core.DayKey(now), ConsecutiveFailures: 2}
	snap.Breaker = core.BreakerState{Failures: 5, LastFailure: &failedAt}
	return snap
}

func TestStateResetOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    stateResetOptions
		wantErr bool
	}{
		{name: "nothing selected", opts: stateResetOptions{}, wantErr: true},
		{name: "all", opts: stateResetOptions{All: true}},
		{name: "breaker", opts: stateResetOptions{Breaker: true}},
		{name: "recipient", opts: stateResetOptions{Recipients: []string{"alice"}}},
		{name: "breaker and recipient", opts: stateResetOptions{Breaker: true, Recipients: []string{"alice"}}},
		{name: "all with breaker", opts: stateResetOptions{All: true, Breaker: true}, wantErr: true},
		{name: "all with recipient", opts: stateResetOptions{All: true, Recipients: []string{"bob"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyStateResetLeavesBuckets(t *testing.T) {
	snap := seededSnapshot()

	res := applyStateReset(snap, stateResetOptions{Breaker: true, Recipients: []string{"u/Bob", "carol", "bob"}})

	assert.True(t, res.BreakerCleared)
	assert.Equal(t, []string{"bob"}, res.RecipientsCleared)
	assert.Equal(t, []string{"carol"}, res.RecipientsMissing)
	assert.Zero(t, snap.Breaker.Failures)
	assert.Nil(t, snap.Breaker.LastFailure)
	assert.Contains(t, snap.History.PerUser, "alice")
	assert.NotContains(t, snap.History.PerUser, "bob")

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	assert.EqualValues(t, 4, snap.History.HourCount(now))
	assert.EqualValues(t, 9, snap.History.DayCount(now))
}

func TestApplyStateResetBreakerAlreadyClosed(t *testing.T) {
	snap := core.NewSnapshot()
	res := applyStateReset(snap, stateResetOptions{Breaker: true})
	assert.False(t, res.BreakerCleared)
	assert.Empty(t, res.RecipientsCleared)
}

func newFileStore(t *testing.T) *store.FileStore {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "state.cbor"))
	require.NoError(t, err)
	return st
}

func TestResetStatePersists(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)
	require.NoError(t, st.SaveState(ctx, seededSnapshot()))

	res, err := resetState(ctx, st, stateResetOptions{Recipients: []string{"alice"}}, false)
	require.NoError(t, err)
	assert.Equal(t, "file", res.Driver)
	assert.Equal(t, []string{"alice"}, res.RecipientsCleared)

	snap, err := st.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.NotContains(t, snap.History.PerUser, "alice")
	assert.Contains(t, snap.History.PerUser, "bob")
	assert.EqualValues(t, 5, snap.Breaker.Failures)
}

func TestResetStateDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)
	require.NoError(t, st.SaveState(ctx, seededSnapshot()))

	res, err := resetState(ctx, st, stateResetOptions{Breaker: true}, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.True(t, res.BreakerCleared)

	snap, err := st.LoadState(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, snap.Breaker.Failures)
}

func TestResetStateAll(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)
	require.NoError(t, st.SaveState(ctx, seededSnapshot()))

	res, err := resetState(ctx, st, stateResetOptions{All: true}, false)
	require.NoError(t, err)
	assert.True(t, res.All)

	snap, err := st.LoadState(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestResetStateEmptyStore(t *testing.T) {
	res, err := resetState(context.Background(), newFileStore(t), stateResetOptions{Recipients: []string{"alice"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.RecipientsMissing)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, foundry.ExitConfigInvalid, exitCodeFor(fmt.Errorf("restore: %w", core.ErrStateCorrupt)))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, exitCodeFor(fmt.Errorf("send: %w", &reddit.APIError{StatusCode: 500})))
	assert.Equal(t, foundry.ExitFailure, exitCodeFor(fmt.Errorf("boom")))
}

func TestOutputExtension(t *testing.T) {
	assert.Equal(t, "json", outputExtension(output.FormatJSON))
	assert.Equal(t, "yaml", outputExtension(output.FormatYAML))
	assert.Equal(t, "md", outputExtension(output.FormatMarkdown))
	assert.Equal(t, "txt", outputExtension(output.FormatTable))
}
