package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmbot/dmbot/internal/core"
)

const (
	bucketHour = "hour"
	bucketDay  = "day"

	keyBreaker        = "circuit_breaker"
	keyMetrics        = "metrics"
	keyLastSendTime   = "last_send_time"
	keySubreddit      = "current_subreddit"
	keyProtectedUsers = "protected_users"
	keySavedAt        = "saved_at"
)

// LoadState assembles the snapshot from its tables. It returns nil when no
// snapshot has been saved.
func (s *Store) LoadState(ctx context.Context) (*core.Snapshot, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	values, err := s.loadBotState(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := values[keySavedAt]; !ok {
		return nil, nil
	}

	snap := core.NewSnapshot()
	decode := func(key string, target any) error {
		raw, ok := values[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return fmt.Errorf("%w: bot_state %s: %v", core.ErrStateCorrupt, key, err)
		}
		return nil
	}

	for key, target := range map[string]any{
		keyBreaker:        &snap.Breaker,
		keyMetrics:        &snap.Metrics,
		keyLastSendTime:   &snap.History.LastSendTime,
		keySubreddit:      &snap.CurrentSubreddit,
		keyProtectedUsers: &snap.ProtectedUsers,
		keySavedAt:        &snap.SavedAt,
	} {
		if err := decode(key, target); err != nil {
			return nil, err
		}
	}

	if err := s.loadBuckets(ctx, snap.History); err != nil {
		return nil, err
	}
	if err := s.loadRecipients(ctx, snap.History); err != nil {
		return nil, err
	}

	snap.Normalize()
	return snap, nil
}

// SaveState replaces every table's contents in one transaction.
func (s *Store) SaveState(ctx context.Context, snap *core.Snapshot) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if snap == nil {
		snap = core.NewSnapshot()
	}
	history := snap.History
	if history == nil {
		history = core.NewRateLimitState()
	}

	values := map[string]any{
		keyBreaker:        snap.Breaker,
		keyMetrics:        snap.Metrics,
		keyLastSendTime:   history.LastSendTime,
		keySubreddit:      snap.CurrentSubreddit,
		keyProtectedUsers: snap.ProtectedUsers,
		keySavedAt:        snap.SavedAt,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save state: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	for _, stmt := range []string{"DELETE FROM send_buckets", "DELETE FROM recipient_limits"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
	}

	for kind, buckets := range map[string]map[string]uint{bucketHour: history.Hourly, bucketDay: history.Daily} {
		for bucket, count := range buckets {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO send_buckets (kind, bucket, count) VALUES (?, ?, ?)
			`, kind, bucket, int64(count)); err != nil {
				return fmt.Errorf("save %s bucket %s: %w", kind, bucket, err)
			}
		}
	}

	for recipient, rec := range history.PerUser {
		if rec == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipient_limits (recipient, count, last_reset_day, consecutive_failures)
			VALUES (?, ?, ?, ?)
		`, recipient, int64(rec.Count), rec.LastResetDay, int64(rec.ConsecutiveFailures)); err != nil {
			return fmt.Errorf("save recipient %s: %w", recipient, err)
		}
	}

	updatedAt := time.Now().UTC().UnixNano()
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode bot_state %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bot_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, key, string(raw), updatedAt); err != nil {
			return fmt.Errorf("save bot_state %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save state: %w", err)
	}
	return nil
}

// ResetState empties all state tables.
func (s *Store) ResetState(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	for _, stmt := range []string{"DELETE FROM send_buckets", "DELETE FROM recipient_limits", "DELETE FROM bot_state"} {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset state: %w", err)
		}
	}
	return nil
}

func (s *Store) loadBotState(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM bot_state`)
	if err != nil {
		return nil, fmt.Errorf("load bot_state: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan bot_state: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bot_state: %w", err)
	}
	return values, nil
}

func (s *Store) loadBuckets(ctx context.Context, history *core.RateLimitState) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT kind, bucket, count FROM send_buckets`)
	if err != nil {
		return fmt.Errorf("load send_buckets: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var (
			kind, bucket string
			count        int64
		)
		if err := rows.Scan(&kind, &bucket, &count); err != nil {
			return fmt.Errorf("scan send_buckets: %w", err)
		}
		if count < 0 {
			return fmt.Errorf("%w: negative count for %s bucket %s", core.ErrStateCorrupt, kind, bucket)
		}
		switch kind {
		case bucketHour:
			history.Hourly[bucket] = uint(count)
		case bucketDay:
			history.Daily[bucket] = uint(count)
		default:
			return fmt.Errorf("%w: unknown bucket kind %q", core.ErrStateCorrupt, kind)
		}
	}
	return rows.Err()
}

func (s *Store) loadRecipients(ctx context.Context, history *core.RateLimitState) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT recipient, count, last_reset_day, consecutive_failures
		FROM recipient_limits
	`)
	if err != nil {
		return fmt.Errorf("load recipient_limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var (
			recipient, day  string
			count, failures sql.NullInt64
		)
		if err := rows.Scan(&recipient, &count, &day, &failures); err != nil {
			return fmt.Errorf("scan recipient_limits: %w", err)
		}
		if count.Int64 < 0 || failures.Int64 < 0 {
			return fmt.Errorf("%w: negative counters for %s", core.ErrStateCorrupt, recipient)
		}
		history.PerUser[recipient] = &core.UserRecord{
			Count:               uint(count.Int64),
			LastResetDay:        day,
			ConsecutiveFailures: uint(failures.Int64),
		}
	}
	return rows.Err()
}
