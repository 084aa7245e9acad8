package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/metrics"
)

// Restore loads persisted state. A missing snapshot keeps defaults. A
// corrupt snapshot is returned as an error unless reset-on-corrupt is set,
// in which case the stored state is discarded.
func (b *Bot) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	snap, err := b.store.LoadState(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrStateCorrupt) || !b.resetOnCorrupt {
			return fmt.Errorf("restore state from %s: %w", b.store.Driver(), err)
		}
		b.logger.Warn("Discarding corrupt state", zap.String("driver", b.store.Driver()), zap.Error(err))
		if err := b.store.ResetState(ctx); err != nil {
			return fmt.Errorf("reset corrupt state: %w", err)
		}
		b.record(LevelWarning, "Persisted state was corrupt and has been reset")
		return nil
	}
	if snap == nil {
		b.logger.Info("No persisted state; starting fresh", zap.String("driver", b.store.Driver()))
		return nil
	}

	b.apply(snap)
	b.logger.Info("Restored state",
		zap.String("driver", b.store.Driver()),
		zap.Time("saved_at", snap.SavedAt),
		zap.Uint("breaker_failures", snap.Breaker.Failures))
	return nil
}

// apply merges a snapshot into the running bot. A configured target wins
// over the stored one; protected users are the union of both.
func (b *Bot) apply(snap *core.Snapshot) {
	snap.Normalize()
	b.limiter.Restore(snap.History, snap.Breaker)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = snap.Metrics
	if b.target == "" && snap.CurrentSubreddit != "" {
		if name, err := core.NormalizeSubreddit(snap.CurrentSubreddit); err == nil {
			b.target = name
		}
	}
	b.protected = core.NormalizeUsers(append(append([]string{}, b.protected...), snap.ProtectedUsers...))
	if b.protected == nil {
		b.protected = []string{}
	}
}

// Snapshot captures everything that is persisted.
func (b *Bot) Snapshot() *core.Snapshot {
	history, breaker := b.limiter.Snapshot()

	b.mu.RLock()
	defer b.mu.RUnlock()
	return &core.Snapshot{
		History:          history,
		Breaker:          breaker,
		Metrics:          b.stats,
		CurrentSubreddit: b.target,
		ProtectedUsers:   append([]string{}, b.protected...),
		SavedAt:          b.now(),
	}
}

// Persist writes the current snapshot to the state store.
func (b *Bot) Persist(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	start := time.Now()
	err := b.store.SaveState(ctx, b.Snapshot())
	metrics.RecordStatePersist(b.store.Driver(), err == nil, time.Since(start))
	if err != nil {
		return fmt.Errorf("persist state to %s: %w", b.store.Driver(), err)
	}
	return nil
}

// CheckHealth reports an error while the bot's own health is critical.
func (b *Bot) CheckHealth(ctx context.Context) error {
	b.mu.RLock()
	status := b.stats.HealthStatus
	b.mu.RUnlock()
	if status == core.HealthCritical {
		return errors.New("bot health is critical")
	}
	return ctx.Err()
}
