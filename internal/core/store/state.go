package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
)

// StateStore persists the bot snapshot for crash recovery.
type StateStore interface {
	// LoadState returns the saved snapshot, or nil with no error when
	// nothing has been saved yet. Undecodable data wraps core.ErrStateCorrupt.
	LoadState(ctx context.Context) (*core.Snapshot, error)
	SaveState(ctx context.Context, snap *core.Snapshot) error
	// ResetState removes all saved state.
	ResetState(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

var (
	_ StateStore = (*Store)(nil)
	_ StateStore = (*FileStore)(nil)
	_ StateStore = (*RedisStore)(nil)
)

// OpenState opens the backend selected by cfg.Driver and prepares it for use.
func OpenState(ctx context.Context, cfg config.StateConfig) (StateStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", driverLibsql:
		st, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case driverFile:
		return NewFileStore(cfg.Path)
	case driverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st := NewRedisStore(client, cfg.Redis.Key)
		if err := st.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis state store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported state driver: %s", cfg.Driver)
	}
}
