package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmbot/dmbot/internal/core"
)

const (
	driverRedis = "redis"

	// DefaultRedisKey holds the snapshot when no key is configured.
	DefaultRedisKey = "dmbot:state"
)

// RedisStore keeps the CBOR snapshot under a single key.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// LoadState fetches and decodes the snapshot.
func (r *RedisStore) LoadState(ctx context.Context) (*core.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return DecodeSnapshot(data)
}

// SaveState encodes and stores the snapshot without expiry.
func (r *RedisStore) SaveState(ctx context.Context, snap *core.Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// ResetState deletes the snapshot key.
func (r *RedisStore) ResetState(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client when it owns a connection pool.
func (r *RedisStore) Close() error {
	if closer, ok := r.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Driver returns "redis".
func (r *RedisStore) Driver() string { return driverRedis }
