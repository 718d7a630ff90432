// Package cache keeps the latest snapshot in Redis so readers do not hit
// Postgres on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refset/account-health/internal/snapshot"
)

// ErrNoSnapshot is returned when the cache holds no snapshot.
var ErrNoSnapshot = errors.New("no cached snapshot")

// SnapshotCache stores the latest snapshot under a single key.
type SnapshotCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func New(client *redis.Client, key string, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, key: key, ttl: ttl}
}

// Put replaces the cached snapshot. A zero TTL keeps it until overwritten.
func (c *SnapshotCache) Put(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot or ErrNoSnapshot.
func (c *SnapshotCache) Latest(ctx context.Context) (snapshot.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err == redis.Nil {
		return snapshot.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read cached snapshot: %w", err)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snap, nil
}
