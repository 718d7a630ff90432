package api

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/refset/account-health/internal/cache"
	"github.com/refset/account-health/internal/snapshot"
	"github.com/refset/account-health/internal/store"
)

// CachedSource reads the latest snapshot from Redis and falls back to
// Postgres on a miss or cache failure. A snapshot loaded from Postgres is
// written back to the cache.
type CachedSource struct {
	cache  *cache.SnapshotCache
	store  *store.Store
	logger *zap.Logger
}

func NewCachedSource(c *cache.SnapshotCache, s *store.Store, logger *zap.Logger) *CachedSource {
	return &CachedSource{cache: c, store: s, logger: logger}
}

func (s *CachedSource) Latest(ctx context.Context) (snapshot.Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Latest(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, cache.ErrNoSnapshot) {
			s.logger.Warn("snapshot cache unavailable", zap.Error(err))
		}
	}

	snap, err := s.store.LatestSnapshot(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return snapshot.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, snap); err != nil {
			s.logger.Warn("refill snapshot cache failed", zap.Error(err))
		}
	}
	return snap, nil
}
