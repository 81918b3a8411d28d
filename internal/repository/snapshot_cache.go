package repository

import (
	"context"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/cache"
)

const snapshotKey = "snapshot:latest"

// RedisSnapshotCache keeps the most recent tracker snapshot in Redis so
// external dashboard renderers can poll it without touching the pipeline
// process.
type RedisSnapshotCache struct {
	cache cache.Service
	ttl   time.Duration
}

func NewRedisSnapshotCache(c cache.Service, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{cache: c, ttl: ttl}
}

func (s *RedisSnapshotCache) Store(ctx context.Context, snap models.MetricsSnapshot) error {
	return s.cache.Set(ctx, snapshotKey, snap, s.ttl)
}

// Latest returns the cached snapshot, or nil when none is present.
func (s *RedisSnapshotCache) Latest(ctx context.Context) (*models.MetricsSnapshot, error) {
	var snap models.MetricsSnapshot
	err := s.cache.Get(ctx, snapshotKey, &snap)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

var _ drepo.SnapshotSink = (*RedisSnapshotCache)(nil)
