package cache

import (
	"context"
	"errors"

	"github.com/GTDGit/catalog_api/internal/models"
)

const catalogSnapshotKey = "catalog:snapshot"

// SnapshotStore persists the last known-good catalog entry across restarts.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.CacheEntry, error)
	Save(ctx context.Context, entry *models.CacheEntry) error
	Clear(ctx context.Context) error
}

// RedisSnapshotStore keeps the catalog entry as JSON in Redis.
// The key has no expiry: staleness is judged by the entry timestamp.
type RedisSnapshotStore struct {
	redis *RedisClient
}

// NewRedisSnapshotStore creates a new RedisSnapshotStore.
func NewRedisSnapshotStore(redis *RedisClient) *RedisSnapshotStore {
	return &RedisSnapshotStore{redis: redis}
}

// Load returns the persisted entry, or nil when none exists.
func (s *RedisSnapshotStore) Load(ctx context.Context) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := s.redis.GetJSON(ctx, catalogSnapshotKey, &entry); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Save replaces the persisted entry.
func (s *RedisSnapshotStore) Save(ctx context.Context, entry *models.CacheEntry) error {
	return s.redis.SetJSON(ctx, catalogSnapshotKey, entry, 0)
}

// Clear removes the persisted entry.
func (s *RedisSnapshotStore) Clear(ctx context.Context) error {
	return s.redis.Delete(ctx, catalogSnapshotKey)
}

// NopSnapshotStore is used when no persistence is configured.
type NopSnapshotStore struct{}

func (NopSnapshotStore) Load(context.Context) (*models.CacheEntry, error) { return nil, nil }
func (NopSnapshotStore) Save(context.Context, *models.CacheEntry) error   { return nil }
func (NopSnapshotStore) Clear(context.Context) error                      { return nil }
