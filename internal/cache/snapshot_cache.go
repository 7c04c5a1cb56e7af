// Package cache mirrors the published snapshot to Redis so other dashboard
// instances can serve the last-known-good state without a database fetch.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"climacaribe/internal/models"
)

const snapshotKey = "climacaribe:snapshot:current"

// snapshotTTL keeps a crashed engine's snapshot from being served forever.
const snapshotTTL = 24 * time.Hour

// SnapshotCache stores the current snapshot in Redis.
type SnapshotCache struct {
	redis *redis.Client
}

// NewSnapshotCache creates a snapshot cache on an existing Redis client.
func NewSnapshotCache(client *redis.Client) *SnapshotCache {
	return &SnapshotCache{redis: client}
}

// Name identifies the sink in logs and metrics.
func (c *SnapshotCache) Name() string {
	return "redis"
}

// PublishSnapshot overwrites the mirrored snapshot. The raw reading set is
// excluded from the mirror; consumers needing it use the export endpoint.
func (c *SnapshotCache) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.redis.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to mirror snapshot to redis: %w", err)
	}

	return nil
}

// GetSnapshot reads the mirrored snapshot. A nil snapshot with nil error
// means none has been published yet.
func (c *SnapshotCache) GetSnapshot(ctx context.Context) (*models.Snapshot, error) {
	data, err := c.redis.Get(ctx, snapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from redis: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Close closes the underlying Redis client.
func (c *SnapshotCache) Close() error {
	return c.redis.Close()
}
