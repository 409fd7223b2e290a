package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores catalog snapshots in Redis per organization. A snapshot is
// advisory only; the authoritative stock check happens at reservation time.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func snapshotKey(orgID int64) string {
	return fmt.Sprintf("catalog:snapshot:%d", orgID)
}

// Get returns the cached snapshot, or nil on a miss.
func (c *Cache) Get(ctx context.Context, orgID int64) ([]CatalogItem, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	payload, err := c.client.Get(ctx, snapshotKey(orgID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var items []CatalogItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Set stores a snapshot with the configured TTL.
func (c *Cache) Set(ctx context.Context, orgID int64, items []CatalogItem) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(orgID), payload, c.ttl).Err()
}

// Invalidate drops the snapshot, typically after a stock movement.
func (c *Cache) Invalidate(ctx context.Context, orgID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(orgID)).Err()
}
