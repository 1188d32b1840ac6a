package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// AvailabilityCache keeps variant availability in Redis behind a short TTL.
// Movement commits invalidate eagerly; the TTL covers anything that slips by.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewAvailabilityCache constructs the cache. ttl defaults to 30 seconds.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityCache{client: client, ttl: ttl, logger: logger}
}

func availabilityKey(variantID int64) string {
	return fmt.Sprintf("availability:%d", variantID)
}

// Get returns the cached availability, or ok=false on miss or any cache error.
func (c *AvailabilityCache) Get(ctx context.Context, variantID int64) (Availability, bool) {
	if c == nil || c.client == nil {
		return Availability{}, false
	}
	raw, err := c.client.Get(ctx, availabilityKey(variantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("availability cache read", slog.Any("error", err))
		}
		return Availability{}, false
	}
	var a Availability
	if err := json.Unmarshal(raw, &a); err != nil {
		return Availability{}, false
	}
	return a, true
}

// Set stores the availability snapshot. Cache errors are logged, never fatal.
func (c *AvailabilityCache) Set(ctx context.Context, a Availability) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, availabilityKey(a.VariantID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write", slog.Any("error", err))
	}
}

// InvalidateAvailability drops the cached entry after a committed movement.
func (c *AvailabilityCache) InvalidateAvailability(ctx context.Context, variantID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, availabilityKey(variantID)).Err(); err != nil {
		c.logger.Warn("availability cache invalidate", slog.Any("error", err))
	}
}
