package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL bounds how long a computed slot list is served from
// redis before it is recomputed.
const DefaultCacheTTL = 30 * time.Second

// Cache holds computed annotated slot lists in redis, keyed per date
// and service. A ledger mutation drops every entry for the touched
// date.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewCache wraps the redis client. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func slotsKey(date, serviceID string) string {
	return fmt.Sprintf("slots:%s:%s", date, serviceID)
}

// Get returns the cached slot list, or ok=false on a miss. Cache
// errors degrade to a miss.
func (c *Cache) Get(ctx context.Context, date, serviceID string) ([]Slot, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, slotsKey(date, serviceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("slot cache read failed")
		}
		return nil, false
	}
	var slots []Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		c.logger.Warn().Err(err).Msg("slot cache entry malformed, dropping")
		c.client.Del(ctx, slotsKey(date, serviceID))
		return nil, false
	}
	return slots, true
}

// Set stores a computed slot list. Failures are logged, not returned;
// the cache is an optimization only.
func (c *Cache) Set(ctx context.Context, date, serviceID string, slots []Slot) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, slotsKey(date, serviceID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("slot cache write failed")
	}
}

// InvalidateDate removes every cached slot list for a date.
func (c *Cache) InvalidateDate(ctx context.Context, date string) {
	if c == nil || c.client == nil {
		return
	}
	pattern := fmt.Sprintf("slots:%s:*", date)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("slot cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("slot cache invalidation failed")
	}
}
