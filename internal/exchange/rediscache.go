package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCache shares fetched rates between processes. Entries carry their
// fetch time so every reader applies the same freshness window; a TTL of
// twice the window keeps the keyspace from growing unbounded.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a Redis-backed rate cache.
func NewRedisCache(rdb *redis.Client, window time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: 2 * window}
}

func rateKey(pair string) string {
	return "fx:rate:" + pair
}

func (c *RedisCache) Get(ctx context.Context, pair string) (decimal.Decimal, time.Time, bool, error) {
	value, err := c.rdb.Get(ctx, rateKey(pair)).Result()
	if err == redis.Nil {
		return decimal.Zero, time.Time{}, false, nil
	}
	if err != nil {
		return decimal.Zero, time.Time{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return decimal.Zero, time.Time{}, false, fmt.Errorf("malformed cached rate %q", value)
	}
	rate, err := decimal.NewFromString(parts[0])
	if err != nil {
		return decimal.Zero, time.Time{}, false, fmt.Errorf("malformed cached rate value %q: %w", parts[0], err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return decimal.Zero, time.Time{}, false, fmt.Errorf("malformed cached rate timestamp %q: %w", parts[1], err)
	}
	return rate, fetchedAt, true, nil
}

func (c *RedisCache) Put(ctx context.Context, pair string, rate decimal.Decimal, fetchedAt time.Time) error {
	value := rate.String() + "|" + fetchedAt.UTC().Format(time.RFC3339Nano)
	if err := c.rdb.Set(ctx, rateKey(pair), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
