package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// MemoryCache is a process-local rate cache. The adapter owns freshness
// decisions; the cache just remembers what was fetched and when.
type MemoryCache struct {
	mu    sync.RWMutex
	rates map[string]cachedRate
}

// NewMemoryCache creates an empty in-memory rate cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{rates: make(map[string]cachedRate)}
}

func (c *MemoryCache) Get(_ context.Context, pair string) (decimal.Decimal, time.Time, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.rates[pair]
	if !ok {
		return decimal.Zero, time.Time{}, false, nil
	}
	return entry.rate, entry.fetchedAt, true, nil
}

func (c *MemoryCache) Put(_ context.Context, pair string, rate decimal.Decimal, fetchedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates[pair] = cachedRate{rate: rate, fetchedAt: fetchedAt}
	return nil
}
