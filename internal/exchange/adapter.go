package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrExchangeUnavailable means no rate within the freshness window exists
// and a fresh fetch failed. The adapter fails closed: a stale rate is
// never silently used for a money-moving operation.
var ErrExchangeUnavailable = errors.New("no fresh exchange rate available")

// RateSource fetches a live conversion rate from an upstream provider.
type RateSource interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// RateCache stores fetched rates with their fetch time. Implementations:
// MemoryCache (single process) and RedisCache (shared).
type RateCache interface {
	Get(ctx context.Context, pair string) (decimal.Decimal, time.Time, bool, error)
	Put(ctx context.Context, pair string, rate decimal.Decimal, fetchedAt time.Time) error
}

// Adapter converts amounts between currencies using a cached rate when it
// is within the freshness window, fetching otherwise.
type Adapter struct {
	source RateSource
	cache  RateCache
	window time.Duration
	now    func() time.Time
}

// NewAdapter creates a conversion adapter. window bounds how old a cached
// rate may be before a refetch is forced.
func NewAdapter(source RateSource, cache RateCache, window time.Duration) *Adapter {
	return &Adapter{
		source: source,
		cache:  cache,
		window: window,
		now:    time.Now,
	}
}

// Pair returns the canonical cache key for a currency pair.
func Pair(from, to string) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to)
}

// Convert returns amount expressed in the target currency along with the
// rate used. Identity conversions short-circuit without touching the
// cache or the source.
func (a *Adapter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return amount, decimal.NewFromInt(1), nil
	}

	rate, err := a.rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return amount.Mul(rate), rate, nil
}

func (a *Adapter) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	pair := Pair(from, to)

	cached, fetchedAt, ok, err := a.cache.Get(ctx, pair)
	if err != nil {
		zap.L().Warn("Rate cache read failed, falling through to source",
			zap.String("pair", pair), zap.Error(err))
	} else if ok && a.now().Sub(fetchedAt) <= a.window {
		zap.L().Debug("Using cached exchange rate",
			zap.String("pair", pair),
			zap.String("rate", cached.String()),
			zap.Time("fetched_at", fetchedAt))
		return cached, nil
	}

	rate, err := a.source.FetchRate(ctx, from, to)
	if err != nil {
		zap.L().Error("Exchange rate fetch failed",
			zap.String("pair", pair), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %s (%v)", ErrExchangeUnavailable, pair, err)
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: source returned non-positive rate %s for %s",
			ErrExchangeUnavailable, rate.String(), pair)
	}

	now := a.now()
	if err := a.cache.Put(ctx, pair, rate, now); err != nil {
		zap.L().Warn("Failed to cache exchange rate",
			zap.String("pair", pair), zap.Error(err))
	}

	zap.L().Info("Fetched fresh exchange rate",
		zap.String("pair", pair),
		zap.String("rate", rate.String()))
	return rate, nil
}
