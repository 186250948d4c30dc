// Package market implements the Market Selector & Cache (spec §4.9): a
// TTL-cached facade over MarketDataSource, and the top-N-by-24h-trade-
// value selection logic used to build a user's auto-selected market
// working set.
package market

import (
	"context"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
)

const (
	tickerTTL           = 10 * time.Second
	minCandleTTL        = 15 * time.Second
	cacheCleanupInterval = time.Minute
)

// Cache wraps a MarketDataSource with a short-lived ticker/candle cache
// so a tick that consults the same market from several strategies doesn't
// re-hit the exchange per strategy.
type Cache struct {
	source ports.MarketDataSource
	store  *gocache.Cache
}

// New builds a Cache around source.
func New(source ports.MarketDataSource) *Cache {
	return &Cache{
		source: source,
		store:  gocache.New(tickerTTL, cacheCleanupInterval),
	}
}

// Ticker returns the cached ticker for market, refreshing it if the
// cached entry has expired.
func (c *Cache) Ticker(ctx context.Context, market string) (candle.Ticker, error) {
	key := "ticker:" + market
	if v, ok := c.store.Get(key); ok {
		return v.(candle.Ticker), nil
	}
	t, err := c.source.Ticker(ctx, market)
	if err != nil {
		return candle.Ticker{}, err
	}
	c.store.Set(key, t, tickerTTL)
	return t, nil
}

// Candles returns the cached candle window for (market, granularityMins),
// with a TTL of half the candle's own granularity (30s for 1-minute
// candles), floored at minCandleTTL (15s).
func (c *Cache) Candles(ctx context.Context, market string, granularityMins, count int) ([]candle.Candle, error) {
	key := candleCacheKey(market, granularityMins, count)
	if v, ok := c.store.Get(key); ok {
		return v.([]candle.Candle), nil
	}
	candles, err := c.source.Candles(ctx, market, granularityMins, count)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(granularityMins) * time.Minute / 2
	if ttl < minCandleTTL {
		ttl = minCandleTTL
	}
	c.store.Set(key, candles, ttl)
	return candles, nil
}

// Markets passes through uncached — market listings change rarely and
// are already sized for a once-per-tick call.
func (c *Cache) Markets(ctx context.Context) ([]ports.MarketInfo, error) {
	return c.source.Markets(ctx)
}

func candleCacheKey(market string, granularityMins, count int) string {
	return "candles:" + market + ":" + itoa(granularityMins) + ":" + itoa(count)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	digits := "0123456789"
	s := ""
	for n > 0 {
		s = string(digits[n%10]) + s
		n /= 10
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Selector resolves a user's effective market working set: explicit
// markets, plus the top N by 24h trade value when auto-select is
// configured, minus excluded markets and CAUTION-flagged markets.
type Selector struct {
	markets ports.MarketDataSource
}

// NewSelector builds a Selector over markets (normally a *Cache).
func NewSelector(markets ports.MarketDataSource) *Selector {
	return &Selector{markets: markets}
}

// Resolve returns the effective market list for a user profile.
func (s *Selector) Resolve(ctx context.Context, profile ports.UserProfile) ([]string, error) {
	excluded := make(map[string]bool, len(profile.ExcludedMarkets))
	for _, m := range profile.ExcludedMarkets {
		excluded[m] = true
	}

	set := make(map[string]bool)
	var ordered []string
	add := func(m string) {
		if excluded[m] || set[m] {
			return
		}
		set[m] = true
		ordered = append(ordered, m)
	}

	for _, m := range profile.ExplicitMarkets {
		add(m)
	}

	if profile.AutoSelectTopN > 0 {
		top, err := s.topNByTradeValue(ctx, profile.AutoSelectTopN, excluded)
		if err != nil {
			return nil, err
		}
		for _, m := range top {
			add(m)
		}
	}

	return ordered, nil
}

func (s *Selector) topNByTradeValue(ctx context.Context, n int, excluded map[string]bool) ([]string, error) {
	infos, err := s.markets.Markets(ctx)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		market string
		value  float64
	}
	var candidates []ranked
	for _, info := range infos {
		if info.Warning || excluded[info.Market] {
			continue
		}
		t, err := s.markets.Ticker(ctx, info.Market)
		if err != nil {
			continue
		}
		candidates = append(candidates, ranked{market: info.Market, value: t.AccTradeValue24h})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].value > candidates[j].value })
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].market
	}
	return out, nil
}
