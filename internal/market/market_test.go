package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
)

type fakeSource struct {
	tickerCalls int
	candleCalls int
	infos       []ports.MarketInfo
	tickers     map[string]candle.Ticker
}

func (f *fakeSource) Candles(ctx context.Context, market string, granularityMins, count int) ([]candle.Candle, error) {
	f.candleCalls++
	return []candle.Candle{{Market: market, Close: 100}}, nil
}

func (f *fakeSource) Ticker(ctx context.Context, market string) (candle.Ticker, error) {
	f.tickerCalls++
	return f.tickers[market], nil
}

func (f *fakeSource) Markets(ctx context.Context) ([]ports.MarketInfo, error) {
	return f.infos, nil
}

func TestCache_TickerIsCachedWithinTTL(t *testing.T) {
	src := &fakeSource{tickers: map[string]candle.Ticker{"KRW-BTC": {Market: "KRW-BTC", TradePrice: 100}}}
	c := New(src)

	_, err := c.Ticker(context.Background(), "KRW-BTC")
	assert.NoError(t, err)
	_, err = c.Ticker(context.Background(), "KRW-BTC")
	assert.NoError(t, err)
	assert.Equal(t, 1, src.tickerCalls, "second call within TTL must not hit the source")
}

func TestCache_CandlesAreCachedWithinTTL(t *testing.T) {
	src := &fakeSource{}
	c := New(src)

	_, err := c.Candles(context.Background(), "KRW-BTC", 5, 50)
	assert.NoError(t, err)
	_, err = c.Candles(context.Background(), "KRW-BTC", 5, 50)
	assert.NoError(t, err)
	assert.Equal(t, 1, src.candleCalls)
}

func TestSelector_ExcludesCautionAndExcludedMarkets(t *testing.T) {
	src := &fakeSource{
		infos: []ports.MarketInfo{
			{Market: "KRW-BTC"},
			{Market: "KRW-ETH"},
			{Market: "KRW-SCAM", Warning: true},
			{Market: "KRW-XRP"},
		},
		tickers: map[string]candle.Ticker{
			"KRW-BTC": {AccTradeValue24h: 300},
			"KRW-ETH": {AccTradeValue24h: 200},
			"KRW-XRP": {AccTradeValue24h: 100},
		},
	}
	sel := NewSelector(src)
	out, err := sel.Resolve(context.Background(), ports.UserProfile{
		AutoSelectTopN:  2,
		ExcludedMarkets: []string{"KRW-ETH"},
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"KRW-BTC", "KRW-XRP"}, out)
}

func TestSelector_ExplicitMarketsAlwaysIncluded(t *testing.T) {
	src := &fakeSource{}
	sel := NewSelector(src)
	out, err := sel.Resolve(context.Background(), ports.UserProfile{
		ExplicitMarkets: []string{"KRW-DOGE", "KRW-BTC"},
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"KRW-DOGE", "KRW-BTC"}, out)
}
