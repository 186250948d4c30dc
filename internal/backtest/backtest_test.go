package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/strategy"
)

// alternatingStrategy buys on every tenth call while flat and sells on
// calls whose count ends in 5 while holding, purely to exercise the
// replay loop deterministically.
type alternatingStrategy struct{ step int }

func (a *alternatingStrategy) Name() string { return "Alternating" }
func (a *alternatingStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	return a.AnalyzeForBacktest(market, candles, tctx.Position)
}
func (a *alternatingStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	a.step++
	if !synthetic.Open && a.step%10 == 0 {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if synthetic.Open && a.step%10 == 5 {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitTakeProfit}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

// buildCandles returns a latest-first candle slice of length n with a
// mild upward drift, matching MarketDataSource's index-0-is-latest
// convention.
func buildCandles(n int) []candle.Candle {
	out := make([]candle.Candle, n)
	now := time.Now()
	price := 100.0
	// build oldest-first then reverse into latest-first
	oldestFirst := make([]candle.Candle, n)
	for i := 0; i < n; i++ {
		price += 0.1
		oldestFirst[i] = candle.Candle{
			Market: "KRW-BTC", Open: price, High: price * 1.001, Low: price * 0.999, Close: price,
			Volume: 10, TradeValueKRW: price * 10, GranularityMins: 1,
			TimestampUTC: now.Add(time.Duration(i) * time.Minute),
		}
	}
	for i := 0; i < n; i++ {
		out[n-1-i] = oldestFirst[i]
	}
	return out
}

// Scenario 6 from spec §8: finalBalance + finalCoinBalance*lastPrice must
// equal finalTotalAsset exactly, and totalProfitRate must match the
// formula exactly.
func TestRun_BalanceReconciliationIsExact(t *testing.T) {
	candles := buildCandles(200)
	result, err := Run(context.Background(), Request{
		Market:         "KRW-BTC",
		InitialBalance: 1000000,
		Candles:        candles,
		Strategy:       &alternatingStrategy{},
	})
	assert.NoError(t, err)
	assert.InDelta(t, result.FinalBalance+result.FinalCoinBalance*result.LastPrice, result.FinalTotalAsset, 1e-9)
	expectedRate := (result.FinalTotalAsset - 1000000) / 1000000 * 100
	assert.InDelta(t, expectedRate, result.TotalProfitRate, 1e-9)
}

func TestRun_TooFewCandlesReturnsInitialBalance(t *testing.T) {
	result, err := Run(context.Background(), Request{
		Market:         "KRW-BTC",
		InitialBalance: 50000,
		Candles:        buildCandles(10),
		Strategy:       &alternatingStrategy{},
	})
	assert.NoError(t, err)
	assert.Equal(t, 50000.0, result.FinalBalance)
}

func TestRunMultiMarket_PreservesOrder(t *testing.T) {
	reqs := []Request{
		{Market: "KRW-BTC", InitialBalance: 100000, Candles: buildCandles(200), Strategy: &alternatingStrategy{}},
		{Market: "KRW-ETH", InitialBalance: 200000, Candles: buildCandles(200), Strategy: &alternatingStrategy{}},
	}
	results, err := RunMultiMarket(context.Background(), MultiMarketRequest{Requests: reqs, Concurrency: 2})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "KRW-BTC", results[0].Market)
	assert.Equal(t, "KRW-ETH", results[1].Market)
}
