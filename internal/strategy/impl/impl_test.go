package impl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// fakeParams is a ParameterStore with no overrides — every strategy falls
// back to its hard-coded default, which keeps these tests independent of
// any persistence layer.
type fakeParams struct{}

func (fakeParams) Resolve(ctx context.Context, strategyName, userID, key string) (string, ports.ParameterValueType, bool, error) {
	return "", "", false, nil
}
func (fakeParams) Set(ctx context.Context, strategyName, userID, key, value string, valueType ports.ParameterValueType) error {
	return nil
}
func (fakeParams) Reset(ctx context.Context, strategyName, userID, key string) error { return nil }

// descendingCandles builds a latest-first candle slice from oldest-first
// close prices, matching this engine's index-0-is-latest convention.
func descendingCandles(market string, closesOldestFirst []float64) []candle.Candle {
	out := make([]candle.Candle, len(closesOldestFirst))
	now := time.Now()
	for i, c := range closesOldestFirst {
		out[len(closesOldestFirst)-1-i] = candle.Candle{
			Market: market, Open: c, High: c * 1.001, Low: c * 0.999, Close: c,
			Volume: 100, TradeValueKRW: c * 100, GranularityMins: 1,
			TimestampUTC: now.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestRSIStrategy_BuysOnOversold(t *testing.T) {
	s := NewRSIStrategy(fakeParams{})
	closes := make([]float64, 30)
	price := 100.0
	for i := range closes {
		price -= 1.0
		closes[i] = price
	}
	candles := descendingCandles("KRW-BTC", closes)
	res, err := s.Analyze(context.Background(), "KRW-BTC", candles, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Buy, res.Signal)
}

func TestGoldenCrossStrategy_NoSignalWithoutCross(t *testing.T) {
	s := NewGoldenCrossStrategy(fakeParams{})
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 100 // flat series never crosses
	}
	candles := descendingCandles("KRW-BTC", closes)
	res, err := s.Analyze(context.Background(), "KRW-BTC", candles, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Hold, res.Signal)
}

func TestBollingerBandStrategy_BuysAtLowerBand(t *testing.T) {
	s := NewBollingerBandStrategy(fakeParams{})
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	closes = append(closes, 80) // sharp drop through the lower band
	candles := descendingCandles("KRW-BTC", closes)
	res, err := s.Analyze(context.Background(), "KRW-BTC", candles, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Buy, res.Signal)
}

func TestVolumeBreakoutStrategy_RequiresSpikeAndUpCandle(t *testing.T) {
	s := NewVolumeBreakoutStrategy(fakeParams{})
	candles := descendingCandles("KRW-BTC", make([]float64, 25))
	for i := range candles {
		candles[i].Volume = 10
	}
	candles[0].Volume = 100
	candles[0].Open = 95
	candles[0].Close = 105
	res, err := s.Analyze(context.Background(), "KRW-BTC", candles, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Buy, res.Signal)
}
