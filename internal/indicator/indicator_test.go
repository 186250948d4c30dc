package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
)

// series builds n candles, index 0 most recent, with the given close
// prices listed oldest-first for readability, then reversed to the
// package's most-recent-first convention.
func series(closesOldestFirst ...float64) []candle.Candle {
	n := len(closesOldestFirst)
	out := make([]candle.Candle, n)
	base := time.Now()
	for i, c := range closesOldestFirst {
		idx := n - 1 - i // most-recent-first slot
		out[idx] = candle.Candle{
			Market:       "KRW-BTC",
			TimestampUTC: base.Add(time.Duration(i) * time.Minute),
			Open:         c,
			High:         c + 1,
			Low:          c - 1,
			Close:        c,
			Volume:       10,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	cs := series(1, 2, 3, 4, 5) // oldest..newest
	got, err := SMA(cs, 5)
	assert.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-9)
}

func TestSMA_InsufficientData(t *testing.T) {
	cs := series(1, 2)
	_, err := SMA(cs, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEMA_SeededBySMA(t *testing.T) {
	cs := series(1, 2, 3, 4, 5)
	got, err := EMA(cs, 5)
	assert.NoError(t, err)
	// seed = mean(1..5) = 3; with exactly `period` candles there is no
	// newer candle to iterate over, so the EMA is the seed itself.
	assert.InDelta(t, 3.0, got, 1e-3)
}

func TestRSI_ZeroLossReturns100(t *testing.T) {
	cs := series(1, 2, 3, 4, 5, 6)
	got, err := RSI(cs, 5)
	assert.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestRSI_OversoldReversal(t *testing.T) {
	// Synthetic stream of fourteen falling closes followed by a small
	// recovery close: one gain of 0.5 against thirteen losses of 1 keeps
	// RSI(14) deep in oversold territory (about 3.7).
	closes := make([]float64, 0, 20)
	price := 100.0
	for i := 0; i < 14; i++ {
		price -= 1.0
		closes = append(closes, price)
	}
	// Recent recovery candle.
	closes = append(closes, price+0.5)
	cs := series(closes...)
	got, err := RSI(cs, 14)
	assert.NoError(t, err)
	assert.Less(t, got, 50.0)
}

func TestBollingerBands(t *testing.T) {
	cs := series(2, 4, 4, 4, 5, 5, 7, 9)
	mid, upper, lower, err := BollingerBands(cs, 8, 2)
	assert.NoError(t, err)
	assert.InDelta(t, 5.0, mid, 1e-9)
	assert.Greater(t, upper, mid)
	assert.Less(t, lower, mid)
}

func TestATR(t *testing.T) {
	cs := series(10, 11, 12, 13, 14, 15)
	got, err := ATR(cs, 5)
	assert.NoError(t, err)
	assert.Greater(t, got, 0.0)
}

func TestMACD(t *testing.T) {
	closes := make([]float64, 0, 40)
	price := 100.0
	for i := 0; i < 40; i++ {
		price += 0.3
		closes = append(closes, price)
	}
	cs := series(closes...)
	got, err := MACD(cs, 12, 26, 9)
	assert.NoError(t, err)
	assert.Greater(t, got.MACD, 0.0) // steadily rising series => positive MACD
}

func TestStochRSI(t *testing.T) {
	closes := make([]float64, 0, 40)
	price := 50.0
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			price += 1
		} else {
			price -= 0.5
		}
		closes = append(closes, price)
	}
	cs := series(closes...)
	got, err := StochRSI(cs, 14, 14)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, got.K, 0.0)
	assert.LessOrEqual(t, got.K, 100.0)
}
