// Package impl provides the concrete strategy set consulted by the
// Voting Layer. Every strategy reads its periods and thresholds through
// internal/strategy.ParamFloat/ParamInt, so a user or operator override
// takes effect without a deploy. Two margins are fixed in code: the RSI
// cross-check tolerance against go-talib and ScaledTrading's entry
// margin above its oversold threshold.
package impl

import (
	"github.com/markcheno/go-talib"
	"github.com/tradsys-core/engine/internal/candle"
)

// closesOldestFirst reverses the index-0-is-latest candle convention used
// throughout this engine into the oldest-first slice go-talib expects.
func closesOldestFirst(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = c.Close
	}
	return out
}

func highsOldestFirst(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = c.High
	}
	return out
}

func lowsOldestFirst(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = c.Low
	}
	return out
}

func volumesOldestFirst(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = c.Volume
	}
	return out
}

// talibRSI cross-checks the hand-rolled indicator package's RSI against
// go-talib's implementation; the two are expected to agree to within a
// small epsilon on well-formed input. Used by RSIStrategy as a sanity
// gate, not as the primary signal source.
func talibRSI(candles []candle.Candle, period int) float64 {
	series := talib.Rsi(closesOldestFirst(candles), period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
