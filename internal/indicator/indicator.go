// Package indicator implements the pure, stateless technical-analysis
// functions from spec §4.1. Convention: index 0 of the candle slice is
// the most recent candle; increasing index means older. Every function
// takes the sequence plus an integer period and fails with
// ErrInsufficientData when too few candles are supplied.
package indicator

import (
	"errors"
	"math"

	"github.com/tradsys-core/engine/internal/candle"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData is returned when candles.size() < the indicator's
// required window.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// epsilon guards any division by a standard deviation (spec §4.1).
const epsilon = 1e-9

// closes returns the close price of the first n candles, index 0 first
// (still most-recent-first order).
func closes(candles []candle.Candle, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = candles[i].Close
	}
	return out
}

// SMA is the arithmetic mean of close prices for the first period candles.
func SMA(candles []candle.Candle, period int) (float64, error) {
	if len(candles) < period {
		return 0, ErrInsufficientData
	}
	return mean(closes(candles, period)), nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// EMA is seeded with the SMA over the oldest `period` candles in the
// window, then iterated forward to index 0 with multiplier 2/(period+1).
func EMA(candles []candle.Candle, period int) (float64, error) {
	if len(candles) < period {
		return 0, ErrInsufficientData
	}
	n := len(candles)
	// Oldest `period` closes, oldest first, used for the seed.
	seed := make([]float64, period)
	for i := 0; i < period; i++ {
		seed[i] = candles[n-1-i].Close
	}
	mult := 2.0 / (float64(period) + 1.0)
	ema := mean(seed) // SMA over the oldest `period` candles seeds the EMA
	for i := n - 1 - period; i >= 0; i-- {
		ema = (candles[i].Close-ema)*mult + ema
	}
	return ema, nil
}

// RSI computes gains/losses over the first `period` price differences.
// Returns 100 when the average loss is 0.
func RSI(candles []candle.Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, ErrInsufficientData
	}
	var gainSum, lossSum float64
	for i := 0; i < period; i++ {
		delta := candles[i].Close - candles[i+1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / (avgLoss + epsilon)
	return 100 - (100 / (1 + rs)), nil
}

// BollingerBands returns (middle=SMA, upper, lower) using the population
// standard deviation of the same window, scaled by k.
func BollingerBands(candles []candle.Candle, period int, k float64) (middle, upper, lower float64, err error) {
	if len(candles) < period {
		return 0, 0, 0, ErrInsufficientData
	}
	window := closes(candles, period)
	mid := mean(window)
	sigma := stat.PopStdDev(window, nil)
	return mid, mid + k*sigma, mid - k*sigma, nil
}

// ATR is the mean of true range TR_i = max(high-low, |high-prevClose|,
// |low-prevClose|) over the first `period` candles.
func ATR(candles []candle.Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, ErrInsufficientData
	}
	var sum float64
	for i := 0; i < period; i++ {
		c := candles[i]
		prevClose := candles[i+1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period), nil
}

// MACDResult holds the three MACD series values at the as-of candle.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes macd=EMA_fast-EMA_slow, signal=EMA_signal(macd history),
// histogram=macd-signal, with defaults fast=12, slow=26, signal=9.
func MACD(candles []candle.Candle, fast, slow, signalPeriod int) (MACDResult, error) {
	required := slow + signalPeriod
	if len(candles) < required {
		return MACDResult{}, ErrInsufficientData
	}
	// Build the macd line for the trailing `signalPeriod+1` as-of points
	// (most-recent-first) so EMA can be seeded/iterated over it exactly
	// like any other candle-derived series.
	macdSeries := make([]float64, signalPeriod+1)
	for i := 0; i <= signalPeriod; i++ {
		window := candles[i:]
		fastEMA, err := emaFloat(window, fast)
		if err != nil {
			return MACDResult{}, err
		}
		slowEMA, err := emaFloat(window, slow)
		if err != nil {
			return MACDResult{}, err
		}
		macdSeries[i] = fastEMA - slowEMA
	}
	sigEMA := emaOverFloats(macdSeries, signalPeriod)
	macd := macdSeries[0]
	return MACDResult{MACD: macd, Signal: sigEMA, Histogram: macd - sigEMA}, nil
}

// emaFloat is EMA but over a candle window directly (helper for MACD).
func emaFloat(candles []candle.Candle, period int) (float64, error) {
	return EMA(candles, period)
}

// emaOverFloats runs the same SMA-seeded EMA recipe over an explicit
// most-recent-first float series instead of a candle slice.
func emaOverFloats(series []float64, period int) float64 {
	n := len(series)
	if period > n {
		period = n
	}
	seed := make([]float64, period)
	for i := 0; i < period; i++ {
		seed[i] = series[n-1-i]
	}
	mult := 2.0 / (float64(period) + 1.0)
	ema := mean(seed)
	for i := n - 1 - period; i >= 0; i-- {
		ema = (series[i]-ema)*mult + ema
	}
	return ema
}

// StochRSIResult holds the %K/%D pair.
type StochRSIResult struct {
	K float64
	D float64
}

// StochRSI computes (K, D) on the RSI series: K is the normalized
// position of the latest RSI within its rolling high/low range over
// stochPeriod RSI samples; D is the SMA(3) of K.
func StochRSI(candles []candle.Candle, rsiPeriod, stochPeriod int) (StochRSIResult, error) {
	required := rsiPeriod + stochPeriod + 3
	if len(candles) < required {
		return StochRSIResult{}, ErrInsufficientData
	}
	rsiSeries := make([]float64, stochPeriod+3)
	for i := range rsiSeries {
		v, err := RSI(candles[i:], rsiPeriod)
		if err != nil {
			return StochRSIResult{}, err
		}
		rsiSeries[i] = v
	}
	kValues := make([]float64, 3)
	for j := 0; j < 3; j++ {
		window := rsiSeries[j : j+stochPeriod]
		lo, hi := window[0], window[0]
		for _, v := range window {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		rng := hi - lo
		if rng < epsilon {
			kValues[j] = 0
		} else {
			kValues[j] = (rsiSeries[j] - lo) / (rng + epsilon) * 100
		}
	}
	d := mean(kValues)
	return StochRSIResult{K: kValues[0], D: d}, nil
}
