// Package voting implements the Voting Layer (spec §4.3): it combines
// multiple strategy outputs for a market into a single decision, under
// DEFAULT (majority) and SCALED_TRADING (single delegate) modes.
package voting

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/strategy"
)

// Mode selects how strategy outputs are combined.
type Mode string

const (
	ModeDefault       Mode = "DEFAULT"
	ModeScaledTrading Mode = "SCALED_TRADING"
)

// Decision is the Voting Layer's output. Hints carries the agreeing (or,
// in SCALED_TRADING mode, the delegate's) target/stop-loss price and,
// for a SELL decision, the ExitReason.
type Decision struct {
	Signal         strategy.Signal
	SignalStrength float64 // 0..100
	Agreeing       []string
	Hints          strategy.Result
}

// Decide runs the given strategies over the candle window and tallies
// their votes under mode.
//
// DEFAULT: threshold = floor(N/2)+1. buy_count >= threshold and no open
// position => BUY. sell_count >= threshold and an open position => SELL.
// Otherwise HOLD. Exit votes take precedence over entry votes when both
// thresholds are somehow met in the same tally (structurally impossible
// here since strategies vote to exactly one side, but the precedence is
// enforced explicitly below for clarity and to satisfy P6).
//
// SCALED_TRADING: only the designated scaled strategy is consulted; its
// signal drives both entry-leg advancement and exit-phase advancement.
func Decide(ctx context.Context, mode Mode, strategies []strategy.Strategy, scaledStrategyName string, market string, candles []candle.Candle, tctx strategy.Context) (Decision, error) {
	if mode == ModeScaledTrading {
		return decideScaled(ctx, strategies, scaledStrategyName, market, candles, tctx)
	}
	return decideDefault(ctx, strategies, market, candles, tctx)
}

func decideScaled(ctx context.Context, strategies []strategy.Strategy, scaledName string, market string, candles []candle.Candle, tctx strategy.Context) (Decision, error) {
	for _, s := range strategies {
		if s.Name() != scaledName {
			continue
		}
		res := strategy.SafeAnalyze(ctx, s, market, candles, tctx)
		strength := 0.0
		if res.Signal != strategy.Hold {
			strength = 100
		}
		agreeing := []string(nil)
		if res.Signal != strategy.Hold {
			agreeing = []string{s.Name()}
		}
		return Decision{Signal: res.Signal, SignalStrength: strength, Agreeing: agreeing, Hints: res}, nil
	}
	return Decision{Signal: strategy.Hold}, nil
}

func decideDefault(ctx context.Context, strategies []strategy.Strategy, market string, candles []candle.Candle, tctx strategy.Context) (Decision, error) {
	n := len(strategies)
	if n == 0 {
		return Decision{Signal: strategy.Hold}, nil
	}
	threshold := n/2 + 1

	var buyCount, sellCount int
	var buyAgreeing, sellAgreeing []string
	var lastSellHints, lastBuyHints strategy.Result

	for _, s := range strategies {
		res := strategy.SafeAnalyze(ctx, s, market, candles, tctx)
		switch res.Signal {
		case strategy.Buy:
			buyCount++
			buyAgreeing = append(buyAgreeing, s.Name())
			lastBuyHints = res
		case strategy.Sell:
			sellCount++
			sellAgreeing = append(sellAgreeing, s.Name())
			lastSellHints = res
		}
	}

	maxCount := buyCount
	if sellCount > maxCount {
		maxCount = sellCount
	}
	strength := float64(maxCount) / float64(n) * 100

	// Exit votes take precedence over entry votes.
	if sellCount >= threshold && tctx.Position.Open {
		return Decision{Signal: strategy.Sell, SignalStrength: strength, Agreeing: sellAgreeing, Hints: lastSellHints}, nil
	}
	if buyCount >= threshold && !tctx.Position.Open {
		return Decision{Signal: strategy.Buy, SignalStrength: strength, Agreeing: buyAgreeing, Hints: lastBuyHints}, nil
	}
	return Decision{Signal: strategy.Hold, SignalStrength: strength}, nil
}
