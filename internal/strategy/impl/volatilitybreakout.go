package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// VolatilityBreakoutStrategy (Larry Williams style): buy when price
// breaks above the prior candle's range projected by a k-fraction of
// ATR; exit once price falls back through that breakout level.
type VolatilityBreakoutStrategy struct {
	params ports.ParameterStore
}

func NewVolatilityBreakoutStrategy(params ports.ParameterStore) *VolatilityBreakoutStrategy {
	return &VolatilityBreakoutStrategy{params: params}
}

func (s *VolatilityBreakoutStrategy) Name() string { return "VolatilityBreakout" }

func (s *VolatilityBreakoutStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	atrPeriod := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "atr_period", 14)
	k := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "k", 0.5)

	if len(candles) < 2 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	atr, err := indicator.ATR(candles[1:], atrPeriod)
	if err != nil {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	prior := candles[1]
	breakoutLevel := prior.Open + k*atr
	price := candles[0].Close

	if !tctx.Position.Open && price > breakoutLevel {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && price < breakoutLevel {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitVolumeDrop}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *VolatilityBreakoutStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
