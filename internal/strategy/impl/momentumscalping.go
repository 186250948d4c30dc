package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// MomentumScalpingStrategy chases short bursts: buy on a sharp
// short-window price jump, sell as soon as momentum stalls. Intended for
// short granularities (1-3 minute candles).
type MomentumScalpingStrategy struct {
	params ports.ParameterStore
}

func NewMomentumScalpingStrategy(params ports.ParameterStore) *MomentumScalpingStrategy {
	return &MomentumScalpingStrategy{params: params}
}

func (s *MomentumScalpingStrategy) Name() string { return "MomentumScalping" }

func (s *MomentumScalpingStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	window := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "lookback_candles", 5)
	burstThreshold := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "burst_threshold", 0.008)
	stallThreshold := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "stall_threshold", 0.001)

	if len(candles) <= window {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	now := candles[0].Close
	past := candles[window].Close
	if past == 0 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	move := (now - past) / past

	if !tctx.Position.Open && move >= burstThreshold {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && move > -stallThreshold && move < stallThreshold {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitTimeout}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *MomentumScalpingStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
