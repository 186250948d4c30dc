package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// TrendFollowingStrategy rides an established EMA trend: buy while price
// holds above a slow EMA and the EMA itself is rising; sell once the
// trend turns over.
type TrendFollowingStrategy struct {
	params ports.ParameterStore
}

func NewTrendFollowingStrategy(params ports.ParameterStore) *TrendFollowingStrategy {
	return &TrendFollowingStrategy{params: params}
}

func (s *TrendFollowingStrategy) Name() string { return "TrendFollowing" }

func (s *TrendFollowingStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	period := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "ema_period", 50)
	if len(candles) < period+1 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	emaNow, err1 := indicator.EMA(candles, period)
	emaPrev, err2 := indicator.EMA(candles[1:], period)
	if err1 != nil || err2 != nil {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	price := candles[0].Close
	rising := emaNow > emaPrev

	if !tctx.Position.Open && price > emaNow && rising {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && (price < emaNow || !rising) {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitSignalInvalid}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *TrendFollowingStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
