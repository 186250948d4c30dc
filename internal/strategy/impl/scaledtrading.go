package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// ScaledTradingStrategy is the single-delegate strategy consulted alone
// in SCALED_TRADING mode (spec §4.3): it owns the entire entry/exit
// decision instead of contributing one vote among many, so it combines a
// trend filter (EMA) with an oscillator (RSI) rather than relying on
// simple-majority corroboration from other strategies.
type ScaledTradingStrategy struct {
	params ports.ParameterStore
}

func NewScaledTradingStrategy(params ports.ParameterStore) *ScaledTradingStrategy {
	return &ScaledTradingStrategy{params: params}
}

func (s *ScaledTradingStrategy) Name() string { return "ScaledTrading" }

func (s *ScaledTradingStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	emaPeriod := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "ema_period", 20)
	rsiPeriod := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "rsi_period", 14)
	oversold := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "oversold_threshold", 35)
	overbought := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "overbought_threshold", 65)

	if len(candles) == 0 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	ema, err1 := indicator.EMA(candles, emaPeriod)
	rsi, err2 := indicator.RSI(candles, rsiPeriod)
	if err1 != nil || err2 != nil {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	price := candles[0].Close

	if !tctx.Position.Open && price > ema && rsi <= oversold+15 {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && (price < ema || rsi >= overbought) {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitSignalInvalid}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *ScaledTradingStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
