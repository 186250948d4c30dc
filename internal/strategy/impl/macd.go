package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// MACDStrategy buys when the MACD line crosses above its signal line and
// sells the reverse cross.
type MACDStrategy struct {
	params ports.ParameterStore
}

func NewMACDStrategy(params ports.ParameterStore) *MACDStrategy {
	return &MACDStrategy{params: params}
}

func (s *MACDStrategy) Name() string { return "MACD" }

func (s *MACDStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	fast := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "fast_period", 12)
	slow := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "slow_period", 26)
	signalPeriod := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "signal_period", 9)

	res, err := indicator.MACD(candles, fast, slow, signalPeriod)
	if err != nil {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	if !tctx.Position.Open && res.Histogram > 0 && res.MACD > res.Signal {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && res.Histogram < 0 && res.MACD < res.Signal {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitSignalInvalid}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *MACDStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
