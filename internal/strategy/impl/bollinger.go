package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// BollingerBandStrategy buys a touch of the lower band (mean-reversion
// entry) and sells a touch of the upper band.
type BollingerBandStrategy struct {
	params ports.ParameterStore
}

func NewBollingerBandStrategy(params ports.ParameterStore) *BollingerBandStrategy {
	return &BollingerBandStrategy{params: params}
}

func (s *BollingerBandStrategy) Name() string { return "BollingerBand" }

func (s *BollingerBandStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	period := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "period", 20)
	k := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "num_std_dev", 2.0)

	_, upper, lower, err := indicator.BollingerBands(candles, period, k)
	if err != nil || len(candles) == 0 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	price := candles[0].Close

	if !tctx.Position.Open && price <= lower {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && price >= upper {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitTakeProfit}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *BollingerBandStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
