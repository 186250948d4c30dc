package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// GoldenCrossStrategy buys when the short SMA crosses above the long SMA
// and sells on the reverse (death) cross.
type GoldenCrossStrategy struct {
	params ports.ParameterStore
}

func NewGoldenCrossStrategy(params ports.ParameterStore) *GoldenCrossStrategy {
	return &GoldenCrossStrategy{params: params}
}

func (s *GoldenCrossStrategy) Name() string { return "GoldenCross" }

func (s *GoldenCrossStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	shortPeriod := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "short_period", 20)
	longPeriod := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "long_period", 60)

	if len(candles) < longPeriod+1 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	shortNow, err1 := indicator.SMA(candles, shortPeriod)
	longNow, err2 := indicator.SMA(candles, longPeriod)
	shortPrev, err3 := indicator.SMA(candles[1:], shortPeriod)
	longPrev, err4 := indicator.SMA(candles[1:], longPeriod)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	crossedUp := shortPrev <= longPrev && shortNow > longNow
	crossedDown := shortPrev >= longPrev && shortNow < longNow

	if !tctx.Position.Open && crossedUp {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && crossedDown {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitSignalInvalid}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *GoldenCrossStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
