package impl

import (
	"context"
	"math"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/indicator"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// RSIStrategy buys oversold reversals and sells overbought exhaustion.
type RSIStrategy struct {
	params ports.ParameterStore
}

// NewRSIStrategy builds an RSI-based strategy resolving its period and
// oversold/overbought bands through params.
func NewRSIStrategy(params ports.ParameterStore) *RSIStrategy {
	return &RSIStrategy{params: params}
}

func (s *RSIStrategy) Name() string { return "RSI" }

func (s *RSIStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	period := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "rsi_period", 14)
	oversold := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "oversold_threshold", 30)
	overbought := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "overbought_threshold", 70)

	rsi, err := indicator.RSI(candles, period)
	if err != nil {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	// Cross-check against go-talib; a gross disagreement (data glitch,
	// reversed window) means "don't trust this tick" rather than act on it.
	if cross := talibRSI(candles, period); math.Abs(cross-rsi) > 5 && cross != 0 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	if !tctx.Position.Open && rsi <= oversold {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && rsi >= overbought {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitOverheated}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *RSIStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
