package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// VolumeImpulseStrategy looks at the cumulative trade value of the last
// few candles rather than a single spike — a sustained run of above-
// average trade value, not just one loud candle. Distinct from
// VolumeBreakout, which reacts to a single candle's volume.
type VolumeImpulseStrategy struct {
	params ports.ParameterStore
}

func NewVolumeImpulseStrategy(params ports.ParameterStore) *VolumeImpulseStrategy {
	return &VolumeImpulseStrategy{params: params}
}

func (s *VolumeImpulseStrategy) Name() string { return "VolumeImpulse" }

func (s *VolumeImpulseStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	impulseWindow := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "impulse_window", 3)
	baselineWindow := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "baseline_window", 20)
	impulseMultiple := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "impulse_multiple", 1.8)

	if len(candles) < impulseWindow+baselineWindow {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	var recentValue, baselineValue float64
	for _, c := range candles[:impulseWindow] {
		recentValue += c.TradeValueKRW
	}
	for _, c := range candles[impulseWindow : impulseWindow+baselineWindow] {
		baselineValue += c.TradeValueKRW
	}
	recentAvg := recentValue / float64(impulseWindow)
	baselineAvg := baselineValue / float64(baselineWindow)
	if baselineAvg == 0 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	impulseUp := recentAvg >= baselineAvg*impulseMultiple && candles[0].Close > candles[0].Open

	if !tctx.Position.Open && impulseUp {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && recentAvg < baselineAvg {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitVolumeDrop}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *VolumeImpulseStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
