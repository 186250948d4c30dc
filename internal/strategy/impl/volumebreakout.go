package impl

import (
	"context"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/strategy"
)

// VolumeBreakoutStrategy buys when the current candle's volume spikes
// well above its recent average alongside a positive price move, and
// exits once volume falls back to typical levels.
type VolumeBreakoutStrategy struct {
	params ports.ParameterStore
}

func NewVolumeBreakoutStrategy(params ports.ParameterStore) *VolumeBreakoutStrategy {
	return &VolumeBreakoutStrategy{params: params}
}

func (s *VolumeBreakoutStrategy) Name() string { return "VolumeBreakout" }

func (s *VolumeBreakoutStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	window := strategy.ParamInt(ctx, s.params, s.Name(), tctx.UserID, "volume_window", 20)
	spikeMultiple := strategy.ParamFloat(ctx, s.params, s.Name(), tctx.UserID, "spike_multiple", 2.5)

	if len(candles) < window+1 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}
	var avgVol float64
	for _, c := range candles[1 : window+1] {
		avgVol += c.Volume
	}
	avgVol /= float64(window)
	if avgVol == 0 {
		return strategy.Result{Signal: strategy.Hold}, nil
	}

	current := candles[0]
	spiking := current.Volume >= avgVol*spikeMultiple
	priceUp := current.Close > current.Open

	if !tctx.Position.Open && spiking && priceUp {
		return strategy.Result{Signal: strategy.Buy}, nil
	}
	if tctx.Position.Open && current.Volume < avgVol {
		return strategy.Result{Signal: strategy.Sell, ExitReason: candle.ExitVolumeDrop}, nil
	}
	return strategy.Result{Signal: strategy.Hold}, nil
}

func (s *VolumeBreakoutStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return s.Analyze(context.Background(), market, candles, strategy.Context{Position: synthetic})
}
