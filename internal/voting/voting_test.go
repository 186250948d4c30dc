package voting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/strategy"
)

type fixedStrategy struct {
	name   string
	signal strategy.Signal
}

func (f fixedStrategy) Name() string { return f.name }
func (f fixedStrategy) Analyze(ctx context.Context, market string, candles []candle.Candle, tctx strategy.Context) (strategy.Result, error) {
	return strategy.Result{Signal: f.signal}, nil
}
func (f fixedStrategy) AnalyzeForBacktest(market string, candles []candle.Candle, synthetic strategy.Position) (strategy.Result, error) {
	return strategy.Result{Signal: f.signal}, nil
}

func makeStrategies(buy, sell, hold int) []strategy.Strategy {
	var out []strategy.Strategy
	idx := 0
	for i := 0; i < buy; i++ {
		out = append(out, fixedStrategy{name: "s" + itoa(idx), signal: strategy.Buy})
		idx++
	}
	for i := 0; i < sell; i++ {
		out = append(out, fixedStrategy{name: "s" + itoa(idx), signal: strategy.Sell})
		idx++
	}
	for i := 0; i < hold; i++ {
		out = append(out, fixedStrategy{name: "s" + itoa(idx), signal: strategy.Hold})
		idx++
	}
	return out
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	s := ""
	for n > 0 {
		s = string(digits[n%10]) + s
		n /= 10
	}
	return s
}

func TestDecide_MajorityAbstain(t *testing.T) {
	// Scenario 5 from spec §8: N=10, buy=5, sell=3, no open position => HOLD.
	strategies := makeStrategies(5, 3, 2)
	d, err := Decide(context.Background(), ModeDefault, strategies, "", "KRW-BTC", nil, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Hold, d.Signal)
}

func TestDecide_MajorityBuy(t *testing.T) {
	strategies := makeStrategies(6, 1, 3)
	d, err := Decide(context.Background(), ModeDefault, strategies, "", "KRW-BTC", nil, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Buy, d.Signal)
	assert.InDelta(t, 60.0, d.SignalStrength, 1e-9)
}

func TestDecide_SellRequiresOpenPosition(t *testing.T) {
	strategies := makeStrategies(0, 8, 2)
	d, err := Decide(context.Background(), ModeDefault, strategies, "", "KRW-BTC", nil, strategy.Context{Position: strategy.Position{Open: false}})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Hold, d.Signal)

	d2, err := Decide(context.Background(), ModeDefault, strategies, "", "KRW-BTC", nil, strategy.Context{Position: strategy.Position{Open: true}})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Sell, d2.Signal)
}

func TestDecide_P6_NoDecisionBelowThreshold(t *testing.T) {
	// P6: with N strategies, no decision unless max(buy,sell) >= floor(N/2)+1.
	for _, n := range []int{3, 4, 5, 10, 11} {
		threshold := n/2 + 1
		strategies := makeStrategies(threshold-1, 0, n-(threshold-1))
		d, err := Decide(context.Background(), ModeDefault, strategies, "", "KRW-BTC", nil, strategy.Context{})
		assert.NoError(t, err)
		assert.Equal(t, strategy.Hold, d.Signal, "n=%d", n)
	}
}

func TestDecide_ScaledTradingDelegatesToOneStrategy(t *testing.T) {
	strategies := []strategy.Strategy{
		fixedStrategy{name: "ScaledTrading", signal: strategy.Buy},
		fixedStrategy{name: "RSI", signal: strategy.Sell},
	}
	d, err := Decide(context.Background(), ModeScaledTrading, strategies, "ScaledTrading", "KRW-BTC", nil, strategy.Context{})
	assert.NoError(t, err)
	assert.Equal(t, strategy.Buy, d.Signal)
	assert.Equal(t, []string{"ScaledTrading"}, d.Agreeing)
}
