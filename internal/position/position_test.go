package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
)

func defaultParams() Params {
	return Params{
		EntryRatio1:          decimal.NewFromFloat(0.30),
		EntryRatio2:          decimal.NewFromFloat(0.30),
		EntryRatio3:          decimal.NewFromFloat(0.40),
		Entry2DropThreshold:  0.015,
		Entry3DropThreshold:  0.025,
		PartialTakeProfit:    0.025,
		PartialExitRatio:     decimal.NewFromFloat(0.50),
		TrailingArmThreshold: 0.030,
		TrailingStopRate:     0.015,
		MaxStopLossRate:      0.03,
		MinHoldCandles:       3,
	}
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// Scaled-entry averaging (after scenario 2 from spec §8, with quantities
// in place of funds): legs at 100/98.5/97.5 with qty 300/300/400 average
// to (30000+29550+39000)/1000 = 98.55.
func TestScaledEntry_AverageEntryPrice(t *testing.T) {
	now := time.Now()
	p := New("u1", "KRW-BTC", now)

	require := assert.New(t)
	require.NoError(p.OpenEntryLeg(1, d(100), d(300), now, d(103), d(97)))
	require.Equal(StatusActive, p.Status)

	legIdx, ok := p.NextEntryTrigger(98.5, defaultParams())
	require.True(ok)
	require.Equal(2, legIdx)
	require.NoError(p.OpenEntryLeg(2, d(98.5), d(300), now.Add(time.Minute), decimal.Zero, d(95.6)))
	require.Equal(StatusActive, p.Status)

	legIdx, ok = p.NextEntryTrigger(97.5, defaultParams())
	require.True(ok)
	require.Equal(3, legIdx)
	require.NoError(p.OpenEntryLeg(3, d(97.5), d(400), now.Add(2*time.Minute), decimal.Zero, d(94.6)))
	require.Equal(StatusActive, p.Status)
	require.Equal(3, p.EntryPhase)

	avg, _ := p.AvgEntryPrice.Float64()
	require.InDelta(98.55, avg, 0.01)
	require.True(p.TotalQuantity.Equal(d(1000)))
}

// Scenario 3 from spec §8: at +2.5% unrealized, half the position (500 of
// 1000) is sold and exit_phase becomes 1.
func TestPartialTakeProfit_SellsHalf(t *testing.T) {
	now := time.Now()
	p := New("u1", "KRW-BTC", now)
	assert.NoError(t, p.OpenEntryLeg(1, d(100), d(1000), now, d(103), d(97)))
	assert.NoError(t, p.OpenEntryLeg(2, d(100), decimal.Zero, now, decimal.Zero, decimal.Zero))
	// force entry_phase to 3 without additional capital for test simplicity
	p.EntryPhase = 2
	assert.NoError(t, p.OpenEntryLeg(3, d(100), decimal.Zero, now, decimal.Zero, decimal.Zero))
	assert.Equal(t, StatusActive, p.Status)

	assert.True(t, p.ReadyForPartialTakeProfit(102.5, defaultParams()))

	half := p.TotalQuantity.Mul(defaultParams().PartialExitRatio)
	assert.NoError(t, p.ApplyPartialExit(d(102.5), half, d(1.0), now.Add(time.Hour)))

	assert.Equal(t, StatusExiting, p.Status)
	assert.Equal(t, 1, p.ExitPhase)
	assert.True(t, p.PartialExit.Quantity.Equal(d(500)))
	assert.True(t, p.RemainingQuantity().Equal(d(500)))
}

// Scenario 4 from spec §8: trailing stop arms at +3% and then fires once
// price retraces 1.5% off the trailing high. trailing_high_price only
// ever moves up (P3).
func TestTrailingStop_ArmsThenFires(t *testing.T) {
	now := time.Now()
	p := New("u1", "KRW-BTC", now)
	assert.NoError(t, p.OpenEntryLeg(1, d(100), d(1000), now, decimal.Zero, d(97)))
	assert.NoError(t, p.OpenEntryLeg(2, d(100), decimal.Zero, now, decimal.Zero, decimal.Zero))
	p.EntryPhase = 2
	assert.NoError(t, p.OpenEntryLeg(3, d(100), decimal.Zero, now, decimal.Zero, decimal.Zero))

	params := defaultParams()

	// Not yet armed below the 3% threshold.
	p.ArmTrailingStop(102.0, params)
	assert.False(t, p.TrailingArmed)

	p.ArmTrailingStop(103.5, params)
	assert.True(t, p.TrailingArmed)
	high, _ := p.TrailingHighPrice.Float64()
	assert.InDelta(t, 103.5, high, 1e-9)

	// Price climbs further, trailing high must follow (never decrease).
	p.ArmTrailingStop(105.0, params)
	high, _ = p.TrailingHighPrice.Float64()
	assert.InDelta(t, 105.0, high, 1e-9)

	// A later dip that is still above the prior high must not reset it.
	p.ArmTrailingStop(104.0, params)
	high, _ = p.TrailingHighPrice.Float64()
	assert.InDelta(t, 105.0, high, 1e-9, "trailing_high_price must be monotonically non-decreasing")

	stopPrice, _ := p.TrailingStopPrice.Float64()
	assert.InDelta(t, 105.0*0.985, stopPrice, 1e-6)

	fire, reason := p.ExitCheck(stopPrice-0.01, now.Add(10*time.Minute), 1, params, false)
	assert.True(t, fire)
	assert.Equal(t, candle.ExitTrailingStop, reason)
}

func TestExitCheck_SellVoteAlwaysCarriesExitReason(t *testing.T) {
	now := time.Now()
	p := New("u1", "KRW-BTC", now)
	assert.NoError(t, p.OpenEntryLeg(1, d(100), d(1000), now, decimal.Zero, d(97)))
	assert.NoError(t, p.OpenEntryLeg(2, d(100), decimal.Zero, now, decimal.Zero, decimal.Zero))
	p.EntryPhase = 2
	assert.NoError(t, p.OpenEntryLeg(3, d(100), decimal.Zero, now, decimal.Zero, decimal.Zero))

	fire, reason := p.ExitCheck(100, now, 1, defaultParams(), true)
	assert.True(t, fire)
	assert.NotEmpty(t, reason, "every SELL must carry an ExitReason (P5)")
}

// P1: once CLOSED, no further mutation is accepted.
func TestClosedPosition_RejectsFurtherWrites(t *testing.T) {
	now := time.Now()
	p := New("u1", "KRW-BTC", now)
	assert.NoError(t, p.OpenEntryLeg(1, d(100), d(1000), now, decimal.Zero, d(97)))
	assert.NoError(t, p.ApplyFinalExit(d(101), d(1), now, candle.ExitStopLossFixed))
	assert.Equal(t, StatusClosed, p.Status)

	err := p.OpenEntryLeg(2, d(99), d(100), now, decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, errClosed)

	err = p.ApplyFinalExit(d(102), d(1), now, candle.ExitTimeout)
	assert.ErrorIs(t, err, errClosed)
}

func TestValidate_CatchesInconsistentStates(t *testing.T) {
	p := New("u1", "KRW-BTC", time.Now())
	assert.NoError(t, p.Validate())

	p.Status = StatusActive
	p.EntryPhase = 1
	assert.NoError(t, p.Validate())

	p.ExitPhase = 1
	assert.Error(t, p.Validate(), "ACTIVE with exit_phase!=0 is invalid")
}
