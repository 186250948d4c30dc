package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/clock"
)

type fakeJournal struct {
	rec candle.TradeRecord
	ok  bool
}

func (f fakeJournal) Append(ctx context.Context, rec candle.TradeRecord) error { return nil }
func (f fakeJournal) LastTrade(ctx context.Context, userID, market string) (candle.TradeRecord, bool, error) {
	return f.rec, f.ok, nil
}

func TestGate_RejectsBelowSignalStrengthFloor(t *testing.T) {
	m := New(DefaultConfig(), fakeJournal{}, clock.NewFrozen(time.Now()))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 40, 0, decimal.NewFromInt(10000), decimal.NewFromInt(100000), decimal.Zero)
	assert.False(t, d.Allow)
	assert.NotEmpty(t, d.Reason)
}

func TestGate_RejectsMaxConcurrentPositions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentPositions = 2
	m := New(cfg, fakeJournal{}, clock.NewFrozen(time.Now()))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 80, 2, decimal.NewFromInt(10000), decimal.NewFromInt(100000), decimal.Zero)
	assert.False(t, d.Allow)
}

func TestGate_RejectsDailyLossLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLossLimitKRW = decimal.NewFromInt(50000)
	m := New(cfg, fakeJournal{}, clock.NewFrozen(time.Now()))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 80, 0, decimal.NewFromInt(10000), decimal.NewFromInt(100000), decimal.NewFromInt(-60000))
	assert.False(t, d.Allow)
}

func TestGate_RejectsBelowMinOrderAmount(t *testing.T) {
	m := New(DefaultConfig(), fakeJournal{}, clock.NewFrozen(time.Now()))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 80, 0, decimal.NewFromInt(1000), decimal.NewFromInt(100000), decimal.Zero)
	assert.False(t, d.Allow)
}

func TestGate_RejectsInsufficientBalance(t *testing.T) {
	m := New(DefaultConfig(), fakeJournal{}, clock.NewFrozen(time.Now()))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 80, 0, decimal.NewFromInt(20000), decimal.NewFromInt(10000), decimal.Zero)
	assert.False(t, d.Allow)
}

func TestGate_RejectsDuringCooldownAfterLoss(t *testing.T) {
	now := time.Now()
	journal := fakeJournal{
		ok: true,
		rec: candle.TradeRecord{
			Side:        candle.TradeSell,
			OccurredAt:  now.Add(-5 * time.Minute),
			Price:       decimal.NewFromInt(90),
			TargetPrice: decimal.NewFromInt(100),
		},
	}
	m := New(DefaultConfig(), journal, clock.NewFrozen(now))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 80, 0, decimal.NewFromInt(10000), decimal.NewFromInt(100000), decimal.Zero)
	assert.False(t, d.Allow)
}

func TestGate_AllowsWhenAllChecksPass(t *testing.T) {
	m := New(DefaultConfig(), fakeJournal{}, clock.NewFrozen(time.Now()))
	d := m.Gate(context.Background(), "u1", "KRW-BTC", 80, 0, decimal.NewFromInt(10000), decimal.NewFromInt(100000), decimal.Zero)
	assert.True(t, d.Allow)
	assert.Empty(t, d.Reason)
}

func TestCheckSlippage_RejectsExcessiveDrift(t *testing.T) {
	m := New(DefaultConfig(), fakeJournal{}, clock.NewFrozen(time.Now()))
	err := m.CheckSlippage(decimal.NewFromInt(100), decimal.NewFromFloat(100.5))
	assert.Error(t, err)

	err = m.CheckSlippage(decimal.NewFromInt(100), decimal.NewFromFloat(100.1))
	assert.NoError(t, err)
}

func TestPositionSize_FloorsBelowMinimum(t *testing.T) {
	size := PositionSize(decimal.NewFromInt(1000), 0.1, decimal.NewFromFloat(0.3), decimal.NewFromInt(5000))
	assert.True(t, size.IsZero())

	size = PositionSize(decimal.NewFromInt(1000000), 0.5, decimal.NewFromFloat(0.3), decimal.NewFromInt(5000))
	assert.True(t, size.Equal(decimal.NewFromInt(150000)))
}
