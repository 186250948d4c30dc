package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/position"
)

type fakeGateway struct {
	fillPrice decimal.Decimal
	fillVol   decimal.Decimal
	fillFunds decimal.Decimal
	fee       decimal.Decimal
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, userID string, req ports.OrderRequest) (candle.Order, error) {
	return candle.Order{
		UUID:           "ord-1",
		Market:         req.Market,
		Side:           req.Side,
		Kind:           req.Kind,
		State:          candle.OrderDone,
		ExecutedVolume: f.fillVol,
		ExecutedFunds:  f.fillFunds,
		PaidFee:        f.fee,
	}, nil
}

func (f *fakeGateway) GetOrder(ctx context.Context, userID, uuid string) (candle.Order, error) {
	return candle.Order{UUID: uuid, State: candle.OrderDone, ExecutedVolume: f.fillVol, ExecutedFunds: f.fillFunds, PaidFee: f.fee}, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, userID, uuid string) (candle.Order, error) {
	return candle.Order{UUID: uuid, State: candle.OrderCancel}, nil
}

func (f *fakeGateway) Accounts(ctx context.Context, userID string) ([]candle.Account, error) {
	return nil, nil
}

type fakeJournal struct {
	recorded []candle.TradeRecord
}

func (f *fakeJournal) Append(ctx context.Context, rec candle.TradeRecord) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

func (f *fakeJournal) LastTrade(ctx context.Context, userID, market string) (candle.TradeRecord, bool, error) {
	return candle.TradeRecord{}, false, nil
}

type fakeStore struct{}

func (fakeStore) Get(ctx context.Context, userID, market string) (ports.PositionSnapshot, bool, error) {
	return ports.PositionSnapshot{}, false, nil
}
func (fakeStore) Save(ctx context.Context, pos ports.PositionSnapshot) error { return nil }
func (fakeStore) HasPendingOrder(ctx context.Context, userID, market string, entryPhase int) (bool, error) {
	return false, nil
}
func (fakeStore) CountOpen(ctx context.Context, userID string) (int, error) { return 0, nil }
func (fakeStore) SumRealizedPnLSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func TestSubmitEntry_OpensFirstLeg(t *testing.T) {
	gw := &fakeGateway{fillVol: decimal.NewFromInt(10), fillFunds: decimal.NewFromInt(1000), fee: decimal.NewFromFloat(0.5)}
	journal := &fakeJournal{}
	svc := New(gw, journal, fakeStore{}, clock.NewFrozen(time.Now()), DefaultCosts(), zap.NewNop())

	pos := position.New("u1", "KRW-BTC", time.Now())
	err := svc.SubmitEntry(context.Background(), pos, EntryRequest{
		UserID:        "u1",
		Market:        "KRW-BTC",
		LegIndex:      1,
		FundsKRW:      decimal.NewFromInt(1000),
		TargetPrice:   decimal.NewFromInt(110),
		StopLossPrice: decimal.NewFromInt(97),
		StrategyName:  "RSI",
	})

	assert.NoError(t, err)
	assert.Equal(t, position.StatusActive, pos.Status)
	assert.Equal(t, 1, pos.EntryPhase)
	assert.Len(t, journal.recorded, 1)
	assert.Equal(t, candle.TradeBuy, journal.recorded[0].Side)
}

func TestSubmitExit_FinalClosesPosition(t *testing.T) {
	gw := &fakeGateway{fillVol: decimal.NewFromInt(1000), fillFunds: decimal.NewFromInt(105000), fee: decimal.NewFromFloat(10)}
	journal := &fakeJournal{}
	svc := New(gw, journal, fakeStore{}, clock.NewFrozen(time.Now()), DefaultCosts(), zap.NewNop())

	pos := position.New("u1", "KRW-BTC", time.Now())
	assert.NoError(t, pos.OpenEntryLeg(1, decimal.NewFromInt(100), decimal.NewFromInt(1000), time.Now(), decimal.Zero, decimal.NewFromInt(97)))
	pos.EntryPhase = 2
	assert.NoError(t, pos.OpenEntryLeg(3, decimal.NewFromInt(100), decimal.Zero, time.Now(), decimal.Zero, decimal.Zero))

	err := svc.SubmitExit(context.Background(), pos, ExitRequest{
		UserID:     "u1",
		Market:     "KRW-BTC",
		Quantity:   decimal.NewFromInt(1000),
		ExitReason: candle.ExitTakeProfit,
		IsFinal:    true,
	})

	assert.NoError(t, err)
	assert.Equal(t, position.StatusClosed, pos.Status)
	assert.Len(t, journal.recorded, 1)
	assert.Equal(t, candle.TradeSell, journal.recorded[0].Side)
	assert.Equal(t, candle.ExitTakeProfit, journal.recorded[0].ExitReason)
}

func TestClearsProfitBar(t *testing.T) {
	svc := New(&fakeGateway{}, &fakeJournal{}, fakeStore{}, clock.NewFrozen(time.Now()), DefaultCosts(), zap.NewNop())
	assert.False(t, svc.ClearsProfitBar(100, 100.5)) // gross 0.5%, net below 0.6% bar after costs
	assert.True(t, svc.ClearsProfitBar(100, 101))    // gross 1%, net 0.8% clears the bar
}
