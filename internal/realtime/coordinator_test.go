package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/execution"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/position"
	"github.com/tradsys-core/engine/internal/risk"
	"github.com/tradsys-core/engine/internal/strategy"
	"github.com/tradsys-core/engine/internal/voting"
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

type fakeMarketData struct{}

func (fakeMarketData) Candles(ctx context.Context, market string, granularityMins, count int) ([]candle.Candle, error) {
	out := make([]candle.Candle, 40)
	for i := range out {
		out[i] = candle.Candle{Market: market, Close: 100, Open: 100, High: 101, Low: 99, Volume: 10}
	}
	return out, nil
}
func (fakeMarketData) Ticker(ctx context.Context, market string) (candle.Ticker, error) { return candle.Ticker{}, nil }
func (fakeMarketData) Markets(ctx context.Context) ([]ports.MarketInfo, error)           { return nil, nil }

type fakeGateway struct{}

func (fakeGateway) SubmitOrder(ctx context.Context, userID string, req ports.OrderRequest) (candle.Order, error) {
	return candle.Order{UUID: "o1", State: candle.OrderDone, ExecutedVolume: decimal.NewFromInt(1), ExecutedFunds: req.Funds, PaidFee: decimal.NewFromFloat(0.1)}, nil
}
func (fakeGateway) GetOrder(ctx context.Context, userID, uuid string) (candle.Order, error) {
	return candle.Order{UUID: uuid, State: candle.OrderDone}, nil
}
func (fakeGateway) CancelOrder(ctx context.Context, userID, uuid string) (candle.Order, error) {
	return candle.Order{UUID: uuid, State: candle.OrderCancel}, nil
}
func (fakeGateway) Accounts(ctx context.Context, userID string) ([]candle.Account, error) { return nil, nil }

type fakeJournal struct{}

func (fakeJournal) Append(ctx context.Context, rec candle.TradeRecord) error { return nil }
func (fakeJournal) LastTrade(ctx context.Context, userID, market string) (candle.TradeRecord, bool, error) {
	return candle.TradeRecord{}, false, nil
}

type memStore struct {
	snapshots map[string]ports.PositionSnapshot
}

func newMemStore() *memStore { return &memStore{snapshots: make(map[string]ports.PositionSnapshot)} }

func (m *memStore) Get(ctx context.Context, userID, market string) (ports.PositionSnapshot, bool, error) {
	s, ok := m.snapshots[userID+market]
	return s, ok, nil
}
func (m *memStore) Save(ctx context.Context, pos ports.PositionSnapshot) error {
	m.snapshots[pos.UserID+pos.Market] = pos
	return nil
}
func (m *memStore) HasPendingOrder(ctx context.Context, userID, market string, entryPhase int) (bool, error) {
	return false, nil
}
func (m *memStore) CountOpen(ctx context.Context, userID string) (int, error) { return 0, nil }
func (m *memStore) SumRealizedPnLSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func TestTick_BuyOpensFirstEntryLeg(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	journal := fakeJournal{}
	store := newMemStore()
	exec := execution.New(fakeGateway{}, journal, store, clk, execution.DefaultCosts(), zap.NewNop())
	riskMgr := risk.New(risk.DefaultConfig(), journal, clk)

	coord := &Coordinator{
		MarketData: fakeMarketData{},
		Positions:  store,
		Journal:    journal,
		Execution:  exec,
		Risk:       riskMgr,
		Clock:      clk,
		Log:        zap.NewNop(),
	}

	err := coord.Tick(context.Background(), TickInput{
		UserID:              "u1",
		Market:              "KRW-BTC",
		Strategies:          []strategy.Strategy{fixedStrategy{name: "s1", signal: strategy.Buy}},
		VotingMode:          voting.ModeDefault,
		CandleWindow:        40,
		GranularityMins:     1,
		PositionParams:      position.Params{EntryRatio1: decimal.NewFromFloat(0.3), EntryRatio2: decimal.NewFromFloat(0.3), EntryRatio3: decimal.NewFromFloat(0.4), MaxStopLossRate: 0.03},
		SignalStrengthFloor: 50,
		KRWBalance:          decimal.NewFromInt(1000000),
		InvestmentRatio:     0.5,
		MinOrderAmountKRW:   decimal.NewFromInt(5000),
	})

	assert.NoError(t, err)
	snap, ok, err := store.Get(context.Background(), "u1", "KRW-BTC")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, snap.EntryPhase)
}

func TestTick_HoldWithNoPositionIsANoop(t *testing.T) {
	clk := clock.NewFrozen(time.Now())
	journal := fakeJournal{}
	store := newMemStore()
	exec := execution.New(fakeGateway{}, journal, store, clk, execution.DefaultCosts(), zap.NewNop())
	riskMgr := risk.New(risk.DefaultConfig(), journal, clk)

	coord := &Coordinator{
		MarketData: fakeMarketData{},
		Positions:  store,
		Journal:    journal,
		Execution:  exec,
		Risk:       riskMgr,
		Clock:      clk,
		Log:        zap.NewNop(),
	}

	err := coord.Tick(context.Background(), TickInput{
		UserID:          "u1",
		Market:          "KRW-BTC",
		Strategies:      []strategy.Strategy{fixedStrategy{name: "s1", signal: strategy.Hold}},
		VotingMode:      voting.ModeDefault,
		CandleWindow:    40,
		GranularityMins: 1,
		PositionParams:  position.Params{MaxStopLossRate: 0.03},
	})

	assert.NoError(t, err)
	_, ok, _ := store.Get(context.Background(), "u1", "KRW-BTC")
	assert.False(t, ok)
}
