// Package ports declares the seven interfaces the core depends on but
// does not implement (spec §1): MarketDataSource, OrderGateway,
// TradeJournal, PositionStore, ParameterStore, UserRegistry, and Clock
// (Clock lives in internal/clock; the other six live here). Concrete
// adapters live in internal/storage and are wired in cmd/server.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradsys-core/engine/internal/candle"
)

// MarketDataSource supplies candle windows and tickers for a market.
type MarketDataSource interface {
	// Candles returns the most recent `count` candles for market at the
	// given granularity, index 0 most recent.
	Candles(ctx context.Context, market string, granularityMins, count int) ([]candle.Candle, error)
	// Ticker returns the current ticker for market.
	Ticker(ctx context.Context, market string) (candle.Ticker, error)
	// Markets lists every tradable KRW-quote market.
	Markets(ctx context.Context) ([]MarketInfo, error)
}

// MarketInfo is the market metadata returned by GET /markets.
type MarketInfo struct {
	Market       string
	KoreanName   string
	EnglishName  string
	Warning      bool // market_warning flag (e.g. CAUTION)
}

// OrderGateway submits and confirms orders against the exchange.
type OrderGateway interface {
	// SubmitOrder places an order and returns it in its initial state.
	SubmitOrder(ctx context.Context, userID string, req OrderRequest) (candle.Order, error)
	// GetOrder polls order status by UUID.
	GetOrder(ctx context.Context, userID, uuid string) (candle.Order, error)
	// CancelOrder cancels a non-terminal order.
	CancelOrder(ctx context.Context, userID, uuid string) (candle.Order, error)
	// Accounts returns the user's balances.
	Accounts(ctx context.Context, userID string) ([]candle.Account, error)
}

// OrderRequest is the translated order the Execution Service hands to
// the gateway.
type OrderRequest struct {
	Market         string
	Side           candle.OrderSide
	Kind           candle.OrderKind
	Price          decimal.Decimal
	Funds          decimal.Decimal
	Volume         decimal.Decimal
	IdempotencyKey string
}

// TradeJournal appends and reads TradeRecords. Append-only: no update or
// delete method exists by design.
type TradeJournal interface {
	Append(ctx context.Context, rec candle.TradeRecord) error
	// LastTrade returns the most recent TradeRecord for (userID, market),
	// or ok=false if none exists. Always scoped per spec §9 Open Question 3
	// (no global findLatestByMarket leak across users).
	LastTrade(ctx context.Context, userID, market string) (rec candle.TradeRecord, ok bool, err error)
}

// PositionStore holds the single active Position per (user, market),
// exclusively owned and mutated under a per-(user,market) lease.
type PositionStore interface {
	// Get returns the Position snapshot, or ok=false if none exists (i.e.
	// implicitly PENDING with no history).
	Get(ctx context.Context, userID, market string) (pos PositionSnapshot, ok bool, err error)
	// Save persists a new Position snapshot. Callers must hold the
	// (user, market) lease (see internal/scheduler.LeaseManager).
	Save(ctx context.Context, pos PositionSnapshot) error
	// HasPendingOrder reports whether a submitted-but-unconfirmed order
	// already exists for this (user, market, entryPhase) — the
	// idempotency check in Execution Service step 1.
	HasPendingOrder(ctx context.Context, userID, market string, entryPhase int) (bool, error)
	// CountOpen counts the user's positions currently in ENTERING,
	// ACTIVE, or EXITING across every market — the open-position figure
	// the Risk Manager gate (spec §4.6) checks against MaxConcurrentPositions.
	CountOpen(ctx context.Context, userID string) (int, error)
	// SumRealizedPnLSince sums RealizedPnL across every position of the
	// user's updated at or after since — the scheduler's approximation of
	// "today's realized PnL" for the Risk Manager's daily-loss gate.
	SumRealizedPnLSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
}

// PositionSnapshot is the serializable form of a Position (see
// internal/position.Position for the behavior-bearing type; this is the
// plain data the store persists/returns).
type PositionSnapshot struct {
	UserID            string
	Market            string
	Status            string
	EntryPhase        int
	ExitPhase         int
	TotalQuantity     decimal.Decimal
	TotalInvested     decimal.Decimal
	AvgEntryPrice     decimal.Decimal
	StopLossPrice     decimal.Decimal
	TargetPrice       decimal.Decimal
	TrailingHighPrice decimal.Decimal
	TrailingStopPrice decimal.Decimal
	TrailingArmed     bool
	RealizedPnL       decimal.Decimal
	TotalFees         decimal.Decimal
	TotalSlippage     decimal.Decimal
	StrategyName      string
	SignalStrength    float64
	EntryLegTimes     [3]time.Time
	PartialExitTime   time.Time
	FinalExitTime     time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParameterValueType is the declared type of a StrategyParameter value.
type ParameterValueType string

const (
	ParamInt    ParameterValueType = "INT"
	ParamDouble ParameterValueType = "DOUBLE"
	ParamBool   ParameterValueType = "BOOL"
	ParamString ParameterValueType = "STRING"
)

// ParameterStore resolves (strategy_name, user_id, key) to a typed value,
// falling back from user-specific to global to hard-coded default.
type ParameterStore interface {
	// Resolve returns the effective value for key, or ok=false if neither
	// a user-specific nor a global override exists (caller falls back to
	// its own hard-coded default).
	Resolve(ctx context.Context, strategyName, userID, key string) (value string, valueType ParameterValueType, ok bool, err error)
	// Set stores a user-specific (userID != "") or global (userID == "")
	// override.
	Set(ctx context.Context, strategyName, userID, key, value string, valueType ParameterValueType) error
	// Reset removes a user-specific override, falling back to global.
	Reset(ctx context.Context, strategyName, userID, key string) error
}

// UserRegistry resolves enabled users, their market selection, and their
// enabled strategy set.
type UserRegistry interface {
	// EnabledUsers lists users with auto_trading_enabled.
	EnabledUsers(ctx context.Context) ([]UserProfile, error)
	// EnabledStrategies returns the user's enabled strategy names. An
	// empty slice means "use the system default bundle".
	EnabledStrategies(ctx context.Context, userID string) ([]string, error)
}

// UserProfile is the subset of user configuration the scheduler needs.
type UserProfile struct {
	UserID            string
	ExplicitMarkets    []string
	ExcludedMarkets    []string
	AutoSelectTopN     int
	StrategyMode       string // "DEFAULT" or "SCALED_TRADING"
	InvestmentRatio    float64
	MinOrderAmountKRW  decimal.Decimal
}
