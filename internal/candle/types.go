// Package candle holds the immutable market data and trading data model
// from spec §3: Candle, Ticker, Account, Order, TradeRecord, Position
// (Position's state machine lives in internal/position; this package only
// defines its plain data shape so every other package can share it
// without importing the state machine).
package candle

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable OHLCV aggregate for a time bucket.
//
// Invariant: Low <= min(Open, Close) <= max(Open, Close) <= High; Volume >= 0.
type Candle struct {
	Market          string
	TimestampUTC    time.Time
	TimestampKST    time.Time
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          float64
	TradeValueKRW   float64
	GranularityMins int
}

// Valid reports whether the candle satisfies the OHLC invariant.
func (c Candle) Valid() bool {
	if c.Volume < 0 {
		return false
	}
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	return c.Low <= lo && hi <= c.High
}

// Ticker is ephemeral current-price/24h-stats data.
type Ticker struct {
	Market           string
	TradePrice       float64
	Change24hRate    float64
	AccTradeValue24h float64
}

// Account is a balance snapshot for one currency.
//
// Invariant: Balance >= 0; Locked >= 0.
type Account struct {
	Currency        string
	Balance         decimal.Decimal
	Locked          decimal.Decimal
	AverageBuyPrice decimal.Decimal
}

// OrderSide is BID (buy) or ASK (sell).
type OrderSide string

const (
	SideBid OrderSide = "BID"
	SideAsk OrderSide = "ASK"
)

// OrderKind is MARKET or LIMIT.
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
)

// OrderState is the exchange-reported lifecycle state of an Order.
type OrderState string

const (
	OrderWait   OrderState = "WAIT"
	OrderWatch  OrderState = "WATCH"
	OrderDone   OrderState = "DONE"
	OrderCancel OrderState = "CANCEL"
)

// Terminal reports whether the state is DONE or CANCEL.
func (s OrderState) Terminal() bool {
	return s == OrderDone || s == OrderCancel
}

// Order is created by the Execution Service, mutated only by OrderGateway
// confirmation, and never deleted.
type Order struct {
	UUID            string
	Market          string
	Side            OrderSide
	Kind            OrderKind
	Price           decimal.Decimal // LIMIT only
	Funds           decimal.Decimal // MARKET BID
	Volume          decimal.Decimal // MARKET ASK
	ExecutedVolume  decimal.Decimal
	ExecutedFunds   decimal.Decimal
	PaidFee         decimal.Decimal
	State           OrderState
	IdempotencyKey  string
	SubmittedAt     time.Time
}

// ExitReason is the closed-set label attached to every position close.
type ExitReason string

const (
	ExitStopLossFixed ExitReason = "STOP_LOSS_FIXED"
	ExitStopLossATR   ExitReason = "STOP_LOSS_ATR"
	ExitTakeProfit    ExitReason = "TAKE_PROFIT"
	ExitTrailingStop  ExitReason = "TRAILING_STOP"
	ExitSignalInvalid ExitReason = "SIGNAL_INVALID"
	ExitOverheated    ExitReason = "OVERHEATED"
	ExitVolumeDrop    ExitReason = "VOLUME_DROP"
	ExitTimeout       ExitReason = "TIMEOUT"
)

// TradeSide distinguishes a BUY fill from a SELL fill within a TradeRecord.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// TradeRecord is an append-only record of one filled side of a trade.
type TradeRecord struct {
	ID                string
	UserID            string
	Market            string
	Side              TradeSide
	OccurredAt        time.Time
	AmountKRW         decimal.Decimal
	Volume            decimal.Decimal
	Price             decimal.Decimal
	Fee               decimal.Decimal
	OrderUUID         string
	StrategyName      string
	TargetPrice       decimal.Decimal
	HighestSincEntry  decimal.Decimal
	HalfSold          bool
	StopLoss          bool
	ExitReason        ExitReason
}
