// Package storage implements gorm-backed adapters for every port this
// engine depends on (spec §1): PositionStore, TradeJournal,
// ParameterStore, UserRegistry, plus SimulationTask persistence for async
// backtest runs. Grounded on the teacher's repository shape: a thin
// struct wrapping *gorm.DB and *zap.Logger, one exported method per
// operation, gorm.ErrRecordNotFound translated to an ok=false return
// rather than propagated as an error.
package storage

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PositionModel is the gorm row for one (user, market)'s current
// Position. A composite unique index on (user_id, market) enforces the
// single-active-position invariant at the storage layer too.
type PositionModel struct {
	gorm.Model
	UserID            string `gorm:"uniqueIndex:idx_user_market"`
	Market            string `gorm:"uniqueIndex:idx_user_market"`
	Status            string
	EntryPhase        int
	ExitPhase         int
	TotalQuantity     decimal.Decimal `gorm:"type:numeric"`
	TotalInvested     decimal.Decimal `gorm:"type:numeric"`
	AvgEntryPrice     decimal.Decimal `gorm:"type:numeric"`
	StopLossPrice     decimal.Decimal `gorm:"type:numeric"`
	TargetPrice       decimal.Decimal `gorm:"type:numeric"`
	TrailingHighPrice decimal.Decimal `gorm:"type:numeric"`
	TrailingStopPrice decimal.Decimal `gorm:"type:numeric"`
	TrailingArmed     bool
	RealizedPnL       decimal.Decimal `gorm:"type:numeric"`
	TotalFees         decimal.Decimal `gorm:"type:numeric"`
	TotalSlippage     decimal.Decimal `gorm:"type:numeric"`
	StrategyName      string
	SignalStrength    float64
	EntryLeg1Time     time.Time
	EntryLeg2Time     time.Time
	EntryLeg3Time     time.Time
	PartialExitTime   time.Time
	FinalExitTime     time.Time
}

func (PositionModel) TableName() string { return "positions" }

// TradeRecordModel is the append-only gorm row for one filled side of a
// trade. No Update/Delete method exists on TradeJournal by design.
type TradeRecordModel struct {
	gorm.Model
	RecordID         string `gorm:"uniqueIndex"`
	UserID           string `gorm:"index"`
	Market           string `gorm:"index"`
	Side             string
	OccurredAt       time.Time `gorm:"index"`
	AmountKRW        decimal.Decimal `gorm:"type:numeric"`
	Volume           decimal.Decimal `gorm:"type:numeric"`
	Price            decimal.Decimal `gorm:"type:numeric"`
	Fee              decimal.Decimal `gorm:"type:numeric"`
	OrderUUID        string
	StrategyName     string
	TargetPrice      decimal.Decimal `gorm:"type:numeric"`
	HighestSincEntry decimal.Decimal `gorm:"type:numeric"`
	HalfSold         bool
	StopLoss         bool
	ExitReason       string
}

func (TradeRecordModel) TableName() string { return "trade_records" }

// StrategyParameterModel is one (strategy_name, user_id, key) override.
// user_id == "" is the global override row.
type StrategyParameterModel struct {
	gorm.Model
	StrategyName string `gorm:"uniqueIndex:idx_strategy_user_key"`
	UserID       string `gorm:"uniqueIndex:idx_strategy_user_key"`
	Key          string `gorm:"uniqueIndex:idx_strategy_user_key"`
	Value        string
	ValueType    string
}

func (StrategyParameterModel) TableName() string { return "strategy_parameters" }

// UserModel is the subset of the user table this engine reads to drive
// the scheduler's working-set resolution.
type UserModel struct {
	gorm.Model
	UserID             string `gorm:"uniqueIndex"`
	AutoTradingEnabled bool
	ExplicitMarkets    string // comma-separated
	ExcludedMarkets    string // comma-separated
	AutoSelectTopN     int
	StrategyMode       string
	InvestmentRatio    float64
	MinOrderAmountKRW  decimal.Decimal `gorm:"type:numeric"`
	EncryptedAPIKey    string
	EncryptedSecret    string
}

func (UserModel) TableName() string { return "users" }

// UserStrategySelectionModel records which strategies a user has
// enabled.
type UserStrategySelectionModel struct {
	gorm.Model
	UserID       string `gorm:"uniqueIndex:idx_user_strategy"`
	StrategyName string `gorm:"uniqueIndex:idx_user_strategy"`
	Enabled      bool
}

func (UserStrategySelectionModel) TableName() string { return "user_strategy_selections" }

// SimulationTaskModel backs the async backtest task status/result surface.
type SimulationTaskModel struct {
	gorm.Model
	TaskID      string `gorm:"uniqueIndex"`
	UserID      string `gorm:"index"`
	Status      string
	RequestJSON string
	ResultJSON  string
	Cancelled   bool
}

func (SimulationTaskModel) TableName() string { return "simulation_tasks" }
