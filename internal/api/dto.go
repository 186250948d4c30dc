package api

import "github.com/tradsys-core/engine/internal/ports"

// LoginRequest authenticates a dashboard/CLI caller.
type LoginRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	Passphrase string `json:"passphrase" binding:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// SetParameterRequest overrides one strategy parameter, globally or for
// one user (spec §4.3).
type SetParameterRequest struct {
	Key       string                    `json:"key" binding:"required"`
	Value     string                    `json:"value" binding:"required"`
	ValueType ports.ParameterValueType  `json:"value_type" binding:"required,oneof=INT DOUBLE BOOL STRING"`
	UserID    string                    `json:"user_id"` // empty = global override
}

// StrategySelectionRequest enables/disables a strategy for a user.
type StrategySelectionRequest struct {
	StrategyName string `json:"strategy_name" binding:"required"`
	Enabled      bool   `json:"enabled"`
}

// BacktestRequest runs one market's historical simulation (spec §4.8).
type BacktestRequest struct {
	Market          string  `json:"market" binding:"required"`
	StrategyName    string  `json:"strategy_name" binding:"required"`
	GranularityMins int     `json:"granularity_mins" binding:"required,min=1"`
	CandleCount     int     `json:"candle_count" binding:"required,min=30,max=10000"`
	InitialBalance  float64 `json:"initial_balance" binding:"required,gt=0"`
}

// MultiMarketBacktestRequest fans BacktestRequest out across markets.
type MultiMarketBacktestRequest struct {
	Markets         []string `json:"markets" binding:"required,min=1,dive,required"`
	StrategyName    string   `json:"strategy_name" binding:"required"`
	GranularityMins int      `json:"granularity_mins" binding:"required,min=1"`
	CandleCount     int      `json:"candle_count" binding:"required,min=30,max=10000"`
	InitialBalance  float64  `json:"initial_balance" binding:"required,gt=0"`
	Concurrency     int      `json:"concurrency" binding:"omitempty,min=1,max=64"`
	Async           bool     `json:"async"`
}

// SaveAPIKeyRequest submits a user's exchange API key/secret for
// encrypted storage (spec §6's API-key management surface).
type SaveAPIKeyRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}
