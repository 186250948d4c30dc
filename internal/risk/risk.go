// Package risk implements the Risk Manager (spec §4.6): a pre-trade gate
// that every BUY decision must clear before the Execution Service submits
// an order, plus the position-sizing function that turns an approved BUY
// into a funds amount.
package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/ports"
)

// Config is the risk gate's tunable thresholds. cmd/server builds one
// Config from the loaded configuration and shares it across all users.
type Config struct {
	MaxConcurrentPositions int
	DailyLossLimitKRW      decimal.Decimal
	MinSignalStrength      float64 // default 50
	MinOrderAmountKRW      decimal.Decimal
	CooldownAfterLoss      time.Duration
	MaxSlippageRate        float64 // default 0.003
}

// DefaultConfig mirrors the spec §4.6 default table.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPositions: 5,
		DailyLossLimitKRW:      decimal.NewFromInt(100000),
		MinSignalStrength:      50,
		MinOrderAmountKRW:      decimal.NewFromInt(5000),
		CooldownAfterLoss:      15 * time.Minute,
		MaxSlippageRate:        0.003,
	}
}

// Decision is the pre-trade gate's verdict. Reject always carries a
// human-readable Reason; Allow never does.
type Decision struct {
	Allow  bool
	Reason string
}

func reject(reason string) Decision { return Decision{Allow: false, Reason: reason} }

// Manager evaluates a BUY candidate against every pre-trade check before
// the Execution Service is allowed to submit an order.
type Manager struct {
	cfg     Config
	journal ports.TradeJournal
	clock   clock.Clock
}

// New builds a Manager over cfg.
func New(cfg Config, journal ports.TradeJournal, clk clock.Clock) *Manager {
	return &Manager{cfg: cfg, journal: journal, clock: clk}
}

// Gate runs every pre-trade check from spec §4.6, in the order listed
// there: signal strength floor, concurrent-position cap, daily loss
// limit, min order amount, balance check, and post-loss cooldown.
func (m *Manager) Gate(ctx context.Context, userID, market string, signalStrength float64, openPositionCount int, candidateOrderAmount decimal.Decimal, krwBalance decimal.Decimal, dailyRealizedPnL decimal.Decimal) Decision {
	if signalStrength < m.cfg.MinSignalStrength {
		return reject("signal strength below floor")
	}
	if openPositionCount >= m.cfg.MaxConcurrentPositions {
		return reject("max concurrent positions reached")
	}
	if dailyRealizedPnL.IsNegative() && dailyRealizedPnL.Abs().GreaterThanOrEqual(m.cfg.DailyLossLimitKRW) {
		return reject("daily loss limit reached")
	}
	if candidateOrderAmount.LessThan(m.cfg.MinOrderAmountKRW) {
		return reject("order amount below exchange minimum")
	}
	if candidateOrderAmount.GreaterThan(krwBalance) {
		return reject("insufficient balance")
	}
	if cooling, err := m.inCooldown(ctx, userID, market); err == nil && cooling {
		return reject("cooling down after a recent loss")
	}
	return Decision{Allow: true}
}

// inCooldown reports whether the most recent trade for (userID, market)
// was a loss within CooldownAfterLoss of now.
func (m *Manager) inCooldown(ctx context.Context, userID, market string) (bool, error) {
	rec, ok, err := m.journal.LastTrade(ctx, userID, market)
	if err != nil {
		return false, errors.Wrap(errors.KindPersistence, "risk: reading last trade", err)
	}
	if !ok || rec.Side != candle.TradeSell {
		return false, nil
	}
	if rec.Price.IsZero() {
		return false, nil
	}
	wasLoss := rec.Price.LessThan(rec.TargetPrice) && !rec.TargetPrice.IsZero()
	if !wasLoss {
		return false, nil
	}
	return m.clock.Now().Sub(rec.OccurredAt) < m.cfg.CooldownAfterLoss, nil
}

// CheckSlippage rejects a fill whose executed price has drifted from the
// quoted/intended price by more than MaxSlippageRate.
func (m *Manager) CheckSlippage(intended, executed decimal.Decimal) error {
	if intended.IsZero() {
		return nil
	}
	drift := executed.Sub(intended).Abs().Div(intended)
	rate, _ := drift.Float64()
	if rate > m.cfg.MaxSlippageRate {
		return errors.New(errors.KindTransient, "execution slippage exceeded maximum tolerated rate")
	}
	return nil
}

// PositionSize computes the KRW funds amount for a new entry leg: the
// user's configured investment ratio of their available KRW balance,
// scaled by the leg's configured ratio (r1/r2/r3). An amount below the
// exchange's minimum order amount yields zero.
func PositionSize(krwBalance decimal.Decimal, investmentRatio float64, legRatio decimal.Decimal, minOrderAmount decimal.Decimal) decimal.Decimal {
	amount := krwBalance.Mul(decimal.NewFromFloat(investmentRatio)).Mul(legRatio)
	if amount.LessThan(minOrderAmount) {
		return decimal.Zero
	}
	return amount
}
