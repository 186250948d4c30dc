// Package position implements the per-(user,market) scaled-position
// state machine from spec §4.4: PENDING -> ENTERING -> ACTIVE -> EXITING
// -> CLOSED, with a 3-leg scaled entry and a 2-phase scaled exit.
//
// A Position is not itself concurrency-safe: spec §4.4 and §5 require
// exactly one mutation coroutine per (user, market), so every method here
// assumes the caller already holds that (user, market)'s exclusive lease
// (internal/scheduler.LeaseManager). Position never takes its own lock.
package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradsys-core/engine/internal/candle"
)

// Status is one of the five position lifecycle states.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusEntering Status = "ENTERING"
	StatusActive   Status = "ACTIVE"
	StatusExiting  Status = "EXITING"
	StatusClosed   Status = "CLOSED"
)

// entryLeg is one of up to three phased entries.
type entryLeg struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

// exitLeg is the partial or final exit.
type exitLeg struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

// Params are the configurable ratios/thresholds from spec §4.4's default
// table, supplied by the caller — Position itself never reads a
// ParameterStore.
type Params struct {
	EntryRatio1          decimal.Decimal // r1, default 0.30
	EntryRatio2          decimal.Decimal // r2, default 0.30
	EntryRatio3          decimal.Decimal // r3, default 0.40
	Entry2DropThreshold  float64         // d2, default 0.015
	Entry3DropThreshold  float64         // d3, default 0.025
	PartialTakeProfit    float64         // p_tp, default 0.025
	PartialExitRatio     decimal.Decimal // r_partial, default 0.50
	TrailingArmThreshold float64         // p_arm, default 0.030
	TrailingStopRate     float64         // default 0.015 (or k*ATR, resolved by caller)
	MaxStopLossRate      float64         // hard clamp, default 0.03
	MinHoldCandles       int             // default 3
}

// DefaultParams returns the spec §4.4 default parameter set; the
// scheduler passes it on every (user, market) tick.
func DefaultParams() Params {
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

// Position is the behavior-bearing state machine. Convert to/from
// ports.PositionSnapshot at the storage boundary.
type Position struct {
	UserID string
	Market string

	Status     Status
	EntryPhase int // 0..3
	ExitPhase  int // 0..2

	Legs         [3]entryLeg
	PartialExit  exitLeg
	FinalExit    exitLeg

	TotalQuantity decimal.Decimal
	TotalInvested decimal.Decimal
	AvgEntryPrice decimal.Decimal

	StopLossPrice     decimal.Decimal
	TargetPrice       decimal.Decimal
	TrailingHighPrice decimal.Decimal
	TrailingStopPrice decimal.Decimal
	TrailingArmed     bool

	RealizedPnL   decimal.Decimal
	TotalFees     decimal.Decimal
	TotalSlippage decimal.Decimal

	StrategyName   string
	SignalStrength float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a fresh PENDING position.
func New(userID, market string, now time.Time) *Position {
	return &Position{
		UserID:        userID,
		Market:        market,
		Status:        StatusPending,
		TotalQuantity: decimal.Zero,
		TotalInvested: decimal.Zero,
		AvgEntryPrice: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

var errClosed = fmt.Errorf("position: already CLOSED, no further writes permitted")

// OpenEntryLeg opens entry leg `legIndex` (1, 2, or 3), filling quantity
// units at price. Guards:
//   - legIndex must be EntryPhase+1 (legs open in order).
//   - CLOSED positions reject all writes (P1).
func (p *Position) OpenEntryLeg(legIndex int, price, quantity decimal.Decimal, now time.Time, targetPrice, stopLossPrice decimal.Decimal) error {
	if p.Status == StatusClosed {
		return errClosed
	}
	if legIndex != p.EntryPhase+1 || legIndex < 1 || legIndex > 3 {
		return fmt.Errorf("position: cannot open leg %d from entry_phase %d", legIndex, p.EntryPhase)
	}
	p.Legs[legIndex-1] = entryLeg{Price: price, Quantity: quantity, Time: now}
	p.TotalQuantity = p.TotalQuantity.Add(quantity)
	p.TotalInvested = p.TotalInvested.Add(price.Mul(quantity))
	p.AvgEntryPrice = p.TotalInvested.Div(p.TotalQuantity)
	p.EntryPhase = legIndex

	if legIndex == 1 {
		p.TargetPrice = targetPrice
		p.StopLossPrice = stopLossPrice
		p.TrailingHighPrice = price
	} else {
		// Re-derive the stop from the new average, never loosening it
		// against the holder (spec §3 Position invariants).
		if !stopLossPrice.IsZero() && p.tighterStop(stopLossPrice) {
			p.StopLossPrice = stopLossPrice
		}
	}

	// Any leg fill moves the position to ACTIVE (spec §4.4: "any entry
	// leg fills ∧ no more legs queued → ACTIVE"). At the instant a leg
	// fills, the next leg is never itself queued — legs 2/3 only become
	// due later, on a further price drop (see NextEntryTrigger) — so
	// "no more legs queued" holds immediately after every fill, not just
	// leg 3's. StatusEntering is kept for loading positions persisted by
	// older snapshots; OpenEntryLeg no longer writes it.
	p.Status = StatusActive
	p.UpdatedAt = now
	return nil
}

// tighterStop reports whether candidate is strictly better (closer to
// current price / less loss) for a long position than the existing stop.
func (p *Position) tighterStop(candidate decimal.Decimal) bool {
	if p.StopLossPrice.IsZero() {
		return true
	}
	return candidate.GreaterThan(p.StopLossPrice)
}

// NextEntryTrigger reports which leg (2 or 3) should open given the
// current price has dropped enough versus the leg-1 price, or ok=false
// if no further leg is due. Only meaningful while EntryPhase is 1 or 2.
func (p *Position) NextEntryTrigger(currentPrice float64, params Params) (legIndex int, ok bool) {
	if p.EntryPhase == 0 || p.EntryPhase == 3 {
		return 0, false
	}
	leg1Price, _ := p.Legs[0].Price.Float64()
	if leg1Price == 0 {
		return 0, false
	}
	drop := (leg1Price - currentPrice) / leg1Price
	switch p.EntryPhase {
	case 1:
		if drop >= params.Entry2DropThreshold {
			return 2, true
		}
	case 2:
		if drop >= params.Entry3DropThreshold {
			return 3, true
		}
	}
	return 0, false
}

// RemainingQuantity is TotalQuantity minus whatever has already been sold.
func (p *Position) RemainingQuantity() decimal.Decimal {
	return p.TotalQuantity.Sub(p.PartialExit.Quantity).Sub(p.FinalExit.Quantity)
}

// UnrealizedPnLRate returns the fractional (not percentage) unrealized
// profit at currentPrice versus the average entry price.
func (p *Position) UnrealizedPnLRate(currentPrice float64) float64 {
	avg, _ := p.AvgEntryPrice.Float64()
	if avg == 0 {
		return 0
	}
	return (currentPrice - avg) / avg
}

// ReadyForPartialTakeProfit reports whether the ACTIVE position has
// reached the partial-tp threshold.
func (p *Position) ReadyForPartialTakeProfit(currentPrice float64, params Params) bool {
	if p.Status != StatusActive || p.ExitPhase != 0 {
		return false
	}
	return p.UnrealizedPnLRate(currentPrice) >= params.PartialTakeProfit
}

// ApplyPartialExit sells r_partial*TotalQuantity, moving the position to
// EXITING with ExitPhase=1.
func (p *Position) ApplyPartialExit(price, quantity, fee decimal.Decimal, now time.Time) error {
	if p.Status == StatusClosed {
		return errClosed
	}
	if p.Status != StatusActive || p.ExitPhase != 0 {
		return fmt.Errorf("position: partial exit requires ACTIVE/exit_phase=0, got %s/%d", p.Status, p.ExitPhase)
	}
	proceeds := price.Mul(quantity).Sub(fee)
	cost := p.AvgEntryPrice.Mul(quantity)
	p.RealizedPnL = p.RealizedPnL.Add(proceeds.Sub(cost))
	p.TotalFees = p.TotalFees.Add(fee)
	p.PartialExit = exitLeg{Price: price, Quantity: quantity, Time: now}
	p.ExitPhase = 1
	p.Status = StatusExiting
	p.UpdatedAt = now
	return nil
}

// ArmTrailingStop updates the trailing-high/trailing-stop watermark once
// the trailing-arm threshold is reached, and keeps advancing it while
// armed. trailing_high_price is monotonically non-decreasing (P3).
func (p *Position) ArmTrailingStop(currentPrice float64, params Params) {
	if p.Status != StatusActive && p.Status != StatusExiting {
		return
	}
	if !p.TrailingArmed {
		if p.UnrealizedPnLRate(currentPrice) < params.TrailingArmThreshold {
			return
		}
		p.TrailingArmed = true
	}
	cur := decimal.NewFromFloat(currentPrice)
	if cur.GreaterThan(p.TrailingHighPrice) {
		p.TrailingHighPrice = cur
	}
	trailStop := p.TrailingHighPrice.Mul(decimal.NewFromFloat(1 - params.TrailingStopRate))
	p.TrailingStopPrice = trailStop
}

// HoldCandles counts the whole candle units elapsed from leg 1's fill
// time to now, used to gate the minimum hold before a stop-loss can fire.
func (p *Position) HoldCandles(now time.Time, granularityMins int) int {
	if p.Legs[0].Time.IsZero() {
		return 0
	}
	elapsed := now.Sub(p.Legs[0].Time)
	if granularityMins <= 0 {
		return 0
	}
	return int(elapsed.Minutes()) / granularityMins
}

// ExitCheck reports whether a full close should fire at currentPrice, and
// why. Only evaluated for ACTIVE/EXITING positions.
func (p *Position) ExitCheck(currentPrice float64, now time.Time, granularityMins int, params Params, sellVote bool) (fire bool, reason candle.ExitReason) {
	if p.Status != StatusActive && p.Status != StatusExiting {
		return false, ""
	}
	if sellVote {
		return true, candle.ExitSignalInvalid
	}
	holdOK := p.HoldCandles(now, granularityMins) >= params.MinHoldCandles
	if holdOK && !p.StopLossPrice.IsZero() {
		stop, _ := p.StopLossPrice.Float64()
		loss := (currentPrice - stop)
		_ = loss
		if currentPrice <= stop {
			return true, candle.ExitStopLossFixed
		}
	}
	if p.TrailingArmed && !p.TrailingStopPrice.IsZero() {
		stop, _ := p.TrailingStopPrice.Float64()
		if currentPrice <= stop {
			return true, candle.ExitTrailingStop
		}
	}
	return false, ""
}

// ApplyFinalExit sells the remaining quantity, finalizing RealizedPnL and
// moving the position to CLOSED. Once CLOSED, no further writes are
// permitted (P1).
func (p *Position) ApplyFinalExit(price, fee decimal.Decimal, now time.Time, reason candle.ExitReason) error {
	if p.Status == StatusClosed {
		return errClosed
	}
	remaining := p.RemainingQuantity()
	proceeds := price.Mul(remaining).Sub(fee)
	cost := p.AvgEntryPrice.Mul(remaining)
	p.RealizedPnL = p.RealizedPnL.Add(proceeds.Sub(cost))
	p.TotalFees = p.TotalFees.Add(fee)
	p.FinalExit = exitLeg{Price: price, Quantity: remaining, Time: now}
	_ = reason
	p.Status = StatusClosed
	p.UpdatedAt = now
	return nil
}

// Validate checks the §3 Position invariants hold for the current state.
// Used by tests and by the Execution Service as a defensive assertion
// before persisting (a violation here is a KindInvariant error, §7).
func (p *Position) Validate() error {
	switch p.Status {
	case StatusPending:
		if p.EntryPhase != 0 || !p.TotalQuantity.IsZero() {
			return fmt.Errorf("position: PENDING requires entry_phase=0 and total_quantity=0")
		}
	case StatusEntering:
		if p.EntryPhase < 1 || p.EntryPhase > 3 || !p.TotalQuantity.IsPositive() {
			return fmt.Errorf("position: ENTERING requires 1<=entry_phase<=3 and total_quantity>0")
		}
	case StatusActive:
		if p.EntryPhase < 1 || p.EntryPhase > 3 || p.ExitPhase != 0 {
			return fmt.Errorf("position: ACTIVE requires entry_phase in 1..3 and exit_phase=0")
		}
	case StatusExiting:
		if p.ExitPhase != 1 || !p.RemainingQuantity().IsPositive() {
			return fmt.Errorf("position: EXITING requires exit_phase=1 and remaining qty>0")
		}
	case StatusClosed:
		if p.RemainingQuantity().Sign() != 0 {
			return fmt.Errorf("position: CLOSED requires remaining qty=0")
		}
	}
	return nil
}
