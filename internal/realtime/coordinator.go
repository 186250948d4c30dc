// Package realtime coordinates one (user, market) tick end to end: fetch
// candles, read the Position, run the Voting Layer, apply the Risk
// Manager, and drive the Execution Service. This is the per-tick body the
// Trading Scheduler (spec §4.7 steps 2a-2e) invokes under the
// (user,market) exclusive lease; it is not itself concurrency-safe.
package realtime

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/execution"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/position"
	"github.com/tradsys-core/engine/internal/risk"
	"github.com/tradsys-core/engine/internal/strategy"
	"github.com/tradsys-core/engine/internal/voting"
)

// Coordinator wires the per-tick pipeline for one (user, market).
type Coordinator struct {
	MarketData ports.MarketDataSource
	Positions  ports.PositionStore
	Journal    ports.TradeJournal
	Execution  *execution.Service
	Risk       *risk.Manager
	Clock      clock.Clock
	Log        *zap.Logger
}

// TickInput is everything a single tick needs beyond what's already
// wired into the Coordinator.
type TickInput struct {
	UserID              string
	Market              string
	Strategies          []strategy.Strategy
	VotingMode          voting.Mode
	ScaledStrategyName  string
	CandleWindow        int
	GranularityMins     int
	PositionParams      position.Params
	SignalStrengthFloor float64
	OpenPositionCount   int
	KRWBalance          decimal.Decimal
	DailyRealizedPnL    decimal.Decimal
	InvestmentRatio     float64
	MinOrderAmountKRW   decimal.Decimal
}

// Tick runs one full evaluation: fetch → read position → vote → risk
// gate → execute. It returns early (no error) on conditions the spec
// treats as a normal no-op tick: too few candles, HOLD decision, or a
// risk-gate rejection.
func (c *Coordinator) Tick(ctx context.Context, in TickInput) error {
	candles, err := c.MarketData.Candles(ctx, in.Market, in.GranularityMins, in.CandleWindow)
	if err != nil {
		return errors.Wrap(errors.KindTransient, "realtime: fetching candles", err)
	}
	if len(candles) < 30 {
		return nil
	}

	snapshot, exists, err := c.Positions.Get(ctx, in.UserID, in.Market)
	if err != nil {
		return errors.Wrap(errors.KindPersistence, "realtime: reading position", err)
	}
	pos := fromSnapshot(in.UserID, in.Market, exists, snapshot, c.Clock)

	tctx := strategy.Context{UserID: in.UserID, Position: toStrategyPosition(pos)}
	decision, err := voting.Decide(ctx, in.VotingMode, in.Strategies, in.ScaledStrategyName, in.Market, candles, tctx)
	if err != nil {
		return errors.Wrap(errors.KindInvariant, "realtime: voting failed", err)
	}

	current := candles[0].Close

	switch decision.Signal {
	case strategy.Buy:
		return c.handleBuy(ctx, pos, in, decision, current)
	case strategy.Sell:
		return c.handleSell(ctx, pos, in, decision, candles[0], current)
	default:
		// HOLD: still evaluate partial-tp/trailing/stop-loss against an
		// ACTIVE/EXITING position even though no strategy voted to act.
		return c.handlePassiveExitChecks(ctx, pos, in, candles[0], current)
	}
}

func (c *Coordinator) handleBuy(ctx context.Context, pos *position.Position, in TickInput, decision voting.Decision, currentPrice float64) error {
	if pos.Status == position.StatusExiting {
		// Open Question: BUY while EXITING is ignored, not advanced.
		return nil
	}
	legIndex := pos.EntryPhase + 1
	if legIndex > 3 {
		return nil
	}

	var legRatio decimal.Decimal
	switch legIndex {
	case 1:
		legRatio = in.PositionParams.EntryRatio1
	case 2:
		legRatio = in.PositionParams.EntryRatio2
	case 3:
		legRatio = in.PositionParams.EntryRatio3
	}
	funds := risk.PositionSize(in.KRWBalance, in.InvestmentRatio, legRatio, in.MinOrderAmountKRW)
	if funds.IsZero() {
		return nil
	}

	gate := c.Risk.Gate(ctx, in.UserID, in.Market, decision.SignalStrength, in.OpenPositionCount, funds, in.KRWBalance, in.DailyRealizedPnL)
	if !gate.Allow {
		c.Log.Info("buy rejected by risk gate", zap.String("market", in.Market), zap.String("reason", gate.Reason))
		return nil
	}

	stopLoss := decimal.NewFromFloat(currentPrice * (1 - in.PositionParams.MaxStopLossRate))
	err := c.Execution.SubmitEntry(ctx, pos, execution.EntryRequest{
		UserID:         in.UserID,
		Market:         in.Market,
		LegIndex:       legIndex,
		FundsKRW:       funds,
		TargetPrice:    decision.Hints.TargetPrice,
		StopLossPrice:  stopLoss,
		StrategyName:   pickStrategyName(decision, in),
		SignalStrength: decision.SignalStrength,
	})
	if err != nil {
		return err
	}
	return c.save(ctx, pos)
}

// advanceScaledEntry opens leg 2 or 3 once price has dropped past the
// configured threshold versus the leg-1 fill (spec §4.4's ENTERING-style
// averaging, now evaluated while ACTIVE since any leg fill promotes the
// position to ACTIVE). Mirrors handleBuy's funds/gate/SubmitEntry
// sequence; there is no voted Decision to draw SignalStrength or
// StrategyName from here, so the position's own recorded values from
// leg 1 carry forward.
func (c *Coordinator) advanceScaledEntry(ctx context.Context, pos *position.Position, in TickInput, currentPrice float64) (fired bool, err error) {
	legIndex, ok := pos.NextEntryTrigger(currentPrice, in.PositionParams)
	if !ok {
		return false, nil
	}

	var legRatio decimal.Decimal
	switch legIndex {
	case 2:
		legRatio = in.PositionParams.EntryRatio2
	case 3:
		legRatio = in.PositionParams.EntryRatio3
	default:
		return false, nil
	}
	funds := risk.PositionSize(in.KRWBalance, in.InvestmentRatio, legRatio, in.MinOrderAmountKRW)
	if funds.IsZero() {
		return false, nil
	}

	gate := c.Risk.Gate(ctx, in.UserID, in.Market, pos.SignalStrength, in.OpenPositionCount, funds, in.KRWBalance, in.DailyRealizedPnL)
	if !gate.Allow {
		c.Log.Info("scaled-entry leg rejected by risk gate", zap.String("market", in.Market), zap.Int("leg_index", legIndex), zap.String("reason", gate.Reason))
		return false, nil
	}

	stopLoss := decimal.NewFromFloat(currentPrice * (1 - in.PositionParams.MaxStopLossRate))
	err = c.Execution.SubmitEntry(ctx, pos, execution.EntryRequest{
		UserID:         in.UserID,
		Market:         in.Market,
		LegIndex:       legIndex,
		FundsKRW:       funds,
		TargetPrice:    pos.TargetPrice,
		StopLossPrice:  stopLoss,
		StrategyName:   pos.StrategyName,
		SignalStrength: pos.SignalStrength,
	})
	if err != nil {
		return false, err
	}
	if err := c.save(ctx, pos); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) handleSell(ctx context.Context, pos *position.Position, in TickInput, decision voting.Decision, current candle.Candle, currentPrice float64) error {
	if pos.Status != position.StatusActive && pos.Status != position.StatusExiting {
		return nil
	}
	reason := decision.Hints.ExitReason
	if reason == "" {
		reason = candle.ExitSignalInvalid
	}
	err := c.Execution.SubmitExit(ctx, pos, execution.ExitRequest{
		UserID:       in.UserID,
		Market:       in.Market,
		Quantity:     pos.RemainingQuantity(),
		ExitReason:   reason,
		IsFinal:      true,
		StrategyName: pickStrategyName(decision, in),
	})
	if err != nil {
		return err
	}
	return c.save(ctx, pos)
}

// handlePassiveExitChecks runs the scaled-entry leg advancement, the
// partial-take-profit, trailing-stop, and fixed-stop-loss checks that
// must fire on a HOLD tick just as readily as on a SELL vote (spec
// §4.4): a strategy voting HOLD must not suppress a stop-loss. Leg
// advancement is checked here, not in handleBuy, because DEFAULT voting
// never returns BUY once a position is open (and the ScaledTrading
// delegate only votes BUY with no open position) — the price-drop
// trigger is what opens legs 2 and 3.
func (c *Coordinator) handlePassiveExitChecks(ctx context.Context, pos *position.Position, in TickInput, current candle.Candle, currentPrice float64) error {
	if pos.Status != position.StatusActive && pos.Status != position.StatusExiting {
		return nil
	}

	if pos.Status == position.StatusActive && pos.ExitPhase == 0 {
		fired, err := c.advanceScaledEntry(ctx, pos, in, currentPrice)
		if err != nil {
			return err
		}
		if fired {
			return nil
		}
	}

	pos.ArmTrailingStop(currentPrice, in.PositionParams)

	if pos.ReadyForPartialTakeProfit(currentPrice, in.PositionParams) {
		avgEntry, _ := pos.AvgEntryPrice.Float64()
		if c.Execution.ClearsProfitBar(avgEntry, currentPrice) {
			qty := pos.TotalQuantity.Mul(in.PositionParams.PartialExitRatio)
			err := c.Execution.SubmitExit(ctx, pos, execution.ExitRequest{
				UserID:     in.UserID,
				Market:     in.Market,
				Quantity:   qty,
				ExitReason: candle.ExitTakeProfit,
				IsFinal:    false,
			})
			if err != nil {
				return err
			}
			return c.save(ctx, pos)
		}
		// Gross move reached the partial-tp threshold but doesn't clear
		// costs net of fees/slippage yet — fall through to the stop-loss
		// and trailing-stop checks below instead of exiting here.
	}

	if fire, reason := pos.ExitCheck(currentPrice, c.Clock.Now(), in.GranularityMins, in.PositionParams, false); fire {
		err := c.Execution.SubmitExit(ctx, pos, execution.ExitRequest{
			UserID:     in.UserID,
			Market:     in.Market,
			Quantity:   pos.RemainingQuantity(),
			ExitReason: reason,
			IsFinal:    true,
		})
		if err != nil {
			return err
		}
	}
	return c.save(ctx, pos)
}

func (c *Coordinator) save(ctx context.Context, pos *position.Position) error {
	if err := pos.Validate(); err != nil {
		return errors.Wrap(errors.KindInvariant, "realtime: position failed validation before save", err)
	}
	return c.Positions.Save(ctx, toSnapshot(pos))
}

func pickStrategyName(decision voting.Decision, in TickInput) string {
	if len(decision.Agreeing) > 0 {
		return decision.Agreeing[0]
	}
	return in.ScaledStrategyName
}

func fromSnapshot(userID, market string, exists bool, snap ports.PositionSnapshot, clk clock.Clock) *position.Position {
	if !exists {
		return position.New(userID, market, clk.Now())
	}
	p := position.New(userID, market, snap.CreatedAt)
	p.Status = position.Status(snap.Status)
	p.EntryPhase = snap.EntryPhase
	p.ExitPhase = snap.ExitPhase
	p.TotalQuantity = snap.TotalQuantity
	p.TotalInvested = snap.TotalInvested
	p.AvgEntryPrice = snap.AvgEntryPrice
	p.StopLossPrice = snap.StopLossPrice
	p.TargetPrice = snap.TargetPrice
	p.TrailingHighPrice = snap.TrailingHighPrice
	p.TrailingStopPrice = snap.TrailingStopPrice
	p.TrailingArmed = snap.TrailingArmed
	p.RealizedPnL = snap.RealizedPnL
	p.TotalFees = snap.TotalFees
	p.TotalSlippage = snap.TotalSlippage
	p.StrategyName = snap.StrategyName
	p.SignalStrength = snap.SignalStrength
	p.UpdatedAt = snap.UpdatedAt
	return p
}

func toSnapshot(p *position.Position) ports.PositionSnapshot {
	return ports.PositionSnapshot{
		UserID:            p.UserID,
		Market:            p.Market,
		Status:            string(p.Status),
		EntryPhase:        p.EntryPhase,
		ExitPhase:         p.ExitPhase,
		TotalQuantity:     p.TotalQuantity,
		TotalInvested:     p.TotalInvested,
		AvgEntryPrice:     p.AvgEntryPrice,
		StopLossPrice:     p.StopLossPrice,
		TargetPrice:       p.TargetPrice,
		TrailingHighPrice: p.TrailingHighPrice,
		TrailingStopPrice: p.TrailingStopPrice,
		TrailingArmed:     p.TrailingArmed,
		RealizedPnL:       p.RealizedPnL,
		TotalFees:         p.TotalFees,
		TotalSlippage:     p.TotalSlippage,
		StrategyName:      p.StrategyName,
		SignalStrength:    p.SignalStrength,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func toStrategyPosition(p *position.Position) strategy.Position {
	open := p.Status == position.StatusActive || p.Status == position.StatusEntering || p.Status == position.StatusExiting
	var openedAt int64
	if open {
		openedAt = p.UpdatedAt.Unix()
	}
	return strategy.Position{
		Open:              open,
		AvgEntryPrice:     p.AvgEntryPrice,
		Quantity:          p.RemainingQuantity(),
		HighestSinceEntry: p.TrailingHighPrice,
		TargetPrice:       p.TargetPrice,
		StopLossPrice:     p.StopLossPrice,
		EntryPhase:        p.EntryPhase,
		OpenedAt:          openedAt,
	}
}
