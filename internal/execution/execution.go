// Package execution implements the Execution Service (spec §4.5): it
// translates a Voting Layer decision plus a Position state into a
// concrete order request, submits it through an OrderGateway guarded by
// a circuit breaker, confirms the fill, and folds the result back into
// the Position and TradeJournal.
package execution

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/errors"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/position"
)

// Costs mirrors spec §4.5's fee/slippage factors used to decide whether a
// partial or final exit actually clears the minimum profit bar once costs
// are deducted.
type Costs struct {
	TotalCostFactor float64 // round-trip fee + assumed slippage, default 0.002
	MinProfitRate   float64 // default 0.006
}

// DefaultCosts mirrors the spec default table.
func DefaultCosts() Costs {
	return Costs{TotalCostFactor: 0.002, MinProfitRate: 0.006}
}

// Service is the Execution Service. One Service is shared across users;
// all per-(user,market) mutation happens on Position values the caller
// already owns exclusively (see internal/scheduler.LeaseManager).
type Service struct {
	gateway ports.OrderGateway
	journal ports.TradeJournal
	store   ports.PositionStore
	clock   clock.Clock
	costs   Costs
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// New builds an Execution Service wrapping gateway calls in a circuit
// breaker that trips after repeated exchange failures, per spec §4.5's
// "the gateway call is guarded; after repeated failures the service stops
// attempting new submissions for a cooldown window" requirement.
func New(gateway ports.OrderGateway, journal ports.TradeJournal, store ports.PositionStore, clk clock.Clock, costs Costs, log *zap.Logger) *Service {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "order-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Service{gateway: gateway, journal: journal, store: store, clock: clk, costs: costs, breaker: cb, log: log}
}

// EntryRequest is what the caller (the realtime coordinator or scheduler
// tick) hands in to open or advance a scaled entry.
type EntryRequest struct {
	UserID         string
	Market         string
	LegIndex       int // 1, 2, or 3
	FundsKRW       decimal.Decimal
	TargetPrice    decimal.Decimal
	StopLossPrice  decimal.Decimal
	StrategyName   string
	SignalStrength float64
}

// SubmitEntry places a BID order for the given leg, blocks on
// confirmation, and applies the fill to pos. The idempotency key is
// derived deterministically from (user, market, leg) per tick so a retried
// tick never double-submits — spec §4.5 step 1's "idempotency check".
func (s *Service) SubmitEntry(ctx context.Context, pos *position.Position, req EntryRequest) error {
	pending, err := s.store.HasPendingOrder(ctx, req.UserID, req.Market, req.LegIndex)
	if err != nil {
		return errors.Wrap(errors.KindPersistence, "execution: checking pending order", err)
	}
	if pending {
		return errors.New(errors.KindConflict, "execution: entry leg already has a pending order")
	}

	idemKey := idempotencyKey(req.UserID, req.Market, req.LegIndex, s.clock.Now())
	orderReq := ports.OrderRequest{
		Market:         req.Market,
		Side:           candle.SideBid,
		Kind:           candle.KindMarket,
		Funds:          req.FundsKRW,
		IdempotencyKey: idemKey,
	}

	order, err := s.submit(ctx, req.UserID, orderReq)
	if err != nil {
		return err
	}
	order, err = s.confirm(ctx, req.UserID, order)
	if err != nil {
		return err
	}

	price := fillPrice(order)
	if err := pos.OpenEntryLeg(req.LegIndex, price, order.ExecutedVolume, s.clock.Now(), req.TargetPrice, req.StopLossPrice); err != nil {
		return errors.Wrap(errors.KindInvariant, "execution: applying entry fill to position", err)
	}
	pos.StrategyName = req.StrategyName
	pos.SignalStrength = req.SignalStrength

	return s.journal.Append(ctx, candle.TradeRecord{
		ID:           ksuid.New().String(),
		UserID:       req.UserID,
		Market:       req.Market,
		Side:         candle.TradeBuy,
		OccurredAt:   s.clock.Now(),
		AmountKRW:    order.ExecutedFunds,
		Volume:       order.ExecutedVolume,
		Price:        price,
		Fee:          order.PaidFee,
		OrderUUID:    order.UUID,
		StrategyName: req.StrategyName,
		TargetPrice:  req.TargetPrice,
	})
}

// ExitRequest describes a partial or final sell.
type ExitRequest struct {
	UserID       string
	Market       string
	Quantity     decimal.Decimal
	ExitReason   candle.ExitReason
	IsFinal      bool
	StrategyName string
}

// SubmitExit sells Quantity of pos and folds the fill back into pos. It
// always submits once called; the cost-aware take-profit gate (spec
// §4.5 step 5: a partial exit must clear MinProfitRate net of
// TotalCostFactor via ClearsProfitBar) is the caller's responsibility
// before invoking SubmitExit for a take-profit reason. Stop-loss and
// signal-invalid exits call this unconditionally — the position is
// being closed for risk reasons, not profit-taking, so no cost check
// applies to them.
func (s *Service) SubmitExit(ctx context.Context, pos *position.Position, req ExitRequest) error {
	idemKey := idempotencyKey(req.UserID, req.Market, -1, s.clock.Now())
	orderReq := ports.OrderRequest{
		Market:         req.Market,
		Side:           candle.SideAsk,
		Kind:           candle.KindMarket,
		Volume:         req.Quantity,
		IdempotencyKey: idemKey,
	}

	order, err := s.submit(ctx, req.UserID, orderReq)
	if err != nil {
		return err
	}
	order, err = s.confirm(ctx, req.UserID, order)
	if err != nil {
		return err
	}

	price := fillPrice(order)
	rec := candle.TradeRecord{
		ID:           ksuid.New().String(),
		UserID:       req.UserID,
		Market:       req.Market,
		Side:         candle.TradeSell,
		OccurredAt:   s.clock.Now(),
		AmountKRW:    order.ExecutedFunds,
		Volume:       order.ExecutedVolume,
		Price:        price,
		Fee:          order.PaidFee,
		OrderUUID:    order.UUID,
		StrategyName: req.StrategyName,
		ExitReason:   req.ExitReason,
		StopLoss:     req.ExitReason == candle.ExitStopLossFixed || req.ExitReason == candle.ExitStopLossATR,
	}

	if req.IsFinal {
		if err := pos.ApplyFinalExit(price, order.PaidFee, s.clock.Now(), req.ExitReason); err != nil {
			return errors.Wrap(errors.KindInvariant, "execution: applying final exit", err)
		}
	} else {
		rec.HalfSold = true
		if err := pos.ApplyPartialExit(price, order.ExecutedVolume, order.PaidFee, s.clock.Now()); err != nil {
			return errors.Wrap(errors.KindInvariant, "execution: applying partial exit", err)
		}
	}

	return s.journal.Append(ctx, rec)
}

// ClearsProfitBar reports whether selling at currentPrice against
// avgEntryPrice nets at least MinProfitRate after TotalCostFactor.
func (s *Service) ClearsProfitBar(avgEntryPrice, currentPrice float64) bool {
	if avgEntryPrice == 0 {
		return false
	}
	grossRate := (currentPrice - avgEntryPrice) / avgEntryPrice
	return grossRate-s.costs.TotalCostFactor >= s.costs.MinProfitRate
}

func (s *Service) submit(ctx context.Context, userID string, req ports.OrderRequest) (candle.Order, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.gateway.SubmitOrder(ctx, userID, req)
	})
	if err != nil {
		s.log.Warn("order submission failed", zap.String("market", req.Market), zap.Error(err))
		return candle.Order{}, errors.Wrap(errors.KindTransient, "execution: order submission failed", err)
	}
	return result.(candle.Order), nil
}

// confirm polls GetOrder until the order reaches a terminal state or the
// caller's context is cancelled (bounded by the scheduler's tick deadline
// upstream).
func (s *Service) confirm(ctx context.Context, userID string, order candle.Order) (candle.Order, error) {
	if order.State.Terminal() {
		return order, nil
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return order, errors.Wrap(errors.KindTransient, "execution: order confirmation cancelled", ctx.Err())
		case <-ticker.C:
			result, err := s.breaker.Execute(func() (interface{}, error) {
				return s.gateway.GetOrder(ctx, userID, order.UUID)
			})
			if err != nil {
				return order, errors.Wrap(errors.KindTransient, "execution: polling order status failed", err)
			}
			order = result.(candle.Order)
			if order.State.Terminal() {
				return order, nil
			}
		}
	}
}

func fillPrice(order candle.Order) decimal.Decimal {
	if order.ExecutedVolume.IsZero() {
		return order.Price
	}
	return order.ExecutedFunds.Div(order.ExecutedVolume)
}

func idempotencyKey(userID, market string, legIndex int, now time.Time) string {
	bucket := now.Truncate(time.Minute)
	seed := userID + "|" + market + "|" + bucket.Format(time.RFC3339) + "|" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(legIndexLabel(legIndex))).String()
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

func legIndexLabel(legIndex int) string {
	if legIndex < 0 {
		return "exit"
	}
	return "entry-leg-" + strconv.Itoa(legIndex)
}
