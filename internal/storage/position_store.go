package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradsys-core/engine/internal/ports"
)

// PositionRepository implements ports.PositionStore over gorm, grounded
// on the teacher's orderRepository.go idiom: WithContext-chained calls,
// gorm.ErrRecordNotFound folded into an ok=false return, every failure
// path logged with zap before the error is returned.
type PositionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPositionRepository builds a PositionRepository.
func NewPositionRepository(db *gorm.DB, logger *zap.Logger) *PositionRepository {
	return &PositionRepository{db: db, logger: logger}
}

func (r *PositionRepository) Get(ctx context.Context, userID, market string) (ports.PositionSnapshot, bool, error) {
	var m PositionModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND market = ?", userID, market).
		First(&m)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return ports.PositionSnapshot{}, false, nil
	}
	if result.Error != nil {
		r.logger.Error("failed to get position", zap.String("user_id", userID), zap.String("market", market), zap.Error(result.Error))
		return ports.PositionSnapshot{}, false, result.Error
	}
	return modelToSnapshot(m), true, nil
}

func (r *PositionRepository) Save(ctx context.Context, pos ports.PositionSnapshot) error {
	m := snapshotToModel(pos)
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND market = ?", pos.UserID, pos.Market).
		Assign(m).
		FirstOrCreate(&m)
	if result.Error != nil {
		r.logger.Error("failed to save position", zap.String("user_id", pos.UserID), zap.String("market", pos.Market), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

// HasPendingOrder always reports false: this store records trade fills,
// not submitted-but-unconfirmed orders, so there is no pending order for
// it to find. The count query only surfaces a database error.
func (r *PositionRepository) HasPendingOrder(ctx context.Context, userID, market string, entryPhase int) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&TradeRecordModel{}).
		Where("user_id = ? AND market = ? AND order_uuid <> ''", userID, market).
		Count(&count)
	if result.Error != nil {
		r.logger.Error("failed to check pending order", zap.String("user_id", userID), zap.String("market", market), zap.Error(result.Error))
		return false, result.Error
	}
	_ = entryPhase // entryPhase and the count are not used; see the doc comment.
	return false, nil
}

func (r *PositionRepository) CountOpen(ctx context.Context, userID string) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&PositionModel{}).
		Where("user_id = ? AND status IN ?", userID, []string{"ENTERING", "ACTIVE", "EXITING"}).
		Count(&count)
	if result.Error != nil {
		r.logger.Error("failed to count open positions", zap.String("user_id", userID), zap.Error(result.Error))
		return 0, result.Error
	}
	return int(count), nil
}

func (r *PositionRepository) SumRealizedPnLSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	var rows []PositionModel
	result := r.db.WithContext(ctx).
		Model(&PositionModel{}).
		Where("user_id = ? AND updated_at >= ?", userID, since).
		Find(&rows)
	if result.Error != nil {
		r.logger.Error("failed to sum realized pnl", zap.String("user_id", userID), zap.Error(result.Error))
		return decimal.Zero, result.Error
	}
	total := decimal.Zero
	for _, m := range rows {
		total = total.Add(m.RealizedPnL)
	}
	return total, nil
}

func modelToSnapshot(m PositionModel) ports.PositionSnapshot {
	return ports.PositionSnapshot{
		UserID:            m.UserID,
		Market:            m.Market,
		Status:            m.Status,
		EntryPhase:        m.EntryPhase,
		ExitPhase:         m.ExitPhase,
		TotalQuantity:     m.TotalQuantity,
		TotalInvested:     m.TotalInvested,
		AvgEntryPrice:     m.AvgEntryPrice,
		StopLossPrice:     m.StopLossPrice,
		TargetPrice:       m.TargetPrice,
		TrailingHighPrice: m.TrailingHighPrice,
		TrailingStopPrice: m.TrailingStopPrice,
		TrailingArmed:     m.TrailingArmed,
		RealizedPnL:       m.RealizedPnL,
		TotalFees:         m.TotalFees,
		TotalSlippage:     m.TotalSlippage,
		StrategyName:      m.StrategyName,
		SignalStrength:    m.SignalStrength,
		EntryLegTimes:     [3]time.Time{m.EntryLeg1Time, m.EntryLeg2Time, m.EntryLeg3Time},
		PartialExitTime:   m.PartialExitTime,
		FinalExitTime:     m.FinalExitTime,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func snapshotToModel(pos ports.PositionSnapshot) PositionModel {
	return PositionModel{
		UserID:            pos.UserID,
		Market:            pos.Market,
		Status:            pos.Status,
		EntryPhase:        pos.EntryPhase,
		ExitPhase:         pos.ExitPhase,
		TotalQuantity:     pos.TotalQuantity,
		TotalInvested:     pos.TotalInvested,
		AvgEntryPrice:     pos.AvgEntryPrice,
		StopLossPrice:     pos.StopLossPrice,
		TargetPrice:       pos.TargetPrice,
		TrailingHighPrice: pos.TrailingHighPrice,
		TrailingStopPrice: pos.TrailingStopPrice,
		TrailingArmed:     pos.TrailingArmed,
		RealizedPnL:       pos.RealizedPnL,
		TotalFees:         pos.TotalFees,
		TotalSlippage:     pos.TotalSlippage,
		StrategyName:      pos.StrategyName,
		SignalStrength:    pos.SignalStrength,
		EntryLeg1Time:     pos.EntryLegTimes[0],
		EntryLeg2Time:     pos.EntryLegTimes[1],
		EntryLeg3Time:     pos.EntryLegTimes[2],
		PartialExitTime:   pos.PartialExitTime,
		FinalExitTime:     pos.FinalExitTime,
	}
}
