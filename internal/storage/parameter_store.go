package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradsys-core/engine/internal/ports"
)

// ParameterRepository implements ports.ParameterStore: user-specific rows
// shadow the global row (user_id == ""), which shadows the caller's own
// hard-coded default — the three-tier fallback spec §4.3 describes.
type ParameterRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewParameterRepository builds a ParameterRepository.
func NewParameterRepository(db *gorm.DB, logger *zap.Logger) *ParameterRepository {
	return &ParameterRepository{db: db, logger: logger}
}

func (r *ParameterRepository) Resolve(ctx context.Context, strategyName, userID, key string) (string, ports.ParameterValueType, bool, error) {
	if userID != "" {
		var m StrategyParameterModel
		result := r.db.WithContext(ctx).
			Where("strategy_name = ? AND user_id = ? AND key = ?", strategyName, userID, key).
			First(&m)
		if result.Error == nil {
			return m.Value, ports.ParameterValueType(m.ValueType), true, nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			r.logger.Error("failed to resolve user parameter", zap.String("strategy", strategyName), zap.String("user_id", userID), zap.String("key", key), zap.Error(result.Error))
			return "", "", false, result.Error
		}
	}

	var m StrategyParameterModel
	result := r.db.WithContext(ctx).
		Where("strategy_name = ? AND user_id = '' AND key = ?", strategyName, key).
		First(&m)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", "", false, nil
	}
	if result.Error != nil {
		r.logger.Error("failed to resolve global parameter", zap.String("strategy", strategyName), zap.String("key", key), zap.Error(result.Error))
		return "", "", false, result.Error
	}
	return m.Value, ports.ParameterValueType(m.ValueType), true, nil
}

func (r *ParameterRepository) Set(ctx context.Context, strategyName, userID, key, value string, valueType ports.ParameterValueType) error {
	m := StrategyParameterModel{StrategyName: strategyName, UserID: userID, Key: key, Value: value, ValueType: string(valueType)}
	result := r.db.WithContext(ctx).
		Where("strategy_name = ? AND user_id = ? AND key = ?", strategyName, userID, key).
		Assign(StrategyParameterModel{Value: value, ValueType: string(valueType)}).
		FirstOrCreate(&m)
	if result.Error != nil {
		r.logger.Error("failed to set parameter", zap.String("strategy", strategyName), zap.String("user_id", userID), zap.String("key", key), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *ParameterRepository) Reset(ctx context.Context, strategyName, userID, key string) error {
	if userID == "" {
		return nil
	}
	result := r.db.WithContext(ctx).
		Where("strategy_name = ? AND user_id = ? AND key = ?", strategyName, userID, key).
		Delete(&StrategyParameterModel{})
	if result.Error != nil {
		r.logger.Error("failed to reset parameter", zap.String("strategy", strategyName), zap.String("user_id", userID), zap.String("key", key), zap.Error(result.Error))
		return result.Error
	}
	return nil
}
