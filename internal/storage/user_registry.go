package storage

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradsys-core/engine/internal/ports"
)

// UserRepository implements ports.UserRegistry over the users and
// user_strategy_selections tables.
type UserRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewUserRepository builds a UserRepository.
func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) EnabledUsers(ctx context.Context) ([]ports.UserProfile, error) {
	var rows []UserModel
	result := r.db.WithContext(ctx).Where("auto_trading_enabled = ?", true).Find(&rows)
	if result.Error != nil {
		r.logger.Error("failed to list enabled users", zap.Error(result.Error))
		return nil, result.Error
	}
	profiles := make([]ports.UserProfile, 0, len(rows))
	for _, m := range rows {
		profiles = append(profiles, ports.UserProfile{
			UserID:            m.UserID,
			ExplicitMarkets:   splitCSV(m.ExplicitMarkets),
			ExcludedMarkets:   splitCSV(m.ExcludedMarkets),
			AutoSelectTopN:    m.AutoSelectTopN,
			StrategyMode:      m.StrategyMode,
			InvestmentRatio:   m.InvestmentRatio,
			MinOrderAmountKRW: m.MinOrderAmountKRW,
		})
	}
	return profiles, nil
}

func (r *UserRepository) EnabledStrategies(ctx context.Context, userID string) ([]string, error) {
	var rows []UserStrategySelectionModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND enabled = ?", userID, true).
		Find(&rows)
	if result.Error != nil {
		r.logger.Error("failed to list enabled strategies", zap.String("user_id", userID), zap.Error(result.Error))
		return nil, result.Error
	}
	names := make([]string, 0, len(rows))
	for _, m := range rows {
		names = append(names, m.StrategyName)
	}
	return names, nil
}

// SetStrategySelection enables or disables one strategy for a user.
func (r *UserRepository) SetStrategySelection(ctx context.Context, userID, strategyName string, enabled bool) error {
	m := UserStrategySelectionModel{UserID: userID, StrategyName: strategyName, Enabled: enabled}
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND strategy_name = ?", userID, strategyName).
		Assign(UserStrategySelectionModel{Enabled: enabled}).
		FirstOrCreate(&m)
	if result.Error != nil {
		r.logger.Error("failed to set strategy selection", zap.String("user_id", userID), zap.String("strategy_name", strategyName), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

// SetAPICredentials persists a user's encrypted exchange API key/secret,
// creating the user row if it does not exist yet.
func (r *UserRepository) SetAPICredentials(ctx context.Context, userID, encryptedAPIKey, encryptedSecret string) error {
	m := UserModel{UserID: userID, EncryptedAPIKey: encryptedAPIKey, EncryptedSecret: encryptedSecret}
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Assign(UserModel{EncryptedAPIKey: encryptedAPIKey, EncryptedSecret: encryptedSecret}).
		FirstOrCreate(&m)
	if result.Error != nil {
		r.logger.Error("failed to set api credentials", zap.String("user_id", userID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

// EncryptedCredentials returns the stored, still-encrypted API key/secret
// for userID, for callers (internal/exchange) that hold the decryption
// key. ok is false if the user has no row on file.
func (r *UserRepository) EncryptedCredentials(ctx context.Context, userID string) (encryptedAPIKey, encryptedSecret string, ok bool, err error) {
	var m UserModel
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return "", "", false, nil
		}
		r.logger.Error("failed to load encrypted credentials", zap.String("user_id", userID), zap.Error(result.Error))
		return "", "", false, result.Error
	}
	return m.EncryptedAPIKey, m.EncryptedSecret, true, nil
}

// APICredentialStatus reports whether a user has an exchange API key and
// secret on file, without ever returning the decrypted values.
func (r *UserRepository) APICredentialStatus(ctx context.Context, userID string) (hasKey bool, hasSecret bool, err error) {
	var m UserModel
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return false, false, nil
		}
		r.logger.Error("failed to load api credential status", zap.String("user_id", userID), zap.Error(result.Error))
		return false, false, result.Error
	}
	return m.EncryptedAPIKey != "", m.EncryptedSecret != "", nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
