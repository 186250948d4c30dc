package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db, zap.NewNop()))
	return db
}

func TestPositionRepository_SaveThenGetRoundTrips(t *testing.T) {
	db := openTestDB(t)
	repo := NewPositionRepository(db, zap.NewNop())
	ctx := context.Background()

	snap := ports.PositionSnapshot{
		UserID:        "u1",
		Market:        "KRW-BTC",
		Status:        "ACTIVE",
		EntryPhase:    1,
		TotalQuantity: decimal.NewFromFloat(0.01),
		AvgEntryPrice: decimal.NewFromFloat(50000000),
	}
	require.NoError(t, repo.Save(ctx, snap))

	got, ok, err := repo.Get(ctx, "u1", "KRW-BTC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ACTIVE", got.Status)
	require.True(t, got.TotalQuantity.Equal(decimal.NewFromFloat(0.01)))

	_, ok, err = repo.Get(ctx, "u1", "KRW-ETH")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPositionRepository_SaveOverwritesExisting(t *testing.T) {
	db := openTestDB(t)
	repo := NewPositionRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, ports.PositionSnapshot{UserID: "u1", Market: "KRW-BTC", Status: "ENTERING", EntryPhase: 1}))
	require.NoError(t, repo.Save(ctx, ports.PositionSnapshot{UserID: "u1", Market: "KRW-BTC", Status: "ACTIVE", EntryPhase: 3}))

	got, ok, err := repo.Get(ctx, "u1", "KRW-BTC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ACTIVE", got.Status)
	require.Equal(t, 3, got.EntryPhase)
}

func TestTradeJournalRepository_AppendAndLastTrade(t *testing.T) {
	db := openTestDB(t)
	repo := NewTradeJournalRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, candle.TradeRecord{
		UserID: "u1", Market: "KRW-BTC", Side: candle.TradeBuy,
		Price: decimal.NewFromFloat(100), Volume: decimal.NewFromFloat(1),
	}))
	require.NoError(t, repo.Append(ctx, candle.TradeRecord{
		UserID: "u1", Market: "KRW-BTC", Side: candle.TradeSell,
		Price: decimal.NewFromFloat(110), Volume: decimal.NewFromFloat(1),
		ExitReason: candle.ExitTakeProfit,
	}))

	last, ok, err := repo.LastTrade(ctx, "u1", "KRW-BTC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, candle.TradeSell, last.Side)
	require.Equal(t, candle.ExitTakeProfit, last.ExitReason)

	_, ok, err = repo.LastTrade(ctx, "u1", "KRW-ETH")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParameterRepository_UserOverrideShadowsGlobal(t *testing.T) {
	db := openTestDB(t)
	repo := NewParameterRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "RSI", "", "period", "14", ports.ParamInt))
	require.NoError(t, repo.Set(ctx, "RSI", "u1", "period", "21", ports.ParamInt))

	v, _, ok, err := repo.Resolve(ctx, "RSI", "u1", "period")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "21", v)

	v, _, ok, err = repo.Resolve(ctx, "RSI", "u2", "period")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "14", v)

	_, _, ok, err = repo.Resolve(ctx, "RSI", "u3", "unknown_key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParameterRepository_ResetFallsBackToGlobal(t *testing.T) {
	db := openTestDB(t)
	repo := NewParameterRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "RSI", "", "period", "14", ports.ParamInt))
	require.NoError(t, repo.Set(ctx, "RSI", "u1", "period", "21", ports.ParamInt))
	require.NoError(t, repo.Reset(ctx, "RSI", "u1", "period"))

	v, _, ok, err := repo.Resolve(ctx, "RSI", "u1", "period")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "14", v)
}

func TestUserRepository_EnabledUsersAndStrategies(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, db.Create(&UserModel{
		UserID: "u1", AutoTradingEnabled: true,
		ExplicitMarkets: "KRW-BTC, KRW-ETH", ExcludedMarkets: "KRW-DOGE",
		StrategyMode: "DEFAULT",
	}).Error)
	require.NoError(t, db.Create(&UserModel{UserID: "u2", AutoTradingEnabled: false}).Error)
	require.NoError(t, db.Create(&UserStrategySelectionModel{UserID: "u1", StrategyName: "RSI", Enabled: true}).Error)
	require.NoError(t, db.Create(&UserStrategySelectionModel{UserID: "u1", StrategyName: "MACD", Enabled: false}).Error)

	profiles, err := repo.EnabledUsers(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	require.Equal(t, "u1", profiles[0].UserID)
	require.Equal(t, []string{"KRW-BTC", "KRW-ETH"}, profiles[0].ExplicitMarkets)

	names, err := repo.EnabledStrategies(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"RSI"}, names)
}

func TestTaskRepository_CreateUpdateGet(t *testing.T) {
	db := openTestDB(t)
	repo := NewTaskRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, Task{TaskID: "t1", UserID: "u1", Status: TaskQueued}))
	require.NoError(t, repo.UpdateStatus(ctx, "t1", TaskSucceeded, `{"trades":5}`))

	got, ok, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TaskSucceeded, got.Status)
	require.Equal(t, `{"trades":5}`, got.ResultJSON)
}
