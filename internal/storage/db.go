package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config is the database connection configuration, loaded from viper in
// cmd/server.
type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig mirrors the teacher's defaults for local development.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Username:        "postgres",
		Password:        "postgres",
		Database:        "tradsys_core",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode,
	)
}

// zapGormWriter adapts zap.Logger to gorm's logger.Writer.
type zapGormWriter struct {
	log *zap.Logger
}

func (w *zapGormWriter) Printf(format string, args ...interface{}) {
	w.log.Debug("gorm", zap.String("msg", fmt.Sprintf(format, args...)))
}

// Connect opens the postgres connection and configures the pool.
func Connect(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(&zapGormWriter{log: log}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate runs AutoMigrate over every model this engine persists, plus
// the indexes AutoMigrate cannot express (partial/composite uniqueness).
func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")

	if err := db.AutoMigrate(
		&PositionModel{},
		&TradeRecordModel{},
		&StrategyParameterModel{},
		&UserModel{},
		&UserStrategySelectionModel{},
		&SimulationTaskModel{},
	); err != nil {
		log.Error("database migration failed", zap.Error(err))
		return err
	}

	if err := createIndexes(db, log); err != nil {
		return err
	}

	log.Info("database migration completed")
	return nil
}

func createIndexes(db *gorm.DB, log *zap.Logger) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_trade_records_user_market ON trade_records(user_id, market)",
		"CREATE INDEX IF NOT EXISTS idx_trade_records_occurred_at ON trade_records(occurred_at)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_user_market ON positions(user_id, market)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			log.Error("failed to create index", zap.String("stmt", stmt), zap.Error(err))
			return err
		}
	}
	return nil
}
