// Package config loads this engine's runtime configuration via viper:
// YAML file plus TRADSYS_-prefixed environment overrides, following the
// teacher's config.go shape (defaults set first, file/env layered on
// top, a package-level singleton behind sync.Once).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the whole application's configuration surface.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	// Exchange holds the upstream market/order gateway's connection
	// settings (spec §1 MarketDataSource / OrderGateway ports).
	Exchange struct {
		BaseURL        string `mapstructure:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"exchange"`

	// Scheduler tunes the cron-like tick loop (spec §4.7).
	Scheduler struct {
		TickIntervalSeconds int `mapstructure:"tick_interval_seconds"`
		TickDeadlineSeconds int `mapstructure:"tick_deadline_seconds"`
		GlobalPoolSize      int `mapstructure:"global_pool_size"`
		UserPoolSize        int `mapstructure:"user_pool_size"`
	} `mapstructure:"scheduler"`

	// Risk mirrors risk.Config (spec §4.6); kept as primitive fields here
	// since viper cannot unmarshal decimal.Decimal directly.
	Risk struct {
		MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
		DailyLossLimitKRW      float64 `mapstructure:"daily_loss_limit_krw"`
		MinSignalStrength      float64 `mapstructure:"min_signal_strength"`
		MinOrderAmountKRW      float64 `mapstructure:"min_order_amount_krw"`
		CooldownAfterLossMins  int     `mapstructure:"cooldown_after_loss_minutes"`
		MaxSlippageRate        float64 `mapstructure:"max_slippage_rate"`
	} `mapstructure:"risk"`

	Monitoring struct {
		PrometheusPort int    `mapstructure:"prometheus_port"`
		LogLevel       string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`

	Auth struct {
		JWTSecret     string `mapstructure:"jwt_secret"`
		TokenDuration int    `mapstructure:"token_duration"` // minutes
	} `mapstructure:"auth"`

	// Crypto holds the symmetric key used to encrypt stored exchange
	// credentials (spec §6, internal/crypto.Box).
	Crypto struct {
		CredentialKey string `mapstructure:"credential_key"`
	} `mapstructure:"crypto"`

	// Messaging selects the TradeJournal's event-publishing backend.
	// NATSURL empty means the default in-process gochannel driver.
	Messaging struct {
		NATSURL string `mapstructure:"nats_url"`
	} `mapstructure:"messaging"`
}

var (
	config *Config
	once   sync.Once
)

// LoadConfig loads configuration from configPath (or the default search
// path) plus environment overrides. Subsequent calls return the same
// instance.
func LoadConfig(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		config = &Config{}
		setDefaults()

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/tradsys-core")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("TRADSYS")

		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config file: %w", err)
				return
			}
			err = nil
		}

		if err = v.Unmarshal(config); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}
	})

	return config, err
}

// GetConfig returns the process-wide configuration, loading defaults if
// LoadConfig was never called.
func GetConfig() *Config {
	if config == nil {
		if _, err := LoadConfig(""); err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	}
	return config
}

// SaveConfig writes cfg to path as JSON, creating the parent directory
// if needed.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setDefaults() {
	config.Server.Host = "0.0.0.0"
	config.Server.Port = 8080

	config.Database.Host = "localhost"
	config.Database.Port = 5432
	config.Database.User = "postgres"
	config.Database.Name = "tradsys_core"
	config.Database.SSLMode = "disable"

	config.Exchange.BaseURL = "https://api.upbit.com"
	config.Exchange.TimeoutSeconds = 10

	config.Scheduler.TickIntervalSeconds = 60
	config.Scheduler.TickDeadlineSeconds = 30
	config.Scheduler.GlobalPoolSize = 64
	config.Scheduler.UserPoolSize = 8

	config.Risk.MaxConcurrentPositions = 5
	config.Risk.DailyLossLimitKRW = 100000
	config.Risk.MinSignalStrength = 50
	config.Risk.MinOrderAmountKRW = 5000
	config.Risk.CooldownAfterLossMins = 30
	config.Risk.MaxSlippageRate = 0.003

	config.Monitoring.PrometheusPort = 9090
	config.Monitoring.LogLevel = "info"

	config.Auth.TokenDuration = 60
}

// InitLogger builds the process zap.Logger according to the configured
// log level.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch cfg.Monitoring.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
