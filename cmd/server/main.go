// Command server wires every adapter behind the core engine's ports and
// runs the HTTP surface plus the cron-like trading scheduler side by
// side, grounded on the teacher's cmd/tradsys/main.go runServer function:
// same zap/viper bring-up, same gin.New + Logger/Recovery + health/ready/
// metrics routes, same signal-driven graceful shutdown.
package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradsys-core/engine/internal/api"
	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/config"
	"github.com/tradsys-core/engine/internal/crypto"
	"github.com/tradsys-core/engine/internal/exchange"
	"github.com/tradsys-core/engine/internal/execution"
	"github.com/tradsys-core/engine/internal/market"
	"github.com/tradsys-core/engine/internal/realtime"
	"github.com/tradsys-core/engine/internal/risk"
	"github.com/tradsys-core/engine/internal/scheduler"
	"github.com/tradsys-core/engine/internal/storage"
	"github.com/tradsys-core/engine/internal/strategy"
	"github.com/tradsys-core/engine/internal/strategy/impl"
)

const engineVersion = "1.0.0"

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := config.InitLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting "+api.AppName, zap.String("version", api.AppVersion))

	db, err := storage.Connect(storage.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := storage.Migrate(db, logger); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	box, err := crypto.NewBox(cfg.Crypto.CredentialKey)
	if err != nil {
		logger.Fatal("failed to build credential box", zap.Error(err))
	}

	positions := storage.NewPositionRepository(db, logger)
	journal, err := buildJournal(cfg, db, logger)
	if err != nil {
		logger.Fatal("failed to build trade journal publisher", zap.Error(err))
	}
	params := storage.NewParameterRepository(db, logger)
	users := storage.NewUserRepository(db, logger)
	tasks := storage.NewTaskRepository(db, logger)

	marketData := exchange.NewClient(cfg.Exchange.BaseURL, time.Duration(cfg.Exchange.TimeoutSeconds)*time.Second, logger)
	credSource := exchange.NewUserCredentialSource(users, box, logger)
	orderGateway := exchange.NewOrderClient(cfg.Exchange.BaseURL, time.Duration(cfg.Exchange.TimeoutSeconds)*time.Second, credSource, logger)
	marketCache := market.New(marketData)
	selector := market.NewSelector(marketCache)

	registry, err := strategy.NewRegistry(engineVersion)
	if err != nil {
		logger.Fatal("failed to build strategy registry", zap.Error(err))
	}
	registerStrategies(registry, params, logger)

	clk := clock.New()
	riskCfg := risk.Config{
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
		DailyLossLimitKRW:      decimal.NewFromFloat(cfg.Risk.DailyLossLimitKRW),
		MinSignalStrength:      cfg.Risk.MinSignalStrength,
		MinOrderAmountKRW:      decimal.NewFromFloat(cfg.Risk.MinOrderAmountKRW),
		CooldownAfterLoss:      time.Duration(cfg.Risk.CooldownAfterLossMins) * time.Minute,
		MaxSlippageRate:        cfg.Risk.MaxSlippageRate,
	}
	riskManager := risk.New(riskCfg, journal, clk)
	executionService := execution.New(orderGateway, journal, positions, clk, execution.DefaultCosts(), logger)

	coordinator := &realtime.Coordinator{
		MarketData: marketCache,
		Positions:  positions,
		Journal:    journal,
		Execution:  executionService,
		Risk:       riskManager,
		Clock:      clk,
		Log:        logger,
	}

	sched, err := scheduler.New(users, registry, selector, coordinator, orderGateway, positions, clk, logger, scheduler.Config{
		TickInterval:   time.Duration(cfg.Scheduler.TickIntervalSeconds) * time.Second,
		TickDeadline:   time.Duration(cfg.Scheduler.TickDeadlineSeconds) * time.Second,
		GlobalPoolSize: cfg.Scheduler.GlobalPoolSize,
		UserPoolSize:   cfg.Scheduler.UserPoolSize,
	})
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}

	authService, err := api.NewAuthService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenDuration)*time.Minute, logger)
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}

	server := api.NewServer(addr(cfg), api.Deps{
		Auth:        authService,
		Params:      params,
		Users:       users,
		Journal:     journal,
		MarketData:  marketCache,
		Registry:    registry,
		Tasks:       tasks,
		Coordinator: coordinator,
		Crypto:      box,
		Log:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.Start()
	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight work")

	// Stop accepting new scheduler ticks and wait (bounded by the tick
	// deadline) for any in-flight (user,market) lease to release before
	// the process exits, per the supplemented graceful-shutdown feature.
	schedStopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(schedStopped)
	}()
	select {
	case <-schedStopped:
	case <-time.After(time.Duration(cfg.Scheduler.TickDeadlineSeconds)*time.Second + 5*time.Second):
		logger.Warn("scheduler did not drain within the tick deadline, shutting down anyway")
	}

	if err := server.Shutdown(30 * time.Second); err != nil {
		logger.Fatal("http server forced to shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func addr(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(cfg.Server.Port)
}

// buildJournal wires the TradeJournal's pub/sub backend to NATS when
// configured, else the default in-process gochannel driver.
func buildJournal(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*storage.TradeJournalRepository, error) {
	if cfg.Messaging.NATSURL == "" {
		return storage.NewTradeJournalRepository(db, logger), nil
	}
	publisher, err := storage.NewNATSPublisher(cfg.Messaging.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	return storage.NewTradeJournalRepositoryWithPublisher(db, logger, publisher), nil
}

// registerStrategies builds and registers every strategy implementation
// (spec §2.3) against the same ParameterStore every other adapter uses.
func registerStrategies(registry *strategy.Registry, params *storage.ParameterRepository, logger *zap.Logger) {
	strategies := []struct {
		s      strategy.Strategy
		minVer string
	}{
		{impl.NewRSIStrategy(params), "1.0.0"},
		{impl.NewGoldenCrossStrategy(params), "1.0.0"},
		{impl.NewBollingerBandStrategy(params), "1.0.0"},
		{impl.NewMACDStrategy(params), "1.0.0"},
		{impl.NewTrendFollowingStrategy(params), "1.0.0"},
		{impl.NewMomentumScalpingStrategy(params), "1.0.0"},
		{impl.NewVolatilityBreakoutStrategy(params), "1.0.0"},
		{impl.NewScaledTradingStrategy(params), "1.0.0"},
		{impl.NewVolumeBreakoutStrategy(params), "1.0.0"},
		{impl.NewVolumeImpulseStrategy(params), "1.0.0"},
	}
	for _, entry := range strategies {
		if err := registry.Register(entry.s, entry.minVer); err != nil {
			logger.Fatal("failed to register strategy", zap.String("strategy", entry.s.Name()), zap.Error(err))
		}
	}
}
