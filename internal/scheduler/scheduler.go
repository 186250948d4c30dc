// Package scheduler implements the Trading Scheduler (spec §4.7): a
// cron-like ticker that, on each fire, resolves every auto-trading user's
// market working set and runs one realtime.Coordinator.Tick per
// (user, market), bounded by per-user and global worker pools and a
// per-tick deadline.
//
// Per the design notes' "cron scheduling" guidance, this is a dedicated
// ticker goroutine per schedule entry rather than a framework annotation
// — no cron DSL library is warranted for a single fixed-interval job plus
// two daily/hourly housekeeping jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/market"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/position"
	"github.com/tradsys-core/engine/internal/realtime"
	"github.com/tradsys-core/engine/internal/strategy"
	"github.com/tradsys-core/engine/internal/voting"
)

const (
	defaultTickInterval = time.Minute
	defaultTickDeadline = 30 * time.Second
	defaultUserPoolSize = 8
	candleCacheMaxAge   = 7 * 24 * time.Hour
	taskHistoryMaxAge   = 30 * 24 * time.Hour
)

// TickRunner abstracts realtime.Coordinator for testability.
type TickRunner interface {
	Tick(ctx context.Context, in realtime.TickInput) error
}

// Scheduler owns the cron-like tick loop plus the hourly/daily
// housekeeping jobs.
type Scheduler struct {
	users      ports.UserRegistry
	registry   *strategy.Registry
	selector   *market.Selector
	coordinator TickRunner
	gateway    ports.OrderGateway
	positions  ports.PositionStore
	leases     *LeaseManager
	clock      clock.Clock
	log        *zap.Logger

	tickInterval time.Duration
	tickDeadline time.Duration
	globalPool   *ants.Pool

	stop chan struct{}
	done chan struct{}
}

// Config tunes the Scheduler's intervals and global pool size.
// UserPoolSize is not read: each user tick runs its markets on a pool of
// defaultUserPoolSize workers.
type Config struct {
	TickInterval    time.Duration
	TickDeadline    time.Duration
	GlobalPoolSize  int
	UserPoolSize    int
}

// DefaultConfig mirrors spec §4.7's defaults.
func DefaultConfig() Config {
	return Config{TickInterval: defaultTickInterval, TickDeadline: defaultTickDeadline, GlobalPoolSize: 64, UserPoolSize: defaultUserPoolSize}
}

// New builds a Scheduler. coordinator runs one (user,market) tick;
// registry resolves a user's enabled strategies by name; gateway and
// positions supply the account balance and open-position/realized-PnL
// figures each tick needs to populate the Risk Manager gate inputs.
func New(users ports.UserRegistry, registry *strategy.Registry, selector *market.Selector, coordinator TickRunner, gateway ports.OrderGateway, positions ports.PositionStore, clk clock.Clock, log *zap.Logger, cfg Config) (*Scheduler, error) {
	if cfg.TickInterval <= 0 {
		cfg = DefaultConfig()
	}
	pool, err := ants.NewPool(cfg.GlobalPoolSize)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		users:        users,
		registry:     registry,
		selector:     selector,
		coordinator:  coordinator,
		gateway:      gateway,
		positions:    positions,
		leases:       NewLeaseManager(),
		clock:        clk,
		log:          log,
		tickInterval: cfg.TickInterval,
		tickDeadline: cfg.TickDeadline,
		globalPool:   pool,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start launches the main tick loop plus hourly/daily housekeeping in
// background goroutines. Call Stop for a graceful shutdown that drains
// any in-flight tick before returning.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runTickLoop(ctx)
	go s.runHourlyStatusReport(ctx)
	go s.runDailyCleanup(ctx)
}

// Stop signals every loop to exit and waits for the tick loop to drain
// its in-flight work.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.globalPool.Release()
}

func (s *Scheduler) runTickLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOneTick(ctx)
		}
	}
}

// runOneTick resolves every enabled user and fans their market evaluation
// out across per-user pools, itself bounded by the global pool.
func (s *Scheduler) runOneTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.tickDeadline)
	defer cancel()

	users, err := s.users.EnabledUsers(tickCtx)
	if err != nil {
		s.log.Error("failed to resolve enabled users", zap.Error(err))
		return
	}

	for _, u := range users {
		u := u
		submitErr := s.globalPool.Submit(func() {
			s.runUserTick(tickCtx, u)
		})
		if submitErr != nil {
			s.log.Warn("global pool saturated, dropping user tick", zap.String("user_id", u.UserID))
		}
	}
}

func (s *Scheduler) runUserTick(ctx context.Context, profile ports.UserProfile) {
	markets, err := s.selector.Resolve(ctx, profile)
	if err != nil {
		s.log.Error("failed to resolve market working set", zap.String("user_id", profile.UserID), zap.Error(err))
		return
	}

	names, err := s.users.EnabledStrategies(ctx, profile.UserID)
	if err != nil {
		s.log.Error("failed to resolve enabled strategies", zap.String("user_id", profile.UserID), zap.Error(err))
		return
	}
	strategies, err := s.registry.Resolve(names)
	if err != nil {
		s.log.Warn("unknown strategy in user's enabled set", zap.String("user_id", profile.UserID), zap.Error(err))
		return
	}

	userPool, err := ants.NewPool(defaultUserPoolSize)
	if err != nil {
		return
	}
	defer userPool.Release()

	risk := s.fetchRiskContext(ctx, profile.UserID)

	for _, m := range markets {
		m := m
		_ = userPool.Submit(func() {
			s.runMarketTick(ctx, profile, m, strategies, risk)
		})
	}
}

// riskContext is the per-user account/position figures every market tick
// for that user needs to populate the Risk Manager gate inputs (spec
// §4.6), fetched once per user tick rather than once per market.
type riskContext struct {
	krwBalance       decimal.Decimal
	openPositionCount int
	dailyRealizedPnL decimal.Decimal
}

// fetchRiskContext pulls the user's KRW balance from the exchange and
// the open-position/realized-PnL figures from the position store. A
// failure on either degrades to a zero value rather than aborting the
// user's tick — the downstream Risk Manager gate then conservatively
// sizes or rejects the candidate order instead of the scheduler
// silently skipping the user outright.
func (s *Scheduler) fetchRiskContext(ctx context.Context, userID string) riskContext {
	var rc riskContext

	accounts, err := s.gateway.Accounts(ctx, userID)
	if err != nil {
		s.log.Warn("failed to fetch account balance", zap.String("user_id", userID), zap.Error(err))
	} else {
		for _, a := range accounts {
			if a.Currency == "KRW" {
				rc.krwBalance = a.Balance
				break
			}
		}
	}

	openCount, err := s.positions.CountOpen(ctx, userID)
	if err != nil {
		s.log.Warn("failed to count open positions", zap.String("user_id", userID), zap.Error(err))
	} else {
		rc.openPositionCount = openCount
	}

	dayStart := s.clock.Now().Truncate(24 * time.Hour)
	dailyPnL, err := s.positions.SumRealizedPnLSince(ctx, userID, dayStart)
	if err != nil {
		s.log.Warn("failed to sum daily realized pnl", zap.String("user_id", userID), zap.Error(err))
	} else {
		rc.dailyRealizedPnL = dailyPnL
	}

	return rc
}

func (s *Scheduler) runMarketTick(ctx context.Context, profile ports.UserProfile, market string, strategies []strategy.Strategy, risk riskContext) {
	release, ok := s.leases.TryAcquire(profile.UserID, market)
	if !ok {
		s.log.Debug("lease held, dropping tick", zap.String("user_id", profile.UserID), zap.String("market", market))
		return
	}
	defer release()

	mode := voting.ModeDefault
	scaledName := ""
	if profile.StrategyMode == string(voting.ModeScaledTrading) && len(strategies) > 0 {
		mode = voting.ModeScaledTrading
		scaledName = strategies[0].Name()
	}

	err := s.coordinator.Tick(ctx, realtime.TickInput{
		UserID:             profile.UserID,
		Market:             market,
		Strategies:         strategies,
		VotingMode:         mode,
		ScaledStrategyName: scaledName,
		CandleWindow:       100,
		GranularityMins:    1,
		PositionParams:     position.DefaultParams(),
		InvestmentRatio:    profile.InvestmentRatio,
		MinOrderAmountKRW:  profile.MinOrderAmountKRW,
		KRWBalance:         risk.krwBalance,
		OpenPositionCount:  risk.openPositionCount,
		DailyRealizedPnL:   risk.dailyRealizedPnL,
	})
	if err != nil {
		s.log.Warn("tick failed", zap.String("user_id", profile.UserID), zap.String("market", market), zap.Error(err))
	}
}

func (s *Scheduler) runHourlyStatusReport(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Info("hourly status report", zap.Time("at", s.clock.Now()))
		}
	}
}

func (s *Scheduler) runDailyCleanup(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.clock.Now().Add(-candleCacheMaxAge)
			taskCutoff := s.clock.Now().Add(-taskHistoryMaxAge)
			s.log.Info("daily cleanup", zap.Time("candle_cache_cutoff", cutoff), zap.Time("task_history_cutoff", taskCutoff))
		}
	}
}
