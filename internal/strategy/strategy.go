// Package strategy defines the capability contract every trading
// strategy implements (spec §4.2), a name-keyed Registry, and the
// ParameterStore-backed parameter resolution every strategy must go
// through instead of literal magic numbers at decision points.
//
// Design note followed here: the "scratch channel" the source used for
// ExitReason/targetPrice hints is replaced by an explicit result struct
// returned from Analyze/AnalyzeForBacktest — no per-strategy global or
// thread-local state leaks across calls or across users.
package strategy

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/shopspring/decimal"
	"github.com/tradsys-core/engine/internal/candle"
	"github.com/tradsys-core/engine/internal/ports"
)

// Signal is the ternary trading signal a strategy emits.
type Signal int

const (
	Sell Signal = -1
	Hold Signal = 0
	Buy  Signal = 1
)

// Position is the read-only position context a strategy may consult.
// For live trading it's a snapshot off ports.PositionStore; for backtests
// it's the caller-supplied synthetic position (§4.2 point 2). Either way
// the strategy never looks it up itself — no global findLatestByMarket.
type Position struct {
	Open              bool
	AvgEntryPrice     decimal.Decimal
	Quantity          decimal.Decimal
	HighestSinceEntry decimal.Decimal
	TargetPrice       decimal.Decimal
	StopLossPrice     decimal.Decimal
	EntryPhase        int
	OpenedAt          int64 // unix seconds, 0 if not open
}

// Context is everything besides the candle window a strategy needs to
// produce a decision.
type Context struct {
	UserID   string
	Position Position
}

// Result is what Analyze/AnalyzeForBacktest return: the signal plus the
// optional hints the source used to thread through a scratch channel.
type Result struct {
	Signal        Signal
	TargetPrice   decimal.Decimal
	StopLossPrice decimal.Decimal
	ExitReason    candle.ExitReason // only meaningful when Signal == Sell
}

// Strategy is the capability every trading strategy implements.
type Strategy interface {
	// Name returns a stable string identifier.
	Name() string
	// Analyze produces a live-trading signal. ctx.Position is read-only.
	Analyze(ctx context.Context, market string, candles []candle.Candle, tctx Context) (Result, error)
	// AnalyzeForBacktest is the same decision logic, but Position comes
	// explicitly from synthetic rather than a store lookup, and on a Sell
	// signal the strategy MUST set Result.ExitReason.
	AnalyzeForBacktest(market string, candles []candle.Candle, synthetic Position) (Result, error)
}

// Registry is a name-keyed set of registered strategies.
type Registry struct {
	engineVersion *semver.Version
	strategies    map[string]Strategy
	minVersions   map[string]string
}

// NewRegistry builds an empty registry pinned to engineVersion (used to
// gate strategies that declare a MinEngineVersion incompatible with the
// running build's ParameterStore schema).
func NewRegistry(engineVersion string) (*Registry, error) {
	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return nil, fmt.Errorf("strategy: invalid engine version %q: %w", engineVersion, err)
	}
	return &Registry{
		engineVersion: v,
		strategies:    make(map[string]Strategy),
		minVersions:   make(map[string]string),
	}, nil
}

// Register adds s under s.Name(), rejecting a strategy whose minEngineVersion
// constraint the running engine version does not satisfy.
func (r *Registry) Register(s Strategy, minEngineVersion string) error {
	if minEngineVersion != "" {
		c, err := semver.NewConstraint(">= " + minEngineVersion)
		if err != nil {
			return fmt.Errorf("strategy %s: bad version constraint %q: %w", s.Name(), minEngineVersion, err)
		}
		if !c.Check(r.engineVersion) {
			return fmt.Errorf("strategy %s: requires engine >= %s, running %s", s.Name(), minEngineVersion, r.engineVersion)
		}
	}
	if _, exists := r.strategies[s.Name()]; exists {
		return fmt.Errorf("strategy: %s already registered", s.Name())
	}
	r.strategies[s.Name()] = s
	r.minVersions[s.Name()] = minEngineVersion
	return nil
}

// Lookup returns the strategy registered under name.
func (r *Registry) Lookup(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Resolve returns the strategies named in names, in the same order,
// erroring on the first unknown name. Used by the Voting Layer to
// consult a user's enabled set (or the system default bundle).
func (r *Registry) Resolve(names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, ok := r.strategies[n]
		if !ok {
			return nil, fmt.Errorf("strategy: unknown strategy %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

// All enumerates every registered strategy name.
func (r *Registry) All() []string {
	out := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		out = append(out, n)
	}
	return out
}

// Count returns the number of registered strategies. The Voting Layer
// must NOT use this as N — spec §9 Open Question 4 fixes N to the
// user-enabled count, not the registered count.
func (r *Registry) Count() int {
	return len(r.strategies)
}

// SafeAnalyze runs s.Analyze and converts any panic or error into HOLD,
// per spec §7's propagation policy: "strategy analysis never throws out;
// any exception inside analyze is converted to HOLD by the registry."
func SafeAnalyze(ctx context.Context, s Strategy, market string, candles []candle.Candle, tctx Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Signal: Hold}
		}
	}()
	res, err := s.Analyze(ctx, market, candles, tctx)
	if err != nil {
		return Result{Signal: Hold}
	}
	return res
}

// Param resolves a strategy parameter through the ParameterStore,
// falling back from user-specific to global to the caller-supplied
// hard-coded default. Every strategy threshold/period/multiplier must be
// read through this helper, never hard-coded inline.
func Param(ctx context.Context, store ports.ParameterStore, strategyName, userID, key string, def string) (string, error) {
	if v, _, ok, err := store.Resolve(ctx, strategyName, userID, key); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}
	if v, _, ok, err := store.Resolve(ctx, strategyName, "", key); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}
	return def, nil
}
