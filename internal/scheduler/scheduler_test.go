package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/clock"
	"github.com/tradsys-core/engine/internal/ports"
	"github.com/tradsys-core/engine/internal/realtime"
	"github.com/tradsys-core/engine/internal/strategy"
)

type countingRunner struct {
	calls int32
}

func (c *countingRunner) Tick(ctx context.Context, in realtime.TickInput) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

type emptyUsers struct{}

func (emptyUsers) EnabledUsers(ctx context.Context) ([]ports.UserProfile, error) { return nil, nil }
func (emptyUsers) EnabledStrategies(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func TestNew_BuildsWithDefaultConfig(t *testing.T) {
	reg, err := strategy.NewRegistry("1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(emptyUsers{}, reg, nil, &countingRunner{}, nil, nil, clock.New(), zap.NewNop(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if s.tickInterval != defaultTickInterval {
		t.Fatalf("expected default tick interval, got %v", s.tickInterval)
	}
}

func TestRunMarketTick_SecondCallDuringHeldLeaseIsDropped(t *testing.T) {
	reg, _ := strategy.NewRegistry("1.0.0")
	runner := &countingRunner{}
	s, err := New(emptyUsers{}, reg, nil, runner, nil, nil, clock.NewFrozen(time.Now()), zap.NewNop(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	release, ok := s.leases.TryAcquire("u1", "KRW-BTC")
	if !ok {
		t.Fatal("expected to acquire the lease")
	}
	s.runMarketTick(context.Background(), ports.UserProfile{UserID: "u1"}, "KRW-BTC", nil, riskContext{})
	if atomic.LoadInt32(&runner.calls) != 0 {
		t.Fatal("tick must not run while the lease is already held")
	}
	release()

	s.runMarketTick(context.Background(), ports.UserProfile{UserID: "u1"}, "KRW-BTC", nil, riskContext{})
	if atomic.LoadInt32(&runner.calls) != 1 {
		t.Fatalf("expected exactly one tick after the lease was released, got %d", runner.calls)
	}
}
