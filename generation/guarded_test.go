package generation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thiskanishk/healthassist-cds/interfaces"
)

// stubClient implements interfaces.TextGenerationClient
type stubClient struct {
	out   string
	err   error
	calls atomic.Int32
}

func (s *stubClient) Complete(ctx context.Context, prompt string, opts interfaces.GenerationOptions) (string, error) {
	s.calls.Add(1)
	return s.out, s.err
}

func testGuardConfig() GuardConfig {
	cfg := DefaultGuardConfig()
	cfg.RatePerSecond = 0
	cfg.FailureThreshold = 3
	cfg.OpenTimeout = time.Minute
	return cfg
}

func TestGuardedPassesThrough(t *testing.T) {
	stub := &stubClient{out: "ok"}
	g := NewGuarded(stub, testGuardConfig())

	out, err := g.Complete(context.Background(), "p", interfaces.GenerationOptions{})
	if err != nil || out != "ok" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
	if g.State() != StateClosed {
		t.Errorf("expected closed breaker, got %s", g.State())
	}
}

func TestGuardedOpensAfterFailures(t *testing.T) {
	stub := &stubClient{err: newError(KindNetwork, 0, errors.New("connection reset"))}
	g := NewGuarded(stub, testGuardConfig())

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), "p", interfaces.GenerationOptions{})
		if KindOf(err) != KindNetwork {
			t.Fatalf("call %d: expected network error, got %v", i, err)
		}
	}
	if g.State() != StateOpen {
		t.Fatalf("expected open breaker, got %s", g.State())
	}

	_, err := g.Complete(context.Background(), "p", interfaces.GenerationOptions{})
	if KindOf(err) != KindCircuitOpen {
		t.Fatalf("expected circuit_open, got %v", err)
	}
	if stub.calls.Load() != 3 {
		t.Errorf("open breaker must not call through, got %d calls", stub.calls.Load())
	}
}

func TestGuardedQuotaDoesNotTrip(t *testing.T) {
	stub := &stubClient{err: newError(KindQuota, 429, errors.New("slow down"))}
	g := NewGuarded(stub, testGuardConfig())

	for i := 0; i < 10; i++ {
		_, _ = g.Complete(context.Background(), "p", interfaces.GenerationOptions{})
	}
	if g.State() != StateClosed {
		t.Errorf("quota errors should not open the breaker, got %s", g.State())
	}
}

func TestGuardedRateLimit(t *testing.T) {
	stub := &stubClient{out: "ok"}
	cfg := testGuardConfig()
	cfg.RatePerSecond = 0.001
	cfg.Burst = 1
	cfg.MaxWait = 0
	g := NewGuarded(stub, cfg)

	if _, err := g.Complete(context.Background(), "p", interfaces.GenerationOptions{}); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}
	_, err := g.Complete(context.Background(), "p", interfaces.GenerationOptions{})
	if KindOf(err) != KindQuota {
		t.Fatalf("expected local quota error, got %v", err)
	}
	if stub.calls.Load() != 1 {
		t.Errorf("throttled call must not reach the client, got %d calls", stub.calls.Load())
	}
}
