package generation

import (
	"context"
	"errors"
	"time"

	"github.com/juju/ratelimit"
	"github.com/sony/gobreaker"

	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/metrics"
)

// BreakerState mirrors gobreaker states with stable names.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// GuardConfig holds breaker and throttling settings.
type GuardConfig struct {
	Name string
	// RatePerSecond and Burst size the token bucket. A zero rate disables
	// throttling.
	RatePerSecond float64
	Burst         int64
	// MaxWait bounds how long a call may wait for a token before failing
	// with KindQuota.
	MaxWait time.Duration

	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
}

// DefaultGuardConfig returns settings suited to a single completion backend.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Name:             "text-generation",
		RatePerSecond:    2,
		Burst:            5,
		MaxWait:          2 * time.Second,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.6,
		MinRequests:      10,
	}
}

// Guarded wraps a TextGenerationClient with a token bucket and a circuit
// breaker. Quota and empty responses do not count against the breaker.
type Guarded struct {
	next    interfaces.TextGenerationClient
	cb      *gobreaker.CircuitBreaker
	bucket  *ratelimit.Bucket
	maxWait time.Duration
}

var _ interfaces.TextGenerationClient = (*Guarded)(nil)

// NewGuarded wraps next.
func NewGuarded(next interfaces.TextGenerationClient, cfg GuardConfig) *Guarded {
	g := &Guarded{next: next, maxWait: cfg.MaxWait}

	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.bucket = ratelimit.NewBucketWithRate(cfg.RatePerSecond, burst)
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", string(mapState(from)),
				"to", string(mapState(to)),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch KindOf(err) {
			case KindQuota, KindEmpty:
				return true
			}
			return errors.Is(err, context.Canceled)
		},
	})

	return g
}

// Complete throttles, then calls the wrapped client through the breaker.
func (g *Guarded) Complete(ctx context.Context, prompt string, opts interfaces.GenerationOptions) (string, error) {
	start := time.Now()

	if g.bucket != nil && !g.bucket.WaitMaxDuration(1, g.maxWait) {
		err := newError(KindQuota, 0, errors.New("local generation rate limit exceeded"))
		metrics.RecordGeneration(string(KindQuota), time.Since(start))
		return "", err
	}

	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, prompt, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = newError(KindCircuitOpen, 0, err)
		}
		metrics.RecordGeneration(string(KindOf(err)), time.Since(start))
		return "", err
	}

	metrics.RecordGeneration("success", time.Since(start))
	return out.(string), nil
}

// State reports the breaker state.
func (g *Guarded) State() BreakerState {
	return mapState(g.cb.State())
}

func mapState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
