package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig sizes the breaker and limiter placed in front of one remote dependency.
type GuardConfig struct {
	Name           string
	RequestsPerSec float64
	Burst          int
	MaxRequests    uint32
	Interval       time.Duration
	OpenTimeout    time.Duration
	MinRequests    uint32
	FailureRatio   float64
}

func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:           name,
		RequestsPerSec: 5,
		Burst:          5,
		MaxRequests:    3,
		Interval:       30 * time.Second,
		OpenTimeout:    60 * time.Second,
		MinRequests:    5,
		FailureRatio:   0.6,
	}
}

// Guard rate-limits calls and trips open after repeated failures.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGuard(cfg GuardConfig) *Guard {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the remote side
			return err == nil || err == context.Canceled
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Guard{breaker: breaker, limiter: rate.NewLimiter(limit, burst)}
}

// Do waits for a rate-limit token and runs fn through the breaker.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
