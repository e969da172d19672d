package onchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardOptions configures RPC rate limiting and per-operation circuit breakers.
type GuardOptions struct {
	RequestsPerSecond float64
	Burst             int
	// FailureThreshold consecutive failures open an operation's breaker.
	FailureThreshold uint32
	// OpenTimeout is how long an open breaker rejects calls before probing.
	OpenTimeout time.Duration
	Logger      zerolog.Logger
}

// DefaultGuardOptions returns limits suited to a shared public RPC endpoint.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		RequestsPerSecond: 20,
		Burst:             40,
		FailureThreshold:  3,
		OpenTimeout:       30 * time.Second,
	}
}

// Guard throttles calls through one token bucket and isolates failing
// operations behind their own breaker.
type Guard struct {
	opts    GuardOptions
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewGuard creates a Guard. Zero fields take DefaultGuardOptions values.
func NewGuard(opts GuardOptions) *Guard {
	defaults := DefaultGuardOptions()
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = defaults.Burst
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaults.FailureThreshold
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaults.OpenTimeout
	}
	return &Guard{
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (g *Guard) breaker(op string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[op]; ok {
		return cb
	}
	threshold := g.opts.FailureThreshold
	logger := g.opts.Logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    op,
		Timeout: g.opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// Missing accounts are answers, not endpoint failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMintNotFound) || errors.Is(err, ErrPoolUnknown) ||
				errors.Is(err, ErrNoMetadata) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("operation", name).Str("from", from.String()).Str("to", to.String()).Msg("rpc breaker state change")
		},
	})
	g.breakers[op] = cb
	return cb
}

// State returns the breaker state of op.
func (g *Guard) State(op string) gobreaker.State {
	return g.breaker(op).State()
}

// Do waits for a rate token and runs fn through the breaker of op.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", op, err)
	}
	_, err := g.breaker(op).Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	return err
}
