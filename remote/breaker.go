package remote

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-entity-cache/internal/logging"
	"github.com/goliatone/go-entity-cache/internal/metrics"
	"github.com/goliatone/go-errors"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breakers guarding a Source.
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed in half-open state.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval is the cyclic reset period for counts in closed state.
	Interval time.Duration `koanf:"interval"`

	// Timeout is the duration in open state before trying half-open.
	Timeout time.Duration `koanf:"timeout"`

	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker decorates a Source with one circuit breaker per operation, so a
// failing write path does not block reads.
type Breaker struct {
	next   Source
	logger zerolog.Logger
	fetch  *gobreaker.CircuitBreaker[[]json.RawMessage]
	write  *gobreaker.CircuitBreaker[json.RawMessage]
	pages  *gobreaker.CircuitBreaker[Page]
}

var _ Source = (*Breaker)(nil)

// NewBreaker wraps next.
func NewBreaker(next Source, cfg BreakerConfig) *Breaker {
	b := &Breaker{
		next:   next,
		logger: logging.WithComponent("remote"),
	}
	b.fetch = gobreaker.NewCircuitBreaker[[]json.RawMessage](b.settings(next.ID()+".fetch", cfg))
	b.write = gobreaker.NewCircuitBreaker[json.RawMessage](b.settings(next.ID()+".mutate", cfg))
	b.pages = gobreaker.NewCircuitBreaker[Page](b.settings(next.ID()+".pages", cfg))
	return b
}

func (b *Breaker) settings(name string, cfg BreakerConfig) gobreaker.Settings {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultBreakerConfig().FailureThreshold
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// callers giving up say nothing about the backend's health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, float64(to))
			b.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
}

func (b *Breaker) ID() string { return b.next.ID() }

func (b *Breaker) BulkFetch(ctx context.Context, req BulkRequest) ([]json.RawMessage, error) {
	out, err := b.fetch.Execute(func() ([]json.RawMessage, error) {
		return b.next.BulkFetch(ctx, req)
	})
	return out, breakerError(err)
}

func (b *Breaker) Mutate(ctx context.Context, action Action) (json.RawMessage, error) {
	out, err := b.write.Execute(func() (json.RawMessage, error) {
		return b.next.Mutate(ctx, action)
	})
	return out, breakerError(err)
}

func (b *Breaker) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	out, err := b.pages.Execute(func() (Page, error) {
		return b.next.FetchPage(ctx, req)
	})
	return out, breakerError(err)
}

// State returns the state of the fetch breaker.
func (b *Breaker) State() gobreaker.State {
	return b.fetch.State()
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(err, errors.CategoryExternal, "remote unavailable")
	}
	return err
}
