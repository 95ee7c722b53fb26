package gateway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"

	"github.com/ashureev/mailsmith/internal/metrics"
)

// BreakerState mirrors the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerHalfOpen BreakerState = "half-open"
	BreakerOpen     BreakerState = "open"
)

func mapState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

// ResilienceConfig tunes the breaker and the retry policy.
type ResilienceConfig struct {
	MaxFailures   uint32
	ResetInterval time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	OnStateChange func(from, to BreakerState)
}

// Resilient wraps a Gateway with a circuit breaker and, for Complete,
// bounded retries. Streams are never retried once started.
type Resilient struct {
	inner   Gateway
	breaker *gobreaker.TwoStepCircuitBreaker
	cfg     ResilienceConfig
	logger  *slog.Logger
}

var _ Gateway = (*Resilient)(nil)

// NewResilient wraps inner.
func NewResilient(inner Gateway, cfg ResilienceConfig, logger *slog.Logger) *Resilient {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = 30 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway_breaker", "provider", inner.Name())

	r := &Resilient{inner: inner, cfg: cfg, logger: logger}
	r.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     cfg.ResetInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", mapState(from), "to", mapState(to))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(mapState(from), mapState(to))
			}
		},
	})
	return r
}

// Name implements Gateway.
func (r *Resilient) Name() string { return r.inner.Name() }

// State returns the breaker state.
func (r *Resilient) State() BreakerState { return mapState(r.breaker.State()) }

// Stream implements Gateway.
func (r *Resilient) Stream(ctx context.Context, req *Request) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		done, err := r.allow()
		if err != nil {
			r.observe("stream", "rejected", 0)
			yield(nil, err)
			return
		}

		start := time.Now()
		var streamErr error
		defer func() {
			done(countsAsSuccess(ctx, streamErr))
			r.observe("stream", outcome(streamErr), time.Since(start))
		}()

		for chunk, err := range r.inner.Stream(ctx, req) {
			if err != nil {
				streamErr = err
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Complete implements Gateway.
func (r *Resilient) Complete(ctx context.Context, req *Request) (string, error) {
	start := time.Now()
	text, err := retry.DoWithData(
		func() (string, error) {
			done, err := r.allow()
			if err != nil {
				return "", retry.Unrecoverable(err)
			}
			text, err := r.inner.Complete(ctx, req)
			done(countsAsSuccess(ctx, err))
			return text, err
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.RetryAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrCircuitOpen) && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("model completion failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	r.observe("complete", outcome(err), time.Since(start))
	return text, err
}

func (r *Resilient) allow() (func(bool), error) {
	done, err := r.breaker.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return done, nil
}

func (r *Resilient) observe(mode, result string, d time.Duration) {
	m := metrics.Get()
	m.GatewayRequests.WithLabelValues(r.inner.Name(), mode, result).Inc()
	if d > 0 {
		m.GatewayDuration.WithLabelValues(r.inner.Name(), mode).Observe(d.Seconds())
	}
}

// countsAsSuccess keeps client cancellations from tripping the breaker.
func countsAsSuccess(ctx context.Context, err error) bool {
	return err == nil || ctx.Err() != nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
