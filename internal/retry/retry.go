// Package retry wraps a single remote call with exponential-backoff retries
// and cooperative cancellation through context.Context.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"robotfleet/internal/apperrors"
	"robotfleet/pkg/backoff"
	"time"
)

// Defaults for mutating calls.
const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second
)

// Policy controls how many times an operation is retried and how long to wait
// before each retry. Delays double: RetryDelay, 2*RetryDelay, 4*RetryDelay, ...
type Policy struct {
	MaxRetries int           `yaml:"maxRetries" json:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay" json:"retryDelay"`
}

// DefaultPolicy returns the policy used by mutating commands.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, RetryDelay: DefaultRetryDelay}
}

// withDefaults fills in invalid values.
func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	return p
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	return p.withDefaults().MaxRetries + 1
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// MetricsRecorder is an optional interface for recording call metrics.
type MetricsRecorder interface {
	RecordAttempt(ctx context.Context, operation string, success bool, durationSeconds float64)
	RecordRetry(ctx context.Context, operation string)
	RecordCancelled(ctx context.Context, operation string)
	RecordExhausted(ctx context.Context, operation string)
}

// Executor runs operations under a Policy. A nil *Executor uses real sleeps
// and the default logger.
type Executor struct {
	sleep   SleepFunc
	metrics MetricsRecorder
	logger  *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep replaces the backoff sleep. Tests use it to observe delays.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithMetrics records attempts, retries and cancellations.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{sleep: Sleep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExecutor = &Executor{sleep: Sleep}

func (e *Executor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default().With("component", "retry")
}

// Sleep waits for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute calls fn up to p.MaxRetries+1 times. A failure caused by ctx being
// cancelled returns apperrors.Cancelled immediately with no further attempt;
// exhausting all attempts returns apperrors.Transport carrying the last error.
func Execute[T any](ctx context.Context, e *Executor, p Policy, name string, fn func(context.Context) (T, error)) (T, error) {
	if e == nil {
		e = defaultExecutor
	}
	if e.sleep == nil {
		e = &Executor{sleep: Sleep, metrics: e.metrics, logger: e.logger}
	}
	p = p.withDefaults()
	cfg := &backoff.Config{Initial: p.RetryDelay}
	logger := e.log().With("operation", name)

	var zero T
	var lastErr error
	for attempt := range p.MaxRetries + 1 {
		if attempt > 0 {
			delay := backoff.Exponential(attempt, cfg)
			if e.metrics != nil {
				e.metrics.RecordRetry(ctx, name)
			}
			logger.Debug("Retrying", "attempt", attempt+1, "delay", delay, "error", lastErr)
			if err := e.sleep(ctx, delay); err != nil {
				return zero, e.cancelled(ctx, logger, name)
			}
		}

		start := time.Now()
		result, err := fn(ctx)
		if e.metrics != nil {
			e.metrics.RecordAttempt(ctx, name, err == nil, time.Since(start).Seconds())
		}
		if err == nil {
			return result, nil
		}
		if isCancellation(ctx, err) {
			return zero, e.cancelled(ctx, logger, name)
		}

		lastErr = err
		logger.Debug("Attempt failed", "attempt", attempt+1, "error", err)
	}

	if e.metrics != nil {
		e.metrics.RecordExhausted(ctx, name)
	}
	logger.Warn("Retries exhausted", "attempts", p.MaxRetries+1, "error", lastErr)
	return zero, apperrors.Transport(name, lastErr)
}

func (e *Executor) cancelled(ctx context.Context, logger *slog.Logger, name string) error {
	if e.metrics != nil {
		e.metrics.RecordCancelled(ctx, name)
	}
	logger.Debug("Request cancelled")
	return apperrors.Cancelled(name)
}

// isCancellation reports whether err stems from the caller abandoning the call.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || apperrors.IsCancelled(err)
}
