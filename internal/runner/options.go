package runner

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/roach88/cachesync/internal/runner"

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithTracer sets the tracer used for one span per unit execution.
// Default: the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

// WithRetry retries a failed save up to maxRetries more times with
// exponential backoff starting at initial. maxRetries of 0 disables retry.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	if maxRetries == 0 {
		return WithBackOff(nil)
	}
	return WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(initial),
				backoff.WithMaxInterval(30*initial),
			),
			maxRetries,
		)
	})
}

// WithBackOff sets the retry policy factory. A nil factory disables retry.
// A new BackOff is created for every unit execution.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Runner) {
		r.newBackOff = newBackOff
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
