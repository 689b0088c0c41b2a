package authflow

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOptions control WithRetry. The zero value is usable; missing fields
// fall back to the defaults below.
type RetryOptions struct {
	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay seeds the exponential backoff schedule.
	InitialDelay time.Duration
	// MaxDelay caps the computed delay before jitter.
	MaxDelay time.Duration
	// ShouldRetry decides whether a failed attempt is worth repeating.
	// When it returns false the error propagates immediately.
	ShouldRetry func(error) bool
	// OnAttempt observes each failed attempt, for diagnostics.
	OnAttempt func(attempt int, err error)
}

const (
	defaultRetryAttempts     = 3
	defaultRetryInitialDelay = time.Second
	defaultRetryMaxDelay     = 30 * time.Second
)

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultRetryAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = defaultRetryInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultRetryMaxDelay
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = func(error) bool { return true }
	}
	return o
}

// WithRetry runs op until it succeeds, attempts are exhausted, or ShouldRetry
// rejects the failure. Between attempts the delay doubles up to MaxDelay,
// with a uniformly random 0-25% jitter added on top. The last error is
// returned as-is; WithRetry holds no state between calls.
func WithRetry[T any](ctx context.Context, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	cfg := opts.withDefaults()
	var zero T

	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, err)
		}
		if attempt >= cfg.MaxAttempts || !cfg.ShouldRetry(err) {
			return zero, err
		}

		delay = min(delay*2, cfg.MaxDelay)
		select {
		case <-time.After(delay + jitter(delay)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// jitter returns a uniformly random duration in [0, d/4].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)/4 + 1))
}
