package errors

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential retry of transient failures.
type RetryConfig struct {
	MaxAttempts     int           // Retries after the first attempt
	InitialInterval time.Duration // First backoff interval
	MaxInterval     time.Duration // Upper bound for one backoff interval
}

// DefaultRetryConfig returns the defaults used for reasoning requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	b.MaxElapsedTime = 0
	var policy backoff.BackOff = b
	if c.MaxAttempts >= 0 {
		policy = backoff.WithMaxRetries(b, uint64(c.MaxAttempts))
	}
	return backoff.WithContext(policy, ctx)
}

// RetryWithResult runs fn until it succeeds, returns a non-transient error,
// exhausts the configured attempts, or ctx is done. onRetry, when set, is
// called before each wait.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error), onRetry func(err error, wait time.Duration)) (T, error) {
	var result T
	operation := func() error {
		out, err := fn(ctx)
		if err == nil {
			result = out
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, wait time.Duration) { onRetry(err, wait) }
	}
	err := backoff.RetryNotify(operation, cfg.backOff(ctx), notify)
	return result, err
}
