package client

import (
	"context"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retries of a single HTTP call on transient
// failures. The delay starts at InitialInterval and doubles after each
// failed attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// DefaultRetryPolicy makes up to 5 attempts, sleeping 0.5s, 1s, 2s and 4s
// in between.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	attempts := max(p.MaxAttempts, 1)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Do runs fn until it succeeds, fails with a non transient error, or the
// policy is exhausted, in which case a *TimeoutError is returned.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := 0
	permanent := false
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err != nil && !isTransient(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, next time.Duration) {
		slog.Warn("retrying request", "op", op, "attempt", attempts, "delay", next, "error", err)
	})
	if err == nil || permanent || ctx.Err() != nil {
		return err
	}
	slog.Error("max retries reached", "op", op, "attempts", attempts)
	return &TimeoutError{Op: op, Attempts: attempts, Err: err}
}
