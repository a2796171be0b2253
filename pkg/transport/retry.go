package transport

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/provider"
)

// Retrier wraps an operation with exponential backoff. Delay selection
// prefers a server-provided retry-after hint over the computed backoff,
// capped at the policy's MaxDelay.
type Retrier struct {
	policy provider.RetryConfig
}

// NewRetrier returns a Retrier for the given policy. Zero fields fall
// back to the provider defaults.
func NewRetrier(policy provider.RetryConfig) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = provider.DefaultRetry().MaxAttempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = provider.DefaultRetry().InitialDelay
	}
	if policy.BackoffFactor <= 1 {
		policy.BackoffFactor = provider.DefaultRetry().BackoffFactor
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = provider.DefaultRetry().MaxDelay
	}
	if policy.MaxElapsed <= 0 {
		policy.MaxElapsed = provider.DefaultRetry().MaxElapsed
	}
	return &Retrier{policy: policy}
}

// backOff builds the per-call backoff schedule. Jitter stays within
// 10% of the nominal delay so consecutive retries remain ordered.
func (r *Retrier) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialDelay
	b.Multiplier = r.policy.BackoffFactor
	b.MaxInterval = r.policy.MaxDelay
	b.RandomizationFactor = 0.1
	return b
}

// Do runs op until it succeeds, fails permanently, or the attempt and
// elapsed-time budgets run out. Permanent failures return the original
// error unchanged; exhausted rate limits carry the attempt count.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	wrapped := func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		if after, ok := retryAfterHint(err); ok && after <= r.policy.MaxDelay {
			debug.Log("retry", "server requested delay", "after", after, "attempt", attempts)
			return v, &backoff.RetryAfterError{Duration: after}
		}
		debug.Log("retry", "retryable failure", "attempt", attempts, "error", err)
		return v, err
	}

	v, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(r.policy.MaxElapsed),
	)
	if err != nil {
		var rle *RateLimitedError
		if errors.As(err, &rle) {
			rle.Attempts = attempts
		}
	}
	return v, err
}

// retryAfterHint extracts a server-supplied delay from a rate limit
// error, when present.
func retryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}
