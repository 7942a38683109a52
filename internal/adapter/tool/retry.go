package tool

import (
	"context"
	"time"
)

// RetryPolicy controls the retry-with-classifier combinator.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// BaseDelay is the backoff before the first retry; it doubles on each
	// subsequent retry up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Classify decides whether an error is worth retrying. A nil Classify
	// retries everything.
	Classify func(error) bool
	// Reconnect, if non-nil, runs between attempts to restore transport
	// state. Its error aborts the retry loop.
	Reconnect func(context.Context) error
}

// Retry runs op up to policy.Attempts times, backing off exponentially and
// invoking the reconnect callback between attempts. Only errors accepted by
// the classifier are retried; the last error is returned on exhaustion.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if policy.Classify != nil && !policy.Classify(err) {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}

		if policy.Reconnect != nil {
			if rerr := policy.Reconnect(ctx); rerr != nil {
				return zero, rerr
			}
		}
	}
	return zero, lastErr
}
