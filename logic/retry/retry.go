// Package retry runs an operation under an explicit, testable retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned (wrapping the last failure) when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Policy describes how many times an operation is attempted and how long to wait
// between attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// Backoff returns the delay before the attempt following attempt (1-based)
	// that failed with err.
	Backoff func(attempt int, err error) time.Duration
	// Retryable decides whether err is worth another attempt.
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done. Defaults to a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each backoff sleep. Optional.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Permanent marks err as not retryable regardless of the policy's predicate.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. fn receives the 1-based attempt number.
// No sleep happens after the final attempt.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if IsPermanent(err) || (p.Retryable != nil && !p.Retryable(err)) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt, err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Sleep blocks for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Linear returns a backoff of attempt*step.
func Linear(step time.Duration) func(int, error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Constant returns a fixed backoff.
func Constant(d time.Duration) func(int, error) time.Duration {
	return func(int, error) time.Duration {
		return d
	}
}
