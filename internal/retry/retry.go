// Package retry runs a single-attempt operation repeatedly under a
// backoff.Policy. The operation decides what is worth retrying: wrapping an
// error with Permanent, or rejecting it through Config.Retryable, stops the
// loop immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/switchboard/internal/backoff"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// Policy computes the wait after each failed attempt.
	Policy backoff.Policy
	// Retryable decides whether a failed attempt may be repeated.
	// Defaults to "not permanent".
	Retryable func(err error) bool
	// Sleep waits between attempts. Defaults to backoff.Sleep; tests inject
	// a recorder here.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt is called after every attempt with its outcome.
	OnAttempt func(attempt int, err error)
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent, including waits.
	Duration time.Duration
}

// Do executes op until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx ends. Attempt numbers start at 1.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) (T, error)) (T, Result) {
	start := time.Now()
	var zero T
	var result Result

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = backoff.Sleep
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool { return !IsPermanent(err) }
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if result.Err == nil {
				result.Err = err
			}
			result.Duration = time.Since(start)
			return zero, result
		}

		result.Attempts = attempt
		value, err := op(ctx, attempt)
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, err)
		}
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return value, result
		}
		result.Err = err

		if !cfg.Retryable(err) || attempt == cfg.MaxAttempts {
			break
		}

		if sleepErr := cfg.Sleep(ctx, cfg.Policy.Delay(attempt)); sleepErr != nil {
			break
		}
	}

	result.Duration = time.Since(start)
	return zero, result
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
