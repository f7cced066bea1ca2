// Package retry runs an operation with bounded attempts and exponential
// backoff, used for flaky external calls such as geocoding.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config bounds a retried operation.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Backoff is the base of the exponential wait: attempt n waits
	// Backoff^(n-1) times InitialWait.
	Backoff float64
	// InitialWait is the wait before the second attempt.
	InitialWait time.Duration
}

// Default matches the external-call policy: 3 attempts, x2 backoff, 1s base.
var Default = Config{MaxAttempts: 3, Backoff: 2.0, InitialWait: time.Second}

// PermanentError wraps an error that further attempts cannot fix, such as a
// client error from an upstream API. Do stops immediately when fn returns one.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The wait between attempts aborts early on context cancellation, so callers
// holding a dispatcher goroutine are never stuck past their deadline.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	wait := cfg.InitialWait
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = time.Duration(float64(wait) * cfg.Backoff)
	}
	return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
