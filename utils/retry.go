package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn up to attempts times with linear backoff:
//
//	attempt 1 fails → wait 1×backoff
//	attempt 2 fails → wait 2×backoff
//
// It stops early when fn succeeds, fn returns a Permanent error, or ctx is done.
// The returned error wraps the last failure.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < attempts {
			wait := time.Duration(attempt) * backoff
			Debug("Attempt %d/%d failed: %v, retrying in %v", attempt, attempts, lastErr, wait)
			if err := Sleep(ctx, wait); err != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
			}
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", attempts, lastErr)
}
