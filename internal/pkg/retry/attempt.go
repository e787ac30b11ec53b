package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ExhaustedError is returned by Attempt when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as final: Attempt and Do return it unwrapped without
// further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// Attempt runs fn up to maxAttempts times, sleeping delay between attempts.
// A maxAttempts below 1 is treated as 1. The wait is interrupted by ctx,
// in which case the context error is returned.
func Attempt(ctx context.Context, maxAttempts int, delay time.Duration, fn func(ctx context.Context, attempt int) error) error {
	_, err := Do(ctx, maxAttempts, delay, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// Do is the value-returning form of Attempt.
func Do[T any](ctx context.Context, maxAttempts int, delay time.Duration, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		var stop *stopError
		if errors.As(err, &stop) {
			return zero, stop.err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}
