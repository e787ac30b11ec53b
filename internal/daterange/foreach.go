package daterange

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/haven/analytics-sync/internal/pkg/retry"
)

const (
	// DefaultMaxAttempts is the total number of tries per chunk action.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the fixed pause between attempts.
	DefaultRetryDelay = 2 * time.Second
)

// Action is invoked once per chunk.
type Action func(ctx context.Context, chunk Chunk) error

// Progress receives (current, total, label) updates. The total is an
// estimate; current may exceed it by one.
type Progress interface {
	Report(current, total int, label string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(current, total int, label string)

func (f ProgressFunc) Report(current, total int, label string) { f(current, total, label) }

// ActionExhaustedError is returned when a chunk's action failed on every attempt.
type ActionExhaustedError struct {
	Chunk    Chunk
	Attempts int
	Err      error
}

func (e *ActionExhaustedError) Error() string {
	return fmt.Sprintf("chunk %s failed after %d attempts: %v", e.Chunk, e.Attempts, e.Err)
}

func (e *ActionExhaustedError) Unwrap() error { return e.Err }

type options struct {
	progress    Progress
	callsPerSec float64
	maxAttempts int
	retryDelay  time.Duration
	onRetry     func(chunk Chunk, attempt int, err error)
}

// Option configures ForEach.
type Option func(*options)

// WithProgress sets the progress reporter.
func WithProgress(p Progress) Option {
	return func(o *options) { o.progress = p }
}

// WithRateLimit enforces a minimum interval of 1/callsPerSecond between
// action invocations. Zero or negative disables limiting.
func WithRateLimit(callsPerSecond float64) Option {
	return func(o *options) { o.callsPerSec = callsPerSecond }
}

// WithRetry overrides the attempt count and fixed delay.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.retryDelay = delay
	}
}

// WithRetryHook is called after each failed attempt that will be retried.
func WithRetryHook(fn func(chunk Chunk, attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// ForEach chunks span by g and runs action on every chunk in order.
// Validation errors are returned before any action runs. A chunk whose
// action fails on every attempt aborts the walk with *ActionExhaustedError.
func ForEach(ctx context.Context, span Span, g Granularity, action Action, opts ...Option) error {
	o := options{maxAttempts: DefaultMaxAttempts, retryDelay: DefaultRetryDelay}
	for _, opt := range opts {
		opt(&o)
	}

	chunks, err := Chunks(span, g)
	if err != nil {
		return err
	}
	total, err := EstimateCount(span, g)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if o.callsPerSec > 0 {
		// Burst of one: each call waits for the previous interval to elapse.
		limiter = rate.NewLimiter(rate.Limit(o.callsPerSec), 1)
	}

	label := "Downloading reports by " + g.Label()
	for i, chunk := range chunks {
		var waitErr error
		err := retry.Attempt(ctx, o.maxAttempts, o.retryDelay, func(ctx context.Context, attempt int) error {
			if limiter != nil {
				// A wait that cannot finish before the deadline is not an action failure
				if waitErr = limiter.Wait(ctx); waitErr != nil {
					return retry.Stop(waitErr)
				}
			}
			err := action(ctx, chunk)
			if err != nil && o.onRetry != nil && attempt < o.maxAttempts {
				o.onRetry(chunk, attempt, err)
			}
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if waitErr != nil {
				return fmt.Errorf("rate limit wait before chunk %s: %w (%v)", chunk, context.DeadlineExceeded, waitErr)
			}
			return exhausted(chunk, err)
		}
		if o.progress != nil {
			o.progress.Report(i+1, total, label)
		}
	}
	return nil
}

func exhausted(chunk Chunk, err error) error {
	if ex, ok := err.(*retry.ExhaustedError); ok {
		return &ActionExhaustedError{Chunk: chunk, Attempts: ex.Attempts, Err: ex.Err}
	}
	return &ActionExhaustedError{Chunk: chunk, Attempts: 1, Err: err}
}
