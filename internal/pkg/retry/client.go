// Package retry provides a fixed-delay retry combinator for arbitrary actions
// and an HTTP client with exponential backoff and jitter for transient
// API failures (429 and 5xx).
package retry

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/haven/analytics-sync/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *Client satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client retries quota and server errors from an upstream API.
type Client struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient wraps client (a 60s http.Client when nil). maxRetries counts the
// extra attempts after the first request; zero disables transport retries.
func NewClient(client HTTPDoer, maxRetries int) *Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		client:     client,
		maxRetries: max(maxRetries, 0),
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// Do sends req, retrying on 429/5xx and transport errors. A Retry-After
// header on the failed response overrides the computed backoff. The last
// response is returned unchanged so the caller can decode the API error.
func (rc *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	var wait time.Duration

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("retry: failed to reset request body: %w", err)
				}
				req.Body = body
			}
			if wait == 0 {
				wait = rc.backoff(attempt)
			}
			logger.Warn("retrying analytics request",
				"attempt", attempt, "max_retries", rc.maxRetries,
				"path", req.URL.Path, "wait", wait.String(), "error", lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, firstErr(lastErr, err)
			}
		}

		resp, err := rc.client.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr, wait = err, 0
		case !retryable(resp.StatusCode) || attempt == rc.maxRetries:
			return resp, nil
		default:
			wait = retryAfter(resp.Header.Get("Retry-After"), rc.maxDelay)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("retry: server returned %d", resp.StatusCode)
		}

		if attempt == rc.maxRetries {
			return nil, lastErr
		}
	}
}

// backoff is a full-jitter delay in [100ms, min(maxDelay, baseDelay*2^(attempt-1))].
func (rc *Client) backoff(attempt int) time.Duration {
	ceiling := rc.baseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	return max(time.Duration(rand.Int63n(int64(ceiling)+1)), 100*time.Millisecond)
}

// retryAfter parses a delay-seconds Retry-After value, capped at limit.
// HTTP-date values and garbage yield zero.
func retryAfter(v string, limit time.Duration) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, limit)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500 && status != http.StatusNotImplemented
}
