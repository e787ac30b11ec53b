package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Attempt(context.Background(), 3, 0, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestAttemptExhausted(t *testing.T) {
	cause := errors.New("quota exceeded")
	calls := 0
	err := Attempt(context.Background(), 3, time.Millisecond, func(ctx context.Context, attempt int) error {
		calls++
		return cause
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestAttemptHonoursContextDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Attempt(ctx, 3, time.Hour, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsValue(t *testing.T) {
	v, err := Do(context.Background(), 0, 0, func(ctx context.Context, attempt int) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestClientRetriesRetryableStatus(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.Client(), 2)
	client.baseDelay = time.Millisecond

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.Client(), 3)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClientZeroRetriesReturnsFirstResponse(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClientExhaustedReturnsLastResponse(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.Client(), 2)
	client.baseDelay = time.Millisecond
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRetryAfter(t *testing.T) {
	limit := 30 * time.Second
	assert.Equal(t, 2*time.Second, retryAfter("2", limit))
	assert.Equal(t, limit, retryAfter("600", limit))
	assert.Zero(t, retryAfter("", limit))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT", limit))
	assert.Zero(t, retryAfter("-1", limit))
}

func TestBackoffBounds(t *testing.T) {
	client := NewClient(nil, 5)
	for attempt := 1; attempt <= 8; attempt++ {
		d := client.backoff(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, client.maxDelay)
	}
}

func TestAttemptStopEndsImmediately(t *testing.T) {
	final := errors.New("quota wait exceeds deadline")
	calls := 0
	err := Attempt(context.Background(), 3, time.Millisecond, func(ctx context.Context, attempt int) error {
		calls++
		return Stop(final)
	})

	assert.Same(t, final, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Stop(nil))
}
