// Package export drives report downloads: it walks a date span chunk by
// chunk, flattens the responses and hands finished tables to a storage sink.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haven/analytics-sync/internal/analytics"
	"github.com/haven/analytics-sync/internal/daterange"
	"github.com/haven/analytics-sync/internal/flatten"
	"github.com/haven/analytics-sync/internal/pkg/distlock"
	"github.com/haven/analytics-sync/internal/pkg/logger"
	"github.com/haven/analytics-sync/internal/report"
	"github.com/haven/analytics-sync/internal/storage"
)

// DefaultViewColumn is the column holding the view name in exported tables.
const DefaultViewColumn = "view_name"

// ErrUnknownView is returned for a view without an ID.
var ErrUnknownView = errors.New("unknown view")

// Fetcher retrieves every page of a report request.
type Fetcher interface {
	FetchAll(ctx context.Context, req analytics.ReportRequest) ([]analytics.Response, error)
}

// View is an Analytics view by display name and ID.
type View struct {
	Name string
	ID   string
}

// ChunkResponse holds the responses for one chunk of the span.
type ChunkResponse struct {
	Chunk     daterange.Chunk
	Responses []analytics.Response
}

// Exporter downloads reports and writes them through a sink.
type Exporter struct {
	client      Fetcher
	sink        storage.Sink
	manifest    storage.Manifest
	cache       *Cache
	locker      func(key string) distlock.DistLock
	progress    daterange.Progress
	flattener   *flatten.Flattener
	paths       *PathTemplate
	viewColumn  string
	rateLimit   float64
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithManifest records every written table.
func WithManifest(m storage.Manifest) Option {
	return func(e *Exporter) { e.manifest = m }
}

// WithCache serves completed chunks from Redis on reruns.
func WithCache(c *Cache) Option {
	return func(e *Exporter) { e.cache = c }
}

// WithLocker guards each view/report export with a distributed lock.
func WithLocker(fn func(key string) distlock.DistLock) Option {
	return func(e *Exporter) { e.locker = fn }
}

// WithProgress replaces the logging progress reporter.
func WithProgress(p daterange.Progress) Option {
	return func(e *Exporter) { e.progress = p }
}

// WithFlattener sets the flattener used by Table.
func WithFlattener(f *flatten.Flattener) Option {
	return func(e *Exporter) { e.flattener = f }
}

// WithPathTemplate sets the output key template.
func WithPathTemplate(t *PathTemplate) Option {
	return func(e *Exporter) { e.paths = t }
}

// WithViewColumn renames the view column.
func WithViewColumn(name string) Option {
	return func(e *Exporter) { e.viewColumn = name }
}

// WithRateLimit caps API calls per second.
func WithRateLimit(callsPerSecond float64) Option {
	return func(e *Exporter) { e.rateLimit = callsPerSecond }
}

// WithRetry sets the per-chunk attempt count and delay.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(e *Exporter) {
		e.maxAttempts = maxAttempts
		e.retryDelay = delay
	}
}

// New creates an Exporter.
func New(client Fetcher, sink storage.Sink, opts ...Option) *Exporter {
	e := &Exporter{
		client:      client,
		sink:        sink,
		progress:    LogProgress(),
		flattener:   flatten.New(),
		paths:       DefaultPathTemplate(),
		viewColumn:  DefaultViewColumn,
		maxAttempts: daterange.DefaultMaxAttempts,
		retryDelay:  daterange.DefaultRetryDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch downloads rep for view over span, one request per chunk of the
// report's granularity. A chunk that fails every attempt aborts the fetch.
func (e *Exporter) Fetch(ctx context.Context, view View, rep *report.Report, span daterange.Span) ([]ChunkResponse, error) {
	if view.ID == "" {
		return nil, fmt.Errorf("%w: %q has no view ID", ErrUnknownView, view.Name)
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Report definition", "report", rep.Key(),
		"summary", rep.Summary(span.Start.Format(daterange.DateLayout), span.End.Format(daterange.DateLayout)))

	var out []ChunkResponse
	action := func(ctx context.Context, chunk daterange.Chunk) error {
		req, err := rep.Request(view.ID, chunk)
		if err != nil {
			return err
		}
		resps, err := e.fetchChunk(ctx, rep, chunk, req)
		if err != nil {
			return err
		}
		out = append(out, ChunkResponse{Chunk: chunk, Responses: resps})
		return nil
	}

	opts := []daterange.Option{
		daterange.WithRetry(e.maxAttempts, e.retryDelay),
		daterange.WithProgress(e.progress),
		daterange.WithRateLimit(e.rateLimit),
		daterange.WithRetryHook(func(chunk daterange.Chunk, attempt int, err error) {
			logger.Warn("Error fetching data, retrying",
				"view", view.Name, "report", rep.Key(), "chunk", chunk.String(),
				"attempt", attempt, "error", err)
		}),
	}
	if err := daterange.ForEach(ctx, span, rep.Granularity(), action, opts...); err != nil {
		return nil, fmt.Errorf("fetching %s for %s: %w", rep.Key(), view.Name, err)
	}
	return out, nil
}

func (e *Exporter) fetchChunk(ctx context.Context, rep *report.Report, chunk daterange.Chunk, req analytics.ReportRequest) ([]analytics.Response, error) {
	if e.cache != nil {
		if resps, ok := e.cache.Get(ctx, req); ok {
			return resps, nil
		}
	}

	resps, err := e.client.FetchAll(ctx, req)
	if err != nil {
		return nil, err
	}

	// Chunks reaching today are still filling in and are never cached
	if e.cache != nil && chunk.End.Before(today(e.now())) {
		if err := e.cache.Put(ctx, req, resps); err != nil {
			logger.Warn("Failed to cache chunk", "report", rep.Key(), "chunk", chunk.String(), "error", err)
		}
	}
	return resps, nil
}

// Table flattens fetched chunks in order and tags every row with the view name.
func (e *Exporter) Table(view View, chunks []ChunkResponse) ([]*flatten.Row, error) {
	var rows []*flatten.Row
	for _, c := range chunks {
		part, err := e.flattener.Flatten(c.Responses)
		if err != nil {
			return nil, fmt.Errorf("flattening %s: %w", c.Chunk, err)
		}
		rows = append(rows, part...)
	}
	for _, r := range rows {
		r.Set(e.viewColumn, flatten.String(view.Name))
	}
	return rows, nil
}

// Export fetches and flattens rep for one view.
func (e *Exporter) Export(ctx context.Context, view View, rep *report.Report, span daterange.Span) ([]*flatten.Row, error) {
	chunks, err := e.Fetch(ctx, view, rep, span)
	if err != nil {
		return nil, err
	}
	return e.Table(view, chunks)
}

func today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
