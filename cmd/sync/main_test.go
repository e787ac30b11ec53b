package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven/analytics-sync/internal/analytics"
	"github.com/haven/analytics-sync/internal/app"
	"github.com/haven/analytics-sync/internal/config"
	"github.com/haven/analytics-sync/internal/daterange"
	"github.com/haven/analytics-sync/internal/export"
	"github.com/haven/analytics-sync/internal/report"
	"github.com/haven/analytics-sync/internal/storage"
)

// stubFetcher returns one row per request: the chunk start date and five
// users. Views listed in fail always error.
type stubFetcher struct {
	mu       sync.Mutex
	requests []analytics.ReportRequest
	fail     map[string]error
}

func (f *stubFetcher) FetchAll(_ context.Context, req analytics.ReportRequest) ([]analytics.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := f.fail[req.ViewID]; err != nil {
		return nil, err
	}
	return []analytics.Response{{Reports: []analytics.Report{{
		ColumnHeader: analytics.ColumnHeader{
			Dimensions: []string{"ga:date"},
			MetricHeader: analytics.MetricHeader{MetricHeaderEntries: []analytics.MetricHeaderEntry{
				{Name: "ga:users", Type: "INTEGER"},
			}},
		},
		Data: analytics.ReportData{Rows: []analytics.ReportRow{{
			Dimensions: []string{req.DateRanges[0].StartDate},
			Metrics:    []analytics.DateRangeValues{{Values: []string{"5"}}},
		}}},
	}}}}, nil
}

func (f *stubFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type memorySink struct {
	objects []storage.Object
}

func (s *memorySink) Write(_ context.Context, obj storage.Object) (string, error) {
	s.objects = append(s.objects, obj)
	return "mem://" + obj.Key, nil
}

func (s *memorySink) keys() []string {
	out := make([]string, len(s.objects))
	for i, o := range s.objects {
		out[i] = o.Key
	}
	return out
}

func testApp(t *testing.T, fetcher *stubFetcher, opts ...export.Option) (*app.App, *memorySink) {
	t.Helper()
	cfg := &config.Config{
		Views: []config.ViewConfig{
			{Name: "HavenToday.org", ID: "1001"},
			{Name: "AnchorToday", ID: "1002"},
		},
		Reports: config.ReportsConfig{Dir: "reports"},
		Export:  config.ExportConfig{StartYear: 2020, EndYear: 2021},
	}
	sink := &memorySink{}
	opts = append([]export.Option{
		export.WithRetry(1, 0),
		export.WithProgress(daterange.ProgressFunc(func(int, int, string) {})),
	}, opts...)

	return &app.App{
		Config:   cfg,
		Exporter: export.New(fetcher, sink, opts...),
		Sink:     sink,
		Reports: []*report.Report{
			{Category: "audience", Name: "age", Metrics: []string{"users"}, Dimensions: []string{"date"}, ChunkBy: "year"},
			{Category: "acquisition", Name: "channels", Metrics: []string{"users"}, Dimensions: []string{"date"}, ChunkBy: "month"},
		},
		Views: app.Views(cfg),
	}, sink
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"audience/age", "behavior/all_pages"}, splitList(" audience/age, ,behavior/all_pages "))
	assert.Nil(t, splitList(""))
}

func TestSelectReports(t *testing.T) {
	a, _ := testApp(t, &stubFetcher{})

	all, err := selectReports(a, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := selectReports(a, []string{"acquisition/channels"})
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, "channels", picked[0].Name)

	_, err = selectReports(a, []string{"channels"})
	assert.ErrorContains(t, err, "category/name")

	_, err = selectReports(a, []string{"audience/missing"})
	assert.ErrorContains(t, err, "audience/missing")
}

func TestRunYearlyWritesOneTablePerViewAndYear(t *testing.T) {
	fetcher := &stubFetcher{}
	a, sink := testApp(t, fetcher)

	err := run(context.Background(), a, []string{"audience/age"}, nil, "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"audience/age/HavenToday.org_2020.csv",
		"audience/age/HavenToday.org_2021.csv",
		"audience/age/AnchorToday_2020.csv",
		"audience/age/AnchorToday_2021.csv",
	}, sink.keys())
	// Yearly chunks: one request per view and year
	assert.Equal(t, 4, fetcher.calls())
}

func TestRunYearlyStopsOnFailure(t *testing.T) {
	fetcher := &stubFetcher{fail: map[string]error{"1001": errors.New("403 forbidden")}}
	a, sink := testApp(t, fetcher)

	err := run(context.Background(), a, []string{"audience/age"}, nil, "", "")
	assert.ErrorContains(t, err, "403 forbidden")
	assert.Empty(t, sink.objects)
}

func TestRunCombinedWritesSingleTable(t *testing.T) {
	fetcher := &stubFetcher{fail: map[string]error{"1002": errors.New("quota exceeded")}}
	a, sink := testApp(t, fetcher)

	err := run(context.Background(), a, []string{"acquisition/channels"}, nil, "2021-01-01", "2021-02-28")
	require.NoError(t, err)

	require.Len(t, sink.objects, 1)
	obj := sink.objects[0]
	assert.Equal(t, "acquisition/channels.csv", obj.Key)
	assert.Equal(t, "all", obj.View)
	assert.Equal(t, "2021-01-01..2021-02-28", obj.Period)
	// The failing view is skipped; the other contributes one row per month
	require.Len(t, obj.Rows, 2)
	v, ok := obj.Rows[0].Get(export.DefaultViewColumn)
	require.True(t, ok)
	assert.Equal(t, "HavenToday.org", v.Str())
}

func TestRunCombinedRejectsBadSpan(t *testing.T) {
	a, sink := testApp(t, &stubFetcher{})

	err := run(context.Background(), a, []string{"acquisition/channels"}, nil, "2021-03-01", "2021-01-01")
	assert.ErrorIs(t, err, daterange.ErrInvalidRange)
	assert.Empty(t, sink.objects)
}

func TestRunUnknownView(t *testing.T) {
	a, _ := testApp(t, &stubFetcher{})

	err := run(context.Background(), a, nil, []string{"Nope"}, "", "")
	assert.Error(t, err)
}

func TestPurgeCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := export.NewCache(client, time.Hour)

	fetcher := &stubFetcher{}
	a, _ := testApp(t, fetcher, export.WithCache(cache))
	a.Cache = cache

	require.NoError(t, run(ctx, a, []string{"audience/age"}, nil, "", ""))
	require.Equal(t, 4, fetcher.calls())

	// Cached: a second run makes no requests
	require.NoError(t, run(ctx, a, []string{"audience/age"}, nil, "", ""))
	require.Equal(t, 4, fetcher.calls())

	require.NoError(t, purgeCache(ctx, a, []string{"AnchorToday"}))
	require.NoError(t, run(ctx, a, []string{"audience/age"}, nil, "", ""))
	assert.Equal(t, 6, fetcher.calls())
}

func TestPurgeCacheWithoutCache(t *testing.T) {
	a, _ := testApp(t, &stubFetcher{})
	assert.NoError(t, purgeCache(context.Background(), a, nil))
}
