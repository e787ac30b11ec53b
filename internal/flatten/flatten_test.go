package flatten

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven/analytics-sync/internal/analytics"
)

func report(dims []string, metrics []analytics.MetricHeaderEntry, rows ...analytics.ReportRow) analytics.Report {
	return analytics.Report{
		ColumnHeader: analytics.ColumnHeader{
			Dimensions:   dims,
			MetricHeader: analytics.MetricHeader{MetricHeaderEntries: metrics},
		},
		Data: analytics.ReportData{Rows: rows},
	}
}

func metricNames(names ...string) []analytics.MetricHeaderEntry {
	out := make([]analytics.MetricHeaderEntry, len(names))
	for i, n := range names {
		out[i] = analytics.MetricHeaderEntry{Name: n}
	}
	return out
}

func row(dims []string, values ...[]string) analytics.ReportRow {
	r := analytics.ReportRow{Dimensions: dims}
	for _, v := range values {
		r.Metrics = append(r.Metrics, analytics.DateRangeValues{Values: v})
	}
	return r
}

func TestFlattenSingleRow(t *testing.T) {
	resp := analytics.Response{Reports: []analytics.Report{
		report([]string{"page", "date"}, metricNames("sessions"),
			row([]string{"/home", "2023-01-01"}, []string{"42"})),
	}}

	rows, err := Flatten([]analytics.Response{resp})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, []string{"page", "date", "sessions"}, rows[0].Columns())
	page, _ := rows[0].Get("page")
	assert.Equal(t, String("/home"), page)
	sessions, _ := rows[0].Get("sessions")
	assert.Equal(t, KindInt, sessions.Kind())
	assert.Equal(t, int64(42), sessions.IntVal())
	assert.Equal(t, map[string]interface{}{"page": "/home", "date": "2023-01-01", "sessions": int64(42)}, rows[0].Map())
}

func TestFlattenCoercionHeuristic(t *testing.T) {
	resp := analytics.Response{Reports: []analytics.Report{
		report(nil, metricNames("bounceRate", "pageviews", "revenue"),
			row(nil, []string{"3.5", "1,000", "17"})),
	}}

	rows, err := Flatten([]analytics.Response{resp})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	bounce, _ := rows[0].Get("bounceRate")
	assert.Equal(t, Float(3.5), bounce)

	// Thousands separators are read as floats, not rejected.
	views, _ := rows[0].Get("pageviews")
	assert.Equal(t, KindFloat, views.Kind())
	assert.Equal(t, 1000.0, views.FloatVal())

	revenue, _ := rows[0].Get("revenue")
	assert.Equal(t, Int(17), revenue)
}

func TestFlattenMalformedMetric(t *testing.T) {
	resp := analytics.Response{Reports: []analytics.Report{
		report(nil, metricNames("sessions"), row(nil, []string{"n/a"})),
	}}

	_, err := Flatten([]analytics.Response{resp})

	var malformed *MalformedMetricError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "sessions", malformed.Header)
	assert.Equal(t, "n/a", malformed.Raw)
}

func TestFlattenPairsToShorterLength(t *testing.T) {
	resp := analytics.Response{Reports: []analytics.Report{
		report([]string{"page", "date", "device"}, metricNames("sessions", "users"),
			row([]string{"/a"}, []string{"1", "2", "3"}),
			row([]string{"/b", "2023-01-02", "mobile", "extra"}, []string{"4"})),
	}}

	rows, err := Flatten([]analytics.Response{resp})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"page", "sessions", "users"}, rows[0].Columns())
	assert.Equal(t, []string{"page", "date", "device", "sessions"}, rows[1].Columns())
}

func TestFlattenConcatenatesInEncounterOrder(t *testing.T) {
	first := analytics.Response{Reports: []analytics.Report{
		report([]string{"page"}, metricNames("sessions"),
			row([]string{"/a"}, []string{"1"}),
			row([]string{"/a"}, []string{"1"})),
		report([]string{"page"}, metricNames("sessions"),
			row([]string{"/b"}, []string{"2"})),
	}}
	second := analytics.Response{Reports: []analytics.Report{
		report([]string{"page"}, metricNames("sessions"),
			row([]string{"/c"}, []string{"3"})),
	}}

	rows, err := Flatten([]analytics.Response{first, second})
	require.NoError(t, err)

	var pages []string
	for _, r := range rows {
		v, _ := r.Get("page")
		pages = append(pages, v.Str())
	}
	assert.Equal(t, []string{"/a", "/a", "/b", "/c"}, pages)
}

func TestFlattenMissingSectionsArePermissive(t *testing.T) {
	rows, err := Flatten([]analytics.Response{
		{},
		{Reports: []analytics.Report{{}}},
		{Reports: []analytics.Report{report(nil, nil, row([]string{"/x"}, []string{"9"}))}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Len())
}

func TestFlattenFromJSONPayload(t *testing.T) {
	payload := `{"reports":[{"columnHeader":{"dimensions":["ga:landingPagePath"]},
		"data":{"rows":[{"dimensions":["/give"]}]}}]}`

	var resp analytics.Response
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))

	rows, err := Flatten([]analytics.Response{resp})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"ga:landingPagePath"}, rows[0].Columns())
}

func TestFlattenTypedMetrics(t *testing.T) {
	resp := analytics.Response{Reports: []analytics.Report{
		report(nil, []analytics.MetricHeaderEntry{
			{Name: "ga:transactionRevenue", Type: "CURRENCY"},
			{Name: "ga:sessions", Type: "INTEGER"},
			{Name: "ga:custom"},
		}, row(nil, []string{"250", "12", "0.5"})),
	}}

	rows, err := New(WithTypedMetrics(), WithPrefixTrim("ga:")).Flatten([]analytics.Response{resp})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	revenue, _ := rows[0].Get("transactionRevenue")
	assert.Equal(t, Float(250), revenue)
	sessions, _ := rows[0].Get("sessions")
	assert.Equal(t, Int(12), sessions)
	custom, _ := rows[0].Get("custom")
	assert.Equal(t, Float(0.5), custom)
}

func TestFlattenLaterDateRangeOverwrites(t *testing.T) {
	resp := analytics.Response{Reports: []analytics.Report{
		report([]string{"page"}, metricNames("sessions"),
			row([]string{"/a"}, []string{"1"}, []string{"5"})),
	}}

	rows, err := Flatten([]analytics.Response{resp})
	require.NoError(t, err)

	v, _ := rows[0].Get("sessions")
	assert.Equal(t, Int(5), v)
	assert.Equal(t, 2, rows[0].Len())
}
