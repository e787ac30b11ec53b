// Package flatten turns nested reporting API responses into flat rows of
// typed values.
package flatten

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haven/analytics-sync/internal/analytics"
)

// MalformedMetricError reports a metric value that is not numeric.
type MalformedMetricError struct {
	Header string
	Raw    string
	Err    error
}

func (e *MalformedMetricError) Error() string {
	return fmt.Sprintf("malformed value %q for metric %s", e.Raw, e.Header)
}

func (e *MalformedMetricError) Unwrap() error { return e.Err }

// Flattener converts responses to rows.
type Flattener struct {
	typed  bool
	prefix string
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithTypedMetrics coerces metrics using the header entry type when the API
// supplies one, falling back to the separator heuristic otherwise.
func WithTypedMetrics() Option {
	return func(f *Flattener) { f.typed = true }
}

// WithPrefixTrim strips prefix (e.g. "ga:") from column names.
func WithPrefixTrim(prefix string) Option {
	return func(f *Flattener) { f.prefix = prefix }
}

// New returns a Flattener.
func New(opts ...Option) *Flattener {
	f := &Flattener{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flatten converts responses with the default heuristic.
func Flatten(responses []analytics.Response) ([]*Row, error) {
	return New().Flatten(responses)
}

// Flatten walks every report section of every response and emits one row per
// API row, in encounter order. Headers and values are paired by position;
// the shorter side wins.
func (f *Flattener) Flatten(responses []analytics.Response) ([]*Row, error) {
	var rows []*Row
	for _, resp := range responses {
		for _, report := range resp.Reports {
			dims := report.ColumnHeader.Dimensions
			metrics := report.ColumnHeader.MetricHeader.MetricHeaderEntries

			for _, apiRow := range report.Data.Rows {
				row := NewRow()
				for i := 0; i < len(dims) && i < len(apiRow.Dimensions); i++ {
					row.Set(f.column(dims[i]), String(apiRow.Dimensions[i]))
				}
				// One group per date range; later groups overwrite earlier ones.
				for _, group := range apiRow.Metrics {
					for i := 0; i < len(metrics) && i < len(group.Values); i++ {
						v, err := f.coerce(metrics[i], group.Values[i])
						if err != nil {
							return nil, err
						}
						row.Set(f.column(metrics[i].Name), v)
					}
				}
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

func (f *Flattener) column(name string) string {
	if f.prefix != "" {
		return strings.TrimPrefix(name, f.prefix)
	}
	return name
}

func (f *Flattener) coerce(header analytics.MetricHeaderEntry, raw string) (Value, error) {
	if f.typed {
		switch strings.ToUpper(header.Type) {
		case "INTEGER":
			return parseInt(header.Name, raw)
		case "FLOAT", "CURRENCY", "PERCENT", "TIME":
			return parseFloat(header.Name, raw)
		}
	}
	return ParseMetric(header.Name, raw)
}

// ParseMetric applies the separator heuristic: a value containing ',' or '.'
// is a float, anything else an int. Commas are dropped before parsing, so a
// thousands separator like "1,000" yields the float 1000.
func ParseMetric(header, raw string) (Value, error) {
	if strings.ContainsAny(raw, ",.") {
		return parseFloat(header, raw)
	}
	return parseInt(header, raw)
}

func parseInt(header, raw string) (Value, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return Value{}, &MalformedMetricError{Header: header, Raw: raw, Err: err}
	}
	return Int(i), nil
}

func parseFloat(header, raw string) (Value, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
	if err != nil {
		return Value{}, &MalformedMetricError{Header: header, Raw: raw, Err: err}
	}
	return Float(v), nil
}
