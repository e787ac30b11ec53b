// Package report loads declarative report definitions and turns them into
// Analytics Reporting API requests.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haven/analytics-sync/internal/analytics"
	"github.com/haven/analytics-sync/internal/daterange"
)

const (
	// DefaultPageSize is the API maximum rows per page.
	DefaultPageSize = 10000
	// FieldPrefix is prepended to metric and dimension names in requests.
	FieldPrefix = "ga:"

	samplingLevel = "LARGE"
)

// ErrInvalidReport is wrapped by every validation failure.
var ErrInvalidReport = errors.New("invalid report")

// Expressions accepts either a single string or a list in JSON.
type Expressions []string

func (e *Expressions) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*e = Expressions{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expressions must be a string or list of strings: %w", err)
	}
	*e = many
	return nil
}

// Filter restricts a dimension.
type Filter struct {
	Dimension   string      `json:"dimension"`
	Operator    string      `json:"operator"`
	Expressions Expressions `json:"expressions"`
	Not         bool        `json:"not"`
}

// Report is a report definition, usually read from
// reports/<category>/<name>.json.
type Report struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Metrics        []string `json:"metrics"`
	Dimensions     []string `json:"dimensions"`
	Filters        []Filter `json:"filters,omitempty"`
	FilterOperator string   `json:"filterOperator,omitempty"`
	ChunkBy        string   `json:"chunkBy,omitempty"`
	PageSize       int      `json:"pageSize,omitempty"`
}

// Load reads and validates a report file. Name and category default to the
// file name and its parent directory.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	if r.Name == "" {
		r.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if r.Category == "" {
		r.Category = filepath.Base(filepath.Dir(path))
	}
	if r.PageSize == 0 {
		r.PageSize = DefaultPageSize
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}

// LoadDir loads every root/<category>/<name>.json, sorted by category then name.
func LoadDir(root string) ([]*Report, error) {
	paths, err := filepath.Glob(filepath.Join(root, "*", "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	reports := make([]*Report, 0, len(paths))
	for _, p := range paths {
		r, err := Load(p)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Key is "<category>/<name>".
func (r *Report) Key() string {
	return r.Category + "/" + r.Name
}

// Granularity returns the chunk unit. Anything other than day or month,
// including a missing chunkBy, chunks by year.
func (r *Report) Granularity() daterange.Granularity {
	g, err := daterange.ParseGranularity(r.ChunkBy)
	if err != nil {
		return daterange.Year
	}
	return g
}

// Validate checks the definition is complete enough to request.
func (r *Report) Validate() error {
	if len(r.Dimensions) == 0 {
		return fmt.Errorf("%w: dimensions must be specified", ErrInvalidReport)
	}
	if len(r.Metrics) == 0 {
		return fmt.Errorf("%w: metrics must be specified", ErrInvalidReport)
	}
	if r.ChunkBy != "" {
		if _, err := daterange.ParseGranularity(r.ChunkBy); err != nil {
			return fmt.Errorf("%w: chunkBy must be one of day, month, year", ErrInvalidReport)
		}
	}
	if len(r.Filters) == 0 {
		return nil
	}
	if r.FilterOperator == "" {
		return fmt.Errorf("%w: filter operator must be specified if filters are specified", ErrInvalidReport)
	}
	for i, f := range r.Filters {
		switch {
		case f.Dimension == "":
			return fmt.Errorf("%w: filter %d: dimension must be specified", ErrInvalidReport, i)
		case f.Operator == "":
			return fmt.Errorf("%w: filter %d: operator must be specified", ErrInvalidReport, i)
		case len(f.Expressions) == 0:
			return fmt.Errorf("%w: filter %d: expressions must be specified", ErrInvalidReport, i)
		}
	}
	return nil
}

// Request builds the API request for viewID over chunk.
func (r *Report) Request(viewID string, chunk daterange.Chunk) (analytics.ReportRequest, error) {
	if viewID == "" {
		return analytics.ReportRequest{}, fmt.Errorf("%w: view ID must be specified", ErrInvalidReport)
	}
	if err := r.Validate(); err != nil {
		return analytics.ReportRequest{}, err
	}

	req := analytics.ReportRequest{
		ViewID:        viewID,
		DateRanges:    []analytics.DateRange{{StartDate: chunk.StartDate(), EndDate: chunk.EndDate()}},
		PageSize:      r.PageSize,
		SamplingLevel: samplingLevel,
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	for _, m := range r.Metrics {
		req.Metrics = append(req.Metrics, analytics.Metric{Expression: FieldPrefix + m})
	}
	for _, d := range r.Dimensions {
		req.Dimensions = append(req.Dimensions, analytics.Dimension{Name: FieldPrefix + d})
	}

	if len(r.Filters) > 0 {
		clause := analytics.DimensionFilterClause{Operator: r.FilterOperator}
		if clause.Operator == "" {
			clause.Operator = "AND"
		}
		for _, f := range r.Filters {
			clause.Filters = append(clause.Filters, analytics.DimensionFilter{
				DimensionName: FieldPrefix + f.Dimension,
				Not:           f.Not,
				Operator:      f.Operator,
				Expressions:   []string(f.Expressions),
			})
		}
		req.DimensionFilterClauses = []analytics.DimensionFilterClause{clause}
	}
	return req, nil
}
