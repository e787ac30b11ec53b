package analytics

// BatchGetRequest is the body of reports:batchGet.
type BatchGetRequest struct {
	ReportRequests []ReportRequest `json:"reportRequests"`
}

// ReportRequest describes a single report query against a view.
type ReportRequest struct {
	ViewID                 string                  `json:"viewId"`
	DateRanges             []DateRange             `json:"dateRanges"`
	Metrics                []Metric                `json:"metrics"`
	Dimensions             []Dimension             `json:"dimensions"`
	DimensionFilterClauses []DimensionFilterClause `json:"dimensionFilterClauses,omitempty"`
	PageSize               int                     `json:"pageSize,omitempty"`
	PageToken              string                  `json:"pageToken,omitempty"`
	SamplingLevel          string                  `json:"samplingLevel,omitempty"`
}

// DateRange is an inclusive YYYY-MM-DD range.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type Metric struct {
	Expression string `json:"expression"`
}

type Dimension struct {
	Name string `json:"name"`
}

// DimensionFilterClause combines filters with Operator (AND / OR).
type DimensionFilterClause struct {
	Operator string            `json:"operator"`
	Filters  []DimensionFilter `json:"filters"`
}

// DimensionFilter matches a dimension against expressions.
// Operator is one of EXACT, BEGINS_WITH, ENDS_WITH, PARTIAL, REGEXP, ...
type DimensionFilter struct {
	DimensionName string   `json:"dimensionName"`
	Not           bool     `json:"not"`
	Operator      string   `json:"operator"`
	Expressions   []string `json:"expressions"`
}

// Response is the reports:batchGet payload.
type Response struct {
	Reports []Report `json:"reports"`
}

// Report is one section of a Response.
type Report struct {
	ColumnHeader  ColumnHeader `json:"columnHeader"`
	Data          ReportData   `json:"data"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
}

type ColumnHeader struct {
	Dimensions   []string     `json:"dimensions"`
	MetricHeader MetricHeader `json:"metricHeader"`
}

type MetricHeader struct {
	MetricHeaderEntries []MetricHeaderEntry `json:"metricHeaderEntries"`
}

// MetricHeaderEntry names a metric column; Type is INTEGER, FLOAT,
// CURRENCY, PERCENT or TIME.
type MetricHeaderEntry struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type ReportData struct {
	Rows     []ReportRow `json:"rows"`
	RowCount int         `json:"rowCount,omitempty"`

	// IsDataGolden is false while the API may still revise the numbers.
	IsDataGolden bool `json:"isDataGolden,omitempty"`
}

// ReportRow holds dimension values and one DateRangeValues per requested range.
type ReportRow struct {
	Dimensions []string          `json:"dimensions"`
	Metrics    []DateRangeValues `json:"metrics"`
}

type DateRangeValues struct {
	Values []string `json:"values"`
}

// errorEnvelope is the Google API error body.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
