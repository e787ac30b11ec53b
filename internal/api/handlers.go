package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haven/analytics-sync/internal/daterange"
	"github.com/haven/analytics-sync/internal/export"
	"github.com/haven/analytics-sync/internal/pkg/httputil"
	"github.com/haven/analytics-sync/internal/pkg/logger"
	"github.com/haven/analytics-sync/internal/report"
	"github.com/haven/analytics-sync/internal/storage"
)

// Runner performs a yearly export. *export.Exporter satisfies it.
type Runner interface {
	SaveYearly(ctx context.Context, views []export.View, rep *report.Report, startYear, endYear int) ([]export.Written, error)
}

// HistorySource lists the exports recorded for a view.
type HistorySource interface {
	History(ctx context.Context, view string) ([]storage.ManifestEntry, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	reports map[string]*report.Report
	views   []export.View
	runner  Runner
	history HistorySource
	runs    *RunStore
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandlers creates a new Handlers instance
func NewHandlers(reports []*report.Report, views []export.View, runner Runner) *Handlers {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handlers{
		reports: make(map[string]*report.Report, len(reports)),
		views:   views,
		runner:  runner,
		runs:    NewRunStore(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, r := range reports {
		h.reports[r.Key()] = r
	}
	return h
}

// SetHistory enables GET /api/views/{name}/history.
func (h *Handlers) SetHistory(src HistorySource) {
	h.history = src
}

// Close cancels running exports and waits for them.
func (h *Handlers) Close() {
	h.cancel()
	h.wg.Wait()
}

// HealthCheck returns service health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
		"reports":   len(h.reports),
		"views":     len(h.views),
		"running":   h.runs.Active(),
	})
}

type viewInfo struct {
	Name string `json:"name"`
}

// ListViews returns configured view names. IDs are not exposed.
func (h *Handlers) ListViews(w http.ResponseWriter, r *http.Request) {
	out := make([]viewInfo, len(h.views))
	for i, v := range h.views {
		out[i] = viewInfo{Name: v.Name}
	}
	httputil.OK(w, out)
}

type historyEntry struct {
	Report     string    `json:"report"`
	Period     string    `json:"period"`
	Location   string    `json:"location"`
	Rows       int       `json:"rows"`
	ExportedAt time.Time `json:"exported_at"`
}

// ViewHistory returns the manifest entries recorded for one view,
// newest first.
func (h *Handlers) ViewHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, missing := h.selectViews([]string{name}); missing != "" {
		httputil.NotFound(w, "view not found: "+name)
		return
	}
	if h.history == nil {
		httputil.Error(w, http.StatusNotImplemented, "no export manifest configured")
		return
	}

	entries, err := h.history.History(r.Context(), name)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExportedAt.After(entries[j].ExportedAt)
	})

	out := make([]historyEntry, len(entries))
	for i, e := range entries {
		out[i] = historyEntry{
			Report:     e.Category + "/" + e.Report,
			Period:     e.Period,
			Location:   e.Location,
			Rows:       e.Rows,
			ExportedAt: e.ExportedAt,
		}
	}
	httputil.OK(w, out)
}

type reportInfo struct {
	Category   string   `json:"category"`
	Name       string   `json:"name"`
	ChunkBy    string   `json:"chunk_by"`
	Metrics    []string `json:"metrics"`
	Dimensions []string `json:"dimensions"`
	Filters    int      `json:"filters"`
}

// ListReports returns every loaded report, sorted by key.
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	keys := make([]string, 0, len(h.reports))
	for k := range h.reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]reportInfo, 0, len(keys))
	for _, k := range keys {
		rep := h.reports[k]
		out = append(out, reportInfo{
			Category:   rep.Category,
			Name:       rep.Name,
			ChunkBy:    rep.Granularity().String(),
			Metrics:    rep.Metrics,
			Dimensions: rep.Dimensions,
			Filters:    len(rep.Filters),
		})
	}
	httputil.OK(w, out)
}

// GetReport renders the boxed summary of one report. Optional start and
// end query parameters fill in the date range line.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "category") + "/" + chi.URLParam(r, "name")
	rep, ok := h.reports[key]
	if !ok {
		httputil.NotFound(w, "report not found: "+key)
		return
	}

	start, end := r.URL.Query().Get("start"), r.URL.Query().Get("end")
	if start != "" || end != "" {
		if _, err := daterange.ParseSpan(start, end); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	httputil.Text(w, http.StatusOK, rep.Summary(start, end))
}

// ExportRequest starts a yearly export of one report.
type ExportRequest struct {
	Category  string   `json:"category"`
	Name      string   `json:"name"`
	Views     []string `json:"views,omitempty"`
	StartYear int      `json:"start_year"`
	EndYear   int      `json:"end_year"`
}

// StartExport validates the request and runs the export in the background.
func (h *Handlers) StartExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	key := req.Category + "/" + req.Name
	rep, ok := h.reports[key]
	if !ok {
		httputil.NotFound(w, "report not found: "+key)
		return
	}
	if req.EndYear == 0 {
		req.EndYear = h.now().Year()
	}
	if req.StartYear == 0 {
		req.StartYear = req.EndYear
	}
	if req.StartYear > req.EndYear {
		httputil.BadRequest(w, "start_year must not be after end_year")
		return
	}

	views, missing := h.selectViews(req.Views)
	if missing != "" {
		httputil.BadRequest(w, "unknown view: "+missing)
		return
	}
	if len(views) == 0 {
		httputil.BadRequest(w, "no views configured")
		return
	}

	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.Name
	}
	run := h.runs.Create(key, names, req.StartYear, req.EndYear, h.now())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runs.Start(run.ID, h.now())
		logger.Info("Export started", "run_id", run.ID, "report", key, "views", len(views))

		written, err := h.runner.SaveYearly(h.ctx, views, rep, req.StartYear, req.EndYear)
		h.runs.Finish(run.ID, written, err, h.now())
		if err != nil {
			logger.Error("Export failed", "run_id", run.ID, "report", key, "error", err)
			return
		}
		logger.Info("Export finished", "run_id", run.ID, "report", key, "tables", len(written))
	}()

	httputil.Accepted(w, run)
}

func (h *Handlers) selectViews(names []string) ([]export.View, string) {
	if len(names) == 0 {
		return h.views, ""
	}
	byName := make(map[string]export.View, len(h.views))
	for _, v := range h.views {
		byName[v.Name] = v
	}
	out := make([]export.View, 0, len(names))
	for _, n := range names {
		v, ok := byName[n]
		if !ok {
			return nil, n
		}
		out = append(out, v)
	}
	return out, ""
}

// GetExport returns one run.
func (h *Handlers) GetExport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		httputil.NotFound(w, "export not found")
		return
	}
	httputil.OK(w, run)
}

// ListExports returns all runs, newest first.
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.runs.List())
}
