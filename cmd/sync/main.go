// Command sync downloads Analytics reports for the configured views and
// writes them to storage, one table per view and year.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haven/analytics-sync/internal/app"
	"github.com/haven/analytics-sync/internal/config"
	"github.com/haven/analytics-sync/internal/daterange"
	"github.com/haven/analytics-sync/internal/export"
	"github.com/haven/analytics-sync/internal/pkg/logger"
	"github.com/haven/analytics-sync/internal/report"
	"github.com/haven/analytics-sync/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "config file path")
		reports    = flag.String("reports", "", "comma-separated category/name list (default: every report)")
		views      = flag.String("views", "", "comma-separated view names (default: every enabled view)")
		startYear  = flag.Int("start-year", 0, "first year to export (default: export.start_year)")
		endYear    = flag.Int("end-year", 0, "last year to export (default: export.end_year)")
		start      = flag.String("start", "", "combine all views over start..end (YYYY-MM-DD) into one table")
		end        = flag.String("end", "", "end date for -start")
		summary    = flag.Bool("summary", false, "print report summaries and exit")
		refresh    = flag.Bool("refresh", false, "drop cached chunk responses for the selected views first")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *startYear != 0 {
		cfg.Export.StartYear = *startYear
	}
	if *endYear != 0 {
		cfg.Export.EndYear = *endYear
	}

	if *summary {
		if err := printSummaries(cfg, *reports); err != nil {
			logger.Error("Failed to load reports", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if *refresh {
		if err := purgeCache(ctx, a, splitList(*views)); err != nil {
			logger.Error("Failed to purge cache", "error", err)
			a.Close()
			os.Exit(1)
		}
	}

	if err := run(ctx, a, splitList(*reports), splitList(*views), *start, *end); err != nil {
		logger.Error("Sync failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, reportKeys, viewNames []string, start, end string) error {
	selected, err := selectReports(a, reportKeys)
	if err != nil {
		return err
	}
	views, err := a.SelectViews(viewNames)
	if err != nil {
		return err
	}

	for i, rep := range selected {
		logger.Info("Downloading report", "report", rep.Key(), "index", i+1, "total", len(selected))

		if start != "" || end != "" {
			if err := combined(ctx, a, views, rep, start, end); err != nil {
				return err
			}
			continue
		}

		written, err := a.Exporter.SaveYearly(ctx, views, rep, a.Config.Export.StartYear, a.Config.Export.EndYear)
		if err != nil {
			return err
		}
		logger.Info("Report done", "report", rep.Key(), "tables", len(written))
	}
	logger.Info("Done saving tables for all views")
	return nil
}

// combined writes every view's rows over one span into <category>/<name>.csv,
// skipping views that fail.
func combined(ctx context.Context, a *app.App, views []export.View, rep *report.Report, start, end string) error {
	span, err := daterange.ParseSpan(start, end)
	if err != nil {
		return err
	}
	rows, err := a.Exporter.AllViews(ctx, views, rep, span)
	if err != nil {
		return err
	}
	loc, err := a.Sink.Write(ctx, storage.Object{
		Key:      rep.Category + "/" + rep.Name + ".csv",
		View:     "all",
		Category: rep.Category,
		Report:   rep.Name,
		Period:   span.String(),
		Rows:     rows,
	})
	if err != nil {
		return err
	}
	logger.Info("Saved combined table", "report", rep.Key(), "rows", len(rows), "location", loc)
	return nil
}

func purgeCache(ctx context.Context, a *app.App, viewNames []string) error {
	if a.Cache == nil {
		logger.Warn("No cache configured, nothing to refresh")
		return nil
	}
	views, err := a.SelectViews(viewNames)
	if err != nil {
		return err
	}
	for _, v := range views {
		n, err := a.Cache.Purge(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("purging %s: %w", v.Name, err)
		}
		logger.Info("Purged cached chunks", "view", v.Name, "entries", n)
	}
	return nil
}

func selectReports(a *app.App, keys []string) ([]*report.Report, error) {
	if len(keys) == 0 {
		return a.Reports, nil
	}
	out := make([]*report.Report, 0, len(keys))
	for _, k := range keys {
		category, name, ok := strings.Cut(k, "/")
		if !ok {
			return nil, fmt.Errorf("report %q must be category/name", k)
		}
		r, err := a.Report(category, name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func printSummaries(cfg *config.Config, keys string) error {
	reports, err := report.LoadDir(cfg.Reports.Dir)
	if err != nil {
		return err
	}
	want := make(map[string]bool)
	for _, k := range splitList(keys) {
		want[k] = true
	}
	for _, r := range reports {
		if len(want) > 0 && !want[r.Key()] {
			continue
		}
		fmt.Println(r.String())
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
