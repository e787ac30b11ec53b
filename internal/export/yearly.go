package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/haven/analytics-sync/internal/daterange"
	"github.com/haven/analytics-sync/internal/flatten"
	"github.com/haven/analytics-sync/internal/pkg/distlock"
	"github.com/haven/analytics-sync/internal/pkg/logger"
	"github.com/haven/analytics-sync/internal/report"
	"github.com/haven/analytics-sync/internal/storage"
)

// Written describes one persisted table.
type Written struct {
	View     string `json:"view"`
	Year     int    `json:"year"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
}

// SaveYearly exports rep for every view and every calendar year in
// [startYear, endYear], one table per view and year. Any failure stops the
// run; tables already written stay in place.
func (e *Exporter) SaveYearly(ctx context.Context, views []View, rep *report.Report, startYear, endYear int) ([]Written, error) {
	if startYear > endYear {
		return nil, fmt.Errorf("%w: start year %d after end year %d", daterange.ErrInvalidRange, startYear, endYear)
	}

	var written []Written
	for _, view := range views {
		err := e.withLock(ctx, view, rep, func(ctx context.Context) error {
			for year := startYear; year <= endYear; year++ {
				logger.Info("Downloading responses", "view", view.Name, "report", rep.Key(), "year", year, "end_year", endYear)
				w, err := e.saveYear(ctx, view, rep, year)
				if err != nil {
					return err
				}
				logger.Info("Saved table", "view", view.Name, "report", rep.Key(), "year", year, "rows", w.Rows, "location", w.Location)
				written = append(written, w)
			}
			return nil
		})
		if err != nil {
			return written, err
		}
		logger.Info("Saved all years", "view", view.Name, "report", rep.Key())
	}
	return written, nil
}

func (e *Exporter) saveYear(ctx context.Context, view View, rep *report.Report, year int) (Written, error) {
	rows, err := e.Export(ctx, view, rep, daterange.YearSpan(year))
	if err != nil {
		return Written{}, err
	}

	period := strconv.Itoa(year)
	key, err := e.paths.Render(PathVars{
		Category: rep.Category,
		Name:     rep.Name,
		View:     view.Name,
		Year:     year,
		Period:   period,
	})
	if err != nil {
		return Written{}, err
	}

	obj := storage.Object{
		Key:      key,
		View:     view.Name,
		Category: rep.Category,
		Report:   rep.Name,
		Period:   period,
		Rows:     rows,
	}
	loc, err := e.sink.Write(ctx, obj)
	if err != nil {
		return Written{}, fmt.Errorf("writing %s: %w", key, err)
	}

	if e.manifest != nil {
		entry := storage.ManifestEntry{
			View:       view.Name,
			Category:   rep.Category,
			Report:     rep.Name,
			Period:     period,
			Location:   loc,
			Rows:       len(rows),
			Columns:    flatten.Columns(rows),
			ExportedAt: e.now(),
		}
		if err := e.manifest.Record(ctx, entry); err != nil {
			logger.Warn("Failed to record manifest entry", "location", loc, "error", err)
		}
	}
	return Written{View: view.Name, Year: year, Location: loc, Rows: len(rows)}, nil
}

func (e *Exporter) withLock(ctx context.Context, view View, rep *report.Report, fn func(ctx context.Context) error) error {
	if e.locker == nil {
		return fn(ctx)
	}
	key := distlock.ExportKey(view.Name, rep.Category, rep.Name)
	if err := distlock.Run(ctx, e.locker(key), fn); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// AllViews exports rep over span for every view and concatenates the rows.
// A view that fails is logged and skipped.
func (e *Exporter) AllViews(ctx context.Context, views []View, rep *report.Report, span daterange.Span) ([]*flatten.Row, error) {
	var rows []*flatten.Row
	for i, view := range views {
		logger.Info("Getting data for view", "view", view.Name, "index", i+1, "total", len(views))
		part, err := e.Export(ctx, view, rep, span)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Unable to retrieve data for view, skipping", "view", view.Name, "error", err)
			continue
		}
		rows = append(rows, part...)
	}
	return rows, nil
}
