// Package app wires configuration into a ready-to-run Exporter.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/haven/analytics-sync/internal/analytics"
	"github.com/haven/analytics-sync/internal/config"
	"github.com/haven/analytics-sync/internal/export"
	"github.com/haven/analytics-sync/internal/flatten"
	"github.com/haven/analytics-sync/internal/pkg/distlock"
	"github.com/haven/analytics-sync/internal/pkg/logger"
	"github.com/haven/analytics-sync/internal/report"
	"github.com/haven/analytics-sync/internal/storage"
)

// App holds the long-lived dependencies of a sync run or server.
type App struct {
	Config   *config.Config
	Exporter *export.Exporter
	Sink     storage.Sink
	Reports  []*report.Report
	Views    []export.View
	// Cache is nil when redis is disabled or unreachable.
	Cache *export.Cache
	// Manifest is nil unless storage.dynamodb_table is set.
	Manifest *storage.DynamoManifest

	closers []func() error
}

// Close releases connections opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

// Credentials returns the service-account document from the key file or
// the inline google settings.
func Credentials(cfg config.GoogleConfig) ([]byte, error) {
	return analytics.LoadCredentials(cfg.CredentialsFile, analytics.ServiceAccount{
		ProjectID:               cfg.ProjectID,
		PrivateKeyID:            cfg.PrivateKeyID,
		PrivateKey:              cfg.PrivateKey,
		ClientEmail:             cfg.ClientEmail,
		ClientID:                cfg.ClientID,
		AuthURI:                 cfg.AuthURI,
		TokenURI:                cfg.TokenURI,
		AuthProviderX509CertURL: cfg.AuthProviderX509CertURL,
		ClientX509CertURL:       cfg.ClientX509CertURL,
	})
}

// Views returns the enabled views that have an ID, logging the rest.
func Views(cfg *config.Config) []export.View {
	var out []export.View
	for _, v := range cfg.EnabledViews() {
		if v.ID == "" {
			logger.Warn("view has no ID, skipping", "view", v.Name, "id_env", v.IDEnv)
			continue
		}
		out = append(out, export.View{Name: v.Name, ID: v.ID})
	}
	return out
}

// Build creates the analytics client, sink and optional cache, lock and
// manifest described by cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	a := &App{Config: cfg, Views: Views(cfg)}

	reports, err := report.LoadDir(cfg.Reports.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}
	a.Reports = reports

	creds, err := Credentials(cfg.Google)
	if err != nil {
		return nil, fmt.Errorf("loading google credentials: %w", err)
	}
	client, err := analytics.NewClient(ctx, analytics.Config{
		BaseURL:         cfg.Google.BaseURL,
		TimeoutSeconds:  cfg.Google.TimeoutSeconds,
		HTTPRetries:     cfg.Google.HTTPRetries,
		CredentialsJSON: creds,
	})
	if err != nil {
		return nil, err
	}

	sink, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	a.Sink = sink
	var db *sql.DB
	if s, ok := sink.(*storage.SQLSink); ok {
		a.closers = append(a.closers, s.Close)
		if s.Driver() == "postgres" {
			db = s.DB()
		}
	}

	paths, err := export.ParsePathTemplate(cfg.Export.PathTemplate)
	if err != nil {
		a.Close()
		return nil, err
	}

	var flatOpts []flatten.Option
	if cfg.Export.TypedMetrics {
		flatOpts = append(flatOpts, flatten.WithTypedMetrics())
	}
	if cfg.Export.TrimPrefix != "" {
		flatOpts = append(flatOpts, flatten.WithPrefixTrim(cfg.Export.TrimPrefix))
	}

	opts := []export.Option{
		export.WithPathTemplate(paths),
		export.WithFlattener(flatten.New(flatOpts...)),
		export.WithViewColumn(cfg.Export.ViewColumn),
		export.WithRateLimit(cfg.Export.RateLimitPerSecond),
		export.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.Delay()),
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		rdb, err = export.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			// Cache and lock are optional; run without them
			logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			a.closers = append(a.closers, rdb.Close)
			a.Cache = export.NewCache(rdb, cfg.Redis.CacheTTL())
			opts = append(opts, export.WithCache(a.Cache))
		}
	}
	if rdb != nil || db != nil {
		ttl := cfg.Redis.LockTTL()
		opts = append(opts, export.WithLocker(func(key string) distlock.DistLock {
			return distlock.NewLock(rdb, db, key, ttl)
		}))
	}

	if cfg.Storage.DynamoDBTable != "" {
		manifest, err := storage.NewDynamoManifest(ctx, cfg.Storage.DynamoDBTable, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing manifest: %w", err)
		}
		a.Manifest = manifest
		opts = append(opts, export.WithManifest(manifest))
	}

	a.Exporter = export.New(client, sink, opts...)
	logger.Info("sync initialized",
		"reports", len(a.Reports), "views", len(a.Views), "storage", cfg.Storage.Type,
		"cache", rdb != nil, "manifest", cfg.Storage.DynamoDBTable != "")
	return a, nil
}

// Report finds a loaded report by category and name.
func (a *App) Report(category, name string) (*report.Report, error) {
	for _, r := range a.Reports {
		if r.Category == category && r.Name == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("report %s/%s not found in %s", category, name, a.Config.Reports.Dir)
}

// SelectViews resolves names against the configured views. No names means all.
func (a *App) SelectViews(names []string) ([]export.View, error) {
	if len(names) == 0 {
		return a.Views, nil
	}
	out := make([]export.View, 0, len(names))
	for _, n := range names {
		v, err := a.Config.View(n)
		if err != nil {
			return nil, err
		}
		out = append(out, export.View{Name: v.Name, ID: v.ID})
	}
	return out, nil
}
