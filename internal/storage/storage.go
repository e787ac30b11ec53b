// Package storage persists exported tables. A Sink is chosen by
// storage.type: "local" writes CSV files, "aws" puts CSV objects to S3 and
// "sql" stores each row as a JSON document in Postgres or Snowflake.
package storage

import (
	"context"
	"fmt"

	"github.com/haven/analytics-sync/internal/config"
	"github.com/haven/analytics-sync/internal/flatten"
)

// Object is one exported table ready to persist.
type Object struct {
	Key      string // relative location, e.g. Web_Traffic/pageviews/HavenToday.org_2021.csv
	View     string
	Category string
	Report   string
	Period   string
	Rows     []*flatten.Row
}

// Sink persists an Object and returns where it landed.
type Sink interface {
	Write(ctx context.Context, obj Object) (string, error)
}

// New creates the sink configured by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Sink, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalSink(cfg.LocalPath), nil
	case "aws":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("storage type aws requires s3_bucket")
		}
		return NewS3Sink(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion, cfg.GetAWSProfile())
	case "sql":
		return OpenSQLSink(ctx, cfg.SQLDriver, cfg.DatabaseURL, cfg.SQLTable)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
