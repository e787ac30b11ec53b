package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"                  // Postgres driver
	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver
)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*){0,2}$`)

// dialect covers the differences between the Postgres and Snowflake drivers.
type dialect struct {
	name        string
	placeholder func(n int) string
	jsonType    string
	jsonValue   func(ph string) string
	createTable string
}

var dialects = map[string]dialect{
	"postgres": {
		name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		jsonType:    "JSONB",
		jsonValue:   func(ph string) string { return ph + "::jsonb" },
		createTable: "CREATE TABLE IF NOT EXISTS %s (export_key TEXT NOT NULL, view_name TEXT NOT NULL, category TEXT NOT NULL, report TEXT NOT NULL, period TEXT NOT NULL, row_index INTEGER NOT NULL, data %s NOT NULL, exported_at TIMESTAMPTZ NOT NULL, PRIMARY KEY (export_key, row_index))",
	},
	"snowflake": {
		name:        "snowflake",
		placeholder: func(int) string { return "?" },
		jsonType:    "VARIANT",
		jsonValue:   func(ph string) string { return "PARSE_JSON(" + ph + ")" },
		createTable: "CREATE TABLE IF NOT EXISTS %s (export_key VARCHAR NOT NULL, view_name VARCHAR NOT NULL, category VARCHAR NOT NULL, report VARCHAR NOT NULL, period VARCHAR NOT NULL, row_index INTEGER NOT NULL, data %s NOT NULL, exported_at TIMESTAMP_TZ NOT NULL)",
	},
}

// SQLSink stores each exported row as a JSON document. Rewriting a key
// replaces its previous rows in one transaction.
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	table   string
	now     func() time.Time
}

// OpenSQLSink opens driver ("postgres" or "snowflake") at dsn and makes
// sure the table exists.
func OpenSQLSink(ctx context.Context, driver, dsn, table string) (*SQLSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage type sql requires database_url")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s, err := NewSQLSink(db, driver, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSink wraps an open database.
func NewSQLSink(db *sql.DB, driver, table string) (*SQLSink, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &SQLSink{db: db, dialect: d, table: table, now: time.Now}, nil
}

// DB exposes the connection for advisory locking.
func (s *SQLSink) DB() *sql.DB { return s.db }

// Driver returns the dialect name.
func (s *SQLSink) Driver() string { return s.dialect.name }

// Close closes the database connection
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the export table if missing.
func (s *SQLSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.createTable, s.table, s.dialect.jsonType)); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLSink) insertQuery() string {
	ph := make([]string, 8)
	for i := range ph {
		ph[i] = s.dialect.placeholder(i + 1)
	}
	ph[6] = s.dialect.jsonValue(ph[6])
	cols := "export_key, view_name, category, report, period, row_index, data, exported_at"
	if s.dialect.name == "snowflake" {
		// Snowflake rejects function calls inside VALUES
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s", s.table, cols, strings.Join(ph, ", "))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table, cols, strings.Join(ph, ", "))
}

// Write replaces all rows stored under obj.Key.
func (s *SQLSink) Write(ctx context.Context, obj Object) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM %s WHERE export_key = %s", s.table, s.dialect.placeholder(1))
	if _, err := tx.ExecContext(ctx, del, obj.Key); err != nil {
		return "", fmt.Errorf("clearing %s: %w", obj.Key, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertQuery())
	if err != nil {
		return "", fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	exportedAt := s.now().UTC()
	for i, r := range obj.Rows {
		doc, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("encoding row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, obj.Key, obj.View, obj.Category, obj.Report, obj.Period, i, string(doc), exportedAt); err != nil {
			return "", fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing %s: %w", obj.Key, err)
	}
	return fmt.Sprintf("%s://%s/%s", s.dialect.name, s.table, obj.Key), nil
}
