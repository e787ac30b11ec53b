package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haven/analytics-sync/internal/table"
)

// LocalSink writes CSV files below a root directory.
type LocalSink struct {
	root string
}

// NewLocalSink creates a sink rooted at root.
func NewLocalSink(root string) *LocalSink {
	return &LocalSink{root: root}
}

// Write encodes obj as CSV at root/obj.Key, creating parent directories.
func (s *LocalSink) Write(_ context.Context, obj Object) (string, error) {
	data, err := table.EncodeCSV(obj.Rows)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.root, filepath.FromSlash(obj.Key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
