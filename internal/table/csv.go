// Package table serialises flattened rows.
package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/haven/analytics-sync/internal/flatten"
)

// WriteCSV writes rows with a header built from the union of their columns
// in first-seen order. Columns a row lacks are written as empty fields.
func WriteCSV(w io.Writer, rows []*flatten.Row) error {
	cols := flatten.Columns(rows)
	cw := csv.NewWriter(w)

	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, len(cols))
	for i, r := range rows {
		for j, c := range cols {
			v, _ := r.Get(c)
			record[j] = v.Text()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeCSV returns rows as CSV bytes.
func EncodeCSV(rows []*flatten.Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
