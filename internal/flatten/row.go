package flatten

import "encoding/json"

// Row maps column names to values, remembering insertion order.
type Row struct {
	keys   []string
	values map[string]Value
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]Value)}
}

// Set assigns col. Re-setting a column keeps its original position.
func (r *Row) Set(col string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[col]; !ok {
		r.keys = append(r.keys, col)
	}
	r.values[col] = v
}

// Get returns the value for col and whether it was set.
func (r *Row) Get(col string) (Value, bool) {
	v, ok := r.values[col]
	return v, ok
}

// Columns returns the column names in insertion order.
func (r *Row) Columns() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len is the number of columns set.
func (r *Row) Len() int { return len(r.keys) }

// Map returns a plain map of column to Go value.
func (r *Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.keys))
	for _, k := range r.keys {
		m[k] = r.values[k].Interface()
	}
	return m
}

// MarshalJSON encodes the row as an object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range r.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// Columns returns the union of column names across rows in first-seen order.
func Columns(rows []*Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range rows {
		for _, k := range r.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}
