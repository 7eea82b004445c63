// Package row defines the Row value type exchanged between the query builder,
// the backends and result sets, along with the scalar value model.
//
// A Row is an ordered mapping from column name to a scalar: nil, bool, int64,
// float64, string or []byte. Values are normalized on the way in so that every
// backend produces identical Go types for identical data.
package row

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Row is an ordered column to value mapping. The zero Row is empty and usable.
//
// Copying a Row value shares its storage; use Clone before mutating a row that
// somebody else may hold.
type Row struct {
	cols []string
	vals map[string]any
}

// New returns an empty row with room for n columns.
func New(n int) Row {
	return Row{
		cols: make([]string, 0, n),
		vals: make(map[string]any, n),
	}
}

// Of builds a row from alternating column/value literals, in order:
//
//	row.Of("saga_id", 1, "name", "Han")
//
// It panics if pairs is malformed, so it is meant for literals in code and tests.
func Of(pairs ...any) Row {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("row.Of: odd number of arguments (%d)", len(pairs)))
	}
	r := New(len(pairs) / 2)
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("row.Of: argument %d is %T, want string column name", i, pairs[i]))
		}
		r.Set(col, pairs[i+1])
	}
	return r
}

// FromMap builds a row from a map. Columns are ordered by name.
func FromMap(m map[string]any) Row {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	r := New(len(cols))
	for _, c := range cols {
		r.Set(c, m[c])
	}
	return r
}

// FromColumns builds a row from parallel column and value slices.
func FromColumns(cols []string, vals []any) (Row, error) {
	if len(cols) != len(vals) {
		return Row{}, fmt.Errorf("row: %d columns but %d values", len(cols), len(vals))
	}
	r := New(len(cols))
	for i, c := range cols {
		r.Set(c, vals[i])
	}
	return r, nil
}

// Set assigns a normalized value to col, appending col if it is new.
func (r *Row) Set(col string, v any) *Row {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = Normalize(v)
	return r
}

// Delete removes col from the row.
func (r *Row) Delete(col string) {
	if _, ok := r.vals[col]; !ok {
		return
	}
	delete(r.vals, col)
	for i, c := range r.cols {
		if c == col {
			r.cols = append(r.cols[:i:i], r.cols[i+1:]...)
			break
		}
	}
}

// Get returns the value of col and whether the column is present.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Value returns the value of col, or nil when absent.
func (r Row) Value(col string) any {
	return r.vals[col]
}

// Has reports whether col is present.
func (r Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.cols)
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Values returns the values in column order.
func (r Row) Values() []any {
	out := make([]any, len(r.cols))
	for i, c := range r.cols {
		out[i] = r.vals[c]
	}
	return out
}

// Map returns an unordered copy of the row.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.cols))
	for _, c := range r.cols {
		out[c] = r.vals[c]
	}
	return out
}

// Clone returns a deep copy; binary values are copied too.
func (r Row) Clone() Row {
	out := Row{
		cols: make([]string, len(r.cols)),
		vals: make(map[string]any, len(r.cols)),
	}
	copy(out.cols, r.cols)
	for _, c := range r.cols {
		v := r.vals[c]
		if b, ok := v.([]byte); ok {
			v = bytes.Clone(b)
		}
		out.vals[c] = v
	}
	return out
}

// Project returns a new row holding only cols, in that order. Missing columns
// are set to nil.
func (r Row) Project(cols []string) Row {
	out := New(len(cols))
	for _, c := range cols {
		out.Set(c, r.vals[c])
	}
	return out
}

// Equal reports whether both rows have the same columns in the same order with
// strictly identical values.
func (r Row) Equal(other Row) bool {
	if len(r.cols) != len(other.cols) {
		return false
	}
	for i, c := range r.cols {
		if other.cols[i] != c {
			return false
		}
		if !Identical(r.vals[c], other.vals[c]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a JSON object preserving column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.vals[c])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the row for debugging.
func (r Row) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s:%v", c, FormatValue(r.vals[c]))
	}
	buf.WriteByte('}')
	return buf.String()
}
