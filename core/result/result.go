// Package result holds the materialized outcome of a query or command.
package result

import (
	"encoding/json"
	"iter"

	"github.com/calounx/sagas-sub011/core/row"
)

// ResultSet is a finite, already-materialized sequence of rows plus write
// metadata. Apart from the Fetch cursor it never changes after creation.
type ResultSet struct {
	rows     []row.Row
	columns  []string
	cursor   int
	affected int64
	lastID   int64
	hasID    bool
	success  bool
	err      error
}

// New wraps rows returned by a read. Column names come from the first row.
func New(rows []row.Row) *ResultSet {
	var cols []string
	if len(rows) > 0 {
		cols = rows[0].Columns()
	}
	return WithColumns(cols, rows)
}

// WithColumns wraps rows with an explicit column list, so that an empty read
// still reports its shape.
func WithColumns(columns []string, rows []row.Row) *ResultSet {
	return &ResultSet{
		rows:     rows,
		columns:  columns,
		affected: int64(len(rows)),
		success:  true,
	}
}

// Write describes a completed write that changed affected rows.
func Write(affected int64) *ResultSet {
	return &ResultSet{affected: affected, success: true}
}

// Inserted describes a completed insert that generated id.
func Inserted(affected, id int64) *ResultSet {
	return &ResultSet{affected: affected, lastID: id, hasID: true, success: true}
}

// Failed records a failed operation.
func Failed(err error) *ResultSet {
	return &ResultSet{err: err}
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int { return len(rs.rows) }

// IsEmpty reports whether there are no rows.
func (rs *ResultSet) IsEmpty() bool { return len(rs.rows) == 0 }

// Columns returns the column names.
func (rs *ResultSet) Columns() []string { return append([]string(nil), rs.columns...) }

// AffectedRows returns the number of rows written, or read for queries.
func (rs *ResultSet) AffectedRows() int64 { return rs.affected }

// LastInsertID returns the generated id of an insert, if any.
func (rs *ResultSet) LastInsertID() (int64, bool) { return rs.lastID, rs.hasID }

// Success reports whether the operation completed.
func (rs *ResultSet) Success() bool { return rs.success }

// Err returns the failure recorded by Failed.
func (rs *ResultSet) Err() error { return rs.err }

// At returns the row at index i.
func (rs *ResultSet) At(i int) (row.Row, bool) {
	if i < 0 || i >= len(rs.rows) {
		return row.Row{}, false
	}
	return rs.rows[i].Clone(), true
}

// Fetch returns the row under the cursor and advances it.
func (rs *ResultSet) Fetch() (row.Row, bool) {
	r, ok := rs.At(rs.cursor)
	if ok {
		rs.cursor++
	}
	return r, ok
}

// Reset rewinds the Fetch cursor.
func (rs *ResultSet) Reset() { rs.cursor = 0 }

// All iterates over index and row without touching the cursor.
func (rs *ResultSet) All() iter.Seq2[int, row.Row] {
	return func(yield func(int, row.Row) bool) {
		for i, r := range rs.rows {
			if !yield(i, r.Clone()) {
				return
			}
		}
	}
}

// Rows returns a copy of every row.
func (rs *ResultSet) Rows() []row.Row {
	out := make([]row.Row, len(rs.rows))
	for i, r := range rs.rows {
		out[i] = r.Clone()
	}
	return out
}

// First returns the first row.
func (rs *ResultSet) First() (row.Row, bool) { return rs.At(0) }

// Pluck returns the values of one column.
func (rs *ResultSet) Pluck(col string) []any {
	out := make([]any, len(rs.rows))
	for i, r := range rs.rows {
		out[i] = r.Value(col)
	}
	return out
}

// KeyBy indexes rows by the string form of col. Later rows win.
func (rs *ResultSet) KeyBy(col string) map[string]row.Row {
	out := make(map[string]row.Row, len(rs.rows))
	for _, r := range rs.rows {
		out[row.ToString(r.Value(col))] = r.Clone()
	}
	return out
}

// GroupBy buckets rows by the string form of col, keeping row order within
// each bucket.
func (rs *ResultSet) GroupBy(col string) map[string][]row.Row {
	out := make(map[string][]row.Row)
	for _, r := range rs.rows {
		k := row.ToString(r.Value(col))
		out[k] = append(out[k], r.Clone())
	}
	return out
}

// Sum adds the numeric values of col. Nulls are skipped; an empty set sums to 0.
func (rs *ResultSet) Sum(col string) float64 {
	var total float64
	for _, r := range rs.rows {
		if v := r.Value(col); v != nil {
			total += row.ToFloat(v)
		}
	}
	return total
}

// Avg averages the non-null values of col, or returns 0 when there are none.
func (rs *ResultSet) Avg(col string) float64 {
	var total float64
	n := 0
	for _, r := range rs.rows {
		if v := r.Value(col); v != nil {
			total += row.ToFloat(v)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Min returns the smallest non-null value of col, or nil.
func (rs *ResultSet) Min(col string) any { return rs.extreme(col, -1) }

// Max returns the largest non-null value of col, or nil.
func (rs *ResultSet) Max(col string) any { return rs.extreme(col, 1) }

func (rs *ResultSet) extreme(col string, sign int) any {
	var best any
	for _, r := range rs.rows {
		v := r.Value(col)
		if v == nil {
			continue
		}
		if best == nil || row.Compare(v, best)*sign > 0 {
			best = v
		}
	}
	return best
}

// ToMaps returns the rows as unordered maps.
func (rs *ResultSet) ToMaps() []map[string]any {
	out := make([]map[string]any, len(rs.rows))
	for i, r := range rs.rows {
		out[i] = r.Map()
	}
	return out
}

// MarshalJSON encodes the rows and write metadata.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	type payload struct {
		Columns      []string  `json:"columns,omitempty"`
		Rows         []row.Row `json:"rows"`
		AffectedRows int64     `json:"affected_rows"`
		LastInsertID *int64    `json:"last_insert_id,omitempty"`
	}
	p := payload{Columns: rs.columns, Rows: rs.rows, AffectedRows: rs.affected}
	if p.Rows == nil {
		p.Rows = []row.Row{}
	}
	if rs.hasID {
		id := rs.lastID
		p.LastInsertID = &id
	}
	return json.Marshal(p)
}
