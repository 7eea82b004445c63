package result

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/calounx/sagas-sub011/core/row"
)

func sample() *ResultSet {
	return New([]row.Row{
		row.Of("id", 1, "saga_id", 1, "name", "Luke", "age", 19),
		row.Of("id", 2, "saga_id", 1, "name", "Leia", "age", "19"),
		row.Of("id", 3, "saga_id", 2, "name", "Paul", "age", nil),
	})
}

func TestFetchAndReset(t *testing.T) {
	rs := sample()
	var names []any
	for {
		r, ok := rs.Fetch()
		if !ok {
			break
		}
		names = append(names, r.Value("name"))
	}
	if len(names) != 3 || names[2] != "Paul" {
		t.Errorf("Fetch() sequence = %v", names)
	}
	if _, ok := rs.Fetch(); ok {
		t.Error("Fetch() past the end should fail")
	}
	rs.Reset()
	if r, _ := rs.Fetch(); r.Value("name") != "Luke" {
		t.Errorf("after Reset, Fetch() = %v", r)
	}
}

func TestAccessors(t *testing.T) {
	rs := sample()
	if rs.Len() != 3 || rs.IsEmpty() {
		t.Errorf("Len() = %d", rs.Len())
	}
	if cols := rs.Columns(); len(cols) != 4 || cols[3] != "age" {
		t.Errorf("Columns() = %v", cols)
	}
	if _, ok := rs.At(3); ok {
		t.Error("At(3) out of range should fail")
	}
	if got := rs.Pluck("name"); got[1] != "Leia" {
		t.Errorf("Pluck() = %v", got)
	}
	byID := rs.KeyBy("id")
	if byID["3"].Value("name") != "Paul" {
		t.Errorf("KeyBy() = %v", byID)
	}
	groups := rs.GroupBy("saga_id")
	if len(groups["1"]) != 2 || len(groups["2"]) != 1 {
		t.Errorf("GroupBy() = %v", groups)
	}
	count := 0
	for i, r := range rs.All() {
		if r.Value("id") != int64(i+1) {
			t.Errorf("All() row %d = %v", i, r)
		}
		count++
	}
	if count != 3 {
		t.Errorf("All() yielded %d rows", count)
	}
}

func TestRowsAreCopies(t *testing.T) {
	rs := sample()
	r, _ := rs.First()
	r.Set("name", "Vader")
	if again, _ := rs.First(); again.Value("name") != "Luke" {
		t.Error("mutating a returned row changed the result set")
	}
}

func TestAggregates(t *testing.T) {
	rs := sample()
	if got := rs.Sum("age"); got != 38 {
		t.Errorf("Sum() = %v", got)
	}
	if got := rs.Avg("age"); got != 19 {
		t.Errorf("Avg() = %v", got)
	}
	if got := rs.Max("name"); got != "Paul" {
		t.Errorf("Max() = %v", got)
	}
	if got := rs.Min("id"); got != int64(1) {
		t.Errorf("Min() = %v", got)
	}

	empty := New(nil)
	if empty.Sum("age") != 0 || empty.Avg("age") != 0 {
		t.Error("empty Sum/Avg should be 0")
	}
	if empty.Min("age") != nil || empty.Max("age") != nil {
		t.Error("empty Min/Max should be nil")
	}
}

func TestWriteMetadata(t *testing.T) {
	rs := Inserted(1, 42)
	if id, ok := rs.LastInsertID(); !ok || id != 42 {
		t.Errorf("LastInsertID() = %d, %v", id, ok)
	}
	if rs.AffectedRows() != 1 || !rs.Success() {
		t.Errorf("metadata = %d, %v", rs.AffectedRows(), rs.Success())
	}
	if _, ok := Write(3).LastInsertID(); ok {
		t.Error("Write() has no generated id")
	}
	boom := errors.New("boom")
	if f := Failed(boom); f.Success() || !errors.Is(f.Err(), boom) {
		t.Errorf("Failed() = %v, %v", f.Success(), f.Err())
	}
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Inserted(1, 7))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"rows":[],"affected_rows":1,"last_insert_id":7}` {
		t.Errorf("MarshalJSON() = %s", data)
	}
}
