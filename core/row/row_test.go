package row

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRowOrderAndAccess(t *testing.T) {
	r := Of("id", 1, "name", "Luke", "saga_id", int32(1))

	if got := r.Columns(); len(got) != 3 || got[0] != "id" || got[2] != "saga_id" {
		t.Errorf("Columns() = %v", got)
	}
	if v := r.Value("saga_id"); v != int64(1) {
		t.Errorf("saga_id = %#v, want int64(1)", v)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report absent")
	}

	r.Set("name", "Leia")
	if r.Len() != 3 || r.Value("name") != "Leia" {
		t.Errorf("overwrite changed shape: %v", r)
	}

	r.Delete("id")
	if r.Has("id") || r.Len() != 2 || r.Columns()[0] != "name" {
		t.Errorf("after Delete: %v", r)
	}
}

func TestRowCloneIsDeep(t *testing.T) {
	r := Of("blob", []byte("abc"))
	c := r.Clone()
	c.Value("blob").([]byte)[0] = 'X'
	c.Set("extra", 1)

	if string(r.Value("blob").([]byte)) != "abc" {
		t.Error("mutating clone bytes changed original")
	}
	if r.Has("extra") {
		t.Error("adding to clone changed original")
	}
}

func TestRowProjectAndEqual(t *testing.T) {
	r := Of("a", 1, "b", "x", "c", nil)
	p := r.Project([]string{"c", "a", "z"})
	want := Of("c", nil, "a", 1, "z", nil)
	if !p.Equal(want) {
		t.Errorf("Project() = %v, want %v", p, want)
	}
	if Of("a", 1).Equal(Of("a", "1")) {
		t.Error("Equal must be strict")
	}
}

func TestRowFromColumns(t *testing.T) {
	if _, err := FromColumns([]string{"a"}, nil); err == nil {
		t.Error("expected length mismatch error")
	}
	r, err := FromColumns([]string{"a", "b"}, []any{1, "x"})
	if err != nil || r.Value("a") != int64(1) {
		t.Errorf("FromColumns() = %v, %v", r, err)
	}
	m := FromMap(map[string]any{"z": 1, "a": 2})
	if m.Columns()[0] != "a" {
		t.Errorf("FromMap should sort columns, got %v", m.Columns())
	}
}

func TestRowMarshalJSON(t *testing.T) {
	r := Of("z", 1, "a", "x", "n", nil)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"z":1,"a":"x","n":null}` {
		t.Errorf("MarshalJSON() = %s", data)
	}
}

func TestNormalize(t *testing.T) {
	s := "p"
	var nilStr *string
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 5, int64(5)},
		{"uint8", uint8(7), int64(7)},
		{"float32", float32(1.5), float64(1.5)},
		{"time", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "2024-03-01 12:30:00"},
		{"string pointer", &s, "p"},
		{"nil pointer", nilStr, nil},
		{"bool", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{30, "30", 0},
		{"30", 30.0, 0},
		{"10", "9", 1},
		{"abc", "abd", -1},
		{5, "abc", -1},
		{nil, 0, 0},
		{nil, "", 0},
		{nil, "a", -1},
		{true, "x", 0},
		{false, 0, 0},
		{int64(1) << 62, (int64(1) << 62) + 1, -1},
		{1.5, 1, 1},
		{" 42", 42, 0},
		{[]byte("b"), "a", 1},
	}
	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%#v, %#v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIdenticalIsStrict(t *testing.T) {
	if Identical(30, "30") {
		t.Error("30 and \"30\" must not be identical")
	}
	if !Identical(30, int64(30)) {
		t.Error("int and int64 normalize to the same value")
	}
	if Identical(nil, 0) {
		t.Error("nil and 0 must not be identical")
	}
}

func TestConversions(t *testing.T) {
	if got := ToFloat("12abc"); got != 12 {
		t.Errorf("ToFloat(12abc) = %v", got)
	}
	if got := ToFloat("1.5e2x"); got != 150 {
		t.Errorf("ToFloat(1.5e2x) = %v", got)
	}
	if got := ToInt(3.9); got != 3 {
		t.Errorf("ToInt(3.9) = %v", got)
	}
	if got := ToString(2.0); got != "2" {
		t.Errorf("ToString(2.0) = %q", got)
	}
	if Truthy("0") || !Truthy("a") || Truthy(nil) {
		t.Error("Truthy mismatch")
	}
	if IsNumericString("inf") || !IsNumericString("-1.5e3") {
		t.Error("IsNumericString mismatch")
	}
}
