package expr

import (
	"errors"
	"testing"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in           string
		placeholders int
		check        func(Node) bool
	}{
		{"a = 1", 0, func(n Node) bool {
			c, ok := n.(Compare)
			return ok && c.Left.Column == "a" && c.Op == "=" && c.Right.Value == int64(1)
		}},
		{"a <> ? and b > ?", 2, func(n Node) bool {
			l, ok := n.(Logical)
			if !ok || l.Op != "AND" || len(l.Terms) != 2 {
				return false
			}
			c := l.Terms[1].(Compare)
			return l.Terms[0].(Compare).Op == "!=" && c.Right.Kind == Placeholder && c.Right.Index == 1
		}},
		{"a = 1 OR b = 2 AND c = 3", 0, func(n Node) bool {
			l, ok := n.(Logical)
			return ok && l.Op == "OR" && len(l.Terms) == 2
		}},
		{"NOT (a IS NULL)", 0, func(n Node) bool {
			x, ok := n.(Not)
			return ok && x.X.(IsNull).X.Column == "a"
		}},
		{"t.b IS NOT NULL", 0, func(n Node) bool {
			x, ok := n.(IsNull)
			return ok && x.Not && x.X.Column == "t.b"
		}},
		{"a NOT IN (1, 'x', NULL)", 0, func(n Node) bool {
			x, ok := n.(InList)
			return ok && x.Not && len(x.Values) == 3 && x.Values[1].Value == "x" && x.Values[2].Value == nil
		}},
		{"a IN ()", 0, func(n Node) bool {
			x, ok := n.(InList)
			return ok && len(x.Values) == 0
		}},
		{"name not like 'o''brien%'", 0, func(n Node) bool {
			x, ok := n.(Like)
			return ok && x.Not && x.Pattern.Value == "o'brien%"
		}},
		{"a BETWEEN -1.5 AND ?", 1, func(n Node) bool {
			x, ok := n.(Between)
			return ok && x.Low.Value == -1.5 && x.High.Kind == Placeholder
		}},
		{"`order` = TRUE", 0, func(n Node) bool {
			x, ok := n.(Compare)
			return ok && x.Left.Column == "order" && x.Right.Value == true
		}},
		{"lower(name) = 'x'", 0, func(n Node) bool {
			x, ok := n.(Compare)
			return ok && x.Left.Kind == Func && x.Left.Name == "LOWER"
		}},
		{"active", 0, func(n Node) bool {
			_, ok := n.(Truth)
			return ok
		}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCondition(tt.in)
			if err != nil {
				t.Fatalf("ParseCondition() error = %v", err)
			}
			if c.Placeholders != tt.placeholders {
				t.Errorf("Placeholders = %d, want %d", c.Placeholders, tt.placeholders)
			}
			if !tt.check(c.Root) {
				t.Errorf("unexpected tree %#v", c.Root)
			}
		})
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, in := range []string{"", "a =", "a = 1 AND", "(a = 1", "a ~ 1", "a IN 1"} {
		_, err := ParseCondition(in)
		if !errors.Is(err, sagaerrors.ErrInvalidInput) {
			t.Errorf("ParseCondition(%q) error = %v, want invalid input", in, err)
		}
		var pe *sagaerrors.ParseError
		if !errors.As(err, &pe) || pe.Input != in {
			t.Errorf("ParseCondition(%q) should return a ParseError carrying the input", in)
		}
	}
}

func TestParseJoin(t *testing.T) {
	j, err := ParseJoin("e.saga_id <> `s`.id")
	if err != nil {
		t.Fatal(err)
	}
	if j.Left != "e.saga_id" || j.Operator != "!=" || j.Right != "s.id" || j.IsEqui() {
		t.Errorf("ParseJoin() = %+v", j)
	}
	if _, err := ParseJoin("e.saga_id = 1"); err == nil {
		t.Error("a literal is not a join column")
	}
}

func TestParseSelectItem(t *testing.T) {
	tests := []struct {
		in, name string
		agg      bool
	}{
		{"name", "name", false},
		{"e.name", "name", false},
		{"e.name AS entity", "entity", false},
		{"e.*", "e.*", false},
		{"*", "*", false},
		{"COUNT(*)", "COUNT(*)", true},
		{"count(distinct saga_id) total", "total", true},
		{"MAX(age) AS oldest", "oldest", true},
		{"UPPER(name)", "UPPER(name)", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			item, err := ParseSelectItem(tt.in)
			if err != nil {
				t.Fatalf("ParseSelectItem() error = %v", err)
			}
			if got := item.Name(); got != tt.name {
				t.Errorf("Name() = %q, want %q", got, tt.name)
			}
			if got := item.Expr.IsAggregate(); got != tt.agg {
				t.Errorf("IsAggregate() = %v, want %v", got, tt.agg)
			}
		})
	}
	if _, err := ParseSelectItem("?"); err == nil {
		t.Error("placeholders are not select items")
	}
}

func TestOperandString(t *testing.T) {
	item, err := ParseSelectItem("COALESCE(bio, 'it''s', NULL, 2.5, FALSE)")
	if err != nil {
		t.Fatal(err)
	}
	want := "COALESCE(bio, 'it''s', NULL, 2.5, FALSE)"
	if got := item.Expr.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
