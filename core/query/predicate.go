package query

import (
	"slices"
	"strings"
)

// Boolean is the connective a predicate uses to join the predicates before it.
type Boolean int

const (
	And Boolean = iota
	Or
)

func (b Boolean) String() string {
	if b == Or {
		return "OR"
	}
	return "AND"
}

// Predicate is a node of a WHERE or HAVING clause. A clause is a flat list
// folded left to right; each node's Conjunction joins it to the accumulated
// result of the nodes before it and is ignored on the first node.
type Predicate interface {
	Conjunction() Boolean
	isPredicate()
}

// Comparison tests Column Operator Value. Operator is one of
// = != < > <= >=.
type Comparison struct {
	Bool     Boolean
	Column   string
	Operator string
	Value    any
}

// In tests strict membership of Column in Values.
type In struct {
	Bool   Boolean
	Column string
	Values []any
	Not    bool
}

// Null tests Column for NULL.
type Null struct {
	Bool   Boolean
	Column string
	Not    bool
}

// Between tests Low <= Column <= High.
type Between struct {
	Bool      Boolean
	Column    string
	Low, High any
	Not       bool
}

// Like matches Column against a SQL wildcard pattern, case-insensitively.
type Like struct {
	Bool    Boolean
	Column  string
	Pattern string
	Not     bool
}

// Raw is a literal SQL condition with positional bindings.
type Raw struct {
	Bool     Boolean
	SQL      string
	Bindings []any
}

// Group is a parenthesized list of predicates.
type Group struct {
	Bool       Boolean
	Predicates []Predicate
}

// Exists tests whether Query returns any row.
type Exists struct {
	Bool  Boolean
	Query State
	Not   bool
}

// InQuery tests membership of Column in the first column of Query's rows.
type InQuery struct {
	Bool   Boolean
	Column string
	Query  State
	Not    bool
}

func (p Comparison) Conjunction() Boolean { return p.Bool }
func (p In) Conjunction() Boolean         { return p.Bool }
func (p Null) Conjunction() Boolean       { return p.Bool }
func (p Between) Conjunction() Boolean    { return p.Bool }
func (p Like) Conjunction() Boolean       { return p.Bool }
func (p Raw) Conjunction() Boolean        { return p.Bool }
func (p Group) Conjunction() Boolean      { return p.Bool }
func (p Exists) Conjunction() Boolean     { return p.Bool }
func (p InQuery) Conjunction() Boolean    { return p.Bool }

func (Comparison) isPredicate() {}
func (In) isPredicate()         {}
func (Null) isPredicate()       {}
func (Between) isPredicate()    {}
func (Like) isPredicate()       {}
func (Raw) isPredicate()        {}
func (Group) isPredicate()      {}
func (Exists) isPredicate()     {}
func (InQuery) isPredicate()    {}

// comparisonOperators maps accepted spellings to their canonical form.
var comparisonOperators = map[string]string{
	"=":  "=",
	"==": "=",
	"!=": "!=",
	"<>": "!=",
	"<":  "<",
	">":  ">",
	"<=": "<=",
	">=": ">=",
}

// NormalizeOperator returns the canonical comparison operator, or false when
// op is not a comparison.
func NormalizeOperator(op string) (string, bool) {
	canon, ok := comparisonOperators[strings.TrimSpace(op)]
	return canon, ok
}

// ClonePredicates deep-copies a predicate list.
func ClonePredicates(ps []Predicate) []Predicate {
	if ps == nil {
		return nil
	}
	out := make([]Predicate, len(ps))
	for i, p := range ps {
		switch x := p.(type) {
		case In:
			x.Values = slices.Clone(x.Values)
			out[i] = x
		case Raw:
			x.Bindings = slices.Clone(x.Bindings)
			out[i] = x
		case Group:
			x.Predicates = ClonePredicates(x.Predicates)
			out[i] = x
		case Exists:
			x.Query = x.Query.Clone()
			out[i] = x
		case InQuery:
			x.Query = x.Query.Clone()
			out[i] = x
		default:
			out[i] = p
		}
	}
	return out
}

// WithConjunction returns p joined by b.
func WithConjunction(p Predicate, b Boolean) Predicate {
	switch x := p.(type) {
	case Comparison:
		x.Bool = b
		return x
	case In:
		x.Bool = b
		return x
	case Null:
		x.Bool = b
		return x
	case Between:
		x.Bool = b
		return x
	case Like:
		x.Bool = b
		return x
	case Raw:
		x.Bool = b
		return x
	case Group:
		x.Bool = b
		return x
	case Exists:
		x.Bool = b
		return x
	case InQuery:
		x.Bool = b
		return x
	}
	return p
}
