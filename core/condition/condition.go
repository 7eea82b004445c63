// Package condition decides whether a row satisfies a list of predicates.
//
// Comparison operators (=, !=, <, >, <=, >=, BETWEEN) use the loose ordering of
// row.Compare, so "30" equals 30. IN and NOT IN use strict identity, so "30" is
// not in [30]. IS NULL tests identity with nil. LIKE is case-insensitive and
// anchored, and never matches a nil subject.
//
// A predicate list is a left fold: the first predicate seeds the result and
// each later one combines with it through its own AND/OR. Conventional
// precedence requires explicit Group nodes.
package condition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/calounx/sagas-sub011/core/cache"
	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
)

// Matches reports whether r satisfies preds. A predicate that cannot be
// evaluated counts as a non-match; use Evaluate to see the error.
func Matches(r row.Row, preds []query.Predicate) bool {
	ok, err := Evaluate(r, preds)
	return err == nil && ok
}

// Evaluate folds preds over r left to right. An empty list is satisfied.
func Evaluate(r row.Row, preds []query.Predicate) (bool, error) {
	var acc bool
	for i, p := range preds {
		if i > 0 {
			switch p.Conjunction() {
			case query.Or:
				if acc {
					continue
				}
			default:
				if !acc {
					continue
				}
			}
		}
		v, err := evaluate(r, p)
		if err != nil {
			return false, err
		}
		acc = v
	}
	if len(preds) == 0 {
		return true, nil
	}
	return acc, nil
}

func evaluate(r row.Row, p query.Predicate) (bool, error) {
	switch x := p.(type) {
	case query.Comparison:
		return Compare(Lookup(r, x.Column), x.Operator, x.Value)
	case query.In:
		found := contains(x.Values, Lookup(r, x.Column))
		return found != x.Not, nil
	case query.Null:
		return (Lookup(r, x.Column) == nil) != x.Not, nil
	case query.Between:
		in := between(Lookup(r, x.Column), x.Low, x.High)
		return in != x.Not, nil
	case query.Like:
		v := Lookup(r, x.Column)
		if v == nil {
			return false, nil
		}
		m, err := Like(row.ToString(v), x.Pattern)
		if err != nil {
			return false, err
		}
		return m != x.Not, nil
	case query.Raw:
		return EvaluateRaw(r, x.SQL, x.Bindings)
	case query.Group:
		return Evaluate(r, x.Predicates)
	case query.Exists, query.InQuery:
		return false, sagaerrors.NewUnsupported("unresolved subquery", "subqueries must be resolved before evaluation")
	}
	return false, sagaerrors.NewUnsupported(fmt.Sprintf("predicate %T", p), "")
}

// Lookup returns the value of col in r. A qualified reference "t.col" that is
// not present falls back to the bare column name.
func Lookup(r row.Row, col string) any {
	if v, ok := r.Get(col); ok {
		return v
	}
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		return r.Value(col[i+1:])
	}
	return nil
}

// Compare applies a comparison operator with loose coercion.
func Compare(left any, op string, right any) (bool, error) {
	c := row.Compare(left, right)
	switch op {
	case "=":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case ">":
		return c > 0, nil
	case "<=":
		return c <= 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, sagaerrors.NewValidation("operator", op, "unknown comparison operator")
}

func contains(values []any, v any) bool {
	for _, x := range values {
		if row.Identical(x, v) {
			return true
		}
	}
	return false
}

func between(v, low, high any) bool {
	return row.Compare(v, low) >= 0 && row.Compare(v, high) <= 0
}

var likeCache = cache.New[string, *regexp.Regexp](512)

// Like reports whether s matches a SQL wildcard pattern: % matches any run of
// characters, _ any single character, and a backslash escapes the next one.
// Matching is anchored and case-insensitive.
func Like(s, pattern string) (bool, error) {
	re, err := cache.GetOrCompute(likeCache, pattern, compileLike)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func compileLike(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?is)^`)
	escaped := false
	for _, c := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(c)))
			escaped = false
		case c == '\\':
			escaped = true
		case c == '%':
			b.WriteString(`.*`)
		case c == '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if escaped {
		b.WriteString(`\\`)
	}
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, &sagaerrors.ParseError{Format: "LIKE pattern", Input: pattern, Message: err.Error(), Err: sagaerrors.ErrInvalidInput}
	}
	return re, nil
}
