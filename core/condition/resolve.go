package condition

import (
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/result"
)

// Runner executes a subquery.
type Runner func(s query.State) (*result.ResultSet, error)

// Always-true and always-false conditions that replace resolved EXISTS nodes.
const (
	trueSQL  = "1 = 1"
	falseSQL = "1 = 0"
)

// ResolveSubqueries runs every EXISTS and IN subquery in preds once and
// returns an equivalent list without subqueries: EXISTS becomes a constant
// condition and IN (subquery) becomes a literal IN list. Nested groups are
// resolved too.
func ResolveSubqueries(preds []query.Predicate, run Runner) ([]query.Predicate, error) {
	if !hasSubquery(preds) {
		return preds, nil
	}
	out := make([]query.Predicate, len(preds))
	for i, p := range preds {
		switch x := p.(type) {
		case query.Exists:
			sub := x.Query.Clone()
			sub.Limit = 1
			rs, err := run(sub)
			if err != nil {
				return nil, err
			}
			sql := falseSQL
			if rs.IsEmpty() == x.Not {
				sql = trueSQL
			}
			out[i] = query.Raw{Bool: x.Bool, SQL: sql}
		case query.InQuery:
			rs, err := run(x.Query)
			if err != nil {
				return nil, err
			}
			values := make([]any, 0, rs.Len())
			for _, r := range rs.All() {
				if vals := r.Values(); len(vals) > 0 {
					values = append(values, vals[0])
				}
			}
			out[i] = query.In{Bool: x.Bool, Column: x.Column, Values: values, Not: x.Not}
		case query.Group:
			inner, err := ResolveSubqueries(x.Predicates, run)
			if err != nil {
				return nil, err
			}
			out[i] = query.Group{Bool: x.Bool, Predicates: inner}
		default:
			out[i] = p
		}
	}
	return out, nil
}

func hasSubquery(preds []query.Predicate) bool {
	for _, p := range preds {
		switch x := p.(type) {
		case query.Exists, query.InQuery:
			return true
		case query.Group:
			if hasSubquery(x.Predicates) {
				return true
			}
		}
	}
	return false
}
