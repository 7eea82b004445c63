package condition

import (
	"math"
	"strings"
	"unicode/utf8"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/expr"
	"github.com/calounx/sagas-sub011/core/row"
)

// EvaluateRaw evaluates a raw SQL condition against r, binding ? placeholders
// positionally.
func EvaluateRaw(r row.Row, sql string, bindings []any) (bool, error) {
	c, err := expr.ParseCondition(sql)
	if err != nil {
		return false, err
	}
	if c.Placeholders != len(bindings) {
		return false, sagaerrors.NewValidation("bindings", sql, "placeholder count does not match bindings")
	}
	return evalNode(r, c.Root, bindings)
}

func evalNode(r row.Row, n expr.Node, args []any) (bool, error) {
	switch x := n.(type) {
	case expr.Logical:
		or := x.Op == "OR"
		for _, t := range x.Terms {
			v, err := evalNode(r, t, args)
			if err != nil {
				return false, err
			}
			if v == or {
				return or, nil
			}
		}
		return !or, nil
	case expr.Not:
		v, err := evalNode(r, x.X, args)
		return !v, err
	case expr.Compare:
		left, err := Operand(r, x.Left, args)
		if err != nil {
			return false, err
		}
		right, err := Operand(r, x.Right, args)
		if err != nil {
			return false, err
		}
		return Compare(left, x.Op, right)
	case expr.IsNull:
		v, err := Operand(r, x.X, args)
		return (v == nil) != x.Not, err
	case expr.InList:
		v, err := Operand(r, x.X, args)
		if err != nil {
			return false, err
		}
		values := make([]any, len(x.Values))
		for i, o := range x.Values {
			if values[i], err = Operand(r, o, args); err != nil {
				return false, err
			}
		}
		return contains(values, v) != x.Not, nil
	case expr.Like:
		v, err := Operand(r, x.X, args)
		if err != nil || v == nil {
			return false, err
		}
		pattern, err := Operand(r, x.Pattern, args)
		if err != nil {
			return false, err
		}
		m, err := Like(row.ToString(v), row.ToString(pattern))
		return m != x.Not, err
	case expr.Between:
		v, err := Operand(r, x.X, args)
		if err != nil {
			return false, err
		}
		low, err := Operand(r, x.Low, args)
		if err != nil {
			return false, err
		}
		high, err := Operand(r, x.High, args)
		if err != nil {
			return false, err
		}
		return between(v, low, high) != x.Not, nil
	case expr.Truth:
		v, err := Operand(r, x.X, args)
		return row.Truthy(v), err
	}
	return false, sagaerrors.NewUnsupported("raw expression node", "")
}

// Operand computes the value of a scalar operand against r. Aggregate calls
// are not scalar and fail; callers that group rows compute them separately.
func Operand(r row.Row, o expr.Operand, args []any) (any, error) {
	switch o.Kind {
	case expr.Literal:
		return o.Value, nil
	case expr.Column:
		return Lookup(r, o.Column), nil
	case expr.Placeholder:
		if o.Index >= len(args) {
			return nil, sagaerrors.NewValidation("bindings", "?", "missing binding")
		}
		return row.Normalize(args[o.Index]), nil
	case expr.Func:
		if o.IsAggregate() {
			// Grouped rows carry their computed aggregates under the
			// expression text.
			if v, ok := r.Get(o.String()); ok {
				return v, nil
			}
			return nil, sagaerrors.NewUnsupported("aggregate "+o.Name, "aggregates are only valid in select lists and HAVING")
		}
		return scalarFunc(r, o, args)
	case expr.Star:
		return nil, sagaerrors.NewValidation("operand", "*", "a wildcard is not a value")
	}
	return nil, sagaerrors.NewUnsupported("operand", "")
}

func scalarFunc(r row.Row, o expr.Operand, args []any) (any, error) {
	vals := make([]any, len(o.Args))
	for i, a := range o.Args {
		v, err := Operand(r, a, args)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	arity := func(n int) error {
		if len(vals) != n {
			return sagaerrors.NewValidation("function", o.Name, "wrong number of arguments")
		}
		return nil
	}
	switch o.Name {
	case "LOWER", "UPPER", "LENGTH", "ABS", "TRIM":
		if err := arity(1); err != nil {
			return nil, err
		}
		if vals[0] == nil {
			return nil, nil
		}
		switch o.Name {
		case "LOWER":
			return strings.ToLower(row.ToString(vals[0])), nil
		case "UPPER":
			return strings.ToUpper(row.ToString(vals[0])), nil
		case "TRIM":
			return strings.TrimSpace(row.ToString(vals[0])), nil
		case "LENGTH":
			return int64(utf8.RuneCountInString(row.ToString(vals[0]))), nil
		default:
			if i, ok := vals[0].(int64); ok {
				if i < 0 {
					return -i, nil
				}
				return i, nil
			}
			return math.Abs(row.ToFloat(vals[0])), nil
		}
	case "COALESCE", "IFNULL":
		for _, v := range vals {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	}
	return nil, sagaerrors.NewUnsupported("function "+o.Name, "not available in the in-process backend")
}
