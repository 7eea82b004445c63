package row

import (
	"cmp"
	"strings"
)

// Compare orders two scalars with loose, host-style coercion and returns -1, 0
// or +1:
//
//   - a bool on either side compares both sides as booleans;
//   - nil equals "" against strings and false against everything else;
//   - numbers and numeric strings compare numerically;
//   - a number against a non-numeric string compares as text;
//   - everything else compares bytewise as text.
func Compare(a, b any) int {
	a, b = asText(Normalize(a)), asText(Normalize(b))

	_, aBool := a.(bool)
	_, bBool := b.(bool)
	switch {
	case a == nil && b == nil:
		return 0
	case aBool || bBool:
		return compareBool(Truthy(a), Truthy(b))
	case a == nil:
		if s, ok := b.(string); ok {
			return strings.Compare("", s)
		}
		return compareBool(false, Truthy(b))
	case b == nil:
		if s, ok := a.(string); ok {
			return strings.Compare(s, "")
		}
		return compareBool(Truthy(a), false)
	}

	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	if aNum && bNum {
		return compareNumbers(an, bn)
	}
	return strings.Compare(ToString(a), ToString(b))
}

// LooseEqual reports whether Compare(a, b) == 0.
func LooseEqual(a, b any) bool {
	return Compare(a, b) == 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func asText(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// numeric returns v as int64 or float64 when it is a number or numeric string.
func numeric(v any) (any, bool) {
	switch x := v.(type) {
	case int64, float64:
		return x, true
	case string:
		return ParseNumber(x)
	default:
		return nil, false
	}
}

func compareNumbers(a, b any) int {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(ToFloat(a), ToFloat(b))
}
