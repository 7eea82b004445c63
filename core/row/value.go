package row

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a normalized scalar.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// DateTimeLayout is the textual form time.Time values are normalized to.
const DateTimeLayout = "2006-01-02 15:04:05"

// KindOf reports the kind of a normalized value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case []byte:
		return KindBytes
	default:
		return KindOf(Normalize(v))
	}
}

// Normalize maps Go values onto the scalar model: integers become int64,
// floats float64, times a DateTimeLayout string, driver.Valuers their value,
// and anything else its fmt representation.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, int64, float64, string:
		return x
	case []byte:
		if x == nil {
			return nil
		}
		return bytes.Clone(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.Format(DateTimeLayout)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *bool:
		if x == nil {
			return nil
		}
		return *x
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return nil
		}
		return Normalize(dv)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Identical reports strict equality: same kind and same value.
func Identical(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	default:
		return false
	}
}

// ToString renders a scalar the way a loosely typed host would cast it.
func ToString(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "1"
		}
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// ToFloat converts a scalar to float64. Non-numeric strings yield their
// leading numeric prefix, or 0.
func ToFloat(v any) float64 {
	switch x := Normalize(v).(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case int64:
		return float64(x)
	case float64:
		return x
	case string:
		return leadingNumber(x)
	case []byte:
		return leadingNumber(string(x))
	default:
		return 0
	}
}

// ToInt converts a scalar to int64, truncating floats.
func ToInt(v any) int64 {
	if i, ok := Normalize(v).(int64); ok {
		return i
	}
	return int64(ToFloat(v))
}

// Truthy reports the boolean interpretation of a scalar.
func Truthy(v any) bool {
	switch x := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0"
	case []byte:
		return len(x) > 0 && string(x) != "0"
	default:
		return false
	}
}

// IsNumeric reports whether v is a number or a numeric string.
func IsNumeric(v any) bool {
	switch x := Normalize(v).(type) {
	case int64, float64:
		return true
	case string:
		return IsNumericString(x)
	default:
		return false
	}
}

// IsNumericString reports whether s is an integer or decimal literal,
// allowing surrounding whitespace, a sign and an exponent.
func IsNumericString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	// ParseFloat accepts "inf", "nan" and hex floats; hosts do not.
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c == '.', c == '-', c == '+', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return true
}

// ParseNumber converts a numeric string to int64 when it is integral, float64
// otherwise. ok is false for non-numeric input.
func ParseNumber(s string) (any, bool) {
	if !IsNumericString(s) {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

func leadingNumber(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case (c == '-' || c == '+') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
		end--
	}
	return 0
}

// FormatValue renders a value for logs and debug output.
func FormatValue(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return "NULL"
	case string:
		return strconv.Quote(x)
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	default:
		return ToString(x)
	}
}
