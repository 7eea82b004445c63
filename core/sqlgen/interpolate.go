package sqlgen

import (
	"encoding/hex"
	"strconv"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/row"
)

// Interpolate replaces each ? placeholder of sql with the literal form of the
// matching argument. Placeholders inside string literals, quoted identifiers
// and comments are left alone. The host backend uses it for database APIs
// that take no bindings.
func Interpolate(d Dialect, sql string, args []any) (string, error) {
	if len(args) == 0 && !strings.Contains(sql, "?") {
		return sql, nil
	}
	var b strings.Builder
	b.Grow(len(sql) + 16*len(args))
	n := 0
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch c {
		case '\'', '"', '`':
			end := skipQuoted(sql, i, c, d.Name() == "mysql" && c == '\'')
			b.WriteString(sql[i:end])
			i = end - 1
		case '-':
			if strings.HasPrefix(sql[i:], "--") {
				end := strings.IndexByte(sql[i:], '\n')
				if end < 0 {
					end = len(sql) - i
				}
				b.WriteString(sql[i : i+end])
				i += end - 1
				continue
			}
			b.WriteByte(c)
		case '?':
			if n >= len(args) {
				return "", sagaerrors.NewValidation("bindings", sql, "more placeholders than bindings")
			}
			b.WriteString(Literal(d, args[n]))
			n++
		default:
			b.WriteByte(c)
		}
	}
	if n != len(args) {
		return "", sagaerrors.NewValidation("bindings", sql, "more bindings than placeholders")
	}
	return b.String(), nil
}

// skipQuoted returns the index just past the quoted run starting at i.
// Doubled quotes stay inside the run; backslash escapes only when the dialect
// treats them as escapes.
func skipQuoted(s string, i int, q byte, backslash bool) int {
	for j := i + 1; j < len(s); j++ {
		switch {
		case backslash && s[j] == '\\':
			j++
		case s[j] == q && j+1 < len(s) && s[j+1] == q:
			j++
		case s[j] == q:
			return j + 1
		}
	}
	return len(s)
}

// Literal renders a normalized value as a SQL literal of d.
func Literal(d Dialect, v any) string {
	switch x := row.Normalize(v).(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'"
	case string:
		return d.QuoteString(x)
	}
	return "NULL"
}
