// Package sqlgen renders query states and schema definitions as SQL for the
// prepared-statement and host backends.
//
// Rendering is dialect driven. The two shipped dialects, SQLite and MySQL,
// cover the identifier quoting, LIMIT, upsert and DDL differences that the
// query builder and schema manager rely on.
package sqlgen

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
)

// Statement is one SQL statement with its positional bindings.
type Statement struct {
	SQL  string
	Args []any
	// Optional statements may fail without failing the operation.
	Optional bool
}

// Querier runs a read statement for introspection.
type Querier func(sql string, args ...any) (*result.ResultSet, error)

// Dialect captures the SQL differences between database engines. Table names
// passed to a Dialect are physical and unquoted.
type Dialect interface {
	Name() string
	Quote(ident string) string
	// QuoteString renders s as a string literal.
	QuoteString(s string) string

	// TypeName renders the column's type, including length, precision and
	// signedness.
	TypeName(c schema.ColumnDefinition) string
	// ColumnDefinition renders a full column clause for CREATE and ALTER.
	ColumnDefinition(c schema.ColumnDefinition) string
	// InlinesAutoIncrementKey reports whether an auto-increment column
	// declares the primary key itself, so the table must not repeat it.
	InlinesAutoIncrementKey() bool
	// SupportsIndexType reports whether indexes of type t can be created.
	SupportsIndexType(t schema.IndexType) bool

	// Limit renders the LIMIT/OFFSET suffix; query.NoLimit means unlimited.
	Limit(limit, offset int) string
	// LikeEscape is appended to every LIKE so that a backslash escapes.
	LikeEscape() string
	// Upsert renders the conflict clause appended to an INSERT.
	Upsert(update []string) string
	// SupportsWriteLimit reports whether UPDATE and DELETE accept LIMIT.
	SupportsWriteLimit() bool
	Truncate(table string) []Statement
	// Begin returns the statements that open a transaction at iso.
	Begin(iso txn.Isolation) []string

	ModifyColumn(table string, c schema.ColumnDefinition) (string, error)
	AddPrimaryKey(table string, columns []string) (string, error)
	DropPrimaryKey(table string) (string, error)
	DropIndex(table, index string) string
	AddForeignKey(table, constraint string) (string, error)
	DropForeignKey(table, name string) (string, error)

	// ListTables returns the physical names of every user table.
	ListTables(q Querier) ([]string, error)
	// Describe introspects one table. It returns nil when the table does not
	// exist.
	Describe(q Querier, table string) (*Description, error)

	// Classify maps a driver error onto an error code and, when recognized,
	// a sentinel such as errors.ErrConstraint.
	Classify(err error) (code string, sentinel error)
}

// Description is the raw introspected shape of a table, with physical names.
type Description struct {
	Columns     []schema.ColumnDefinition
	PrimaryKey  []string
	Indexes     []IndexInfo
	ForeignKeys []ForeignKeyInfo
	Comment     string
}

// IndexInfo is one introspected secondary index.
type IndexInfo struct {
	Name    string
	Type    schema.IndexType
	Columns []string
}

// ForeignKeyInfo is one introspected foreign key.
type ForeignKeyInfo struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   schema.ReferentialAction
	OnUpdate   schema.ReferentialAction
}

func quoteWith(ident string, q byte) string {
	s := string(q)
	return s + strings.ReplaceAll(ident, s, s+s) + s
}

func quoteList(d Dialect, idents []string) string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = d.Quote(id)
	}
	return strings.Join(out, ", ")
}

// quoteString renders s as a single-quoted SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// currentTimestamp is accepted as a default of temporal columns.
const currentTimestamp = "CURRENT_TIMESTAMP"

// literal renders a default value for DDL.
func literal(c schema.ColumnDefinition, v any) string {
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
		if c.Type().IsTemporal() && strings.EqualFold(x, currentTimestamp) {
			return currentTimestamp
		}
		return quoteString(x)
	}
	return "NULL"
}

// defaultClause renders " DEFAULT x" or nothing.
func defaultClause(c schema.ColumnDefinition) string {
	v, ok := c.Default()
	if !ok {
		return ""
	}
	return " DEFAULT " + literal(c, v)
}

// parseDefault reverses literal for introspected default expressions.
func parseDefault(c schema.ColumnType, text string) (any, bool) {
	s := strings.TrimSpace(text)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	switch {
	case s == "":
		return nil, false
	case strings.EqualFold(s, "NULL"):
		return nil, true
	case strings.EqualFold(s, currentTimestamp), strings.EqualFold(s, "CURRENT_TIMESTAMP()"):
		return currentTimestamp, true
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
	}
	if c == schema.Boolean {
		switch strings.ToUpper(s) {
		case "1", "TRUE", "B'1'":
			return true, true
		case "0", "FALSE", "B'0'":
			return false, true
		}
	}
	if c.IsNumeric() {
		if n, ok := row.ParseNumber(s); ok {
			return n, true
		}
	}
	return s, true
}

// declType is a parsed declared column type such as "DECIMAL(10,2) UNSIGNED".
type declType struct {
	typ       schema.ColumnType
	length    int
	precision int
	scale     int
	unsigned  bool
}

func parseDeclType(decl string) (declType, error) {
	upper := strings.ToUpper(strings.TrimSpace(decl))
	var d declType
	if strings.Contains(upper, "UNSIGNED") {
		d.unsigned = true
		upper = strings.TrimSpace(strings.ReplaceAll(upper, "UNSIGNED", ""))
	}
	upper = strings.TrimSpace(strings.ReplaceAll(upper, "ZEROFILL", ""))
	var args []int
	if open := strings.IndexByte(upper, '('); open >= 0 {
		if end := strings.IndexByte(upper[open:], ')'); end > 0 {
			for _, part := range strings.Split(upper[open+1:open+end], ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err == nil {
					args = append(args, n)
				}
			}
		}
		upper = strings.TrimSpace(upper[:open])
	}
	if upper == "TINYINT" && len(args) == 1 && args[0] == 1 {
		d.typ = schema.Boolean
		return d, nil
	}
	typ, err := schema.ParseColumnType(upper)
	if err != nil {
		return d, err
	}
	d.typ = typ
	switch {
	case typ.RequiresLength():
		if len(args) > 0 {
			d.length = args[0]
		} else {
			d.length = 255
		}
	case typ.SupportsPrecision() && len(args) > 0:
		d.precision = args[0]
		if len(args) > 1 {
			d.scale = args[1]
		}
	}
	if !typ.SupportsUnsigned() {
		d.unsigned = false
	}
	return d, nil
}

// options turns a parsed type into column options.
func (d declType) options() []schema.ColumnOption {
	var opts []schema.ColumnOption
	if d.length > 0 {
		opts = append(opts, schema.Length(d.length))
	}
	if d.precision > 0 {
		opts = append(opts, schema.Precision(d.precision, d.scale))
	}
	if d.unsigned {
		opts = append(opts, schema.Unsigned())
	}
	return opts
}

// typeName renders the portable part of a type name; the dialects adjust it.
func typeName(c schema.ColumnDefinition) (base, args string) {
	base = c.Type().String()
	switch {
	case c.Type().RequiresLength():
		args = "(" + strconv.Itoa(c.Length()) + ")"
	case c.Type().SupportsPrecision():
		if p, s := c.Precision(); p > 0 {
			args = "(" + strconv.Itoa(p) + "," + strconv.Itoa(s) + ")"
		}
	}
	return base, args
}
