package schema

import (
	"fmt"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

// ColumnType is the closed set of column types the schema layer understands.
type ColumnType int

const (
	TinyInteger ColumnType = iota + 1
	SmallInteger
	Integer
	BigInteger
	Decimal
	Float
	Double
	Boolean
	Char
	Varchar
	Text
	MediumText
	LongText
	Date
	DateTime
	Timestamp
	Time
	JSON
	Binary
	Blob
)

// ColumnTypes lists every column type in declaration order.
var ColumnTypes = []ColumnType{
	TinyInteger, SmallInteger, Integer, BigInteger, Decimal, Float, Double, Boolean,
	Char, Varchar, Text, MediumText, LongText, Date, DateTime, Timestamp, Time,
	JSON, Binary, Blob,
}

// String returns the canonical SQL name.
func (t ColumnType) String() string {
	switch t {
	case TinyInteger:
		return "TINYINT"
	case SmallInteger:
		return "SMALLINT"
	case Integer:
		return "INTEGER"
	case BigInteger:
		return "BIGINT"
	case Decimal:
		return "DECIMAL"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Boolean:
		return "BOOLEAN"
	case Char:
		return "CHAR"
	case Varchar:
		return "VARCHAR"
	case Text:
		return "TEXT"
	case MediumText:
		return "MEDIUMTEXT"
	case LongText:
		return "LONGTEXT"
	case Date:
		return "DATE"
	case DateTime:
		return "DATETIME"
	case Timestamp:
		return "TIMESTAMP"
	case Time:
		return "TIME"
	case JSON:
		return "JSON"
	case Binary:
		return "VARBINARY"
	case Blob:
		return "BLOB"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Valid reports whether t is one of the declared constants.
func (t ColumnType) Valid() bool {
	return t >= TinyInteger && t <= Blob
}

// RequiresLength reports whether a column of this type must declare a length.
func (t ColumnType) RequiresLength() bool {
	switch t {
	case Char, Varchar, Binary:
		return true
	case TinyInteger, SmallInteger, Integer, BigInteger, Decimal, Float, Double, Boolean,
		Text, MediumText, LongText, Date, DateTime, Timestamp, Time, JSON, Blob:
		return false
	}
	return false
}

// IsInteger reports whether t stores whole numbers.
func (t ColumnType) IsInteger() bool {
	switch t {
	case TinyInteger, SmallInteger, Integer, BigInteger:
		return true
	case Decimal, Float, Double, Boolean, Char, Varchar, Text, MediumText, LongText,
		Date, DateTime, Timestamp, Time, JSON, Binary, Blob:
		return false
	}
	return false
}

// IsNumeric reports whether t stores numbers.
func (t ColumnType) IsNumeric() bool {
	switch t {
	case TinyInteger, SmallInteger, Integer, BigInteger, Decimal, Float, Double:
		return true
	case Boolean, Char, Varchar, Text, MediumText, LongText, Date, DateTime, Timestamp,
		Time, JSON, Binary, Blob:
		return false
	}
	return false
}

// IsText reports whether t stores character data.
func (t ColumnType) IsText() bool {
	switch t {
	case Char, Varchar, Text, MediumText, LongText, JSON:
		return true
	case TinyInteger, SmallInteger, Integer, BigInteger, Decimal, Float, Double, Boolean,
		Date, DateTime, Timestamp, Time, Binary, Blob:
		return false
	}
	return false
}

// IsTemporal reports whether t stores dates or times.
func (t ColumnType) IsTemporal() bool {
	switch t {
	case Date, DateTime, Timestamp, Time:
		return true
	case TinyInteger, SmallInteger, Integer, BigInteger, Decimal, Float, Double, Boolean,
		Char, Varchar, Text, MediumText, LongText, JSON, Binary, Blob:
		return false
	}
	return false
}

// IsBinary reports whether t stores opaque bytes.
func (t ColumnType) IsBinary() bool {
	switch t {
	case Binary, Blob:
		return true
	case TinyInteger, SmallInteger, Integer, BigInteger, Decimal, Float, Double, Boolean,
		Char, Varchar, Text, MediumText, LongText, Date, DateTime, Timestamp, Time, JSON:
		return false
	}
	return false
}

// SupportsAutoIncrement reports whether a column of this type may auto-increment.
func (t ColumnType) SupportsAutoIncrement() bool {
	return t.IsInteger()
}

// SupportsPrecision reports whether t accepts precision and scale.
func (t ColumnType) SupportsPrecision() bool {
	switch t {
	case Decimal, Float, Double:
		return true
	case TinyInteger, SmallInteger, Integer, BigInteger, Boolean, Char, Varchar, Text,
		MediumText, LongText, Date, DateTime, Timestamp, Time, JSON, Binary, Blob:
		return false
	}
	return false
}

// SupportsUnsigned reports whether t accepts the UNSIGNED modifier.
func (t ColumnType) SupportsUnsigned() bool {
	return t.IsNumeric()
}

var columnTypeAliases = map[string]ColumnType{
	"TINYINT":    TinyInteger,
	"SMALLINT":   SmallInteger,
	"INT":        Integer,
	"INTEGER":    Integer,
	"MEDIUMINT":  Integer,
	"BIGINT":     BigInteger,
	"DECIMAL":    Decimal,
	"NUMERIC":    Decimal,
	"FLOAT":      Float,
	"REAL":       Double,
	"DOUBLE":     Double,
	"BOOL":       Boolean,
	"BOOLEAN":    Boolean,
	"CHAR":       Char,
	"VARCHAR":    Varchar,
	"STRING":     Varchar,
	"TEXT":       Text,
	"MEDIUMTEXT": MediumText,
	"LONGTEXT":   LongText,
	"DATE":       Date,
	"DATETIME":   DateTime,
	"TIMESTAMP":  Timestamp,
	"TIME":       Time,
	"JSON":       JSON,
	"BINARY":     Binary,
	"VARBINARY":  Binary,
	"BLOB":       Blob,
}

// ParseColumnType maps a case-insensitive SQL type name, optionally followed by
// a parenthesized length such as "varchar(255)", to a ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	base := strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	base = strings.TrimSuffix(base, " UNSIGNED")
	if t, ok := columnTypeAliases[base]; ok {
		return t, nil
	}
	return 0, sagaerrors.NewValidation("column.type", name, "unknown column type")
}

// ReferentialAction is the closed set of ON DELETE / ON UPDATE behaviors.
type ReferentialAction int

const (
	NoAction ReferentialAction = iota
	Restrict
	Cascade
	SetNull
	SetDefault
)

// String returns the SQL spelling.
func (a ReferentialAction) String() string {
	switch a {
	case NoAction:
		return "NO ACTION"
	case Restrict:
		return "RESTRICT"
	case Cascade:
		return "CASCADE"
	case SetNull:
		return "SET NULL"
	case SetDefault:
		return "SET DEFAULT"
	}
	return fmt.Sprintf("ReferentialAction(%d)", int(a))
}

// Valid reports whether a is one of the declared constants.
func (a ReferentialAction) Valid() bool {
	return a >= NoAction && a <= SetDefault
}

// RequiresNullable reports whether the referencing columns must accept NULL.
func (a ReferentialAction) RequiresNullable() bool {
	switch a {
	case SetNull:
		return true
	case NoAction, Restrict, Cascade, SetDefault:
		return false
	}
	return false
}

// Propagates reports whether the action changes referencing rows.
func (a ReferentialAction) Propagates() bool {
	switch a {
	case Cascade, SetNull, SetDefault:
		return true
	case NoAction, Restrict:
		return false
	}
	return false
}

// ParseReferentialAction maps a case-insensitive SQL spelling to an action.
// Underscores are accepted in place of spaces.
func ParseReferentialAction(s string) (ReferentialAction, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "", "NO ACTION":
		return NoAction, nil
	case "RESTRICT":
		return Restrict, nil
	case "CASCADE":
		return Cascade, nil
	case "SET NULL":
		return SetNull, nil
	case "SET DEFAULT":
		return SetDefault, nil
	}
	return 0, sagaerrors.NewValidation("foreign_key.action", s, "unknown referential action")
}

// IndexType is the closed set of index kinds.
type IndexType int

const (
	Plain IndexType = iota
	Unique
	Primary
	Fulltext
	Spatial
)

// String returns the SQL keyword.
func (t IndexType) String() string {
	switch t {
	case Plain:
		return "INDEX"
	case Unique:
		return "UNIQUE"
	case Primary:
		return "PRIMARY KEY"
	case Fulltext:
		return "FULLTEXT"
	case Spatial:
		return "SPATIAL"
	}
	return fmt.Sprintf("IndexType(%d)", int(t))
}

// Valid reports whether t is one of the declared constants.
func (t IndexType) Valid() bool {
	return t >= Plain && t <= Spatial
}

// IsUnique reports whether the index enforces uniqueness.
func (t IndexType) IsUnique() bool {
	switch t {
	case Unique, Primary:
		return true
	case Plain, Fulltext, Spatial:
		return false
	}
	return false
}

// AllowsMultipleColumns reports whether the index may span several columns.
func (t IndexType) AllowsMultipleColumns() bool {
	switch t {
	case Plain, Unique, Primary, Fulltext:
		return true
	case Spatial:
		return false
	}
	return false
}

// ParseIndexType maps a case-insensitive keyword to an IndexType.
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INDEX", "KEY", "PLAIN":
		return Plain, nil
	case "UNIQUE":
		return Unique, nil
	case "PRIMARY", "PRIMARY KEY":
		return Primary, nil
	case "FULLTEXT":
		return Fulltext, nil
	case "SPATIAL":
		return Spatial, nil
	}
	return 0, sagaerrors.NewValidation("index.type", s, "unknown index type")
}
