package schema

import (
	"fmt"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// ColumnDefinition describes one table column. Values are immutable: every
// With method validates and returns a new definition.
type ColumnDefinition struct {
	name          string
	typ           ColumnType
	length        int
	precision     int
	scale         int
	nullable      bool
	def           any
	hasDefault    bool
	autoIncrement bool
	unsigned      bool
	comment       string
}

// ColumnOption configures a column under construction.
type ColumnOption func(*ColumnDefinition)

// Length sets the declared length of CHAR, VARCHAR and BINARY columns.
func Length(n int) ColumnOption {
	return func(c *ColumnDefinition) { c.length = n }
}

// Precision sets precision and scale for DECIMAL, FLOAT and DOUBLE columns.
func Precision(precision, scale int) ColumnOption {
	return func(c *ColumnDefinition) { c.precision, c.scale = precision, scale }
}

// Nullable marks the column as accepting NULL.
func Nullable() ColumnOption {
	return func(c *ColumnDefinition) { c.nullable = true }
}

// Default sets the value stored when an insert omits the column.
func Default(v any) ColumnOption {
	return func(c *ColumnDefinition) { c.def, c.hasDefault = row.Normalize(v), true }
}

// AutoIncrement marks an integer column as generated on insert.
func AutoIncrement() ColumnOption {
	return func(c *ColumnDefinition) { c.autoIncrement = true }
}

// Unsigned marks a numeric column as UNSIGNED.
func Unsigned() ColumnOption {
	return func(c *ColumnDefinition) { c.unsigned = true }
}

// Comment attaches a comment to the column.
func Comment(s string) ColumnOption {
	return func(c *ColumnDefinition) { c.comment = s }
}

// NewColumn builds and validates a column definition.
func NewColumn(name string, typ ColumnType, opts ...ColumnOption) (ColumnDefinition, error) {
	c := ColumnDefinition{name: name, typ: typ}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return ColumnDefinition{}, err
	}
	return c, nil
}

// MustColumn is NewColumn for literals known to be valid. It panics on error.
func MustColumn(name string, typ ColumnType, opts ...ColumnOption) ColumnDefinition {
	c, err := NewColumn(name, typ, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ColumnDefinition) validate() error {
	if err := validateName("column.name", c.name); err != nil {
		return err
	}
	if !c.typ.Valid() {
		return sagaerrors.NewValidation("column.type", c.typ.String(), "unknown column type")
	}
	if c.length < 0 {
		return sagaerrors.NewValidation("column.length", fmt.Sprint(c.length), "length cannot be negative")
	}
	if c.typ.RequiresLength() && c.length == 0 {
		return sagaerrors.NewValidation("column.length", c.name, c.typ.String()+" requires a length")
	}
	if c.length > 0 && !c.typ.RequiresLength() {
		return sagaerrors.NewValidation("column.length", c.name, c.typ.String()+" does not take a length")
	}
	if c.precision != 0 || c.scale != 0 {
		if !c.typ.SupportsPrecision() {
			return sagaerrors.NewValidation("column.precision", c.name, c.typ.String()+" does not take a precision")
		}
		if c.precision <= 0 || c.scale < 0 || c.scale > c.precision {
			return sagaerrors.NewValidation("column.precision", fmt.Sprintf("%d,%d", c.precision, c.scale),
				"scale must be between 0 and a positive precision")
		}
	}
	if c.unsigned && !c.typ.SupportsUnsigned() {
		return sagaerrors.NewValidation("column.unsigned", c.name, c.typ.String()+" cannot be unsigned")
	}
	if c.autoIncrement {
		if !c.typ.SupportsAutoIncrement() {
			return sagaerrors.NewValidation("column.auto_increment", c.name, c.typ.String()+" cannot auto-increment")
		}
		if c.hasDefault {
			return sagaerrors.NewValidation("column.default", c.name, "auto-increment columns cannot have a default")
		}
	}
	if c.hasDefault && c.def == nil && !c.nullable {
		return sagaerrors.NewValidation("column.default", c.name, "NULL default on a NOT NULL column")
	}
	return nil
}

func validateName(field, name string) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return sagaerrors.NewValidation(field, name, err.Error())
	}
	return nil
}

func (c ColumnDefinition) Name() string          { return c.name }
func (c ColumnDefinition) Type() ColumnType      { return c.typ }
func (c ColumnDefinition) Length() int           { return c.length }
func (c ColumnDefinition) Precision() (int, int) { return c.precision, c.scale }
func (c ColumnDefinition) Nullable() bool        { return c.nullable }
func (c ColumnDefinition) AutoIncrement() bool   { return c.autoIncrement }
func (c ColumnDefinition) Unsigned() bool        { return c.unsigned }
func (c ColumnDefinition) Comment() string       { return c.comment }

// Default returns the default value and whether one is declared.
func (c ColumnDefinition) Default() (any, bool) { return c.def, c.hasDefault }

// WithName returns a copy renamed to name.
func (c ColumnDefinition) WithName(name string) (ColumnDefinition, error) {
	c.name = name
	return c.revalidate()
}

// WithType returns a copy with a different type and length. Precision is
// dropped when the new type does not support it.
func (c ColumnDefinition) WithType(typ ColumnType, length int) (ColumnDefinition, error) {
	c.typ, c.length = typ, length
	if !typ.SupportsPrecision() {
		c.precision, c.scale = 0, 0
	}
	if !typ.SupportsUnsigned() {
		c.unsigned = false
	}
	return c.revalidate()
}

// WithNullable returns a copy with nullability set.
func (c ColumnDefinition) WithNullable(nullable bool) (ColumnDefinition, error) {
	c.nullable = nullable
	return c.revalidate()
}

// WithDefault returns a copy with a default value.
func (c ColumnDefinition) WithDefault(v any) (ColumnDefinition, error) {
	c.def, c.hasDefault = row.Normalize(v), true
	return c.revalidate()
}

// WithoutDefault returns a copy without a default value.
func (c ColumnDefinition) WithoutDefault() ColumnDefinition {
	c.def, c.hasDefault = nil, false
	return c
}

// WithAutoIncrement returns a copy with auto-increment set.
func (c ColumnDefinition) WithAutoIncrement(on bool) (ColumnDefinition, error) {
	c.autoIncrement = on
	return c.revalidate()
}

func (c ColumnDefinition) revalidate() (ColumnDefinition, error) {
	if err := c.validate(); err != nil {
		return ColumnDefinition{}, err
	}
	return c, nil
}

// Equal reports whether two definitions describe the same column.
func (c ColumnDefinition) Equal(o ColumnDefinition) bool {
	return c.name == o.name && c.typ == o.typ && c.length == o.length &&
		c.precision == o.precision && c.scale == o.scale && c.nullable == o.nullable &&
		c.hasDefault == o.hasDefault && row.Identical(c.def, o.def) &&
		c.autoIncrement == o.autoIncrement && c.unsigned == o.unsigned && c.comment == o.comment
}

// String renders the column roughly as it would appear in DDL.
func (c ColumnDefinition) String() string {
	s := c.name + " " + c.typ.String()
	switch {
	case c.length > 0:
		s += fmt.Sprintf("(%d)", c.length)
	case c.precision > 0:
		s += fmt.Sprintf("(%d,%d)", c.precision, c.scale)
	}
	if c.unsigned {
		s += " UNSIGNED"
	}
	if !c.nullable {
		s += " NOT NULL"
	}
	if c.hasDefault {
		s += " DEFAULT " + row.FormatValue(c.def)
	}
	if c.autoIncrement {
		s += " AUTO_INCREMENT"
	}
	return s
}
