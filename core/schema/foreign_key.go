package schema

import (
	"slices"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

// ForeignKeyDefinition describes a reference from local columns to columns of
// another table.
type ForeignKeyDefinition struct {
	name       string
	columns    []string
	refTable   string
	refColumns []string
	onDelete   ReferentialAction
	onUpdate   ReferentialAction
}

// ForeignKeyOption configures a foreign key under construction.
type ForeignKeyOption func(*ForeignKeyDefinition)

// OnDelete sets the ON DELETE action.
func OnDelete(a ReferentialAction) ForeignKeyOption {
	return func(fk *ForeignKeyDefinition) { fk.onDelete = a }
}

// OnUpdate sets the ON UPDATE action.
func OnUpdate(a ReferentialAction) ForeignKeyOption {
	return func(fk *ForeignKeyDefinition) { fk.onUpdate = a }
}

// NewForeignKey builds and validates a foreign key. An empty name is filled in
// with ForeignKeyName when the key is attached to a table.
func NewForeignKey(name string, columns []string, refTable string, refColumns []string, opts ...ForeignKeyOption) (ForeignKeyDefinition, error) {
	fk := ForeignKeyDefinition{
		name:       name,
		columns:    slices.Clone(columns),
		refTable:   refTable,
		refColumns: slices.Clone(refColumns),
	}
	for _, opt := range opts {
		opt(&fk)
	}
	if err := fk.validate(); err != nil {
		return ForeignKeyDefinition{}, err
	}
	return fk, nil
}

// MustForeignKey is NewForeignKey for literals known to be valid.
func MustForeignKey(name string, columns []string, refTable string, refColumns []string, opts ...ForeignKeyOption) ForeignKeyDefinition {
	fk, err := NewForeignKey(name, columns, refTable, refColumns, opts...)
	if err != nil {
		panic(err)
	}
	return fk
}

// ForeignKeyName derives the conventional constraint name, for example
// entities_saga_id_foreign.
func ForeignKeyName(table string, columns ...string) string {
	return table + "_" + strings.Join(columns, "_") + "_foreign"
}

func (fk ForeignKeyDefinition) validate() error {
	if fk.name != "" {
		if err := validateName("foreign_key.name", fk.name); err != nil {
			return err
		}
	}
	if err := validateName("foreign_key.references", fk.refTable); err != nil {
		return err
	}
	if len(fk.columns) == 0 {
		return sagaerrors.NewValidation("foreign_key.columns", fk.name, "a foreign key needs at least one column")
	}
	if len(fk.columns) != len(fk.refColumns) {
		return sagaerrors.NewValidation("foreign_key.columns", fk.name, "local and referenced column counts differ")
	}
	if err := validateColumnList("foreign_key.columns", fk.columns); err != nil {
		return err
	}
	if err := validateColumnList("foreign_key.references", fk.refColumns); err != nil {
		return err
	}
	if !fk.onDelete.Valid() || !fk.onUpdate.Valid() {
		return sagaerrors.NewValidation("foreign_key.action", fk.name, "unknown referential action")
	}
	return nil
}

func (fk ForeignKeyDefinition) Name() string                { return fk.name }
func (fk ForeignKeyDefinition) Columns() []string           { return slices.Clone(fk.columns) }
func (fk ForeignKeyDefinition) ReferencedTable() string     { return fk.refTable }
func (fk ForeignKeyDefinition) ReferencedColumns() []string { return slices.Clone(fk.refColumns) }
func (fk ForeignKeyDefinition) OnDelete() ReferentialAction { return fk.onDelete }
func (fk ForeignKeyDefinition) OnUpdate() ReferentialAction { return fk.onUpdate }

// WithName returns a renamed copy.
func (fk ForeignKeyDefinition) WithName(name string) (ForeignKeyDefinition, error) {
	fk.name = name
	return fk.revalidate()
}

// WithOnDelete returns a copy with a different ON DELETE action.
func (fk ForeignKeyDefinition) WithOnDelete(a ReferentialAction) (ForeignKeyDefinition, error) {
	fk.onDelete = a
	return fk.revalidate()
}

// WithOnUpdate returns a copy with a different ON UPDATE action.
func (fk ForeignKeyDefinition) WithOnUpdate(a ReferentialAction) (ForeignKeyDefinition, error) {
	fk.onUpdate = a
	return fk.revalidate()
}

// WithColumns returns a copy over different local columns.
func (fk ForeignKeyDefinition) WithColumns(columns ...string) (ForeignKeyDefinition, error) {
	fk.columns = slices.Clone(columns)
	return fk.revalidate()
}

func (fk ForeignKeyDefinition) revalidate() (ForeignKeyDefinition, error) {
	if err := fk.validate(); err != nil {
		return ForeignKeyDefinition{}, err
	}
	return fk, nil
}

// Equal reports whether two definitions describe the same constraint.
func (fk ForeignKeyDefinition) Equal(o ForeignKeyDefinition) bool {
	return fk.name == o.name && fk.refTable == o.refTable &&
		slices.Equal(fk.columns, o.columns) && slices.Equal(fk.refColumns, o.refColumns) &&
		fk.onDelete == o.onDelete && fk.onUpdate == o.onUpdate
}

func (fk ForeignKeyDefinition) String() string {
	return fk.name + " (" + strings.Join(fk.columns, ", ") + ") REFERENCES " + fk.refTable +
		" (" + strings.Join(fk.refColumns, ", ") + ") ON DELETE " + fk.onDelete.String() +
		" ON UPDATE " + fk.onUpdate.String()
}
