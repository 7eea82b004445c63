package schema

import (
	"slices"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

// PrimaryIndexName is the name given to primary-key indexes.
const PrimaryIndexName = "PRIMARY"

// IndexDefinition describes an index over one or more columns.
type IndexDefinition struct {
	name    string
	typ     IndexType
	columns []string
}

// NewIndex builds and validates an index. A primary index with an empty name
// is named PRIMARY; other empty names are filled in with IndexName when the
// index is attached to a table.
func NewIndex(name string, typ IndexType, columns ...string) (IndexDefinition, error) {
	if typ == Primary && name == "" {
		name = PrimaryIndexName
	}
	ix := IndexDefinition{name: name, typ: typ, columns: slices.Clone(columns)}
	if err := ix.validate(); err != nil {
		return IndexDefinition{}, err
	}
	return ix, nil
}

// MustIndex is NewIndex for literals known to be valid. It panics on error.
func MustIndex(name string, typ IndexType, columns ...string) IndexDefinition {
	ix, err := NewIndex(name, typ, columns...)
	if err != nil {
		panic(err)
	}
	return ix
}

// IndexName derives the conventional name for an index over columns, for
// example users_email_unique.
func IndexName(table string, typ IndexType, columns ...string) string {
	suffix := "index"
	switch typ {
	case Unique:
		suffix = "unique"
	case Primary:
		return PrimaryIndexName
	case Fulltext:
		suffix = "fulltext"
	case Spatial:
		suffix = "spatial"
	case Plain:
	}
	return table + "_" + strings.Join(columns, "_") + "_" + suffix
}

func (ix IndexDefinition) validate() error {
	if ix.name != "" && ix.name != PrimaryIndexName {
		if err := validateName("index.name", ix.name); err != nil {
			return err
		}
	}
	if !ix.typ.Valid() {
		return sagaerrors.NewValidation("index.type", ix.typ.String(), "unknown index type")
	}
	if len(ix.columns) == 0 {
		return sagaerrors.NewValidation("index.columns", ix.name, "an index needs at least one column")
	}
	if len(ix.columns) > 1 && !ix.typ.AllowsMultipleColumns() {
		return sagaerrors.NewValidation("index.columns", ix.name, ix.typ.String()+" indexes cover a single column")
	}
	if err := validateColumnList("index.columns", ix.columns); err != nil {
		return err
	}
	return nil
}

func validateColumnList(field string, cols []string) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if err := validateName(field, c); err != nil {
			return err
		}
		if seen[c] {
			return sagaerrors.NewValidation(field, c, "column listed twice")
		}
		seen[c] = true
	}
	return nil
}

func (ix IndexDefinition) Name() string      { return ix.name }
func (ix IndexDefinition) Type() IndexType   { return ix.typ }
func (ix IndexDefinition) Columns() []string { return slices.Clone(ix.columns) }
func (ix IndexDefinition) IsUnique() bool    { return ix.typ.IsUnique() }

// Covers reports whether the index lists col.
func (ix IndexDefinition) Covers(col string) bool {
	return slices.Contains(ix.columns, col)
}

// WithName returns a renamed copy.
func (ix IndexDefinition) WithName(name string) (IndexDefinition, error) {
	return NewIndex(name, ix.typ, ix.columns...)
}

// WithColumns returns a copy over different columns.
func (ix IndexDefinition) WithColumns(columns ...string) (IndexDefinition, error) {
	return NewIndex(ix.name, ix.typ, columns...)
}

// WithType returns a copy of a different kind.
func (ix IndexDefinition) WithType(typ IndexType) (IndexDefinition, error) {
	return NewIndex(ix.name, typ, ix.columns...)
}

// Equal reports whether two definitions describe the same index.
func (ix IndexDefinition) Equal(o IndexDefinition) bool {
	return ix.name == o.name && ix.typ == o.typ && slices.Equal(ix.columns, o.columns)
}

func (ix IndexDefinition) String() string {
	return ix.typ.String() + " " + ix.name + " (" + strings.Join(ix.columns, ", ") + ")"
}
