package schema

import (
	"slices"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

// TableDefinition is the complete, validated description of a table.
type TableDefinition struct {
	name        string
	columns     []ColumnDefinition
	primaryKey  []string
	indexes     []IndexDefinition
	foreignKeys []ForeignKeyDefinition
	comment     string
}

// TableOption configures a table under construction.
type TableOption func(*TableDefinition)

// PrimaryKey declares the primary key columns.
func PrimaryKey(columns ...string) TableOption {
	return func(t *TableDefinition) { t.primaryKey = slices.Clone(columns) }
}

// Indexes attaches secondary indexes. A Primary index sets the primary key.
func Indexes(ix ...IndexDefinition) TableOption {
	return func(t *TableDefinition) { t.indexes = append(t.indexes, ix...) }
}

// ForeignKeys attaches foreign keys.
func ForeignKeys(fk ...ForeignKeyDefinition) TableOption {
	return func(t *TableDefinition) { t.foreignKeys = append(t.foreignKeys, fk...) }
}

// TableComment attaches a comment to the table.
func TableComment(s string) TableOption {
	return func(t *TableDefinition) { t.comment = s }
}

// NewTable builds and validates a table. Without an explicit primary key, a
// single auto-increment column becomes the key.
func NewTable(name string, columns []ColumnDefinition, opts ...TableOption) (TableDefinition, error) {
	t := TableDefinition{name: name, columns: slices.Clone(columns)}
	for _, opt := range opts {
		opt(&t)
	}
	return t.build()
}

// MustTable is NewTable for literals known to be valid. It panics on error.
func MustTable(name string, columns []ColumnDefinition, opts ...TableOption) TableDefinition {
	t, err := NewTable(name, columns, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TableDefinition) build() (TableDefinition, error) {
	if err := validateName("table.name", t.name); err != nil {
		return TableDefinition{}, err
	}

	indexes := make([]IndexDefinition, 0, len(t.indexes))
	for _, ix := range t.indexes {
		if ix.typ == Primary {
			if len(t.primaryKey) > 0 && !slices.Equal(t.primaryKey, ix.columns) {
				return TableDefinition{}, sagaerrors.NewValidation("table.primary_key", t.name, "conflicting primary keys")
			}
			t.primaryKey = slices.Clone(ix.columns)
			continue
		}
		if ix.name == "" {
			ix.name = IndexName(t.name, ix.typ, ix.columns...)
		}
		indexes = append(indexes, ix)
	}
	t.indexes = indexes

	fks := make([]ForeignKeyDefinition, len(t.foreignKeys))
	for i, fk := range t.foreignKeys {
		if fk.name == "" {
			fk.name = ForeignKeyName(t.name, fk.columns...)
		}
		fks[i] = fk
	}
	t.foreignKeys = fks

	if len(t.primaryKey) == 0 {
		if col, ok := t.AutoIncrementColumn(); ok {
			t.primaryKey = []string{col}
		}
	}

	if err := t.validate(); err != nil {
		return TableDefinition{}, err
	}
	return t, nil
}

func (t TableDefinition) validate() error {
	if len(t.columns) == 0 {
		return sagaerrors.NewValidation("table.columns", t.name, "a table needs at least one column")
	}
	autoInc := ""
	seen := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		if c.name == "" {
			return sagaerrors.NewValidation("table.columns", t.name, "uninitialized column definition")
		}
		if seen[c.name] {
			return sagaerrors.NewValidation("table.columns", c.name, "duplicate column")
		}
		seen[c.name] = true
		if c.autoIncrement {
			if autoInc != "" {
				return sagaerrors.NewValidation("table.columns", c.name, "only one auto-increment column is allowed")
			}
			autoInc = c.name
		}
	}

	if err := t.checkColumns("table.primary_key", t.primaryKey); err != nil {
		return err
	}
	if err := validateColumnList("table.primary_key", t.primaryKey); err != nil {
		return err
	}
	for _, col := range t.primaryKey {
		if c, _ := t.Column(col); c.nullable {
			return sagaerrors.NewValidation("table.primary_key", col, "primary key columns cannot be nullable")
		}
	}
	if autoInc != "" && !slices.Contains(t.primaryKey, autoInc) {
		return sagaerrors.NewValidation("table.primary_key", autoInc, "auto-increment column must be part of the primary key")
	}

	names := map[string]bool{PrimaryIndexName: true}
	for _, ix := range t.indexes {
		if names[ix.name] {
			return sagaerrors.NewValidation("table.indexes", ix.name, "duplicate index name")
		}
		names[ix.name] = true
		if err := t.checkColumns("table.indexes", ix.columns); err != nil {
			return err
		}
	}

	fkNames := make(map[string]bool, len(t.foreignKeys))
	for _, fk := range t.foreignKeys {
		if fkNames[fk.name] {
			return sagaerrors.NewValidation("table.foreign_keys", fk.name, "duplicate foreign key name")
		}
		fkNames[fk.name] = true
		if err := t.checkColumns("table.foreign_keys", fk.columns); err != nil {
			return err
		}
		if fk.onDelete.RequiresNullable() || fk.onUpdate.RequiresNullable() {
			for _, col := range fk.columns {
				if c, _ := t.Column(col); !c.nullable {
					return sagaerrors.NewValidation("table.foreign_keys", col, "SET NULL requires a nullable column")
				}
			}
		}
	}
	return nil
}

func (t TableDefinition) checkColumns(field string, cols []string) error {
	for _, col := range cols {
		if !t.HasColumn(col) {
			return sagaerrors.NewValidation(field, col, "unknown column "+col+" in table "+t.name)
		}
	}
	return nil
}

func (t TableDefinition) Name() string         { return t.name }
func (t TableDefinition) Comment() string      { return t.comment }
func (t TableDefinition) PrimaryKey() []string { return slices.Clone(t.primaryKey) }

// Columns returns the column definitions in declaration order.
func (t TableDefinition) Columns() []ColumnDefinition { return slices.Clone(t.columns) }

// Indexes returns the secondary indexes. The primary key is reported by
// PrimaryKey, not here.
func (t TableDefinition) Indexes() []IndexDefinition { return slices.Clone(t.indexes) }

// ForeignKeys returns the foreign keys in declaration order.
func (t TableDefinition) ForeignKeys() []ForeignKeyDefinition { return slices.Clone(t.foreignKeys) }

// ColumnNames returns the column names in declaration order.
func (t TableDefinition) ColumnNames() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.name
	}
	return out
}

// Column looks up a column by name.
func (t TableDefinition) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.columns {
		if c.name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// HasColumn reports whether the table declares name.
func (t TableDefinition) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Index looks up a secondary index by name.
func (t TableDefinition) Index(name string) (IndexDefinition, bool) {
	for _, ix := range t.indexes {
		if ix.name == name {
			return ix, true
		}
	}
	return IndexDefinition{}, false
}

// HasIndex reports whether a secondary index called name exists. PRIMARY
// counts when the table has a primary key.
func (t TableDefinition) HasIndex(name string) bool {
	if strings.EqualFold(name, PrimaryIndexName) {
		return len(t.primaryKey) > 0
	}
	_, ok := t.Index(name)
	return ok
}

// ForeignKey looks up a foreign key by name.
func (t TableDefinition) ForeignKey(name string) (ForeignKeyDefinition, bool) {
	for _, fk := range t.foreignKeys {
		if fk.name == name {
			return fk, true
		}
	}
	return ForeignKeyDefinition{}, false
}

// HasForeignKey reports whether a foreign key called name exists.
func (t TableDefinition) HasForeignKey(name string) bool {
	_, ok := t.ForeignKey(name)
	return ok
}

// AutoIncrementColumn returns the auto-increment column, if any.
func (t TableDefinition) AutoIncrementColumn() (string, bool) {
	for _, c := range t.columns {
		if c.autoIncrement {
			return c.name, true
		}
	}
	return "", false
}

// UniqueKeys returns the column sets that must be unique: the primary key
// first, then unique indexes in declaration order.
func (t TableDefinition) UniqueKeys() [][]string {
	var keys [][]string
	if len(t.primaryKey) > 0 {
		keys = append(keys, slices.Clone(t.primaryKey))
	}
	for _, ix := range t.indexes {
		if ix.typ.IsUnique() {
			keys = append(keys, slices.Clone(ix.columns))
		}
	}
	return keys
}

// WithName returns a renamed copy. Index and foreign key names are kept.
func (t TableDefinition) WithName(name string) (TableDefinition, error) {
	t = t.clone()
	t.name = name
	return t.build()
}

// WithComment returns a copy with a different comment.
func (t TableDefinition) WithComment(comment string) TableDefinition {
	t = t.clone()
	t.comment = comment
	return t
}

// WithColumn returns a copy with c appended.
func (t TableDefinition) WithColumn(c ColumnDefinition) (TableDefinition, error) {
	if t.HasColumn(c.name) {
		return TableDefinition{}, sagaerrors.NewValidation("table.columns", c.name, "duplicate column")
	}
	t = t.clone()
	t.columns = append(t.columns, c)
	return t.build()
}

// WithColumnReplaced returns a copy where the column named c.Name() is
// replaced by c, keeping its position.
func (t TableDefinition) WithColumnReplaced(c ColumnDefinition) (TableDefinition, error) {
	return t.replaceColumn(c.name, c)
}

// WithColumnRenamed returns a copy with a column renamed. Key, index and
// foreign key references follow the new name.
func (t TableDefinition) WithColumnRenamed(from, to string) (TableDefinition, error) {
	c, ok := t.Column(from)
	if !ok {
		return TableDefinition{}, sagaerrors.NewValidation("table.columns", from, "unknown column")
	}
	if from != to && t.HasColumn(to) {
		return TableDefinition{}, sagaerrors.NewValidation("table.columns", to, "duplicate column")
	}
	renamed, err := c.WithName(to)
	if err != nil {
		return TableDefinition{}, err
	}
	return t.replaceColumn(from, renamed)
}

func (t TableDefinition) replaceColumn(old string, c ColumnDefinition) (TableDefinition, error) {
	i := slices.IndexFunc(t.columns, func(x ColumnDefinition) bool { return x.name == old })
	if i < 0 {
		return TableDefinition{}, sagaerrors.NewValidation("table.columns", old, "unknown column")
	}
	t = t.clone()
	t.columns[i] = c
	if old != c.name {
		rename := func(cols []string) {
			for j := range cols {
				if cols[j] == old {
					cols[j] = c.name
				}
			}
		}
		rename(t.primaryKey)
		for j := range t.indexes {
			rename(t.indexes[j].columns)
		}
		for j := range t.foreignKeys {
			rename(t.foreignKeys[j].columns)
		}
	}
	return t.build()
}

// WithoutColumn returns a copy without the named column. The column is also
// removed from the primary key and from indexes; indexes and foreign keys left
// without columns are dropped.
func (t TableDefinition) WithoutColumn(name string) (TableDefinition, error) {
	if !t.HasColumn(name) {
		return TableDefinition{}, sagaerrors.NewValidation("table.columns", name, "unknown column")
	}
	t = t.clone()
	t.columns = slices.DeleteFunc(t.columns, func(c ColumnDefinition) bool { return c.name == name })
	without := func(cols []string) []string {
		return slices.DeleteFunc(cols, func(c string) bool { return c == name })
	}
	t.primaryKey = without(t.primaryKey)
	indexes := t.indexes[:0]
	for _, ix := range t.indexes {
		ix.columns = without(ix.columns)
		if len(ix.columns) > 0 {
			indexes = append(indexes, ix)
		}
	}
	t.indexes = indexes
	t.foreignKeys = slices.DeleteFunc(t.foreignKeys, func(fk ForeignKeyDefinition) bool {
		return slices.Contains(fk.columns, name)
	})
	return t.build()
}

// WithPrimaryKey returns a copy with a different primary key.
func (t TableDefinition) WithPrimaryKey(columns ...string) (TableDefinition, error) {
	t = t.clone()
	t.primaryKey = slices.Clone(columns)
	return t.build()
}

// WithIndex returns a copy with ix added. A Primary index replaces the key.
func (t TableDefinition) WithIndex(ix IndexDefinition) (TableDefinition, error) {
	t = t.clone()
	if ix.typ == Primary {
		t.primaryKey = slices.Clone(ix.columns)
		return t.build()
	}
	t.indexes = append(t.indexes, ix)
	return t.build()
}

// WithoutIndex returns a copy without the named index. PRIMARY drops the
// primary key.
func (t TableDefinition) WithoutIndex(name string) (TableDefinition, error) {
	t = t.clone()
	if strings.EqualFold(name, PrimaryIndexName) {
		t.primaryKey = nil
		for i := range t.columns {
			t.columns[i].autoIncrement = false
		}
		return t.build()
	}
	t.indexes = slices.DeleteFunc(t.indexes, func(ix IndexDefinition) bool { return ix.name == name })
	return t.build()
}

// WithForeignKey returns a copy with fk added.
func (t TableDefinition) WithForeignKey(fk ForeignKeyDefinition) (TableDefinition, error) {
	t = t.clone()
	t.foreignKeys = append(t.foreignKeys, fk)
	return t.build()
}

// WithoutForeignKey returns a copy without the named foreign key.
func (t TableDefinition) WithoutForeignKey(name string) (TableDefinition, error) {
	t = t.clone()
	t.foreignKeys = slices.DeleteFunc(t.foreignKeys, func(fk ForeignKeyDefinition) bool { return fk.name == name })
	return t.build()
}

func (t TableDefinition) clone() TableDefinition {
	out := t
	out.columns = slices.Clone(t.columns)
	out.primaryKey = slices.Clone(t.primaryKey)
	out.indexes = make([]IndexDefinition, len(t.indexes))
	for i, ix := range t.indexes {
		ix.columns = slices.Clone(ix.columns)
		out.indexes[i] = ix
	}
	out.foreignKeys = make([]ForeignKeyDefinition, len(t.foreignKeys))
	for i, fk := range t.foreignKeys {
		fk.columns = slices.Clone(fk.columns)
		fk.refColumns = slices.Clone(fk.refColumns)
		out.foreignKeys[i] = fk
	}
	return out
}

// Equal reports whether two definitions describe the same table.
func (t TableDefinition) Equal(o TableDefinition) bool {
	return t.name == o.name && t.comment == o.comment &&
		slices.Equal(t.primaryKey, o.primaryKey) &&
		slices.EqualFunc(t.columns, o.columns, ColumnDefinition.Equal) &&
		slices.EqualFunc(t.indexes, o.indexes, IndexDefinition.Equal) &&
		slices.EqualFunc(t.foreignKeys, o.foreignKeys, ForeignKeyDefinition.Equal)
}
