package memory

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Schema manages the table definitions of a Store. Definitions are kept as
// bookkeeping next to the rows; every change rewrites the affected rows in
// the same critical section.
type Schema struct {
	s *Store
}

// Schema returns the schema manager of the store.
func (s *Store) Schema() *Schema { return &Schema{s: s} }

var _ schema.Manager = (*Schema)(nil)

// alter runs fn on an existing table under the store lock and logs the
// change when fn succeeds.
func (m *Schema) alter(op, name, target string, fn func(t *table) error) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.lookup(name)
	if !ok {
		return sagaerrors.NewSchema(op, name, target, sagaerrors.ErrTableNotFound)
	}
	if err := fn(t); err != nil {
		return schemaError(op, name, target, err)
	}
	logging.SchemaChanged(op, name, "backend", Backend)
	return nil
}

// schemaError wraps err in a SchemaError unless it already is one.
func schemaError(op, name, target string, err error) error {
	var se *sagaerrors.SchemaError
	if sagaerrors.As(err, &se) {
		return err
	}
	return sagaerrors.NewSchema(op, name, target, err)
}

// read runs fn on an existing table under the store lock.
func (m *Schema) read(op, name string, fn func(t *table)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.lookup(name)
	if !ok {
		return sagaerrors.NewSchema(op, name, "", sagaerrors.ErrTableNotFound)
	}
	fn(t)
	return nil
}

// checkReferences verifies that the tables and columns a foreign key points
// at exist. A table may reference itself through def.
func (m *Schema) checkReferences(def schema.TableDefinition, fk schema.ForeignKeyDefinition) error {
	ref := def
	if fk.ReferencedTable() != def.Name() {
		t, ok := m.s.lookup(fk.ReferencedTable())
		if !ok {
			return fmt.Errorf("%w: %s", sagaerrors.ErrTableNotFound, fk.ReferencedTable())
		}
		ref = t.def
	}
	for _, c := range fk.ReferencedColumns() {
		if !ref.HasColumn(c) {
			return fmt.Errorf("%w: %s.%s", sagaerrors.ErrColumnNotFound, ref.Name(), c)
		}
	}
	return nil
}

func (m *Schema) CreateTable(def schema.TableDefinition) error {
	_, err := m.create(def, false)
	return err
}

func (m *Schema) CreateTableIfNotExists(def schema.TableDefinition) (bool, error) {
	return m.create(def, true)
}

func (m *Schema) create(def schema.TableDefinition, quiet bool) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.lookup(def.Name()); ok {
		if quiet {
			return false, nil
		}
		return false, sagaerrors.NewSchema("create table", def.Name(), "", sagaerrors.ErrTableExists)
	}
	for _, fk := range def.ForeignKeys() {
		if err := m.checkReferences(def, fk); err != nil {
			return false, sagaerrors.NewSchema("create table", def.Name(), fk.Name(), err)
		}
	}
	m.s.tables[m.s.TableName(def.Name())] = &table{def: def}
	logging.SchemaChanged("create table", def.Name(), "backend", Backend)
	return true, nil
}

func (m *Schema) DropTable(name string) error {
	dropped, err := m.drop(name)
	if err == nil && !dropped {
		err = sagaerrors.NewSchema("drop table", name, "", sagaerrors.ErrTableNotFound)
	}
	return err
}

func (m *Schema) DropTableIfExists(name string) (bool, error) {
	return m.drop(name)
}

func (m *Schema) drop(name string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.lookup(name); !ok {
		return false, nil
	}
	delete(m.s.tables, m.s.TableName(name))
	logging.SchemaChanged("drop table", name, "backend", Backend)
	return true, nil
}

// RenameTable renames a table. Foreign keys of other tables follow it.
func (m *Schema) RenameTable(from, to string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.lookup(from)
	if !ok {
		return sagaerrors.NewSchema("rename table", from, "", sagaerrors.ErrTableNotFound)
	}
	if _, ok := m.s.lookup(to); ok {
		return sagaerrors.NewSchema("rename table", to, "", sagaerrors.ErrTableExists)
	}
	def, err := t.def.WithName(to)
	if err != nil {
		return sagaerrors.NewSchema("rename table", from, "", err)
	}
	updated := make(map[string]schema.TableDefinition)
	for key, other := range m.s.tables {
		d := other.def
		if other == t {
			d = def
		}
		if d, err = retarget(d, from, to); err != nil {
			return sagaerrors.NewSchema("rename table", from, "", err)
		}
		updated[key] = d
	}
	for key, d := range updated {
		m.s.tables[key].def = d
	}
	delete(m.s.tables, m.s.TableName(from))
	m.s.tables[m.s.TableName(to)] = t
	logging.SchemaChanged("rename table", from, "to", to, "backend", Backend)
	return nil
}

// retarget points the foreign keys of def that reference from at to.
func retarget(def schema.TableDefinition, from, to string) (schema.TableDefinition, error) {
	for _, fk := range def.ForeignKeys() {
		if fk.ReferencedTable() != from {
			continue
		}
		moved, err := schema.NewForeignKey(fk.Name(), fk.Columns(), to, fk.ReferencedColumns(),
			schema.OnDelete(fk.OnDelete()), schema.OnUpdate(fk.OnUpdate()))
		if err != nil {
			return def, err
		}
		if def, err = def.WithoutForeignKey(fk.Name()); err != nil {
			return def, err
		}
		if def, err = def.WithForeignKey(moved); err != nil {
			return def, err
		}
	}
	return def, nil
}

func (m *Schema) HasTable(name string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.lookup(name)
	return ok, nil
}

func (m *Schema) GetTables() ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	names := make([]string, 0, len(m.s.tables))
	for _, t := range m.s.tables {
		names = append(names, t.def.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (m *Schema) GetTable(name string) (schema.TableDefinition, error) {
	var def schema.TableDefinition
	err := m.read("get table", name, func(t *table) { def = t.def })
	return def, err
}

// AddColumn appends a column. Existing rows take the default, or NULL; a NOT
// NULL column without a default can only be added to an empty table. An
// auto-increment column numbers the existing rows.
func (m *Schema) AddColumn(name string, c schema.ColumnDefinition) error {
	return m.alter("add column", name, c.Name(), func(t *table) error {
		if t.def.HasColumn(c.Name()) {
			return sagaerrors.ErrColumnExists
		}
		def, err := t.def.WithColumn(c)
		if err != nil {
			return err
		}
		fill, hasDefault := c.Default()
		if hasDefault {
			fill = defaultValue(c, fill)
		}
		if len(t.rows) > 0 && fill == nil && !c.Nullable() && !c.AutoIncrement() {
			return fmt.Errorf("%w: cannot add NOT NULL column %s without a default", sagaerrors.ErrConstraint, c.Name())
		}
		rows := make([]row.Row, len(t.rows))
		lastID := t.lastID
		for i, r := range t.rows {
			r = r.Clone()
			v := fill
			if c.AutoIncrement() {
				lastID++
				v = lastID
			}
			r.Set(c.Name(), v)
			rows[i] = r
		}
		if err := checkUnique(def, rows); err != nil {
			return err
		}
		t.def, t.rows, t.lastID = def, rows, lastID
		return nil
	})
}

func (m *Schema) DropColumn(name, column string) error {
	return m.alter("drop column", name, column, func(t *table) error {
		if !t.def.HasColumn(column) {
			return sagaerrors.ErrColumnNotFound
		}
		def, err := t.def.WithoutColumn(column)
		if err != nil {
			return err
		}
		rows := make([]row.Row, len(t.rows))
		for i, r := range t.rows {
			r = r.Clone()
			r.Delete(column)
			rows[i] = r
		}
		if _, ok := def.AutoIncrementColumn(); !ok {
			t.lastID = 0
		}
		t.def, t.rows = def, rows
		return nil
	})
}

// ModifyColumn replaces a column definition. Stored values are converted to
// the new type's affinity and must satisfy its NOT NULL constraint.
func (m *Schema) ModifyColumn(name string, c schema.ColumnDefinition) error {
	return m.alter("modify column", name, c.Name(), func(t *table) error {
		if !t.def.HasColumn(c.Name()) {
			return sagaerrors.ErrColumnNotFound
		}
		def, err := t.def.WithColumnReplaced(c)
		if err != nil {
			return err
		}
		rows := make([]row.Row, len(t.rows))
		for i, r := range t.rows {
			r = r.Clone()
			r.Set(c.Name(), coerce(c, r.Value(c.Name())))
			if err := checkNotNull(def, r); err != nil {
				return err
			}
			rows[i] = r
		}
		if err := checkUnique(def, rows); err != nil {
			return err
		}
		t.def, t.rows = def, rows
		return nil
	})
}

// RenameColumn renames a column and the stored values with it. Keys, indexes
// and foreign keys follow the new name.
func (m *Schema) RenameColumn(name, from, to string) error {
	return m.alter("rename column", name, from, func(t *table) error {
		if !t.def.HasColumn(from) {
			return sagaerrors.ErrColumnNotFound
		}
		if from != to && t.def.HasColumn(to) {
			return sagaerrors.NewSchema("rename column", name, to, sagaerrors.ErrColumnExists)
		}
		def, err := t.def.WithColumnRenamed(from, to)
		if err != nil {
			return err
		}
		cols := def.ColumnNames()
		rows := make([]row.Row, len(t.rows))
		for i, r := range t.rows {
			vals := make([]any, len(cols))
			for j, c := range cols {
				if c == to {
					c = from
				}
				vals[j] = r.Value(c)
			}
			if rows[i], err = row.FromColumns(cols, vals); err != nil {
				return err
			}
		}
		t.def, t.rows = def, rows
		return nil
	})
}

func (m *Schema) HasColumn(name, column string) (bool, error) {
	var ok bool
	err := m.read("has column", name, func(t *table) { ok = t.def.HasColumn(column) })
	return ok, err
}

func (m *Schema) GetColumns(name string) ([]schema.ColumnDefinition, error) {
	var cols []schema.ColumnDefinition
	err := m.read("get columns", name, func(t *table) { cols = t.def.Columns() })
	return cols, err
}

// AddIndex adds an index, or the primary key for a Primary index. Unique
// indexes are checked against the stored rows.
func (m *Schema) AddIndex(name string, ix schema.IndexDefinition) error {
	return m.alter("add index", name, ix.Name(), func(t *table) error {
		if ix.Type() == schema.Primary && len(t.def.PrimaryKey()) > 0 || t.def.HasIndex(ix.Name()) {
			return sagaerrors.ErrIndexExists
		}
		def, err := t.def.WithIndex(ix)
		if err != nil {
			return err
		}
		if err := checkUnique(def, t.rows); err != nil {
			return err
		}
		t.def = def
		return nil
	})
}

// DropIndex drops an index. PRIMARY drops the primary key.
func (m *Schema) DropIndex(name, index string) error {
	return m.alter("drop index", name, index, func(t *table) error {
		primary := strings.EqualFold(index, schema.PrimaryIndexName)
		if primary && len(t.def.PrimaryKey()) == 0 || !primary && !t.def.HasIndex(index) {
			return sagaerrors.ErrIndexNotFound
		}
		def, err := t.def.WithoutIndex(index)
		if err != nil {
			return err
		}
		t.def = def
		return nil
	})
}

func (m *Schema) RenameIndex(name, from, to string) error {
	return m.alter("rename index", name, from, func(t *table) error {
		ix, ok := t.def.Index(from)
		if !ok || ix.Type() == schema.Primary {
			return sagaerrors.ErrIndexNotFound
		}
		if t.def.HasIndex(to) {
			return sagaerrors.NewSchema("rename index", name, to, sagaerrors.ErrIndexExists)
		}
		renamed, err := ix.WithName(to)
		if err != nil {
			return err
		}
		def, err := t.def.WithoutIndex(from)
		if err != nil {
			return err
		}
		if def, err = def.WithIndex(renamed); err != nil {
			return err
		}
		t.def = def
		return nil
	})
}

func (m *Schema) HasIndex(name, index string) (bool, error) {
	var ok bool
	err := m.read("has index", name, func(t *table) { ok = t.def.HasIndex(index) })
	return ok, err
}

// GetIndexes lists secondary indexes. The primary key is part of the table
// definition and is not reported here.
func (m *Schema) GetIndexes(name string) ([]schema.IndexDefinition, error) {
	var ixs []schema.IndexDefinition
	err := m.read("get indexes", name, func(t *table) {
		ixs = slices.DeleteFunc(t.def.Indexes(), func(ix schema.IndexDefinition) bool {
			return ix.Type() == schema.Primary
		})
	})
	return ixs, err
}

// AddForeignKey records a foreign key. The in-process backend checks that
// the referenced columns exist but does not enforce the reference on writes.
func (m *Schema) AddForeignKey(name string, fk schema.ForeignKeyDefinition) error {
	return m.alter("add foreign key", name, fk.Name(), func(t *table) error {
		if t.def.HasForeignKey(fk.Name()) {
			return sagaerrors.ErrForeignKeyExists
		}
		if err := m.checkReferences(t.def, fk); err != nil {
			return err
		}
		def, err := t.def.WithForeignKey(fk)
		if err != nil {
			return err
		}
		t.def = def
		return nil
	})
}

func (m *Schema) DropForeignKey(name, fk string) error {
	return m.alter("drop foreign key", name, fk, func(t *table) error {
		if !t.def.HasForeignKey(fk) {
			return sagaerrors.ErrForeignKeyNotFound
		}
		def, err := t.def.WithoutForeignKey(fk)
		if err != nil {
			return err
		}
		t.def = def
		return nil
	})
}

func (m *Schema) HasForeignKey(name, fk string) (bool, error) {
	var ok bool
	err := m.read("has foreign key", name, func(t *table) { ok = t.def.HasForeignKey(fk) })
	return ok, err
}

func (m *Schema) GetForeignKeys(name string) ([]schema.ForeignKeyDefinition, error) {
	var fks []schema.ForeignKeyDefinition
	err := m.read("get foreign keys", name, func(t *table) { fks = t.def.ForeignKeys() })
	return fks, err
}
