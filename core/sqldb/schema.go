package sqldb

import (
	"slices"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Schema manages tables through DDL. Existence checks read the live catalog;
// introspected definitions are cached per table and dropped by every DDL
// statement touching the table.
type Schema struct {
	b *Backend
}

// Schema returns the schema manager of the backend.
func (b *Backend) Schema() *Schema { return &Schema{b: b} }

var _ schema.Manager = (*Schema)(nil)

func (m *Schema) querier(sql string, args ...any) (*result.ResultSet, error) {
	return m.b.query(sql, args...)
}

// describe returns the live definition of name, consulting the cache first.
func (m *Schema) describe(name string) (schema.TableDefinition, bool, error) {
	if def, ok := m.b.tables.Get(name); ok {
		return def, true, nil
	}
	def, ok, err := m.b.render.Describe(m.querier, name)
	if err != nil || !ok {
		return def, ok, err
	}
	m.b.tables.Set(name, def)
	return def, true, nil
}

// table is describe with a missing table reported as ErrTableNotFound.
func (m *Schema) table(op, name, target string) (schema.TableDefinition, error) {
	def, ok, err := m.describe(name)
	switch {
	case err != nil:
		return def, sagaerrors.NewSchema(op, name, target, err)
	case !ok:
		return def, sagaerrors.NewSchema(op, name, target, sagaerrors.ErrTableNotFound)
	}
	return def, nil
}

// run executes DDL for op, invalidating cached definitions of the touched
// tables whatever the outcome.
func (m *Schema) run(op, name, target string, stmts []string, touched ...string) error {
	defer func() {
		m.b.tables.Delete(name)
		for _, t := range touched {
			m.b.tables.Delete(t)
		}
	}()
	for _, s := range stmts {
		if _, err := m.b.exec(s); err != nil {
			return sagaerrors.NewSchema(op, name, target, err)
		}
	}
	logging.SchemaChanged(op, name, "backend", m.b.name)
	return nil
}

// runRendered runs one rendered statement; a rendering error, typically
// Unsupported, fails op without touching the database.
func (m *Schema) runRendered(op, name, target, stmt string, err error) error {
	if err != nil {
		return sagaerrors.NewSchema(op, name, target, err)
	}
	return m.run(op, name, target, []string{stmt})
}

func (m *Schema) CreateTable(def schema.TableDefinition) error {
	created, err := m.create(def)
	if err == nil && !created {
		err = sagaerrors.NewSchema("create table", def.Name(), "", sagaerrors.ErrTableExists)
	}
	return err
}

func (m *Schema) CreateTableIfNotExists(def schema.TableDefinition) (bool, error) {
	return m.create(def)
}

func (m *Schema) create(def schema.TableDefinition) (bool, error) {
	const op = "create table"
	if ok, err := m.HasTable(def.Name()); err != nil || ok {
		return false, err
	}
	stmts, err := m.b.render.CreateTable(def)
	if err != nil {
		return false, sagaerrors.NewSchema(op, def.Name(), "", err)
	}
	if err := m.run(op, def.Name(), "", stmts); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Schema) DropTable(name string) error {
	dropped, err := m.DropTableIfExists(name)
	if err == nil && !dropped {
		err = sagaerrors.NewSchema("drop table", name, "", sagaerrors.ErrTableNotFound)
	}
	return err
}

func (m *Schema) DropTableIfExists(name string) (bool, error) {
	if ok, err := m.HasTable(name); err != nil || !ok {
		return false, err
	}
	if err := m.run("drop table", name, "", []string{m.b.render.DropTable(name)}); err != nil {
		return false, err
	}
	return true, nil
}

// RenameTable renames a table. Other tables' foreign keys are rewritten by
// the database, so every cached definition is dropped.
func (m *Schema) RenameTable(from, to string) error {
	const op = "rename table"
	if _, err := m.table(op, from, to); err != nil {
		return err
	}
	if ok, err := m.HasTable(to); err != nil {
		return err
	} else if ok {
		return sagaerrors.NewSchema(op, to, "", sagaerrors.ErrTableExists)
	}
	defer m.b.tables.Invalidate()
	return m.run(op, from, to, []string{m.b.render.RenameTable(from, to)}, to)
}

func (m *Schema) HasTable(name string) (bool, error) {
	if _, ok := m.b.tables.Get(name); ok {
		return true, nil
	}
	names, err := m.GetTables()
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

func (m *Schema) GetTables() ([]string, error) {
	names, err := m.b.render.ListTables(m.querier)
	if err != nil {
		return nil, sagaerrors.NewSchema("list tables", "", "", err)
	}
	return names, nil
}

func (m *Schema) GetTable(name string) (schema.TableDefinition, error) {
	return m.table("get table", name, "")
}

func (m *Schema) AddColumn(name string, c schema.ColumnDefinition) error {
	const op = "add column"
	def, err := m.table(op, name, c.Name())
	if err != nil {
		return err
	}
	if def.HasColumn(c.Name()) {
		return sagaerrors.NewSchema(op, name, c.Name(), sagaerrors.ErrColumnExists)
	}
	return m.run(op, name, c.Name(), []string{m.b.render.AddColumn(name, c)})
}

func (m *Schema) DropColumn(name, column string) error {
	const op = "drop column"
	if err := m.needColumn(op, name, column); err != nil {
		return err
	}
	return m.run(op, name, column, []string{m.b.render.DropColumn(name, column)})
}

func (m *Schema) ModifyColumn(name string, c schema.ColumnDefinition) error {
	const op = "modify column"
	if err := m.needColumn(op, name, c.Name()); err != nil {
		return err
	}
	stmt, err := m.b.render.ModifyColumn(name, c)
	return m.runRendered(op, name, c.Name(), stmt, err)
}

func (m *Schema) RenameColumn(name, from, to string) error {
	const op = "rename column"
	def, err := m.table(op, name, from)
	if err != nil {
		return err
	}
	switch {
	case !def.HasColumn(from):
		return sagaerrors.NewSchema(op, name, from, sagaerrors.ErrColumnNotFound)
	case def.HasColumn(to):
		return sagaerrors.NewSchema(op, name, to, sagaerrors.ErrColumnExists)
	}
	return m.run(op, name, from, []string{m.b.render.RenameColumn(name, from, to)})
}

func (m *Schema) needColumn(op, name, column string) error {
	def, err := m.table(op, name, column)
	if err != nil {
		return err
	}
	if !def.HasColumn(column) {
		return sagaerrors.NewSchema(op, name, column, sagaerrors.ErrColumnNotFound)
	}
	return nil
}

func (m *Schema) HasColumn(name, column string) (bool, error) {
	def, err := m.table("has column", name, column)
	if err != nil {
		return false, err
	}
	return def.HasColumn(column), nil
}

func (m *Schema) GetColumns(name string) ([]schema.ColumnDefinition, error) {
	def, err := m.table("get columns", name, "")
	if err != nil {
		return nil, err
	}
	return def.Columns(), nil
}

func (m *Schema) AddIndex(name string, ix schema.IndexDefinition) error {
	const op = "add index"
	def, err := m.table(op, name, ix.Name())
	if err != nil {
		return err
	}
	exists := def.HasIndex(ix.Name())
	if ix.Type() == schema.Primary {
		exists = len(def.PrimaryKey()) > 0
	}
	if exists {
		return sagaerrors.NewSchema(op, name, ix.Name(), sagaerrors.ErrIndexExists)
	}
	stmt, err := m.b.render.AddIndex(name, ix)
	return m.runRendered(op, name, ix.Name(), stmt, err)
}

func (m *Schema) DropIndex(name, index string) error {
	const op = "drop index"
	if err := m.needIndex(op, name, index); err != nil {
		return err
	}
	stmt, err := m.b.render.DropIndex(name, index)
	return m.runRendered(op, name, index, stmt, err)
}

// RenameIndex drops the index and creates it again under the new name.
func (m *Schema) RenameIndex(name, from, to string) error {
	const op = "rename index"
	def, err := m.table(op, name, from)
	if err != nil {
		return err
	}
	ix, ok := def.Index(from)
	switch {
	case strings.EqualFold(from, schema.PrimaryIndexName) || strings.EqualFold(to, schema.PrimaryIndexName):
		return sagaerrors.NewSchema(op, name, from, sagaerrors.NewUnsupported("renaming the primary key", ""))
	case !ok:
		return sagaerrors.NewSchema(op, name, from, sagaerrors.ErrIndexNotFound)
	case def.HasIndex(to):
		return sagaerrors.NewSchema(op, name, to, sagaerrors.ErrIndexExists)
	}
	renamed, err := ix.WithName(to)
	if err != nil {
		return sagaerrors.NewSchema(op, name, to, err)
	}
	drop, err := m.b.render.DropIndex(name, from)
	if err != nil {
		return sagaerrors.NewSchema(op, name, from, err)
	}
	create, err := m.b.render.AddIndex(name, renamed)
	if err != nil {
		return sagaerrors.NewSchema(op, name, to, err)
	}
	return m.run(op, name, from, []string{drop, create})
}

func (m *Schema) needIndex(op, name, index string) error {
	def, err := m.table(op, name, index)
	if err != nil {
		return err
	}
	if !def.HasIndex(index) {
		return sagaerrors.NewSchema(op, name, index, sagaerrors.ErrIndexNotFound)
	}
	return nil
}

func (m *Schema) HasIndex(name, index string) (bool, error) {
	def, err := m.table("has index", name, index)
	if err != nil {
		return false, err
	}
	return def.HasIndex(index), nil
}

// GetIndexes lists secondary indexes; the primary key is not included.
func (m *Schema) GetIndexes(name string) ([]schema.IndexDefinition, error) {
	def, err := m.table("get indexes", name, "")
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(def.Indexes(), func(ix schema.IndexDefinition) bool {
		return ix.Type() == schema.Primary
	}), nil
}

func (m *Schema) AddForeignKey(name string, fk schema.ForeignKeyDefinition) error {
	const op = "add foreign key"
	def, err := m.table(op, name, fk.Name())
	if err != nil {
		return err
	}
	if def.HasForeignKey(fk.Name()) {
		return sagaerrors.NewSchema(op, name, fk.Name(), sagaerrors.ErrForeignKeyExists)
	}
	stmt, err := m.b.render.AddForeignKey(name, fk)
	return m.runRendered(op, name, fk.Name(), stmt, err)
}

func (m *Schema) DropForeignKey(name, fk string) error {
	const op = "drop foreign key"
	def, err := m.table(op, name, fk)
	if err != nil {
		return err
	}
	if !def.HasForeignKey(fk) {
		return sagaerrors.NewSchema(op, name, fk, sagaerrors.ErrForeignKeyNotFound)
	}
	stmt, err := m.b.render.DropForeignKey(name, fk)
	return m.runRendered(op, name, fk, stmt, err)
}

func (m *Schema) HasForeignKey(name, fk string) (bool, error) {
	def, err := m.table("has foreign key", name, fk)
	if err != nil {
		return false, err
	}
	return def.HasForeignKey(fk), nil
}

func (m *Schema) GetForeignKeys(name string) ([]schema.ForeignKeyDefinition, error) {
	def, err := m.table("get foreign keys", name, "")
	if err != nil {
		return nil, err
	}
	return def.ForeignKeys(), nil
}
