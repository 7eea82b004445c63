package sqlgen

import (
	"slices"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/schema"
)

// tableSuffixer is implemented by dialects that append table options, such
// as a comment, to CREATE TABLE.
type tableSuffixer interface {
	TableSuffix(t schema.TableDefinition) string
}

// CreateTable renders the CREATE TABLE statement of t followed by one CREATE
// INDEX per secondary index. Index and constraint names get the prefix.
func (r Renderer) CreateTable(t schema.TableDefinition) ([]string, error) {
	d := r.Dialect
	var defs []string
	inlined := ""
	for _, c := range t.Columns() {
		defs = append(defs, d.ColumnDefinition(c))
		if c.AutoIncrement() && d.InlinesAutoIncrementKey() {
			inlined = c.Name()
		}
	}
	pk := t.PrimaryKey()
	switch {
	case inlined != "" && !slices.Equal(pk, []string{inlined}):
		return nil, sagaerrors.NewUnsupported("create table",
			d.Name()+" requires the auto-increment column to be the whole primary key")
	case inlined == "" && len(pk) > 0:
		defs = append(defs, "PRIMARY KEY ("+quoteList(d, pk)+")")
	}
	for _, fk := range t.ForeignKeys() {
		defs = append(defs, r.constraint(fk))
	}
	stmt := "CREATE TABLE " + d.Quote(r.Table(t.Name())) + " (" + strings.Join(defs, ", ") + ")"
	if s, ok := d.(tableSuffixer); ok {
		stmt += s.TableSuffix(t)
	}

	stmts := []string{stmt}
	for _, ix := range t.Indexes() {
		s, err := r.createIndex(t.Name(), ix)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (r Renderer) constraint(fk schema.ForeignKeyDefinition) string {
	d := r.Dialect
	return "CONSTRAINT " + d.Quote(r.Prefix+fk.Name()) +
		" FOREIGN KEY (" + quoteList(d, fk.Columns()) + ")" +
		" REFERENCES " + d.Quote(r.Table(fk.ReferencedTable())) + " (" + quoteList(d, fk.ReferencedColumns()) + ")" +
		" ON DELETE " + fk.OnDelete().String() + " ON UPDATE " + fk.OnUpdate().String()
}

func (r Renderer) createIndex(table string, ix schema.IndexDefinition) (string, error) {
	d := r.Dialect
	if !d.SupportsIndexType(ix.Type()) {
		return "", sagaerrors.NewUnsupported(ix.Type().String()+" index", d.Name()+" has no such index type")
	}
	kind := "INDEX"
	if ix.Type() != schema.Plain {
		kind = ix.Type().String() + " INDEX"
	}
	return "CREATE " + kind + " " + d.Quote(r.Prefix+ix.Name()) + " ON " +
		d.Quote(r.Table(table)) + " (" + quoteList(d, ix.Columns()) + ")", nil
}

func (r Renderer) DropTable(name string) string {
	return "DROP TABLE " + r.Dialect.Quote(r.Table(name))
}

func (r Renderer) RenameTable(from, to string) string {
	d := r.Dialect
	return "ALTER TABLE " + d.Quote(r.Table(from)) + " RENAME TO " + d.Quote(r.Table(to))
}

func (r Renderer) AddColumn(table string, c schema.ColumnDefinition) string {
	d := r.Dialect
	return "ALTER TABLE " + d.Quote(r.Table(table)) + " ADD COLUMN " + d.ColumnDefinition(c)
}

func (r Renderer) DropColumn(table, column string) string {
	d := r.Dialect
	return "ALTER TABLE " + d.Quote(r.Table(table)) + " DROP COLUMN " + d.Quote(column)
}

func (r Renderer) RenameColumn(table, from, to string) string {
	d := r.Dialect
	return "ALTER TABLE " + d.Quote(r.Table(table)) + " RENAME COLUMN " + d.Quote(from) + " TO " + d.Quote(to)
}

func (r Renderer) ModifyColumn(table string, c schema.ColumnDefinition) (string, error) {
	return r.Dialect.ModifyColumn(r.Table(table), c)
}

// AddIndex renders the statement creating ix. A primary index replaces the
// table's primary key, which only some dialects allow.
func (r Renderer) AddIndex(table string, ix schema.IndexDefinition) (string, error) {
	if ix.Type() == schema.Primary {
		return r.Dialect.AddPrimaryKey(r.Table(table), ix.Columns())
	}
	return r.createIndex(table, ix)
}

func (r Renderer) DropIndex(table, name string) (string, error) {
	if name == schema.PrimaryIndexName {
		return r.Dialect.DropPrimaryKey(r.Table(table))
	}
	return r.Dialect.DropIndex(r.Table(table), r.Prefix+name), nil
}

func (r Renderer) AddForeignKey(table string, fk schema.ForeignKeyDefinition) (string, error) {
	return r.Dialect.AddForeignKey(r.Table(table), r.constraint(fk))
}

func (r Renderer) DropForeignKey(table, name string) (string, error) {
	return r.Dialect.DropForeignKey(r.Table(table), r.Prefix+name)
}

// ListTables returns the logical names of the tables carrying the prefix.
func (r Renderer) ListTables(q Querier) ([]string, error) {
	physical, err := r.Dialect.ListTables(q)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(physical))
	for _, p := range physical {
		if name, ok := strings.CutPrefix(p, r.Prefix); ok && name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Describe introspects the logical table name. It reports false when the
// table does not exist.
func (r Renderer) Describe(q Querier, name string) (schema.TableDefinition, bool, error) {
	desc, err := r.Dialect.Describe(q, r.Table(name))
	if err != nil || desc == nil {
		return schema.TableDefinition{}, false, err
	}
	opts := []schema.TableOption{schema.TableComment(desc.Comment)}
	if len(desc.PrimaryKey) > 0 {
		opts = append(opts, schema.PrimaryKey(desc.PrimaryKey...))
	}
	for _, info := range desc.Indexes {
		ix, err := schema.NewIndex(r.strip(info.Name), info.Type, info.Columns...)
		if err != nil {
			return schema.TableDefinition{}, false, err
		}
		opts = append(opts, schema.Indexes(ix))
	}
	for _, info := range desc.ForeignKeys {
		fk, err := schema.NewForeignKey(r.strip(info.Name), info.Columns, r.strip(info.RefTable), info.RefColumns,
			schema.OnDelete(info.OnDelete), schema.OnUpdate(info.OnUpdate))
		if err != nil {
			return schema.TableDefinition{}, false, err
		}
		opts = append(opts, schema.ForeignKeys(fk))
	}
	t, err := schema.NewTable(name, desc.Columns, opts...)
	if err != nil {
		return schema.TableDefinition{}, false, err
	}
	return t, true, nil
}

func (r Renderer) strip(physical string) string {
	return strings.TrimPrefix(physical, r.Prefix)
}
