package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
)

// SQLite is the dialect of SQLite 3.35 and later.
type SQLite struct{}

func (SQLite) Name() string                { return "sqlite" }
func (SQLite) Quote(ident string) string   { return quoteWith(ident, '"') }
func (SQLite) QuoteString(s string) string { return quoteString(s) }

func (SQLite) TypeName(c schema.ColumnDefinition) string {
	base, args := typeName(c)
	if c.Unsigned() {
		// SQLite only accepts the size arguments at the end of a type name.
		base += " UNSIGNED"
	}
	return base + args
}

func (d SQLite) ColumnDefinition(c schema.ColumnDefinition) string {
	if c.AutoIncrement() {
		return d.Quote(c.Name()) + " INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL"
	}
	var b strings.Builder
	b.WriteString(d.Quote(c.Name()))
	b.WriteString(" ")
	b.WriteString(d.TypeName(c))
	if !c.Nullable() {
		b.WriteString(" NOT NULL")
	}
	b.WriteString(defaultClause(c))
	return b.String()
}

func (SQLite) InlinesAutoIncrementKey() bool { return true }

func (SQLite) SupportsIndexType(t schema.IndexType) bool {
	switch t {
	case schema.Plain, schema.Unique:
		return true
	case schema.Primary, schema.Fulltext, schema.Spatial:
		return false
	}
	return false
}

func (SQLite) Limit(limit, offset int) string {
	switch {
	case limit == query.NoLimit && offset <= 0:
		return ""
	case limit == query.NoLimit:
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	case offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	}
	return " LIMIT " + strconv.Itoa(limit)
}

func (SQLite) LikeEscape() string { return ` ESCAPE '\'` }

func (d SQLite) Upsert(update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = d.Quote(c) + " = excluded." + d.Quote(c)
	}
	return " ON CONFLICT DO UPDATE SET " + strings.Join(sets, ", ")
}

func (SQLite) SupportsWriteLimit() bool { return false }

func (d SQLite) Truncate(table string) []Statement {
	return []Statement{
		{SQL: "DELETE FROM " + d.Quote(table)},
		{SQL: "DELETE FROM sqlite_sequence WHERE name = ?", Args: []any{table}, Optional: true},
	}
}

// Begin takes the write lock up front for SERIALIZABLE. SQLite transactions
// are always serializable; the other levels start deferred.
func (SQLite) Begin(iso txn.Isolation) []string {
	if iso == txn.Serializable {
		return []string{"BEGIN IMMEDIATE"}
	}
	return []string{"BEGIN"}
}

func (SQLite) ModifyColumn(string, schema.ColumnDefinition) (string, error) {
	return "", sagaerrors.NewUnsupported("modify column", "SQLite cannot alter a column in place")
}

func (SQLite) AddPrimaryKey(string, []string) (string, error) {
	return "", sagaerrors.NewUnsupported("add primary key", "SQLite fixes the primary key at CREATE TABLE")
}

func (SQLite) DropPrimaryKey(string) (string, error) {
	return "", sagaerrors.NewUnsupported("drop primary key", "SQLite fixes the primary key at CREATE TABLE")
}

func (d SQLite) DropIndex(_, index string) string {
	return "DROP INDEX " + d.Quote(index)
}

func (SQLite) AddForeignKey(string, string) (string, error) {
	return "", sagaerrors.NewUnsupported("add foreign key", "SQLite fixes foreign keys at CREATE TABLE")
}

func (SQLite) DropForeignKey(string, string) (string, error) {
	return "", sagaerrors.NewUnsupported("drop foreign key", "SQLite fixes foreign keys at CREATE TABLE")
}

func (SQLite) ListTables(q Querier) ([]string, error) {
	rs, err := q("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, rs.Len())
	for _, v := range rs.Pluck("name") {
		names = append(names, row.ToString(v))
	}
	return names, nil
}

var sqliteConstraint = regexp.MustCompile(`(?i)CONSTRAINT\s+("(?:[^"]|"")+"|\w+)\s+FOREIGN\s+KEY\s*\(([^)]*)\)`)

func (d SQLite) Describe(q Querier, table string) (*Description, error) {
	master, err := q("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return nil, err
	}
	first, ok := master.First()
	if !ok {
		return nil, nil
	}
	ddl := row.ToString(first.Value("sql"))
	autoinc := strings.Contains(strings.ToUpper(ddl), "AUTOINCREMENT")

	desc := &Description{}
	info, err := q("PRAGMA table_info(" + d.Quote(table) + ")")
	if err != nil {
		return nil, err
	}
	pk := map[int64]string{}
	for _, r := range info.Rows() {
		name := row.ToString(r.Value("name"))
		decl, err := parseDeclType(row.ToString(r.Value("type")))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		pos := row.ToInt(r.Value("pk"))
		opts := decl.options()
		nullable := pos == 0 && row.ToInt(r.Value("notnull")) == 0
		if nullable {
			opts = append(opts, schema.Nullable())
		}
		if pos > 0 {
			pk[pos] = name
			if autoinc && decl.typ == schema.Integer {
				opts = append(opts, schema.AutoIncrement())
			}
		}
		if text := r.Value("dflt_value"); text != nil {
			if v, ok := parseDefault(decl.typ, row.ToString(text)); ok && (v != nil || nullable) {
				opts = append(opts, schema.Default(v))
			}
		}
		col, err := schema.NewColumn(name, decl.typ, opts...)
		if err != nil {
			return nil, err
		}
		desc.Columns = append(desc.Columns, col)
	}
	for i := int64(1); i <= int64(len(pk)); i++ {
		desc.PrimaryKey = append(desc.PrimaryKey, pk[i])
	}

	list, err := q("PRAGMA index_list(" + d.Quote(table) + ")")
	if err != nil {
		return nil, err
	}
	for _, r := range list.Rows() {
		if row.ToString(r.Value("origin")) == "pk" {
			continue
		}
		name := row.ToString(r.Value("name"))
		cols, err := q("PRAGMA index_info(" + d.Quote(name) + ")")
		if err != nil {
			return nil, err
		}
		ix := IndexInfo{Name: name, Type: schema.Plain}
		if row.ToInt(r.Value("unique")) == 1 {
			ix.Type = schema.Unique
		}
		for _, c := range cols.Rows() {
			ix.Columns = append(ix.Columns, row.ToString(c.Value("name")))
		}
		desc.Indexes = append(desc.Indexes, ix)
	}

	names := map[string]string{}
	for _, m := range sqliteConstraint.FindAllStringSubmatch(ddl, -1) {
		names[normalizeColumnList(m[2])] = unquoteSQLite(m[1])
	}
	fks, err := q("PRAGMA foreign_key_list(" + d.Quote(table) + ")")
	if err != nil {
		return nil, err
	}
	byID := map[int64]*ForeignKeyInfo{}
	var order []int64
	for _, r := range fks.Rows() {
		id := row.ToInt(r.Value("id"))
		fk, ok := byID[id]
		if !ok {
			onDelete, _ := schema.ParseReferentialAction(row.ToString(r.Value("on_delete")))
			onUpdate, _ := schema.ParseReferentialAction(row.ToString(r.Value("on_update")))
			fk = &ForeignKeyInfo{RefTable: row.ToString(r.Value("table")), OnDelete: onDelete, OnUpdate: onUpdate}
			byID[id] = fk
			order = append(order, id)
		}
		fk.Columns = append(fk.Columns, row.ToString(r.Value("from")))
		fk.RefColumns = append(fk.RefColumns, row.ToString(r.Value("to")))
	}
	// PRAGMA foreign_key_list reports constraints in reverse declaration order.
	for i := len(order) - 1; i >= 0; i-- {
		fk := byID[order[i]]
		fk.Name = names[strings.Join(fk.Columns, ",")]
		desc.ForeignKeys = append(desc.ForeignKeys, *fk)
	}
	return desc, nil
}

func unquoteSQLite(s string) string {
	if len(s) >= 2 && s[0] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

// normalizeColumnList turns `"a", "b"` into "a,b".
func normalizeColumnList(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = unquoteSQLite(strings.TrimSpace(p))
	}
	return strings.Join(parts, ",")
}

func (SQLite) Classify(err error) (string, error) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint failed"):
		return "SQLITE_CONSTRAINT", sagaerrors.ErrConstraint
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "sqlite_busy"):
		return "SQLITE_BUSY", sagaerrors.ErrTransient
	case strings.Contains(msg, "database table is locked"), strings.Contains(msg, "sqlite_locked"):
		return "SQLITE_LOCKED", sagaerrors.ErrTransient
	case strings.Contains(msg, "no such table"):
		return "SQLITE_ERROR", sagaerrors.ErrTableNotFound
	}
	return "", nil
}
