package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
)

// MySQL is the dialect of MySQL 8 and MariaDB, the usual engines behind a
// host database API.
type MySQL struct{}

func (MySQL) Name() string              { return "mysql" }
func (MySQL) Quote(ident string) string { return quoteWith(ident, '`') }

// QuoteString also escapes backslashes, which MySQL treats as escapes inside
// string literals.
func (MySQL) QuoteString(s string) string {
	return quoteString(strings.ReplaceAll(s, `\`, `\\`))
}

func (MySQL) TypeName(c schema.ColumnDefinition) string {
	if c.Type() == schema.Boolean {
		return "TINYINT(1)"
	}
	base, args := typeName(c)
	s := base + args
	if c.Unsigned() {
		s += " UNSIGNED"
	}
	return s
}

func (d MySQL) ColumnDefinition(c schema.ColumnDefinition) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name()))
	b.WriteString(" ")
	b.WriteString(d.TypeName(c))
	if c.Nullable() {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	b.WriteString(defaultClause(c))
	if c.AutoIncrement() {
		b.WriteString(" AUTO_INCREMENT")
	}
	if c.Comment() != "" {
		b.WriteString(" COMMENT ")
		b.WriteString(d.QuoteString(c.Comment()))
	}
	return b.String()
}

func (MySQL) InlinesAutoIncrementKey() bool { return false }

// TableSuffix selects InnoDB, which foreign keys and transactions need, and
// carries the table comment.
func (d MySQL) TableSuffix(t schema.TableDefinition) string {
	s := " ENGINE=InnoDB"
	if t.Comment() != "" {
		s += " COMMENT=" + d.QuoteString(t.Comment())
	}
	return s
}

func (MySQL) SupportsIndexType(t schema.IndexType) bool { return t.Valid() }

// mysqlNoLimit is the documented way to give OFFSET without LIMIT.
const mysqlNoLimit = "18446744073709551615"

func (MySQL) Limit(limit, offset int) string {
	switch {
	case limit == query.NoLimit && offset <= 0:
		return ""
	case limit == query.NoLimit:
		return " LIMIT " + mysqlNoLimit + " OFFSET " + strconv.Itoa(offset)
	case offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	}
	return " LIMIT " + strconv.Itoa(limit)
}

// LikeEscape is empty: backslash is already MySQL's LIKE escape.
func (MySQL) LikeEscape() string { return "" }

func (d MySQL) Upsert(update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = d.Quote(c) + " = VALUES(" + d.Quote(c) + ")"
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (MySQL) SupportsWriteLimit() bool { return true }

func (d MySQL) Truncate(table string) []Statement {
	return []Statement{{SQL: "TRUNCATE TABLE " + d.Quote(table)}}
}

func (MySQL) Begin(iso txn.Isolation) []string {
	return []string{"SET TRANSACTION ISOLATION LEVEL " + iso.String(), "START TRANSACTION"}
}

func (d MySQL) ModifyColumn(table string, c schema.ColumnDefinition) (string, error) {
	return "ALTER TABLE " + d.Quote(table) + " MODIFY COLUMN " + d.ColumnDefinition(c), nil
}

func (d MySQL) AddPrimaryKey(table string, columns []string) (string, error) {
	return "ALTER TABLE " + d.Quote(table) + " ADD PRIMARY KEY (" + quoteList(d, columns) + ")", nil
}

func (d MySQL) DropPrimaryKey(table string) (string, error) {
	return "ALTER TABLE " + d.Quote(table) + " DROP PRIMARY KEY", nil
}

func (d MySQL) DropIndex(table, index string) string {
	return "DROP INDEX " + d.Quote(index) + " ON " + d.Quote(table)
}

func (d MySQL) AddForeignKey(table, constraint string) (string, error) {
	return "ALTER TABLE " + d.Quote(table) + " ADD " + constraint, nil
}

func (d MySQL) DropForeignKey(table, name string) (string, error) {
	return "ALTER TABLE " + d.Quote(table) + " DROP FOREIGN KEY " + d.Quote(name), nil
}

func (MySQL) ListTables(q Querier) ([]string, error) {
	rs, err := q("SELECT table_name AS name FROM information_schema.tables " +
		"WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, rs.Len())
	for _, v := range rs.Pluck("name") {
		names = append(names, row.ToString(v))
	}
	return names, nil
}

func (d MySQL) Describe(q Querier, table string) (*Description, error) {
	tables, err := q("SELECT table_comment AS comment FROM information_schema.tables "+
		"WHERE table_schema = DATABASE() AND table_name = ?", table)
	if err != nil {
		return nil, err
	}
	first, ok := tables.First()
	if !ok {
		return nil, nil
	}
	desc := &Description{Comment: row.ToString(first.Value("comment"))}

	cols, err := q("SELECT column_name AS name, column_type AS type, is_nullable AS nullable, "+
		"column_default AS def, extra, column_comment AS comment FROM information_schema.columns "+
		"WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", table)
	if err != nil {
		return nil, err
	}
	for _, r := range cols.Rows() {
		name := row.ToString(r.Value("name"))
		decl, err := parseDeclType(row.ToString(r.Value("type")))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		opts := decl.options()
		nullable := strings.EqualFold(row.ToString(r.Value("nullable")), "YES")
		if nullable {
			opts = append(opts, schema.Nullable())
		}
		if strings.Contains(strings.ToLower(row.ToString(r.Value("extra"))), "auto_increment") {
			opts = append(opts, schema.AutoIncrement())
		} else if def := r.Value("def"); def != nil {
			text := row.ToString(def)
			if decl.typ.IsText() || decl.typ.IsTemporal() && !strings.EqualFold(text, currentTimestamp) {
				opts = append(opts, schema.Default(text))
			} else if v, ok := parseDefault(decl.typ, text); ok && (v != nil || nullable) {
				opts = append(opts, schema.Default(v))
			}
		}
		if c := row.ToString(r.Value("comment")); c != "" {
			opts = append(opts, schema.Comment(c))
		}
		col, err := schema.NewColumn(name, decl.typ, opts...)
		if err != nil {
			return nil, err
		}
		desc.Columns = append(desc.Columns, col)
	}

	stats, err := q("SELECT index_name AS name, non_unique, column_name AS col, index_type AS type "+
		"FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? "+
		"ORDER BY index_name, seq_in_index", table)
	if err != nil {
		return nil, err
	}
	var current *IndexInfo
	for _, r := range stats.Rows() {
		name := row.ToString(r.Value("name"))
		col := row.ToString(r.Value("col"))
		if name == schema.PrimaryIndexName {
			desc.PrimaryKey = append(desc.PrimaryKey, col)
			continue
		}
		if current == nil || current.Name != name {
			desc.Indexes = append(desc.Indexes, IndexInfo{Name: name, Type: mysqlIndexType(r)})
			current = &desc.Indexes[len(desc.Indexes)-1]
		}
		current.Columns = append(current.Columns, col)
	}

	fks, err := q("SELECT k.constraint_name AS name, k.column_name AS col, "+
		"k.referenced_table_name AS ref_table, k.referenced_column_name AS ref_col, "+
		"r.delete_rule, r.update_rule FROM information_schema.key_column_usage k "+
		"JOIN information_schema.referential_constraints r "+
		"ON r.constraint_schema = k.constraint_schema AND r.constraint_name = k.constraint_name "+
		"WHERE k.table_schema = DATABASE() AND k.table_name = ? AND k.referenced_table_name IS NOT NULL "+
		"ORDER BY k.constraint_name, k.ordinal_position", table)
	if err != nil {
		return nil, err
	}
	var fk *ForeignKeyInfo
	for _, r := range fks.Rows() {
		name := row.ToString(r.Value("name"))
		if fk == nil || fk.Name != name {
			onDelete, _ := schema.ParseReferentialAction(row.ToString(r.Value("delete_rule")))
			onUpdate, _ := schema.ParseReferentialAction(row.ToString(r.Value("update_rule")))
			desc.ForeignKeys = append(desc.ForeignKeys, ForeignKeyInfo{
				Name:     name,
				RefTable: row.ToString(r.Value("ref_table")),
				OnDelete: onDelete,
				OnUpdate: onUpdate,
			})
			fk = &desc.ForeignKeys[len(desc.ForeignKeys)-1]
		}
		fk.Columns = append(fk.Columns, row.ToString(r.Value("col")))
		fk.RefColumns = append(fk.RefColumns, row.ToString(r.Value("ref_col")))
	}
	return desc, nil
}

func mysqlIndexType(r row.Row) schema.IndexType {
	switch strings.ToUpper(row.ToString(r.Value("type"))) {
	case "FULLTEXT":
		return schema.Fulltext
	case "SPATIAL":
		return schema.Spatial
	}
	if row.ToInt(r.Value("non_unique")) == 0 {
		return schema.Unique
	}
	return schema.Plain
}

func (MySQL) Classify(err error) (string, error) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "1062"), strings.Contains(msg, "duplicate entry"):
		return "1062", sagaerrors.ErrConstraint
	case strings.Contains(msg, "1451"), strings.Contains(msg, "1452"), strings.Contains(msg, "foreign key constraint fails"):
		return "1452", sagaerrors.ErrConstraint
	case strings.Contains(msg, "1213"), strings.Contains(msg, "deadlock"):
		return "1213", sagaerrors.ErrTransient
	case strings.Contains(msg, "1205"), strings.Contains(msg, "lock wait timeout"):
		return "1205", sagaerrors.ErrTransient
	case strings.Contains(msg, "1146"), strings.Contains(msg, "doesn't exist"):
		return "1146", sagaerrors.ErrTableNotFound
	}
	return "", nil
}
