package sqlgen

import (
	"fmt"
	"strings"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/expr"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// Renderer turns query states into statements for one dialect and table
// prefix. Table names in a State are logical; the prefix is applied here and
// nowhere else.
type Renderer struct {
	Dialect Dialect
	Prefix  string
}

// Table returns the physical name of a logical table.
func (r Renderer) Table(name string) string { return r.Prefix + name }

// subqueryAlias names the derived table of an aggregate over a subquery.
const subqueryAlias = "sagadb_aggregate"

// Render returns the SQL text and positional bindings of s. Bindings follow
// placeholder order: select list, joins, predicates, then having.
func (r Renderer) Render(s query.State) (string, []any, error) {
	w := &writer{r: r, d: r.Dialect}
	var err error
	switch s.Kind {
	case query.KindSelect:
		err = w.selectStatement(s)
	case query.KindInsert, query.KindUpsert:
		err = w.insert(s)
	case query.KindUpdate:
		err = w.update(s)
	case query.KindDelete:
		err = w.delete(s)
	case query.KindTruncate:
		stmts := r.Dialect.Truncate(r.Table(s.Table))
		parts := make([]string, len(stmts))
		for i, st := range stmts {
			parts[i] = st.SQL
			w.args = append(w.args, st.Args...)
		}
		w.sb.WriteString(strings.Join(parts, "; "))
	default:
		err = sagaerrors.NewUnsupported("statement kind "+s.Kind.String(), "")
	}
	if err != nil {
		return "", nil, err
	}
	return w.sb.String(), w.args, nil
}

type writer struct {
	r     Renderer
	d     Dialect
	sb    strings.Builder
	args  []any
	strip map[string]bool
}

func (w *writer) child() *writer {
	return &writer{r: w.r, d: w.d, strip: w.strip}
}

func (w *writer) write(parts ...string) {
	for _, p := range parts {
		w.sb.WriteString(p)
	}
}

// column quotes a column reference. Qualifiers listed in strip are dropped,
// which is how UPDATE and DELETE keep accepting "table.column".
func (w *writer) column(ref string) string {
	if ref == "*" {
		return "*"
	}
	qualifier, name, ok := strings.Cut(ref, ".")
	if !ok {
		return w.d.Quote(ref)
	}
	if w.strip[qualifier] {
		return w.column(name)
	}
	if name == "*" {
		return w.d.Quote(qualifier) + ".*"
	}
	return w.d.Quote(qualifier) + "." + w.d.Quote(name)
}

// ref renders a having or ordering target: a column reference or an
// aggregate expression such as COUNT(*).
func (w *writer) ref(s string) (string, error) {
	if validation.ValidateColumnRef(s) == nil {
		return w.column(s), nil
	}
	item, err := expr.ParseSelectItem(s)
	if err != nil {
		return "", err
	}
	return w.operand(item.Expr), nil
}

func (w *writer) operand(o expr.Operand) string {
	switch o.Kind {
	case expr.Column:
		return w.column(o.Column)
	case expr.Star:
		if o.Column != "" {
			return w.d.Quote(o.Column) + ".*"
		}
		return "*"
	case expr.Func:
		args := make([]string, len(o.Args))
		for i, a := range o.Args {
			args[i] = w.operand(a)
		}
		distinct := ""
		if o.Distinct {
			distinct = "DISTINCT "
		}
		return o.Name + "(" + distinct + strings.Join(args, ", ") + ")"
	}
	return o.String()
}

// from renders a table with its alias. With a prefix and no alias the
// physical table is aliased to its logical name so that qualified references
// keep working.
func (w *writer) from(table, alias string) string {
	physical := w.d.Quote(w.r.Table(table))
	switch {
	case alias != "":
		return physical + " AS " + w.d.Quote(alias)
	case w.r.Prefix != "":
		return physical + " AS " + w.d.Quote(table)
	}
	return physical
}

func (w *writer) selectStatement(s query.State) error {
	if s.Aggregate != nil {
		return w.aggregate(s)
	}
	return w.selectCore(s)
}

func (w *writer) selectCore(s query.State) error {
	w.write("SELECT ")
	if s.Distinct {
		w.write("DISTINCT ")
	}
	if len(s.Columns) == 0 {
		w.write("*")
	}
	for i, c := range s.Columns {
		item, err := expr.ParseSelectItem(c)
		if err != nil {
			return err
		}
		if i > 0 {
			w.write(", ")
		}
		w.write(w.operand(item.Expr))
		if item.Alias != "" {
			w.write(" AS ", w.d.Quote(item.Alias))
		}
	}
	w.write(" FROM ", w.from(s.Table, s.Alias))
	if err := w.tail(s); err != nil {
		return err
	}
	if len(s.Orders) > 0 {
		w.write(" ORDER BY ")
		for i, o := range s.Orders {
			if i > 0 {
				w.write(", ")
			}
			target, err := w.ref(o.Column)
			if err != nil {
				return err
			}
			w.write(target, " ", o.Direction)
		}
	}
	w.write(w.d.Limit(s.Limit, s.Offset))
	return nil
}

// tail renders joins, WHERE, GROUP BY and HAVING.
func (w *writer) tail(s query.State) error {
	for _, j := range s.Joins {
		w.write(" ", j.Type.String(), " ", w.from(j.Table, j.Alias), " ON ",
			w.column(j.Left), " ", j.Operator, " ", w.column(j.Right))
	}
	if err := w.clause(" WHERE ", s.Wheres); err != nil {
		return err
	}
	if len(s.Groups) > 0 {
		cols := make([]string, len(s.Groups))
		for i, g := range s.Groups {
			cols[i] = w.column(g)
		}
		w.write(" GROUP BY ", strings.Join(cols, ", "))
	}
	return w.clause(" HAVING ", s.Havings)
}

func (w *writer) aggregate(s query.State) error {
	agg := *s.Aggregate
	if !s.NeedsSubquery() {
		target := "*"
		if agg.Column != "*" {
			target = w.column(agg.Column)
		}
		w.write("SELECT ", agg.Func, "(", target, ") AS ", w.d.Quote(query.AggregateAlias),
			" FROM ", w.from(s.Table, s.Alias))
		return w.tail(s)
	}
	inner := s.Clone()
	inner.Aggregate = nil
	target := "*"
	if agg.Column != "*" {
		name := agg.Column
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		target = w.d.Quote(subqueryAlias) + "." + w.d.Quote(name)
	}
	w.write("SELECT ", agg.Func, "(", target, ") AS ", w.d.Quote(query.AggregateAlias), " FROM (")
	if err := w.selectCore(inner); err != nil {
		return err
	}
	w.write(") AS ", w.d.Quote(subqueryAlias))
	return nil
}

// clause renders a predicate list. The list is a left fold, so whenever the
// connective changes the text so far is parenthesized: a OR b AND c renders
// as (a OR b) AND c.
func (w *writer) clause(keyword string, ps []query.Predicate) error {
	if len(ps) == 0 {
		return nil
	}
	text, err := w.fold(ps)
	if err != nil {
		return err
	}
	w.write(keyword, text)
	return nil
}

func (w *writer) fold(ps []query.Predicate) (string, error) {
	var acc string
	for i, p := range ps {
		sub := w.child()
		if err := sub.predicate(p); err != nil {
			return "", err
		}
		w.args = append(w.args, sub.args...)
		if i == 0 {
			acc = sub.sb.String()
			continue
		}
		if i > 1 && p.Conjunction() != ps[i-1].Conjunction() {
			acc = "(" + acc + ")"
		}
		acc += " " + p.Conjunction().String() + " " + sub.sb.String()
	}
	return acc, nil
}

func not(neg bool) string {
	if neg {
		return "NOT "
	}
	return ""
}

func (w *writer) placeholders(values []any) string {
	marks := make([]string, len(values))
	for i := range marks {
		marks[i] = "?"
	}
	w.args = append(w.args, values...)
	return strings.Join(marks, ", ")
}

func (w *writer) predicate(p query.Predicate) error {
	switch x := p.(type) {
	case query.Comparison:
		target, err := w.ref(x.Column)
		if err != nil {
			return err
		}
		w.write(target, " ", x.Operator, " ?")
		w.args = append(w.args, x.Value)
	case query.In:
		if len(x.Values) == 0 {
			if x.Not {
				w.write("1 = 1")
			} else {
				w.write("1 = 0")
			}
			return nil
		}
		w.write(w.column(x.Column), " ", not(x.Not), "IN (", w.placeholders(x.Values), ")")
	case query.Null:
		w.write(w.column(x.Column), " IS ", not(x.Not), "NULL")
	case query.Between:
		w.write(w.column(x.Column), " ", not(x.Not), "BETWEEN ? AND ?")
		w.args = append(w.args, x.Low, x.High)
	case query.Like:
		w.write(w.column(x.Column), " ", not(x.Not), "LIKE ?", w.d.LikeEscape())
		w.args = append(w.args, x.Pattern)
	case query.Raw:
		w.write("(", x.SQL, ")")
		w.args = append(w.args, x.Bindings...)
	case query.Group:
		text, err := w.fold(x.Predicates)
		if err != nil {
			return err
		}
		w.write("(", text, ")")
	case query.Exists:
		sub := w.child()
		sub.strip = nil
		if err := sub.selectStatement(x.Query); err != nil {
			return err
		}
		w.write(not(x.Not), "EXISTS (", sub.sb.String(), ")")
		w.args = append(w.args, sub.args...)
	case query.InQuery:
		sub := w.child()
		sub.strip = nil
		if err := sub.selectStatement(x.Query); err != nil {
			return err
		}
		w.write(w.column(x.Column), " ", not(x.Not), "IN (", sub.sb.String(), ")")
		w.args = append(w.args, sub.args...)
	default:
		return sagaerrors.NewUnsupported(fmt.Sprintf("predicate %T", p), "")
	}
	return nil
}

func (w *writer) insert(s query.State) error {
	if len(s.Rows) == 0 {
		return sagaerrors.NewValidation("rows", "", "no rows to insert")
	}
	cols := s.Rows[0].Columns()
	w.write("INSERT INTO ", w.d.Quote(w.r.Table(s.Table)), " (", quoteList(w.d, cols), ") VALUES ")
	for i, r := range s.Rows {
		if i > 0 {
			w.write(", ")
		}
		values := make([]any, len(cols))
		for j, c := range cols {
			values[j] = r.Value(c)
		}
		w.write("(", w.placeholders(values), ")")
	}
	if s.Kind == query.KindUpsert {
		update := s.UpdateColumns
		if len(update) == 0 {
			update = cols
		}
		w.write(w.d.Upsert(update))
	}
	return nil
}

// writeTarget prepares an UPDATE or DELETE: joins and offsets are rejected
// and the table's own qualifiers are stripped from column references.
func (w *writer) writeTarget(s query.State) error {
	if len(s.Joins) > 0 {
		return sagaerrors.NewUnsupported(s.Kind.String()+" with joins", "")
	}
	if s.Offset > 0 {
		return sagaerrors.NewUnsupported(s.Kind.String()+" with offset", "")
	}
	if s.Limit != query.NoLimit && !w.d.SupportsWriteLimit() {
		return sagaerrors.NewUnsupported(s.Kind.String()+" with limit", w.d.Name()+" does not limit writes")
	}
	w.strip = map[string]bool{s.Table: true}
	if s.Alias != "" {
		w.strip[s.Alias] = true
	}
	return nil
}

func (w *writer) writeTail(s query.State) error {
	if err := w.clause(" WHERE ", s.Wheres); err != nil {
		return err
	}
	if s.Limit == query.NoLimit {
		return nil
	}
	if len(s.Orders) > 0 {
		w.write(" ORDER BY ")
		for i, o := range s.Orders {
			if i > 0 {
				w.write(", ")
			}
			w.write(w.column(o.Column), " ", o.Direction)
		}
	}
	w.write(w.d.Limit(s.Limit, 0))
	return nil
}

func (w *writer) update(s query.State) error {
	if err := w.writeTarget(s); err != nil {
		return err
	}
	if len(s.Rows) == 0 || s.Rows[0].Len() == 0 {
		return sagaerrors.NewValidation("row", "", "no columns to update")
	}
	w.write("UPDATE ", w.d.Quote(w.r.Table(s.Table)), " SET ")
	for i, c := range s.Rows[0].Columns() {
		if i > 0 {
			w.write(", ")
		}
		w.write(w.d.Quote(c), " = ?")
		w.args = append(w.args, s.Rows[0].Value(c))
	}
	return w.writeTail(s)
}

func (w *writer) delete(s query.State) error {
	if err := w.writeTarget(s); err != nil {
		return err
	}
	w.write("DELETE FROM ", w.d.Quote(w.r.Table(s.Table)))
	return w.writeTail(s)
}
