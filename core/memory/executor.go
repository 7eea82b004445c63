package memory

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/calounx/sagas-sub011/core/condition"
	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/expr"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/sqlgen"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// Execute evaluates st against the store.
func (s *Store) Execute(st query.State) (*result.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		rs  *result.ResultSet
		err error
	)
	switch st.Kind {
	case query.KindSelect:
		rs, err = s.read(st)
	case query.KindInsert:
		rs, err = s.insert(st)
	case query.KindUpsert:
		rs, err = s.upsert(st)
	case query.KindUpdate:
		rs, err = s.update(st)
	case query.KindDelete:
		rs, err = s.delete(st)
	case query.KindTruncate:
		rs, err = s.truncate(st)
	default:
		err = sagaerrors.NewUnsupported("statement kind "+st.Kind.String(), "")
	}
	if err != nil {
		return nil, s.fail(st, err)
	}
	return rs, nil
}

// Render shows st in the SQLite dialect. The store never runs SQL; the text
// is for inspection and query events.
func (s *Store) Render(st query.State) (string, []any, error) {
	return sqlgen.Renderer{Dialect: sqlgen.SQLite{}, Prefix: s.prefix}.Render(st)
}

// ValidateJoin rejects every join that is not an equality.
func (s *Store) ValidateJoin(j query.Join) error {
	if j.Operator != "=" {
		return sagaerrors.NewUnsupported("join on "+j.Left+" "+j.Operator+" "+j.Right,
			"the in-process backend only joins on equality")
	}
	return nil
}

func (s *Store) fail(st query.State, err error) error {
	var qe *sagaerrors.QueryError
	if errors.As(err, &qe) {
		return err
	}
	sql, args, rerr := s.Render(st)
	if rerr != nil {
		sql, args = st.Kind.String()+" "+s.TableName(st.Table), nil
	}
	return sagaerrors.NewQuery(sql, args, err)
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sagaerrors.ErrTableNotFound, s.TableName(name))
	}
	return t, nil
}

// read runs a select without taking the lock; subqueries come back here.
func (s *Store) read(st query.State) (*result.ResultSet, error) {
	if st.Aggregate != nil {
		return s.aggregate(st)
	}
	return s.selectRows(st)
}

// source is one table of a FROM clause under the name queries use for it.
type source struct {
	name    string
	columns []string
}

// relation is the product of the FROM clause. Each row carries every column
// twice: qualified as "name.col" and bare as "col", where a bare name
// resolves to the first source that has it.
type relation struct {
	sources []source
	rows    []row.Row
}

func joined(left row.Row, src source, r row.Row) row.Row {
	out := left.Clone()
	for _, c := range src.columns {
		v := r.Value(c)
		out.Set(src.name+"."+c, v)
		if !out.Has(c) {
			out.Set(c, v)
		}
	}
	return out
}

func (rel *relation) nulls() row.Row {
	r := row.New(0)
	for _, src := range rel.sources {
		r = joined(r, src, row.Row{})
	}
	return r
}

func joinMatches(r row.Row, j query.Join) bool {
	a, b := condition.Lookup(r, j.Left), condition.Lookup(r, j.Right)
	if a == nil || b == nil {
		return false
	}
	ok, err := condition.Compare(a, j.Operator, b)
	return err == nil && ok
}

func (s *Store) from(st query.State) (*relation, error) {
	base, err := s.table(st.Table)
	if err != nil {
		return nil, err
	}
	src := source{name: st.Name(), columns: base.def.ColumnNames()}
	rel := &relation{sources: []source{src}, rows: make([]row.Row, len(base.rows))}
	for i, r := range base.rows {
		rel.rows[i] = joined(row.New(0), src, r)
	}
	for _, j := range st.Joins {
		t, err := s.table(j.Table)
		if err != nil {
			return nil, err
		}
		jsrc := source{name: j.Name(), columns: t.def.ColumnNames()}
		rel.rows = rel.join(jsrc, t.rows, j)
		rel.sources = append(rel.sources, jsrc)
	}
	return rel, nil
}

func (rel *relation) join(src source, right []row.Row, j query.Join) []row.Row {
	var out []row.Row
	if j.Type == query.RightJoin {
		for _, r := range right {
			matched := false
			for _, l := range rel.rows {
				if c := joined(l, src, r); joinMatches(c, j) {
					out = append(out, c)
					matched = true
				}
			}
			if !matched {
				out = append(out, joined(rel.nulls(), src, r))
			}
		}
		return out
	}
	for _, l := range rel.rows {
		matched := false
		for _, r := range right {
			if c := joined(l, src, r); joinMatches(c, j) {
				out = append(out, c)
				matched = true
			}
		}
		if !matched && j.Type == query.LeftJoin {
			out = append(out, joined(l, src, row.Row{}))
		}
	}
	return out
}

func (s *Store) filter(rows []row.Row, preds []query.Predicate) ([]row.Row, error) {
	if len(preds) == 0 {
		return rows, nil
	}
	preds, err := condition.ResolveSubqueries(preds, s.read)
	if err != nil {
		return nil, err
	}
	var out []row.Row
	for _, r := range rows {
		ok, err := condition.Evaluate(r, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// output is one column of a select list after wildcard expansion.
type output struct {
	name string
	expr expr.Operand
}

func (rel *relation) outputs(columns []string) ([]output, error) {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	var outs []output
	seen := map[string]bool{}
	add := func(src source, qualify bool) {
		for _, c := range src.columns {
			ref := c
			if qualify {
				ref = src.name + "." + c
			} else if seen[c] {
				continue
			}
			seen[c] = true
			outs = append(outs, output{name: c, expr: expr.Operand{Kind: expr.Column, Column: ref}})
		}
	}
	for _, c := range columns {
		item, err := expr.ParseSelectItem(c)
		if err != nil {
			return nil, err
		}
		if item.Expr.Kind != expr.Star {
			outs = append(outs, output{name: item.Name(), expr: item.Expr})
			continue
		}
		if item.Expr.Column == "" {
			for _, src := range rel.sources {
				add(src, false)
			}
			continue
		}
		i := slices.IndexFunc(rel.sources, func(src source) bool { return src.name == item.Expr.Column })
		if i < 0 {
			return nil, sagaerrors.NewValidation("select", c, "unknown table")
		}
		add(rel.sources[i], true)
	}
	return outs, nil
}

// aggregates collects the distinct aggregate calls under their text.
type aggregates struct {
	keys []string
	ops  map[string]expr.Operand
}

func (a *aggregates) add(o expr.Operand) {
	if o.IsAggregate() {
		key := o.String()
		if a.ops == nil {
			a.ops = map[string]expr.Operand{}
		}
		if _, ok := a.ops[key]; !ok {
			a.keys = append(a.keys, key)
			a.ops[key] = o
		}
		return
	}
	for _, arg := range o.Args {
		a.add(arg)
	}
}

func (a *aggregates) addNode(n expr.Node) {
	switch x := n.(type) {
	case expr.Logical:
		for _, t := range x.Terms {
			a.addNode(t)
		}
	case expr.Not:
		a.addNode(x.X)
	case expr.Compare:
		a.add(x.Left)
		a.add(x.Right)
	case expr.IsNull:
		a.add(x.X)
	case expr.InList:
		a.add(x.X)
	case expr.Like:
		a.add(x.X)
	case expr.Between:
		a.add(x.X)
		a.add(x.Low)
		a.add(x.High)
	case expr.Truth:
		a.add(x.X)
	}
}

// canonical rewrites an aggregate reference such as "count(*)" to the text
// its computed value is stored under. Plain columns are returned unchanged.
func (a *aggregates) canonical(ref string) (string, error) {
	if validation.ValidateColumnRef(ref) == nil {
		return ref, nil
	}
	item, err := expr.ParseSelectItem(ref)
	if err != nil {
		return "", err
	}
	a.add(item.Expr)
	return item.Expr.String(), nil
}

// rewrite canonicalizes aggregate references in HAVING predicates.
func (a *aggregates) rewrite(preds []query.Predicate) ([]query.Predicate, error) {
	out := make([]query.Predicate, len(preds))
	for i, p := range preds {
		var err error
		switch x := p.(type) {
		case query.Comparison:
			x.Column, err = a.canonical(x.Column)
			out[i] = x
		case query.In:
			x.Column, err = a.canonical(x.Column)
			out[i] = x
		case query.Null:
			x.Column, err = a.canonical(x.Column)
			out[i] = x
		case query.Between:
			x.Column, err = a.canonical(x.Column)
			out[i] = x
		case query.Like:
			x.Column, err = a.canonical(x.Column)
			out[i] = x
		case query.Raw:
			var c *expr.Condition
			if c, err = expr.ParseCondition(x.SQL); err == nil {
				a.addNode(c.Root)
			}
			out[i] = x
		case query.Group:
			x.Predicates, err = a.rewrite(x.Predicates)
			out[i] = x
		default:
			out[i] = p
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func valueKey(v any) string {
	return row.KindOf(v).String() + ":" + row.FormatValue(v)
}

func groupRows(rows []row.Row, groups []string) [][]row.Row {
	if len(groups) == 0 {
		return [][]row.Row{rows}
	}
	index := map[string]int{}
	var out [][]row.Row
	for _, r := range rows {
		parts := make([]string, len(groups))
		for i, g := range groups {
			parts[i] = valueKey(condition.Lookup(r, g))
		}
		key := strings.Join(parts, "\x1f")
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], r)
	}
	return out
}

// compute evaluates one aggregate call over rows. Nulls are skipped; SUM,
// AVG, MIN and MAX of no values are nil.
func compute(op expr.Operand, rows []row.Row) (any, error) {
	if len(op.Args) != 1 {
		return nil, sagaerrors.NewValidation("aggregate", op.String(), "aggregates take one argument")
	}
	arg := op.Args[0]
	if arg.Kind == expr.Star {
		if op.Name != "COUNT" {
			return nil, sagaerrors.NewValidation("aggregate", op.String(), "only COUNT accepts *")
		}
		return int64(len(rows)), nil
	}
	var vals []any
	seen := map[string]bool{}
	for _, r := range rows {
		v, err := condition.Operand(r, arg, nil)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if op.Distinct {
			k := valueKey(v)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		vals = append(vals, v)
	}
	if op.Name == "COUNT" {
		return int64(len(vals)), nil
	}
	if len(vals) == 0 {
		return nil, nil
	}
	switch op.Name {
	case "SUM", "AVG":
		var isum int64
		var fsum float64
		ints := true
		for _, v := range vals {
			if i, ok := v.(int64); ok && ints {
				isum += i
				continue
			}
			if ints {
				fsum, ints = float64(isum), false
			}
			fsum += row.ToFloat(v)
		}
		if op.Name == "AVG" {
			if ints {
				fsum = float64(isum)
			}
			return fsum / float64(len(vals)), nil
		}
		if ints {
			return isum, nil
		}
		return fsum, nil
	case "MIN", "MAX":
		best := vals[0]
		for _, v := range vals[1:] {
			c := row.Compare(v, best)
			if (op.Name == "MIN" && c < 0) || (op.Name == "MAX" && c > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, sagaerrors.NewUnsupported("aggregate "+op.Name, "")
}

// ordered compares two values for ORDER BY: nulls first, then loose order.
func ordered(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return row.Compare(a, b)
}

// orderBy stable-sorts items by the ORDER BY terms evaluated on view(item).
func orderBy[T any](items []T, orders []query.Order, view func(T) row.Row) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := view(items[i]), view(items[j])
		for _, o := range orders {
			c := ordered(condition.Lookup(a, o.Column), condition.Lookup(b, o.Column))
			if o.Direction == "DESC" {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit != query.NoLimit && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// selectRows evaluates a select in SQL order: FROM, WHERE, GROUP BY, HAVING,
// projection, DISTINCT, ORDER BY, then LIMIT and OFFSET.
func (s *Store) selectRows(st query.State) (*result.ResultSet, error) {
	rel, err := s.from(st)
	if err != nil {
		return nil, err
	}
	rows, err := s.filter(rel.rows, st.Wheres)
	if err != nil {
		return nil, err
	}
	outs, err := rel.outputs(st.Columns)
	if err != nil {
		return nil, err
	}

	var aggs aggregates
	for _, o := range outs {
		aggs.add(o.expr)
	}
	havings, err := aggs.rewrite(st.Havings)
	if err != nil {
		return nil, err
	}
	orders := slices.Clone(st.Orders)
	for i := range orders {
		if orders[i].Column, err = aggs.canonical(orders[i].Column); err != nil {
			return nil, err
		}
	}

	if len(st.Groups) > 0 || len(havings) > 0 || len(aggs.keys) > 0 {
		groups := groupRows(rows, st.Groups)
		rows = make([]row.Row, 0, len(groups))
		for _, g := range groups {
			gr := row.New(len(aggs.keys))
			if len(g) > 0 {
				gr = g[0].Clone()
			}
			for _, key := range aggs.keys {
				v, err := compute(aggs.ops[key], g)
				if err != nil {
					return nil, err
				}
				gr.Set(key, v)
			}
			rows = append(rows, gr)
		}
	}

	// Each working row is extended with the projected values so HAVING and
	// ORDER BY can name select aliases.
	type pair struct{ work, out row.Row }
	pairs := make([]pair, 0, len(rows))
	for _, r := range rows {
		out := row.New(len(outs))
		for _, o := range outs {
			v, err := condition.Operand(r, o.expr, nil)
			if err != nil {
				return nil, err
			}
			out.Set(o.name, v)
		}
		for _, c := range out.Columns() {
			if !r.Has(c) {
				r.Set(c, out.Value(c))
			}
		}
		pairs = append(pairs, pair{r, out})
	}
	if len(havings) > 0 {
		havings, err = condition.ResolveSubqueries(havings, s.read)
		if err != nil {
			return nil, err
		}
		kept := pairs[:0]
		for _, p := range pairs {
			ok, err := condition.Evaluate(p.work, havings)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, p)
			}
		}
		pairs = kept
	}
	if st.Distinct {
		seen := map[string]bool{}
		kept := pairs[:0]
		for _, p := range pairs {
			parts := make([]string, 0, p.out.Len())
			for _, v := range p.out.Values() {
				parts = append(parts, valueKey(v))
			}
			key := strings.Join(parts, "\x1f")
			if !seen[key] {
				seen[key] = true
				kept = append(kept, p)
			}
		}
		pairs = kept
	}

	orderBy(pairs, orders, func(p pair) row.Row { return p.work })
	pairs = paginate(pairs, st.Limit, st.Offset)

	names := make([]string, 0, len(outs))
	for _, o := range outs {
		if !slices.Contains(names, o.name) {
			names = append(names, o.name)
		}
	}
	out := make([]row.Row, len(pairs))
	for i, p := range pairs {
		out[i] = p.out
	}
	return result.WithColumns(names, out), nil
}

// aggregate computes a count/sum/avg/min/max terminal. Queries that group,
// filter groups, deduplicate or paginate are aggregated over their own rows.
func (s *Store) aggregate(st query.State) (*result.ResultSet, error) {
	agg := *st.Aggregate
	op := expr.Operand{Kind: expr.Func, Name: agg.Func, Args: []expr.Operand{{Kind: expr.Star}}}
	if agg.Column != "*" {
		op.Args[0] = expr.Operand{Kind: expr.Column, Column: agg.Column}
	}
	var rows []row.Row
	if st.NeedsSubquery() {
		inner := st.Clone()
		inner.Aggregate = nil
		rs, err := s.selectRows(inner)
		if err != nil {
			return nil, err
		}
		rows = rs.Rows()
		if i := strings.LastIndexByte(agg.Column, '.'); i >= 0 {
			op.Args[0].Column = agg.Column[i+1:]
		}
	} else {
		rel, err := s.from(st)
		if err != nil {
			return nil, err
		}
		if rows, err = s.filter(rel.rows, st.Wheres); err != nil {
			return nil, err
		}
	}
	v, err := compute(op, rows)
	if err != nil {
		return nil, err
	}
	return result.WithColumns([]string{query.AggregateAlias}, []row.Row{row.Of(query.AggregateAlias, v)}), nil
}

// coerce applies column affinity: numeric strings stored into numeric
// columns become numbers.
func coerce(c schema.ColumnDefinition, v any) any {
	if str, ok := v.(string); ok && c.Type().IsNumeric() {
		if n, ok := row.ParseNumber(str); ok {
			v = n
		}
	}
	if f, ok := v.(float64); ok && c.Type().IsInteger() && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func defaultValue(c schema.ColumnDefinition, d any) any {
	if s, ok := d.(string); ok && c.Type().IsTemporal() && strings.EqualFold(s, "CURRENT_TIMESTAMP") {
		return time.Now().UTC().Format(row.DateTimeLayout)
	}
	return d
}

func checkColumns(def schema.TableDefinition, r row.Row) error {
	for _, c := range r.Columns() {
		if !def.HasColumn(c) {
			return fmt.Errorf("%w: %s.%s", sagaerrors.ErrColumnNotFound, def.Name(), c)
		}
	}
	return nil
}

func checkNotNull(def schema.TableDefinition, r row.Row) error {
	for _, c := range def.Columns() {
		if !c.Nullable() && r.Value(c.Name()) == nil {
			return fmt.Errorf("%w: NOT NULL constraint failed: %s.%s", sagaerrors.ErrConstraint, def.Name(), c.Name())
		}
	}
	return nil
}

func uniqueKey(r row.Row, cols []string) (string, bool) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := r.Value(c)
		if v == nil {
			return "", false
		}
		parts[i] = valueKey(v)
	}
	return strings.Join(parts, "\x1f"), true
}

// checkUnique verifies the primary key and every unique index over rows.
// Keys containing NULL never collide.
func checkUnique(def schema.TableDefinition, rows []row.Row) error {
	for _, key := range def.UniqueKeys() {
		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			k, ok := uniqueKey(r, key)
			if !ok {
				continue
			}
			if seen[k] {
				return fmt.Errorf("%w: UNIQUE constraint failed: %s.%s",
					sagaerrors.ErrConstraint, def.Name(), strings.Join(key, ", "))
			}
			seen[k] = true
		}
	}
	return nil
}

// complete turns an input row into a stored row: schema column order,
// defaults and generated ids filled in, constraints checked.
func complete(t *table, in row.Row, lastID *int64) (row.Row, error) {
	if err := checkColumns(t.def, in); err != nil {
		return row.Row{}, err
	}
	cols := t.def.Columns()
	out := row.New(len(cols))
	for _, c := range cols {
		v, present := in.Get(c.Name())
		v = coerce(c, v)
		switch {
		case c.AutoIncrement() && v == nil:
			*lastID++
			v = *lastID
		case c.AutoIncrement():
			if id := row.ToInt(v); id > *lastID {
				*lastID = id
			}
		case !present:
			if d, ok := c.Default(); ok {
				v = defaultValue(c, d)
			}
		}
		out.Set(c.Name(), v)
	}
	return out, checkNotNull(t.def, out)
}

func written(t *table, n int, last row.Row) *result.ResultSet {
	if col, ok := t.def.AutoIncrementColumn(); ok && n > 0 {
		return result.Inserted(int64(n), row.ToInt(last.Value(col)))
	}
	return result.Write(int64(n))
}

func (s *Store) insert(st query.State) (*result.ResultSet, error) {
	t, err := s.table(st.Table)
	if err != nil {
		return nil, err
	}
	lastID := t.lastID
	rows := slices.Clone(t.rows)
	for _, in := range st.Rows {
		r, err := complete(t, in, &lastID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	if err := checkUnique(t.def, rows); err != nil {
		return nil, err
	}
	t.rows, t.lastID = rows, lastID
	if len(st.Rows) == 0 {
		return result.Write(0), nil
	}
	return written(t, len(st.Rows), rows[len(rows)-1]), nil
}

// conflict returns the index of the stored row sharing a unique key with in,
// trying the primary key first, or -1.
func conflict(t *table, in row.Row) int {
	probe := row.New(in.Len())
	for _, c := range in.Columns() {
		if col, ok := t.def.Column(c); ok {
			probe.Set(c, coerce(col, in.Value(c)))
		}
	}
	for _, key := range t.def.UniqueKeys() {
		k, ok := uniqueKey(probe, key)
		if !ok {
			continue
		}
		for i, r := range t.rows {
			if rk, ok := uniqueKey(r, key); ok && rk == k {
				return i
			}
		}
	}
	return -1
}

func (s *Store) upsert(st query.State) (*result.ResultSet, error) {
	t, err := s.table(st.Table)
	if err != nil {
		return nil, err
	}
	if len(st.Rows) != 1 {
		return nil, sagaerrors.NewValidation("rows", "", "upsert writes exactly one row")
	}
	in := st.Rows[0]
	if err := checkColumns(t.def, in); err != nil {
		return nil, err
	}
	i := conflict(t, in)
	if i < 0 {
		return s.insert(st)
	}
	updated := t.rows[i].Clone()
	lastID := t.lastID
	for _, c := range st.UpdateColumns {
		col, ok := t.def.Column(c)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", sagaerrors.ErrColumnNotFound, t.def.Name(), c)
		}
		v := coerce(col, in.Value(c))
		if col.AutoIncrement() && row.ToInt(v) > lastID {
			lastID = row.ToInt(v)
		}
		updated.Set(c, v)
	}
	if err := checkNotNull(t.def, updated); err != nil {
		return nil, err
	}
	rows := slices.Clone(t.rows)
	rows[i] = updated
	if err := checkUnique(t.def, rows); err != nil {
		return nil, err
	}
	t.rows, t.lastID = rows, lastID
	return written(t, 1, updated), nil
}

// matching returns the indexes of the stored rows a write applies to, in
// ORDER BY order when one is given, after LIMIT. Writes take no OFFSET.
func (s *Store) matching(st query.State, t *table) ([]int, error) {
	if len(st.Joins) > 0 {
		return nil, sagaerrors.NewUnsupported(st.Kind.String()+" with joins", "")
	}
	if st.Offset > 0 {
		return nil, sagaerrors.NewUnsupported(st.Kind.String()+" with offset", "")
	}
	preds, err := condition.ResolveSubqueries(st.Wheres, s.read)
	if err != nil {
		return nil, err
	}
	type match struct {
		index int
		view  row.Row
	}
	src := source{name: st.Name(), columns: t.def.ColumnNames()}
	var ms []match
	for i, r := range t.rows {
		view := joined(row.New(0), src, r)
		ok, err := condition.Evaluate(view, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			ms = append(ms, match{i, view})
		}
	}
	orderBy(ms, st.Orders, func(m match) row.Row { return m.view })
	ms = paginate(ms, st.Limit, 0)
	idx := make([]int, len(ms))
	for i, m := range ms {
		idx[i] = m.index
	}
	return idx, nil
}

func (s *Store) update(st query.State) (*result.ResultSet, error) {
	t, err := s.table(st.Table)
	if err != nil {
		return nil, err
	}
	if len(st.Rows) == 0 {
		return nil, sagaerrors.NewValidation("row", "", "no columns to update")
	}
	assign := st.Rows[0]
	if err := checkColumns(t.def, assign); err != nil {
		return nil, err
	}
	idx, err := s.matching(st, t)
	if err != nil {
		return nil, err
	}
	rows := slices.Clone(t.rows)
	lastID := t.lastID
	for _, i := range idx {
		r := rows[i].Clone()
		for _, c := range assign.Columns() {
			col, _ := t.def.Column(c)
			v := coerce(col, assign.Value(c))
			if col.AutoIncrement() && row.ToInt(v) > lastID {
				lastID = row.ToInt(v)
			}
			r.Set(c, v)
		}
		if err := checkNotNull(t.def, r); err != nil {
			return nil, err
		}
		rows[i] = r
	}
	if err := checkUnique(t.def, rows); err != nil {
		return nil, err
	}
	t.rows, t.lastID = rows, lastID
	return result.Write(int64(len(idx))), nil
}

func (s *Store) delete(st query.State) (*result.ResultSet, error) {
	t, err := s.table(st.Table)
	if err != nil {
		return nil, err
	}
	idx, err := s.matching(st, t)
	if err != nil {
		return nil, err
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := make([]row.Row, 0, len(t.rows)-len(idx))
	for i, r := range t.rows {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	t.rows = kept
	return result.Write(int64(len(idx))), nil
}

func (s *Store) truncate(st query.State) (*result.ResultSet, error) {
	t, err := s.table(st.Table)
	if err != nil {
		return nil, err
	}
	t.rows, t.lastID = nil, 0
	return result.Write(0), nil
}

var (
	_ query.Executor      = (*Store)(nil)
	_ query.JoinValidator = (*Store)(nil)
)
