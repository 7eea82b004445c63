// Package query accumulates select, insert, update and delete intent and hands
// it to a backend Executor.
//
// A Builder records the first error it encounters (invalid identifier, unknown
// operator, unsupported join shape) and returns it from the next terminal
// call, so chains never need intermediate error checks:
//
//	rs, err := conn.Query().
//		From("entities").
//		Where("saga_id", "=", 1).
//		OrderBy("name", "ASC").
//		Get()
//
// Terminal calls work on a copy of the accumulated state, so Count and Get on
// the same builder apply identical filters.
package query

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/calounx/sagas-sub011/core/expr"
	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// Builder accumulates the intent of one logical query.
type Builder struct {
	exec  Executor
	state State
	err   error
}

// New returns an empty builder that executes through exec.
func New(exec Executor) *Builder {
	return &Builder{exec: exec, state: NewState()}
}

// Clone returns an independent copy of the builder.
func (b *Builder) Clone() *Builder {
	return &Builder{exec: b.exec, state: b.state.Clone(), err: b.err}
}

// State returns a copy of the accumulated state.
func (b *Builder) State() State { return b.state.Clone() }

// Err returns the first error recorded while building.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func invalid(field, value string, err error) error {
	return sagaerrors.NewValidation(field, value, err.Error())
}

func checkColumn(field, col string) error {
	if col == "*" {
		return sagaerrors.NewValidation(field, col, "a wildcard is not a column")
	}
	if err := validation.ValidateColumnRef(col); err != nil {
		return invalid(field, col, err)
	}
	return nil
}

// Table sets the table to query, optionally under an alias.
func (b *Builder) Table(name string, alias ...string) *Builder {
	if err := validation.ValidateIdentifier(name); err != nil {
		return b.fail(invalid("table", name, err))
	}
	b.state.Table = name
	b.state.Alias = ""
	if len(alias) > 0 && alias[0] != "" {
		if err := validation.ValidateIdentifier(alias[0]); err != nil {
			return b.fail(invalid("alias", alias[0], err))
		}
		b.state.Alias = alias[0]
	}
	return b
}

// From is Table.
func (b *Builder) From(name string, alias ...string) *Builder {
	return b.Table(name, alias...)
}

// Select replaces the projection. Items are column references ("name",
// "e.name", "e.*") or expressions such as "COUNT(*) AS total".
func (b *Builder) Select(columns ...string) *Builder {
	b.state.Columns = nil
	return b.AddSelect(columns...)
}

// AddSelect appends to the projection.
func (b *Builder) AddSelect(columns ...string) *Builder {
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return b.fail(sagaerrors.NewValidation("select", c, "empty select item"))
		}
		if _, err := expr.ParseSelectItem(c); err != nil {
			return b.fail(err)
		}
		b.state.Columns = append(b.state.Columns, c)
	}
	return b
}

// Distinct removes duplicate rows from the result.
func (b *Builder) Distinct() *Builder {
	b.state.Distinct = true
	return b
}

func (b *Builder) addWhere(p Predicate) *Builder {
	b.state.Wheres = append(b.state.Wheres, p)
	return b
}

func (b *Builder) addHaving(p Predicate) *Builder {
	b.state.Havings = append(b.state.Havings, p)
	return b
}

// Where adds column operator value, joined with AND. Besides the comparison
// operators it accepts LIKE, NOT LIKE, IN, NOT IN, IS and IS NOT; comparing
// with nil using = or != becomes IS NULL or IS NOT NULL.
func (b *Builder) Where(column, operator string, value any) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	p, err := comparison(And, column, operator, value)
	if err != nil {
		return b.fail(err)
	}
	return b.addWhere(p)
}

// OrWhere is Where joined with OR.
func (b *Builder) OrWhere(column, operator string, value any) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	p, err := comparison(Or, column, operator, value)
	if err != nil {
		return b.fail(err)
	}
	return b.addWhere(p)
}

func comparison(conj Boolean, column, operator string, value any) (Predicate, error) {
	op := strings.Join(strings.Fields(strings.ToUpper(operator)), " ")
	switch op {
	case "LIKE", "NOT LIKE":
		return Like{Bool: conj, Column: column, Pattern: row.ToString(value), Not: op == "NOT LIKE"}, nil
	case "IN", "NOT IN":
		values, err := flatten(value)
		if err != nil {
			return nil, err
		}
		return In{Bool: conj, Column: column, Values: values, Not: op == "NOT IN"}, nil
	case "IS", "IS NOT":
		if row.Normalize(value) != nil {
			return nil, sagaerrors.NewValidation("operator", operator, "IS only compares with NULL")
		}
		return Null{Bool: conj, Column: column, Not: op == "IS NOT"}, nil
	}
	canon, ok := NormalizeOperator(op)
	if !ok {
		return nil, sagaerrors.NewValidation("operator", operator, "unknown comparison operator")
	}
	value = row.Normalize(value)
	if value == nil {
		switch canon {
		case "=":
			return Null{Bool: conj, Column: column}, nil
		case "!=":
			return Null{Bool: conj, Column: column, Not: true}, nil
		}
		return nil, sagaerrors.NewValidation("operator", operator, "NULL can only be compared with = or !=")
	}
	return Comparison{Bool: conj, Column: column, Operator: canon, Value: value}, nil
}

// flatten turns a slice of any element type into []any.
func flatten(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = row.Normalize(x)
		}
		return out, nil
	case []byte:
		return []any{row.Normalize(v)}, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, sagaerrors.NewValidation("values", fmt.Sprint(value), "IN expects a list")
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = row.Normalize(rv.Index(i).Interface())
	}
	return out, nil
}

func normalizeAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = row.Normalize(v)
	}
	return out
}

func (b *Builder) whereIn(conj Boolean, column string, not bool, values []any) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	return b.addWhere(In{Bool: conj, Column: column, Values: normalizeAll(values), Not: not})
}

// WhereIn adds a strict membership test. An empty list matches nothing.
func (b *Builder) WhereIn(column string, values ...any) *Builder {
	return b.whereIn(And, column, false, values)
}

// WhereNotIn adds a strict non-membership test. An empty list matches
// everything.
func (b *Builder) WhereNotIn(column string, values ...any) *Builder {
	return b.whereIn(And, column, true, values)
}

func (b *Builder) OrWhereIn(column string, values ...any) *Builder {
	return b.whereIn(Or, column, false, values)
}

func (b *Builder) OrWhereNotIn(column string, values ...any) *Builder {
	return b.whereIn(Or, column, true, values)
}

func (b *Builder) whereNull(conj Boolean, column string, not bool) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	return b.addWhere(Null{Bool: conj, Column: column, Not: not})
}

func (b *Builder) WhereNull(column string) *Builder      { return b.whereNull(And, column, false) }
func (b *Builder) WhereNotNull(column string) *Builder   { return b.whereNull(And, column, true) }
func (b *Builder) OrWhereNull(column string) *Builder    { return b.whereNull(Or, column, false) }
func (b *Builder) OrWhereNotNull(column string) *Builder { return b.whereNull(Or, column, true) }

func (b *Builder) whereBetween(conj Boolean, column string, not bool, low, high any) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	return b.addWhere(Between{Bool: conj, Column: column, Low: row.Normalize(low), High: row.Normalize(high), Not: not})
}

// WhereBetween adds an inclusive range test.
func (b *Builder) WhereBetween(column string, low, high any) *Builder {
	return b.whereBetween(And, column, false, low, high)
}

func (b *Builder) WhereNotBetween(column string, low, high any) *Builder {
	return b.whereBetween(And, column, true, low, high)
}

func (b *Builder) OrWhereBetween(column string, low, high any) *Builder {
	return b.whereBetween(Or, column, false, low, high)
}

func (b *Builder) OrWhereNotBetween(column string, low, high any) *Builder {
	return b.whereBetween(Or, column, true, low, high)
}

func (b *Builder) whereLike(conj Boolean, column string, not bool, pattern string) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	return b.addWhere(Like{Bool: conj, Column: column, Pattern: pattern, Not: not})
}

// WhereLike adds a case-insensitive wildcard match: % matches any run of
// characters and _ any single character.
func (b *Builder) WhereLike(column, pattern string) *Builder {
	return b.whereLike(And, column, false, pattern)
}

func (b *Builder) WhereNotLike(column, pattern string) *Builder {
	return b.whereLike(And, column, true, pattern)
}

func (b *Builder) OrWhereLike(column, pattern string) *Builder {
	return b.whereLike(Or, column, false, pattern)
}

func (b *Builder) OrWhereNotLike(column, pattern string) *Builder {
	return b.whereLike(Or, column, true, pattern)
}

func (b *Builder) whereRaw(conj Boolean, sql string, bindings []any) *Builder {
	c, err := expr.ParseCondition(sql)
	if err != nil {
		return b.fail(err)
	}
	if c.Placeholders != len(bindings) {
		return b.fail(sagaerrors.NewValidation("bindings", sql,
			fmt.Sprintf("%d placeholders but %d bindings", c.Placeholders, len(bindings))))
	}
	return b.addWhere(Raw{Bool: conj, SQL: sql, Bindings: normalizeAll(bindings)})
}

// WhereRaw adds a literal condition. Callers must pass untrusted input only
// through bindings.
func (b *Builder) WhereRaw(sql string, bindings ...any) *Builder {
	return b.whereRaw(And, sql, bindings)
}

func (b *Builder) OrWhereRaw(sql string, bindings ...any) *Builder {
	return b.whereRaw(Or, sql, bindings)
}

func (b *Builder) whereGroup(conj Boolean, fn func(*Builder)) *Builder {
	scope := &Builder{state: NewState()}
	fn(scope)
	if scope.err != nil {
		return b.fail(scope.err)
	}
	if clause := scope.state.clauseBesidesWhere(); clause != "" {
		return b.fail(sagaerrors.NewValidation("where.group", clause, "a group only collects where predicates"))
	}
	if len(scope.state.Wheres) == 0 {
		return b
	}
	return b.addWhere(Group{Bool: conj, Predicates: scope.state.Wheres})
}

// WhereGroup runs fn against a scratch builder and adds the predicates it
// collected as one parenthesized group.
func (b *Builder) WhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup(And, fn)
}

func (b *Builder) OrWhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup(Or, fn)
}

func subquery(sub *Builder) (State, error) {
	if sub == nil {
		return State{}, sagaerrors.NewValidation("subquery", "", "nil subquery")
	}
	if sub.err != nil {
		return State{}, sub.err
	}
	if sub.state.Table == "" {
		return State{}, sagaerrors.NewQuery("", nil, sagaerrors.ErrNoTable)
	}
	s := sub.state.Clone()
	s.Kind = KindSelect
	return s, nil
}

func (b *Builder) whereExists(conj Boolean, sub *Builder, not bool) *Builder {
	s, err := subquery(sub)
	if err != nil {
		return b.fail(err)
	}
	return b.addWhere(Exists{Bool: conj, Query: s, Not: not})
}

// WhereExists requires sub to return at least one row.
func (b *Builder) WhereExists(sub *Builder) *Builder      { return b.whereExists(And, sub, false) }
func (b *Builder) WhereNotExists(sub *Builder) *Builder   { return b.whereExists(And, sub, true) }
func (b *Builder) OrWhereExists(sub *Builder) *Builder    { return b.whereExists(Or, sub, false) }
func (b *Builder) OrWhereNotExists(sub *Builder) *Builder { return b.whereExists(Or, sub, true) }

func (b *Builder) whereInSub(conj Boolean, column string, sub *Builder, not bool) *Builder {
	if err := checkColumn("where", column); err != nil {
		return b.fail(err)
	}
	s, err := subquery(sub)
	if err != nil {
		return b.fail(err)
	}
	if len(s.Columns) != 1 {
		return b.fail(sagaerrors.NewValidation("subquery", s.Table, "IN subquery must select exactly one column"))
	}
	return b.addWhere(InQuery{Bool: conj, Column: column, Query: s, Not: not})
}

// WhereInSub tests column against the single column selected by sub.
func (b *Builder) WhereInSub(column string, sub *Builder) *Builder {
	return b.whereInSub(And, column, sub, false)
}

func (b *Builder) WhereNotInSub(column string, sub *Builder) *Builder {
	return b.whereInSub(And, column, sub, true)
}

func (b *Builder) join(typ JoinType, table, left, operator, right string, alias []string) *Builder {
	if err := validation.ValidateIdentifier(table); err != nil {
		return b.fail(invalid("join", table, err))
	}
	j := Join{Type: typ, Table: table, Left: left, Right: right}
	if len(alias) > 0 && alias[0] != "" {
		if err := validation.ValidateIdentifier(alias[0]); err != nil {
			return b.fail(invalid("join.alias", alias[0], err))
		}
		j.Alias = alias[0]
	}
	if err := checkColumn("join", left); err != nil {
		return b.fail(err)
	}
	if err := checkColumn("join", right); err != nil {
		return b.fail(err)
	}
	canon, ok := NormalizeOperator(operator)
	if !ok {
		return b.fail(sagaerrors.NewValidation("join.operator", operator, "unknown comparison operator"))
	}
	j.Operator = canon
	if v, ok := b.exec.(JoinValidator); ok {
		if err := v.ValidateJoin(j); err != nil {
			return b.fail(err)
		}
	}
	b.state.Joins = append(b.state.Joins, j)
	return b
}

func (b *Builder) joinOn(typ JoinType, table, condition string, alias []string) *Builder {
	jc, err := expr.ParseJoin(condition)
	if err != nil {
		return b.fail(err)
	}
	return b.join(typ, table, jc.Left, jc.Operator, jc.Right, alias)
}

// Join adds an inner join on left operator right.
func (b *Builder) Join(table, left, operator, right string, alias ...string) *Builder {
	return b.join(InnerJoin, table, left, operator, right, alias)
}

func (b *Builder) LeftJoin(table, left, operator, right string, alias ...string) *Builder {
	return b.join(LeftJoin, table, left, operator, right, alias)
}

func (b *Builder) RightJoin(table, left, operator, right string, alias ...string) *Builder {
	return b.join(RightJoin, table, left, operator, right, alias)
}

// JoinOn adds an inner join from a condition such as "e.saga_id = s.id".
func (b *Builder) JoinOn(table, condition string, alias ...string) *Builder {
	return b.joinOn(InnerJoin, table, condition, alias)
}

func (b *Builder) LeftJoinOn(table, condition string, alias ...string) *Builder {
	return b.joinOn(LeftJoin, table, condition, alias)
}

func (b *Builder) RightJoinOn(table, condition string, alias ...string) *Builder {
	return b.joinOn(RightJoin, table, condition, alias)
}

// OrderBy appends an ordering term. Direction is ASC or DESC, in any case.
func (b *Builder) OrderBy(column, direction string) *Builder {
	if err := checkColumn("order", column); err != nil {
		return b.fail(err)
	}
	dir, err := validation.NormalizeDirection(direction)
	if err != nil {
		return b.fail(invalid("order.direction", direction, err))
	}
	b.state.Orders = append(b.state.Orders, Order{Column: column, Direction: dir})
	return b
}

// Latest orders by column descending, created_at by default.
func (b *Builder) Latest(column ...string) *Builder {
	return b.OrderBy(firstOr(column, "created_at"), "DESC")
}

// Oldest orders by column ascending, created_at by default.
func (b *Builder) Oldest(column ...string) *Builder {
	return b.OrderBy(firstOr(column, "created_at"), "ASC")
}

func firstOr(s []string, def string) string {
	if len(s) > 0 && s[0] != "" {
		return s[0]
	}
	return def
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	for _, c := range columns {
		if err := checkColumn("group", c); err != nil {
			return b.fail(err)
		}
		b.state.Groups = append(b.state.Groups, c)
	}
	return b
}

func checkHavingColumn(col string) error {
	if checkColumn("having", col) == nil {
		return nil
	}
	item, err := expr.ParseSelectItem(col)
	if err != nil {
		return err
	}
	if item.Alias != "" || !item.Expr.IsAggregate() {
		return sagaerrors.NewValidation("having", col, "expected a column, alias or aggregate")
	}
	return nil
}

// Having filters groups. Column may be a grouped column, a select alias or an
// aggregate such as "COUNT(*)".
func (b *Builder) Having(column, operator string, value any) *Builder {
	if err := checkHavingColumn(column); err != nil {
		return b.fail(err)
	}
	p, err := comparison(And, column, operator, value)
	if err != nil {
		return b.fail(err)
	}
	return b.addHaving(p)
}

func (b *Builder) OrHaving(column, operator string, value any) *Builder {
	if err := checkHavingColumn(column); err != nil {
		return b.fail(err)
	}
	p, err := comparison(Or, column, operator, value)
	if err != nil {
		return b.fail(err)
	}
	return b.addHaving(p)
}

// HavingRaw adds a literal group filter.
func (b *Builder) HavingRaw(sql string, bindings ...any) *Builder {
	c, err := expr.ParseCondition(sql)
	if err != nil {
		return b.fail(err)
	}
	if c.Placeholders != len(bindings) {
		return b.fail(sagaerrors.NewValidation("bindings", sql,
			fmt.Sprintf("%d placeholders but %d bindings", c.Placeholders, len(bindings))))
	}
	return b.addHaving(Raw{Bool: And, SQL: sql, Bindings: normalizeAll(bindings)})
}

// Limit caps the number of rows.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.fail(sagaerrors.NewValidation("limit", fmt.Sprint(n), "limit cannot be negative"))
	}
	b.state.Limit = n
	return b
}

// Offset skips rows.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail(sagaerrors.NewValidation("offset", fmt.Sprint(n), "offset cannot be negative"))
	}
	b.state.Offset = n
	return b
}

// ForPage sets limit and offset for a 1-based page.
func (b *Builder) ForPage(page, perPage int) *Builder {
	if page < 1 {
		page = 1
	}
	return b.Offset((page - 1) * perPage).Limit(perPage)
}

// statement validates the builder and returns a copy of its state as kind.
func (b *Builder) statement(kind Kind) (State, error) {
	if b.err != nil {
		return State{}, b.err
	}
	if b.exec == nil {
		return State{}, sagaerrors.NewQuery("", nil, sagaerrors.ErrNotConnected)
	}
	if b.state.Table == "" {
		return State{}, sagaerrors.NewQuery("", nil, sagaerrors.ErrNoTable)
	}
	s := b.state.Clone()
	s.Kind = kind
	return s, nil
}

// ToSQL renders the select statement with the connection's dialect.
func (b *Builder) ToSQL() (string, error) {
	s, err := b.statement(KindSelect)
	if err != nil {
		return "", err
	}
	sql, _, err := b.exec.Render(s)
	return sql, err
}

// Bindings returns the positional parameters of ToSQL: predicates first, then
// having, in declaration order.
func (b *Builder) Bindings() ([]any, error) {
	s, err := b.statement(KindSelect)
	if err != nil {
		return nil, err
	}
	_, args, err := b.exec.Render(s)
	return args, err
}

// Get runs the select and returns its rows.
func (b *Builder) Get() (*result.ResultSet, error) {
	s, err := b.statement(KindSelect)
	if err != nil {
		return nil, err
	}
	return b.exec.Execute(s)
}

// Execute is Get.
func (b *Builder) Execute() (*result.ResultSet, error) { return b.Get() }

// First returns the first matching row.
func (b *Builder) First() (row.Row, bool, error) {
	s, err := b.statement(KindSelect)
	if err != nil {
		return row.Row{}, false, err
	}
	s.Limit = 1
	rs, err := b.exec.Execute(s)
	if err != nil {
		return row.Row{}, false, err
	}
	r, ok := rs.First()
	return r, ok, nil
}

func outputName(column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}

// Value returns column of the first matching row, or nil.
func (b *Builder) Value(column string) (any, error) {
	if err := checkColumn("value", column); err != nil {
		return nil, err
	}
	s, err := b.statement(KindSelect)
	if err != nil {
		return nil, err
	}
	s.Columns = []string{column}
	s.Limit = 1
	rs, err := b.exec.Execute(s)
	if err != nil {
		return nil, err
	}
	r, ok := rs.First()
	if !ok {
		return nil, nil
	}
	return r.Value(outputName(column)), nil
}

// Pluck returns column of every matching row.
func (b *Builder) Pluck(column string) ([]any, error) {
	if err := checkColumn("pluck", column); err != nil {
		return nil, err
	}
	s, err := b.statement(KindSelect)
	if err != nil {
		return nil, err
	}
	s.Columns = []string{column}
	rs, err := b.exec.Execute(s)
	if err != nil {
		return nil, err
	}
	return rs.Pluck(outputName(column)), nil
}

// Exists reports whether any row matches.
func (b *Builder) Exists() (bool, error) {
	s, err := b.statement(KindSelect)
	if err != nil {
		return false, err
	}
	s.Limit = 1
	rs, err := b.exec.Execute(s)
	if err != nil {
		return false, err
	}
	return rs.Len() > 0, nil
}

func (b *Builder) aggregate(fn, column string) (any, error) {
	if column != "*" {
		if err := checkColumn(strings.ToLower(fn), column); err != nil {
			return nil, err
		}
	}
	s, err := b.statement(KindSelect)
	if err != nil {
		return nil, err
	}
	s.Aggregate = &Aggregate{Func: fn, Column: column}
	if !s.NeedsSubquery() {
		s.Orders = nil
	}
	rs, err := b.exec.Execute(s)
	if err != nil {
		return nil, err
	}
	r, ok := rs.First()
	if !ok {
		return nil, nil
	}
	return r.Value(AggregateAlias), nil
}

// Count returns the number of rows Get would return.
func (b *Builder) Count() (int64, error) {
	v, err := b.aggregate("COUNT", "*")
	if err != nil {
		return 0, err
	}
	return row.ToInt(v), nil
}

// Sum adds column over the matching rows; no rows sum to 0.
func (b *Builder) Sum(column string) (float64, error) {
	v, err := b.aggregate("SUM", column)
	if err != nil {
		return 0, err
	}
	return row.ToFloat(v), nil
}

// Avg averages column over the matching rows; no rows average to 0.
func (b *Builder) Avg(column string) (float64, error) {
	v, err := b.aggregate("AVG", column)
	if err != nil {
		return 0, err
	}
	return row.ToFloat(v), nil
}

// Min returns the smallest value of column, or nil when no rows match.
func (b *Builder) Min(column string) (any, error) { return b.aggregate("MIN", column) }

// Max returns the largest value of column, or nil when no rows match.
func (b *Builder) Max(column string) (any, error) { return b.aggregate("MAX", column) }

func checkRow(r row.Row) error {
	if r.Len() == 0 {
		return sagaerrors.NewValidation("row", "", "no columns to write")
	}
	for _, c := range r.Columns() {
		if err := validation.ValidateIdentifier(c); err != nil {
			return invalid("row", c, err)
		}
	}
	return nil
}

// Insert writes one row. The result carries the generated id.
func (b *Builder) Insert(r row.Row) (*result.ResultSet, error) {
	return b.InsertBatch([]row.Row{r})
}

// InsertBatch writes rows in one statement. Every row must have the same
// columns.
func (b *Builder) InsertBatch(rows []row.Row) (*result.ResultSet, error) {
	s, err := b.statement(KindInsert)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return result.Write(0), nil
	}
	cols := rows[0].Columns()
	slices.Sort(cols)
	for _, r := range rows {
		if err := checkRow(r); err != nil {
			return nil, err
		}
		rc := r.Columns()
		slices.Sort(rc)
		if !slices.Equal(cols, rc) {
			return nil, sagaerrors.NewValidation("rows", strings.Join(rc, ","), "batch rows must share columns")
		}
	}
	s.Rows = make([]row.Row, len(rows))
	for i, r := range rows {
		s.Rows[i] = r.Clone()
	}
	return b.exec.Execute(s)
}

// Upsert inserts r or, when it collides with a primary or unique key,
// overwrites updateColumns of the existing row. Without updateColumns every
// column of r is overwritten.
func (b *Builder) Upsert(r row.Row, updateColumns ...string) (*result.ResultSet, error) {
	s, err := b.statement(KindUpsert)
	if err != nil {
		return nil, err
	}
	if err := checkRow(r); err != nil {
		return nil, err
	}
	if len(updateColumns) == 0 {
		updateColumns = r.Columns()
	}
	for _, c := range updateColumns {
		if !r.Has(c) {
			return nil, sagaerrors.NewValidation("update_columns", c, "column not present in the row")
		}
	}
	s.Rows = []row.Row{r.Clone()}
	s.UpdateColumns = slices.Clone(updateColumns)
	return b.exec.Execute(s)
}

// Update assigns the values of r to every matching row.
func (b *Builder) Update(r row.Row) (*result.ResultSet, error) {
	s, err := b.statement(KindUpdate)
	if err != nil {
		return nil, err
	}
	if err := checkRow(r); err != nil {
		return nil, err
	}
	s.Rows = []row.Row{r.Clone()}
	return b.exec.Execute(s)
}

// Delete removes every matching row.
func (b *Builder) Delete() (*result.ResultSet, error) {
	s, err := b.statement(KindDelete)
	if err != nil {
		return nil, err
	}
	return b.exec.Execute(s)
}

// Truncate removes every row and resets the auto-increment counter.
func (b *Builder) Truncate() (*result.ResultSet, error) {
	s, err := b.statement(KindTruncate)
	if err != nil {
		return nil, err
	}
	return b.exec.Execute(s)
}
