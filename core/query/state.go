package query

import (
	"slices"
	"time"

	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
)

// Kind is the statement a State describes.
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpsert
	KindUpdate
	KindDelete
	KindTruncate
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpsert:
		return "upsert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindTruncate:
		return "truncate"
	}
	return "unknown"
}

// JoinType is the kind of a join.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
)

func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT JOIN"
	case RightJoin:
		return "RIGHT JOIN"
	}
	return "INNER JOIN"
}

// Join describes one joined table and its column comparison.
type Join struct {
	Type     JoinType
	Table    string
	Alias    string
	Left     string
	Operator string
	Right    string
}

// clauseBesidesWhere names the first clause other than WHERE that s carries,
// or returns "" when s only holds predicates.
func (s State) clauseBesidesWhere() string {
	switch {
	case s.Table != "" || s.Alias != "":
		return "table"
	case len(s.Columns) > 0 || s.Distinct:
		return "select"
	case len(s.Joins) > 0:
		return "join"
	case len(s.Groups) > 0:
		return "group by"
	case len(s.Havings) > 0:
		return "having"
	case len(s.Orders) > 0:
		return "order by"
	case s.Limit != NoLimit:
		return "limit"
	case s.Offset > 0:
		return "offset"
	}
	return ""
}

// Name is the alias, or the table name when there is none.
func (j Join) Name() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// Order is one ORDER BY term. Direction is "ASC" or "DESC".
type Order struct {
	Column    string
	Direction string
}

// Aggregate asks for a single aggregated value instead of rows. Func is one of
// COUNT, SUM, AVG, MIN, MAX; Column is "*" for COUNT(*).
type Aggregate struct {
	Func   string
	Column string
}

// AggregateAlias is the column an aggregate result is returned under.
const AggregateAlias = "aggregate"

// NoLimit marks an unlimited State.
const NoLimit = -1

// State is the accumulated intent of one logical query. Builders own their
// State; executors receive copies and must not retain or modify them.
type State struct {
	Kind     Kind
	Table    string
	Alias    string
	Columns  []string
	Distinct bool
	Joins    []Join
	Wheres   []Predicate
	Groups   []string
	Havings  []Predicate
	Orders   []Order
	Limit    int
	Offset   int

	// Rows holds the rows of an insert or upsert, or the assignments of an
	// update in Rows[0].
	Rows []row.Row
	// UpdateColumns lists the columns an upsert overwrites on conflict.
	UpdateColumns []string
	// Aggregate is set for count/sum/avg/min/max terminals.
	Aggregate *Aggregate
}

// NewState returns an empty select State.
func NewState() State {
	return State{Limit: NoLimit}
}

// Name is the alias, or the table name when there is none.
func (s State) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Table
}

// NeedsSubquery reports whether an aggregate must be computed over the rows
// of the rest of the query rather than directly over the filtered table.
func (s State) NeedsSubquery() bool {
	return s.Aggregate != nil &&
		(len(s.Groups) > 0 || len(s.Havings) > 0 || s.Distinct || s.Limit != NoLimit || s.Offset > 0)
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Columns = slices.Clone(s.Columns)
	out.Joins = slices.Clone(s.Joins)
	out.Wheres = ClonePredicates(s.Wheres)
	out.Groups = slices.Clone(s.Groups)
	out.Havings = ClonePredicates(s.Havings)
	out.Orders = slices.Clone(s.Orders)
	out.UpdateColumns = slices.Clone(s.UpdateColumns)
	if s.Rows != nil {
		out.Rows = make([]row.Row, len(s.Rows))
		for i, r := range s.Rows {
			out.Rows[i] = r.Clone()
		}
	}
	if s.Aggregate != nil {
		agg := *s.Aggregate
		out.Aggregate = &agg
	}
	return out
}

// Executor runs a State against a backend.
type Executor interface {
	// Execute runs the statement and returns its rows or write metadata.
	Execute(s State) (*result.ResultSet, error)
	// Render returns the statement text and positional bindings.
	Render(s State) (string, []any, error)
}

// JoinValidator is implemented by executors that support only some join
// shapes. The builder calls it when a join is added.
type JoinValidator interface {
	ValidateJoin(j Join) error
}

// Event describes one executed statement.
type Event struct {
	ConnectionID string        `json:"connection_id"`
	Backend      string        `json:"backend"`
	Operation    string        `json:"operation"`
	Table        string        `json:"table,omitempty"`
	Statement    string        `json:"statement"`
	Bindings     []any         `json:"bindings,omitempty"`
	Rows         int64         `json:"rows"`
	Duration     time.Duration `json:"duration_ns"`
	Error        string        `json:"error,omitempty"`
	Time         time.Time     `json:"time"`
}

// Observer receives an Event for every executed statement.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }
