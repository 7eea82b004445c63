package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/calounx/sagas-sub011/core/cache"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
)

// Session runs SQL on one database session. Every statement of a Backend
// goes through the same Session, so transactions and savepoints opened with
// plain statements stay on one connection.
//
// Implementations return driver errors as they are; the Backend classifies
// them.
type Session interface {
	Query(query string, args []any) (*result.ResultSet, error)
	Exec(query string, args []any) (Outcome, error)
	Ping() error
	Close() error
}

// Outcome is the metadata of a write.
type Outcome struct {
	Affected int64
	LastID   int64
	HasID    bool
}

// DefaultStatementCacheSize bounds the prepared statements a Conn keeps.
const DefaultStatementCacheSize = 64

// Conn is a Session pinned to one database/sql connection. Statements with
// bindings are prepared once and kept in an LRU cache; evicted statements
// are closed.
type Conn struct {
	ctx   context.Context
	conn  *sql.Conn
	stmts cache.Cache[string, *sql.Stmt]
}

// NewConn takes one connection from db for the lifetime of the Session.
func NewConn(ctx context.Context, db *sql.DB, cacheSize int) (*Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if cacheSize <= 0 {
		cacheSize = DefaultStatementCacheSize
	}
	return &Conn{
		ctx:  ctx,
		conn: conn,
		stmts: cache.NewWithConfig(cache.Config[string, *sql.Stmt]{
			MaxSize: cacheSize,
			OnEvict: func(_ string, st *sql.Stmt) { st.Close() },
		}),
	}, nil
}

// CacheStats reports prepared statement cache usage.
func (c *Conn) CacheStats() cache.Stats { return c.stmts.Stats() }

func (c *Conn) prepare(query string) (*sql.Stmt, error) {
	return cache.GetOrCompute(c.stmts, query, func(q string) (*sql.Stmt, error) {
		return c.conn.PrepareContext(c.ctx, q)
	})
}

func (c *Conn) Query(query string, args []any) (*result.ResultSet, error) {
	var rows *sql.Rows
	var err error
	if len(args) == 0 {
		rows, err = c.conn.QueryContext(c.ctx, query)
	} else {
		var st *sql.Stmt
		if st, err = c.prepare(query); err != nil {
			return nil, err
		}
		rows, err = st.QueryContext(c.ctx, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return Scan(rows)
}

func (c *Conn) Exec(query string, args []any) (Outcome, error) {
	var res sql.Result
	var err error
	if len(args) == 0 {
		res, err = c.conn.ExecContext(c.ctx, query)
	} else {
		var st *sql.Stmt
		if st, err = c.prepare(query); err != nil {
			return Outcome{}, err
		}
		res, err = st.ExecContext(c.ctx, args...)
	}
	if err != nil {
		return Outcome{}, err
	}
	var out Outcome
	if out.Affected, err = res.RowsAffected(); err != nil {
		return Outcome{}, err
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastID, out.HasID = id, true
	}
	return out, nil
}

func (c *Conn) Ping() error { return c.conn.PingContext(c.ctx) }

// Close closes the cached statements and returns the connection to its pool.
func (c *Conn) Close() error {
	c.stmts.Clear()
	return c.conn.Close()
}

// Scan reads every row of rows into a ResultSet. Values are normalized to
// the row scalar model; byte slices from text columns become strings.
func Scan(rows *sql.Rows) (*result.ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	text := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			text[i] = isTextType(ct.DatabaseTypeName())
		}
	}
	var out []row.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok && text[i] {
				vals[i] = string(b)
			}
		}
		r, err := row.FromColumns(cols, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result.WithColumns(cols, out), nil
}

func isTextType(name string) bool {
	name = strings.ToUpper(name)
	for _, marker := range []string{"CHAR", "TEXT", "CLOB", "JSON", "DATE", "TIME", "DECIMAL", "NUMERIC"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// keyword returns the upper-cased first word of a statement, skipping
// leading comments and parentheses.
func keyword(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		var rest string
		var ok bool
		switch {
		case strings.HasPrefix(s, "--"):
			_, rest, ok = strings.Cut(s, "\n")
		case strings.HasPrefix(s, "/*"):
			_, rest, ok = strings.Cut(s, "*/")
		case strings.HasPrefix(s, "("):
			rest, ok = s[1:], true
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
			})
			if end >= 0 {
				s = s[:end]
			}
			return strings.ToUpper(s)
		}
		if !ok {
			return ""
		}
		s = strings.TrimSpace(rest)
	}
}

// returnsRows reports whether a raw statement produces a result set.
func returnsRows(sql string) bool {
	switch keyword(sql) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "SHOW", "DESCRIBE", "DESC", "VALUES":
		return true
	}
	return strings.Contains(strings.ToUpper(sql), " RETURNING ")
}

func isInsert(sql string) bool {
	switch keyword(sql) {
	case "INSERT", "REPLACE":
		return true
	}
	return false
}

var _ Session = (*Conn)(nil)
