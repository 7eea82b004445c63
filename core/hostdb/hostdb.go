// Package hostdb runs sagadb on a database API owned by an embedding host.
// Such APIs take complete statements and no bindings, so every statement is
// interpolated with the dialect's literal syntax before it is handed over.
package hostdb

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/sqldb"
	"github.com/calounx/sagas-sub011/core/sqlgen"
)

// Backend is the backend name of host connections.
const Backend = "host"

// Host is the database API of the embedding application.
type Host interface {
	// Query runs a statement returning rows.
	Query(sql string) (columns []string, rows [][]any, err error)
	// Exec runs a write or DDL statement. lastID is zero when the statement
	// generated no id.
	Exec(sql string) (affected, lastID int64, err error)
}

// Options configures Open.
type Options struct {
	// Dialect of the host database; nil means MySQL.
	Dialect        sqlgen.Dialect
	Prefix         string
	SchemaCacheTTL time.Duration
}

// session adapts a Host to sqldb.Session.
type session struct {
	host    Host
	dialect sqlgen.Dialect
}

func (s *session) Query(query string, args []any) (*result.ResultSet, error) {
	stmt, err := sqlgen.Interpolate(s.dialect, query, args)
	if err != nil {
		return nil, err
	}
	cols, values, err := s.host.Query(stmt)
	if err != nil {
		return nil, err
	}
	rows := make([]row.Row, len(values))
	for i, vals := range values {
		if rows[i], err = row.FromColumns(cols, vals); err != nil {
			return nil, err
		}
	}
	return result.WithColumns(cols, rows), nil
}

func (s *session) Exec(query string, args []any) (sqldb.Outcome, error) {
	stmt, err := sqlgen.Interpolate(s.dialect, query, args)
	if err != nil {
		return sqldb.Outcome{}, err
	}
	affected, id, err := s.host.Exec(stmt)
	if err != nil {
		return sqldb.Outcome{}, err
	}
	return sqldb.Outcome{Affected: affected, LastID: id, HasID: id > 0}, nil
}

func (s *session) Ping() error {
	_, _, err := s.host.Query("SELECT 1")
	return err
}

// Close closes the host handle when it is an io.Closer. Most hosts own their
// handle and outlive the connection.
func (s *session) Close() error {
	if c, ok := s.host.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open returns a backend running its statements through host.
func Open(host Host, opts Options) *sqldb.Backend {
	d := opts.Dialect
	if d == nil {
		d = sqlgen.MySQL{}
	}
	return sqldb.New(&session{host: host, dialect: d}, sqldb.Options{
		Name:           Backend,
		Dialect:        d,
		Prefix:         opts.Prefix,
		SchemaCacheTTL: opts.SchemaCacheTTL,
	})
}

// DB exposes one database/sql connection as a Host. Statements reach the
// driver fully interpolated, the way a host API receives them.
type DB struct {
	conn *sql.Conn
}

// FromDB pins a connection of db for use as a Host. Closing the DB host
// returns the connection to db.
func FromDB(ctx context.Context, db *sql.DB) (*DB, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func (h *DB) Query(query string) ([]string, [][]any, error) {
	rows, err := h.conn.QueryContext(context.Background(), query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	rs, err := sqldb.Scan(rows)
	if err != nil {
		return nil, nil, err
	}
	out := make([][]any, 0, rs.Len())
	for _, r := range rs.All() {
		out = append(out, r.Values())
	}
	return rs.Columns(), out, nil
}

func (h *DB) Exec(query string) (int64, int64, error) {
	res, err := h.conn.ExecContext(context.Background(), query)
	if err != nil {
		return 0, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	id, _ := res.LastInsertId()
	return affected, id, nil
}

func (h *DB) Close() error { return h.conn.Close() }

var (
	_ sqldb.Session = (*session)(nil)
	_ Host          = (*DB)(nil)
)
