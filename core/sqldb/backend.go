// Package sqldb is the SQL backend shared by the prepared-statement and host
// backends: builder state is rendered with a sqlgen dialect and run on a
// Session, and schema changes are issued as DDL and read back through live
// introspection.
package sqldb

import (
	"fmt"
	"sync"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/sqlgen"
	"github.com/calounx/sagas-sub011/core/txn"
	"github.com/calounx/sagas-sub011/internal/cache"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// DefaultSchemaCacheTTL is how long introspected table definitions are kept.
const DefaultSchemaCacheTTL = 30 * time.Second

// Options configures a Backend.
type Options struct {
	// Name identifies the backend in logs and errors, for example "sqlite".
	Name    string
	Dialect sqlgen.Dialect
	Prefix  string
	// SchemaCacheTTL bounds the age of cached table definitions. Zero uses
	// DefaultSchemaCacheTTL; a negative value disables the cache.
	SchemaCacheTTL time.Duration
}

// Backend executes queries, DDL and transaction control over a Session.
type Backend struct {
	name    string
	session Session
	render  sqlgen.Renderer
	tables  *cache.TTLCache[string, schema.TableDefinition]

	mu     sync.Mutex
	active bool
}

// New returns a backend over session.
func New(session Session, opts Options) *Backend {
	ttl := opts.SchemaCacheTTL
	if ttl == 0 {
		ttl = DefaultSchemaCacheTTL
	}
	name := opts.Name
	if name == "" {
		name = opts.Dialect.Name()
	}
	return &Backend{
		name:    name,
		session: session,
		render:  sqlgen.Renderer{Dialect: opts.Dialect, Prefix: opts.Prefix},
		tables:  cache.New[string, schema.TableDefinition](ttl),
	}
}

// Name returns the backend name.
func (b *Backend) Name() string { return b.name }

// Dialect returns the SQL dialect statements are rendered in.
func (b *Backend) Dialect() sqlgen.Dialect { return b.render.Dialect }

// Prefix returns the table prefix.
func (b *Backend) Prefix() string { return b.render.Prefix }

// TableName returns the physical name of a logical table.
func (b *Backend) TableName(name string) string { return b.render.Table(name) }

// Session returns the underlying session.
func (b *Backend) Session() Session { return b.session }

// Render renders st in the backend's dialect.
func (b *Backend) Render(st query.State) (string, []any, error) {
	return b.render.Render(st)
}

// fail builds the QueryError for a failed statement. Recognized driver
// errors also wrap the matching sentinel.
func (b *Backend) fail(sql string, args []any, err error) error {
	code, sentinel := b.render.Dialect.Classify(err)
	if sentinel != nil {
		err = fmt.Errorf("%w: %w", sentinel, err)
	}
	qe := sagaerrors.NewQuery(sql, args, err)
	qe.Code = code
	return qe
}

func (b *Backend) query(sql string, args ...any) (*result.ResultSet, error) {
	rs, err := b.session.Query(sql, args)
	if err != nil {
		return nil, b.fail(sql, args, err)
	}
	return rs, nil
}

func (b *Backend) exec(sql string, args ...any) (Outcome, error) {
	out, err := b.session.Exec(sql, args)
	if err != nil {
		return Outcome{}, b.fail(sql, args, err)
	}
	return out, nil
}

// Execute renders st and runs it.
func (b *Backend) Execute(st query.State) (*result.ResultSet, error) {
	if st.Kind == query.KindTruncate {
		return b.truncate(st.Table)
	}
	sql, args, err := b.render.Render(st)
	if err != nil {
		return nil, err
	}
	if st.Kind == query.KindSelect {
		return b.query(sql, args...)
	}
	out, err := b.exec(sql, args...)
	if err != nil {
		return nil, err
	}
	if (st.Kind == query.KindInsert || st.Kind == query.KindUpsert) && out.HasID && out.LastID > 0 {
		return result.Inserted(out.Affected, out.LastID), nil
	}
	return result.Write(out.Affected), nil
}

func (b *Backend) truncate(table string) (*result.ResultSet, error) {
	for _, st := range b.render.Dialect.Truncate(b.TableName(table)) {
		if _, err := b.session.Exec(st.SQL, st.Args); err != nil && !st.Optional {
			return nil, b.fail(st.SQL, st.Args, err)
		}
	}
	return result.Write(0), nil
}

// Raw runs a literal statement. Statements that return columns produce rows;
// anything else produces write metadata.
func (b *Backend) Raw(sql string, args ...any) (*result.ResultSet, error) {
	if returnsRows(sql) {
		return b.query(sql, args...)
	}
	out, err := b.exec(sql, args...)
	if err != nil {
		return nil, err
	}
	if out.HasID && out.LastID > 0 && isInsert(sql) {
		return result.Inserted(out.Affected, out.LastID), nil
	}
	return result.Write(out.Affected), nil
}

// Ping checks that the session is alive.
func (b *Backend) Ping() error {
	if err := b.session.Ping(); err != nil {
		return &sagaerrors.ConnectionError{Op: "ping", Err: err}
	}
	return nil
}

// Close rolls back an open transaction and closes the session.
func (b *Backend) Close() error {
	b.mu.Lock()
	active := b.active
	b.active = false
	b.mu.Unlock()
	if active {
		if _, err := b.session.Exec("ROLLBACK", nil); err != nil {
			logging.Warn("rollback on close failed", "backend", b.name, "error", err)
		}
	}
	return b.session.Close()
}

// control runs a transaction control statement.
func (b *Backend) control(op string, stmts ...string) error {
	for _, s := range stmts {
		if _, err := b.exec(s); err != nil {
			return sagaerrors.NewTransaction(op, err)
		}
	}
	return nil
}

// state checks the native transaction state for op.
func (b *Backend) state(op string, wantActive bool) error {
	switch {
	case wantActive && !b.active:
		return sagaerrors.NewTransaction(op, sagaerrors.ErrNotActive)
	case !wantActive && b.active:
		return sagaerrors.NewTransaction(op, sagaerrors.ErrTransactionActive)
	}
	return nil
}

func (b *Backend) Begin(iso txn.Isolation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.state("begin", false); err != nil {
		return err
	}
	if err := b.control("begin", b.render.Dialect.Begin(iso)...); err != nil {
		return err
	}
	b.active = true
	return nil
}

func (b *Backend) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.state("commit", true); err != nil {
		return err
	}
	if err := b.control("commit", "COMMIT"); err != nil {
		return err
	}
	b.active = false
	return nil
}

// Rollback ends the native transaction. The transaction counts as finished
// even when ROLLBACK fails, since the engine has usually aborted it already.
func (b *Backend) Rollback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.state("rollback", true); err != nil {
		return err
	}
	b.active = false
	b.tables.Invalidate()
	return b.control("rollback", "ROLLBACK")
}

func (b *Backend) Savepoint(name string) error {
	return b.savepoint("savepoint", "SAVEPOINT ", name)
}

func (b *Backend) RollbackTo(name string) error {
	b.tables.Invalidate()
	return b.savepoint("rollback to", "ROLLBACK TO SAVEPOINT ", name)
}

func (b *Backend) Release(name string) error {
	return b.savepoint("release", "RELEASE SAVEPOINT ", name)
}

func (b *Backend) savepoint(op, verb, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.state(op, true); err != nil {
		return err
	}
	return b.control(op, verb+b.render.Dialect.Quote(name))
}

var (
	_ query.Executor = (*Backend)(nil)
	_ txn.Engine     = (*Backend)(nil)
)
