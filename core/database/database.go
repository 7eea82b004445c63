// Package database is the entry point of sagadb: Open builds a Connection
// on the configured backend, and the Connection hands out query builders,
// the transaction manager and the schema manager scoped to it.
package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/memory"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Connection is one logical database connection. Every statement passes
// through it, so it logs and reports each one to the configured observer.
type Connection struct {
	cfg  Config
	open func() (*backend, error)
	tx   *txn.Manager

	mu sync.RWMutex
	be *backend
	id string
}

// Open validates cfg and connects.
func Open(cfg Config) (*Connection, error) {
	if !cfg.Isolation.Valid() {
		return nil, sagaerrors.NewValidation("isolation", cfg.Isolation.String(), "unknown isolation level")
	}
	open, err := opener(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{cfg: cfg, open: open}
	c.tx = txn.New(c, cfg.Isolation)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect opens the backend. It does nothing when already connected.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.be != nil {
		return nil
	}
	be, err := c.open()
	if err != nil {
		return err
	}
	c.be, c.id = be, uuid.NewString()
	logging.Info("connected", "backend", be.name, "connection_id", c.id, "prefix", be.prefix)
	return nil
}

// Disconnect rolls back any open transaction and closes the backend. It does
// nothing when already disconnected.
func (c *Connection) Disconnect() error {
	for c.tx.InTransaction() {
		if err := c.tx.Rollback(); err != nil {
			logging.Warn("rollback on disconnect failed", "connection_id", c.ID(), "error", err)
			break
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.be == nil {
		return nil
	}
	be, id := c.be, c.id
	c.be, c.id = nil, ""
	logging.Info("disconnected", "backend", be.name, "connection_id", id)
	if err := be.close(); err != nil {
		return &sagaerrors.ConnectionError{Op: "disconnect", Err: err}
	}
	return nil
}

// Close is Disconnect.
func (c *Connection) Close() error { return c.Disconnect() }

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.be != nil
}

// ID identifies the current session; it changes on every Connect.
func (c *Connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Connection) current() (*backend, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.be == nil {
		return nil, &sagaerrors.ConnectionError{Op: "query", Err: sagaerrors.ErrNotConnected}
	}
	return c.be, nil
}

func (c *Connection) Ping() error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.ping()
}

// Backend returns the name of the backend, or "" when disconnected.
func (c *Connection) Backend() string {
	be, err := c.current()
	if err != nil {
		return ""
	}
	return be.name
}

// TableName returns the physical name of a logical table.
func (c *Connection) TableName(name string) string { return c.cfg.Prefix + name }

// Query returns an empty builder on this connection.
func (c *Connection) Query() *query.Builder { return query.New(c) }

// Table returns a builder on table.
func (c *Connection) Table(name string, alias ...string) *query.Builder {
	return query.New(c).Table(name, alias...)
}

// Transaction returns the transaction manager of the connection.
func (c *Connection) Transaction() *txn.Manager { return c.tx }

// Run runs fn in a transaction, retried on transient conflicts according to
// the configured retry policy.
func (c *Connection) Run(fn func() error) error {
	return c.tx.RunWithRetry(fn, c.cfg.RetryAttempts, c.cfg.RetryBaseDelay)
}

// Schema returns the schema manager of the connected backend.
func (c *Connection) Schema() (schema.Manager, error) {
	be, err := c.current()
	if err != nil {
		return nil, err
	}
	return be.schema, nil
}

// Store returns the in-process store when the connection uses one.
func (c *Connection) Store() (*memory.Store, bool) {
	be, err := c.current()
	if err != nil || be.store == nil {
		return nil, false
	}
	return be.store, true
}

// Raw runs a literal statement with positional bindings.
func (c *Connection) Raw(sql string, args ...any) (*result.ResultSet, error) {
	be, err := c.current()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rs, err := be.raw(sql, args...)
	c.observe(be, "raw", "", func() (string, []any) { return sql, args }, rs, err, time.Since(start))
	return rs, err
}

func (c *Connection) Execute(st query.State) (*result.ResultSet, error) {
	be, err := c.current()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rs, err := be.exec.Execute(st)
	c.observe(be, st.Kind.String(), st.Table, func() (string, []any) {
		sql, args, _ := be.exec.Render(st)
		return sql, args
	}, rs, err, time.Since(start))
	return rs, err
}

func (c *Connection) Render(st query.State) (string, []any, error) {
	be, err := c.current()
	if err != nil {
		return "", nil, err
	}
	return be.exec.Render(st)
}

// ValidateJoin applies the backend's join restrictions, if any.
func (c *Connection) ValidateJoin(j query.Join) error {
	be, err := c.current()
	if err != nil {
		return err
	}
	if v, ok := be.exec.(query.JoinValidator); ok {
		return v.ValidateJoin(j)
	}
	return nil
}

// observe logs a finished statement and reports it to the observer. The
// statement is only rendered when someone will read it.
func (c *Connection) observe(be *backend, op, table string, render func() (string, []any),
	rs *result.ResultSet, err error, d time.Duration) {
	debug := logging.GetLogger().Enabled(context.Background(), slog.LevelDebug)
	if c.cfg.Observer == nil && err == nil && !debug {
		return
	}
	stmt, args := render()
	var rows int64
	if rs != nil {
		if rows = int64(rs.Len()); rows == 0 {
			rows = rs.AffectedRows()
		}
	}
	id := c.ID()
	if err != nil {
		logging.QueryFailed(be.name, stmt, err, "connection_id", id)
	} else {
		logging.QueryExecuted(be.name, stmt, len(args), int(rows), d, "connection_id", id)
	}
	if c.cfg.Observer == nil {
		return
	}
	e := query.Event{
		ConnectionID: id,
		Backend:      be.name,
		Operation:    op,
		Table:        table,
		Statement:    stmt,
		Bindings:     args,
		Rows:         rows,
		Duration:     d,
		Time:         time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	c.cfg.Observer.Observe(e)
}

func (c *Connection) Begin(iso txn.Isolation) error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.engine.Begin(iso)
}

func (c *Connection) Commit() error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.engine.Commit()
}

func (c *Connection) Rollback() error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.engine.Rollback()
}

func (c *Connection) Savepoint(name string) error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.engine.Savepoint(name)
}

func (c *Connection) RollbackTo(name string) error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.engine.RollbackTo(name)
}

func (c *Connection) Release(name string) error {
	be, err := c.current()
	if err != nil {
		return err
	}
	return be.engine.Release(name)
}

var (
	_ query.Executor      = (*Connection)(nil)
	_ query.JoinValidator = (*Connection)(nil)
	_ txn.Engine          = (*Connection)(nil)
)
