// Package memory is the in-process backend: tables of rows held in memory,
// queried by evaluating builder state directly.
//
// A Store is owned by one connection. Every statement and every checkpoint
// capture or restore holds the store mutex, so queries never observe a
// half-restored snapshot. Transactions are implemented by deep-copying the
// whole store: Begin and Savepoint push a copy, rollback restores one.
package memory

import (
	"slices"
	"sort"
	"sync"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
	"github.com/calounx/sagas-sub011/internal/logging"
)

// Backend is the name reported in logs and query events.
const Backend = "memory"

type table struct {
	def    schema.TableDefinition
	rows   []row.Row
	lastID int64
}

func (t *table) clone() *table {
	rows := make([]row.Row, len(t.rows))
	for i, r := range t.rows {
		rows[i] = r.Clone()
	}
	return &table{def: t.def, rows: rows, lastID: t.lastID}
}

type tables map[string]*table

func (ts tables) clone() tables {
	out := make(tables, len(ts))
	for name, t := range ts {
		out[name] = t.clone()
	}
	return out
}

// checkpoint is a named full-store copy. The transaction base has no name.
type checkpoint struct {
	name   string
	tables tables
}

// Store is an in-process relational store. Table keys are physical names.
type Store struct {
	mu          sync.Mutex
	prefix      string
	tables      tables
	active      bool
	checkpoints []checkpoint
}

// New returns an empty store whose tables are named with prefix.
func New(prefix string) *Store {
	return &Store{prefix: prefix, tables: tables{}}
}

// Prefix returns the table prefix.
func (s *Store) Prefix() string { return s.prefix }

// TableName returns the physical name of a logical table.
func (s *Store) TableName(name string) string { return s.prefix + name }

// lookup returns the table for a logical name. Callers hold mu.
func (s *Store) lookup(name string) (*table, bool) {
	t, ok := s.tables[s.TableName(name)]
	return t, ok
}

// TableStats describes one table.
type TableStats struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
	LastID  int64  `json:"last_id"`
}

// Tables returns statistics for every table, ordered by logical name.
func (s *Store) Tables() []TableStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]TableStats, 0, len(s.tables))
	for _, t := range s.tables {
		stats = append(stats, TableStats{
			Name:    t.def.Name(),
			Columns: len(t.def.Columns()),
			Rows:    len(t.rows),
			LastID:  t.lastID,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Begin captures the transaction base. The store has a single writer, so
// every isolation level behaves as SERIALIZABLE.
func (s *Store) Begin(txn.Isolation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return sagaerrors.NewTransaction("begin", sagaerrors.ErrTransactionActive)
	}
	s.active = true
	s.checkpoints = []checkpoint{{tables: s.tables.clone()}}
	return nil
}

func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return sagaerrors.NewTransaction("commit", sagaerrors.ErrNotActive)
	}
	s.active = false
	s.checkpoints = nil
	return nil
}

func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return sagaerrors.NewTransaction("rollback", sagaerrors.ErrNotActive)
	}
	s.tables = s.checkpoints[0].tables
	s.active = false
	s.checkpoints = nil
	logging.Debug("store restored", "checkpoint", "base")
	return nil
}

func (s *Store) Savepoint(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return sagaerrors.NewTransaction("savepoint", sagaerrors.ErrNotActive)
	}
	s.checkpoints = append(s.checkpoints, checkpoint{name: name, tables: s.tables.clone()})
	return nil
}

// find returns the index of the newest checkpoint called name.
func (s *Store) find(op, name string) (int, error) {
	if !s.active {
		return 0, sagaerrors.NewTransaction(op, sagaerrors.ErrNotActive)
	}
	for i := len(s.checkpoints) - 1; i > 0; i-- {
		if s.checkpoints[i].name == name {
			return i, nil
		}
	}
	return 0, sagaerrors.NewTransaction(op, sagaerrors.ErrUnknownSavepoint)
}

// RollbackTo restores a copy of the named checkpoint, which stays usable.
func (s *Store) RollbackTo(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.find("rollback to", name)
	if err != nil {
		return err
	}
	s.tables = s.checkpoints[i].tables.clone()
	s.checkpoints = s.checkpoints[:i+1]
	logging.Debug("store restored", "checkpoint", name)
	return nil
}

func (s *Store) Release(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.find("release", name)
	if err != nil {
		return err
	}
	s.checkpoints = slices.Delete(s.checkpoints, i, len(s.checkpoints))
	return nil
}

var _ txn.Engine = (*Store)(nil)
