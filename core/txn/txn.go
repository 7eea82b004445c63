// Package txn implements nested transactions over a checkpoint Engine.
//
// Level 0 is idle. The first Begin opens a real transaction; each nested Begin
// takes a savepoint, so rolling back at level n restores exactly the state the
// level started from and leaves outer levels untouched. Deferred callbacks
// registered with AfterCommit and AfterRollback run once the outermost level
// finishes.
package txn

import (
	"fmt"
	"strings"
	"sync"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/internal/logging"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// Isolation is a transaction isolation level.
type Isolation int

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	}
	return "UNKNOWN"
}

// Valid reports whether i is a defined level.
func (i Isolation) Valid() bool {
	return i >= ReadUncommitted && i <= Serializable
}

// ParseIsolation parses a level name. Underscores and case are ignored.
func ParseIsolation(s string) (Isolation, error) {
	name := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))
	for i := ReadUncommitted; i <= Serializable; i++ {
		if i.String() == name {
			return i, nil
		}
	}
	return 0, sagaerrors.NewValidation("isolation", s, "unknown isolation level")
}

// Engine is the backend side of a transaction: a native transaction plus
// named savepoints inside it.
//
// RollbackTo restores the state captured by a savepoint and discards every
// savepoint taken after it, but keeps the named one. Release discards the
// named savepoint and every later one, keeping their changes.
type Engine interface {
	Begin(iso Isolation) error
	Commit() error
	Rollback() error
	Savepoint(name string) error
	RollbackTo(name string) error
	Release(name string) error
}

type savepoint struct {
	name  string
	level int
}

// Manager tracks the nesting level of one connection's transactions.
type Manager struct {
	mu         sync.Mutex
	engine     Engine
	level      int
	isolation  Isolation
	savepoints []savepoint
	onCommit   []func() error
	onRollback []func() error
	sleep      func(time.Duration)
}

// New returns an idle manager over engine.
func New(engine Engine, iso Isolation) *Manager {
	return &Manager{engine: engine, isolation: iso, sleep: time.Sleep}
}

const levelPrefix = "sagadb_level_"

func levelSavepoint(level int) string {
	return fmt.Sprintf("%s%d", levelPrefix, level)
}

// Level returns the number of unmatched Begin calls.
func (m *Manager) Level() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// InTransaction reports whether a transaction is open.
func (m *Manager) InTransaction() bool { return m.Level() > 0 }

// Isolation returns the level used by the next outermost Begin.
func (m *Manager) Isolation() Isolation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isolation
}

// SetIsolation changes the isolation level. It fails while a transaction is
// open.
func (m *Manager) SetIsolation(iso Isolation) error {
	if !iso.Valid() {
		return sagaerrors.NewValidation("isolation", fmt.Sprint(int(iso)), "unknown isolation level")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level > 0 {
		return sagaerrors.NewTransaction("set isolation", sagaerrors.ErrTransactionActive)
	}
	m.isolation = iso
	return nil
}

// Begin opens a transaction, or a nested level inside the open one.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.level == 0 {
		err = m.engine.Begin(m.isolation)
	} else {
		err = m.engine.Savepoint(levelSavepoint(m.level + 1))
	}
	if err != nil {
		return sagaerrors.NewTransaction("begin", err)
	}
	m.level++
	logging.TransactionEvent("begin", m.level)
	return nil
}

// Commit finishes the current level. Leaving level 1 commits the transaction
// and runs the after-commit callbacks.
func (m *Manager) Commit() error {
	m.mu.Lock()
	if m.level == 0 {
		m.mu.Unlock()
		return sagaerrors.NewTransaction("commit", sagaerrors.ErrNotActive)
	}
	if m.level > 1 {
		defer m.mu.Unlock()
		if err := m.engine.Release(levelSavepoint(m.level)); err != nil {
			return sagaerrors.NewTransaction("commit", err)
		}
		m.popLevel()
		logging.TransactionEvent("commit", m.level)
		return nil
	}

	err := m.engine.Commit()
	var callbacks []func() error
	phase := "after_commit"
	if err != nil {
		// A failed commit leaves nothing to resume; close the transaction.
		if rbErr := m.engine.Rollback(); rbErr != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		callbacks, phase = m.onRollback, "after_rollback"
	} else {
		callbacks = m.onCommit
	}
	m.reset()
	m.mu.Unlock()

	if err != nil {
		logging.TransactionEvent("commit_failed", 0)
		runCallbacks(phase, callbacks)
		return sagaerrors.NewTransaction("commit", err)
	}
	logging.TransactionEvent("commit", 0)
	runCallbacks(phase, callbacks)
	return nil
}

// Rollback undoes the current level. It is a no-op when idle. Leaving level 1
// runs the after-rollback callbacks.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	if m.level == 0 {
		m.mu.Unlock()
		return nil
	}
	if m.level > 1 {
		defer m.mu.Unlock()
		name := levelSavepoint(m.level)
		if err := m.engine.RollbackTo(name); err != nil {
			return sagaerrors.NewTransaction("rollback", err)
		}
		if err := m.engine.Release(name); err != nil {
			return sagaerrors.NewTransaction("rollback", err)
		}
		m.popLevel()
		logging.TransactionEvent("rollback", m.level)
		return nil
	}

	err := m.engine.Rollback()
	callbacks := m.onRollback
	m.reset()
	m.mu.Unlock()

	logging.TransactionEvent("rollback", 0)
	runCallbacks("after_rollback", callbacks)
	if err != nil {
		return sagaerrors.NewTransaction("rollback", err)
	}
	return nil
}

// popLevel drops the current level and the named savepoints taken in it.
func (m *Manager) popLevel() {
	keep := m.savepoints[:0]
	for _, sp := range m.savepoints {
		if sp.level < m.level {
			keep = append(keep, sp)
		}
	}
	m.savepoints = keep
	m.level--
}

func (m *Manager) reset() {
	m.level = 0
	m.savepoints = nil
	m.onCommit = nil
	m.onRollback = nil
}

// Savepoint takes a named savepoint in the current level. Taking a name that
// already exists moves it.
func (m *Manager) Savepoint(name string) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return sagaerrors.NewValidation("savepoint", name, err.Error())
	}
	if strings.HasPrefix(name, levelPrefix) {
		return sagaerrors.NewValidation("savepoint", name, "reserved savepoint name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level == 0 {
		return sagaerrors.NewTransaction("savepoint", sagaerrors.ErrNotActive)
	}
	if err := m.engine.Savepoint(name); err != nil {
		return sagaerrors.NewTransaction("savepoint", err)
	}
	m.savepoints = append(m.dropSavepoint(name), savepoint{name: name, level: m.level})
	logging.TransactionEvent("savepoint", m.level, "name", name)
	return nil
}

// RollbackTo restores the state captured by a savepoint of the current level.
// The savepoint stays usable; savepoints taken after it are discarded.
func (m *Manager) RollbackTo(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find("rollback to", name)
	if err != nil {
		return err
	}
	if err := m.engine.RollbackTo(name); err != nil {
		return sagaerrors.NewTransaction("rollback to", err)
	}
	m.savepoints = m.savepoints[:i+1]
	logging.TransactionEvent("rollback_to", m.level, "name", name)
	return nil
}

// ReleaseSavepoint forgets a savepoint of the current level, keeping its
// changes. Savepoints taken after it are released too.
func (m *Manager) ReleaseSavepoint(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find("release", name)
	if err != nil {
		return err
	}
	if err := m.engine.Release(name); err != nil {
		return sagaerrors.NewTransaction("release", err)
	}
	m.savepoints = m.savepoints[:i]
	logging.TransactionEvent("release", m.level, "name", name)
	return nil
}

func (m *Manager) find(op, name string) (int, error) {
	if m.level == 0 {
		return 0, sagaerrors.NewTransaction(op, sagaerrors.ErrNotActive)
	}
	for i := len(m.savepoints) - 1; i >= 0; i-- {
		if sp := m.savepoints[i]; sp.name == name && sp.level == m.level {
			return i, nil
		}
	}
	return 0, sagaerrors.NewTransaction(op, fmt.Errorf("%w: %s", sagaerrors.ErrUnknownSavepoint, name))
}

// dropSavepoint forgets name in the current level only. Outer levels keep
// their savepoints of the same name.
func (m *Manager) dropSavepoint(name string) []savepoint {
	out := m.savepoints[:0]
	for _, sp := range m.savepoints {
		if sp.name != name || sp.level != m.level {
			out = append(out, sp)
		}
	}
	return out
}

// AfterCommit registers fn to run when the outermost transaction commits. When
// idle, fn runs immediately. Failures are logged, never returned.
func (m *Manager) AfterCommit(fn func() error) {
	m.mu.Lock()
	if m.level == 0 {
		m.mu.Unlock()
		runCallbacks("after_commit", []func() error{fn})
		return
	}
	m.onCommit = append(m.onCommit, fn)
	m.mu.Unlock()
}

// AfterRollback registers fn to run when the outermost transaction rolls
// back. When idle, fn is dropped.
func (m *Manager) AfterRollback(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.level > 0 {
		m.onRollback = append(m.onRollback, fn)
	}
}

func runCallbacks(phase string, fns []func() error) {
	for _, fn := range fns {
		if err := safeCall(fn); err != nil {
			logging.CallbackFailed(phase, err)
		}
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return fn()
}
