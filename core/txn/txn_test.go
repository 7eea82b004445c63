package txn

import (
	"errors"
	"slices"
	"testing"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

// counterEngine keeps one integer as its whole state and snapshots it.
type counterEngine struct {
	value  int
	base   int
	active bool
	marks  []mark
	calls  []string
	iso    Isolation
}

type mark struct {
	name  string
	value int
}

func (e *counterEngine) Begin(iso Isolation) error {
	e.calls = append(e.calls, "begin")
	e.active, e.base, e.iso = true, e.value, iso
	return nil
}

func (e *counterEngine) Commit() error {
	e.calls = append(e.calls, "commit")
	e.active, e.marks = false, nil
	return nil
}

func (e *counterEngine) Rollback() error {
	e.calls = append(e.calls, "rollback")
	e.active, e.marks, e.value = false, nil, e.base
	return nil
}

func (e *counterEngine) Savepoint(name string) error {
	e.calls = append(e.calls, "savepoint "+name)
	e.marks = append(e.marks, mark{name, e.value})
	return nil
}

func (e *counterEngine) index(name string) int {
	for i := len(e.marks) - 1; i >= 0; i-- {
		if e.marks[i].name == name {
			return i
		}
	}
	return -1
}

func (e *counterEngine) RollbackTo(name string) error {
	e.calls = append(e.calls, "rollback to "+name)
	i := e.index(name)
	if i < 0 {
		return sagaerrors.ErrUnknownSavepoint
	}
	e.value = e.marks[i].value
	e.marks = e.marks[:i+1]
	return nil
}

func (e *counterEngine) Release(name string) error {
	e.calls = append(e.calls, "release "+name)
	i := e.index(name)
	if i < 0 {
		return sagaerrors.ErrUnknownSavepoint
	}
	e.marks = e.marks[:i]
	return nil
}

func TestNestingLevels(t *testing.T) {
	e := &counterEngine{}
	m := New(e, Serializable)

	if err := m.Rollback(); err != nil {
		t.Fatalf("Rollback() at level 0 should be a no-op, got %v", err)
	}
	if err := m.Commit(); !errors.Is(err, sagaerrors.ErrNotActive) {
		t.Fatalf("Commit() at level 0 error = %v, want ErrNotActive", err)
	}
	if m.Level() != 0 {
		t.Fatalf("Level() = %d after no-op rollback", m.Level())
	}

	steps := []struct {
		op    func() error
		level int
		value int
	}{
		{m.Begin, 1, 0},
		{func() error { e.value = 1; return nil }, 1, 1},
		{m.Begin, 2, 1},
		{func() error { e.value = 2; return nil }, 2, 2},
		{m.Begin, 3, 2},
		{func() error { e.value = 3; return nil }, 3, 3},
		{m.Rollback, 2, 2},
		{m.Commit, 1, 2},
		{m.Rollback, 0, 0},
	}
	for i, s := range steps {
		if err := s.op(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if m.Level() != s.level || e.value != s.value {
			t.Fatalf("step %d: level %d value %d, want level %d value %d", i, m.Level(), e.value, s.level, s.value)
		}
	}
	if e.iso != Serializable {
		t.Errorf("Begin() isolation = %v", e.iso)
	}
	if len(e.marks) != 0 {
		t.Errorf("savepoints left behind: %+v", e.marks)
	}
}

func TestIsolation(t *testing.T) {
	m := New(&counterEngine{}, ReadCommitted)
	if err := m.SetIsolation(RepeatableRead); err != nil {
		t.Fatal(err)
	}
	_ = m.Begin()
	if err := m.SetIsolation(Serializable); !errors.Is(err, sagaerrors.ErrTransactionActive) {
		t.Errorf("SetIsolation() while active error = %v", err)
	}
	if m.Isolation() != RepeatableRead {
		t.Errorf("Isolation() = %v", m.Isolation())
	}
	if err := m.SetIsolation(Isolation(9)); !errors.Is(err, sagaerrors.ErrInvalidInput) {
		t.Errorf("SetIsolation(9) error = %v", err)
	}

	for _, s := range []string{"read uncommitted", "READ_COMMITTED", "Repeatable  Read", "serializable"} {
		if _, err := ParseIsolation(s); err != nil {
			t.Errorf("ParseIsolation(%q) error = %v", s, err)
		}
	}
	if _, err := ParseIsolation("snapshot"); err == nil {
		t.Error("ParseIsolation(snapshot) should fail")
	}
}

func TestCallbacks(t *testing.T) {
	e := &counterEngine{}
	m := New(e, ReadCommitted)
	var log []string
	record := func(s string) func() error {
		return func() error { log = append(log, s); return nil }
	}

	m.AfterCommit(record("idle commit"))
	m.AfterRollback(record("idle rollback"))
	if !slices.Equal(log, []string{"idle commit"}) {
		t.Fatalf("idle callbacks = %v", log)
	}

	log = nil
	_ = m.Begin()
	m.AfterCommit(record("c1"))
	m.AfterCommit(func() error { return errors.New("boom") })
	m.AfterCommit(func() error { panic("bad callback") })
	_ = m.Begin()
	m.AfterCommit(record("c2"))
	m.AfterRollback(record("r1"))
	_ = m.Commit()
	if len(log) != 0 {
		t.Fatalf("callbacks ran before the outermost commit: %v", log)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("failing callbacks must not surface: %v", err)
	}
	if !slices.Equal(log, []string{"c1", "c2"}) {
		t.Errorf("commit callbacks = %v, want [c1 c2]", log)
	}

	log = nil
	_ = m.Begin()
	m.AfterCommit(record("never"))
	m.AfterRollback(record("r2"))
	_ = m.Rollback()
	if !slices.Equal(log, []string{"r2"}) {
		t.Errorf("rollback callbacks = %v, want [r2]", log)
	}
}

func TestNamedSavepoints(t *testing.T) {
	e := &counterEngine{}
	m := New(e, ReadCommitted)

	if err := m.Savepoint("a"); !errors.Is(err, sagaerrors.ErrNotActive) {
		t.Errorf("Savepoint() while idle error = %v", err)
	}
	if err := m.RollbackTo("a"); !errors.Is(err, sagaerrors.ErrNotActive) {
		t.Errorf("RollbackTo() while idle error = %v", err)
	}

	_ = m.Begin()
	e.value = 1
	if err := m.Savepoint("a"); err != nil {
		t.Fatal(err)
	}
	e.value = 2
	if err := m.Savepoint("b"); err != nil {
		t.Fatal(err)
	}
	e.value = 3
	if err := m.RollbackTo("a"); err != nil {
		t.Fatal(err)
	}
	if e.value != 1 {
		t.Errorf("value after RollbackTo(a) = %d, want 1", e.value)
	}
	if err := m.RollbackTo("b"); !errors.Is(err, sagaerrors.ErrUnknownSavepoint) {
		t.Errorf("RollbackTo(b) after rolling back past it error = %v", err)
	}
	e.value = 4
	if err := m.RollbackTo("a"); err != nil || e.value != 1 {
		t.Errorf("a savepoint stays usable after RollbackTo: %v, value %d", err, e.value)
	}
	if err := m.ReleaseSavepoint("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.ReleaseSavepoint("a"); !errors.Is(err, sagaerrors.ErrUnknownSavepoint) {
		t.Errorf("double release error = %v", err)
	}
	if err := m.Savepoint("sagadb_level_2"); !errors.Is(err, sagaerrors.ErrInvalidInput) {
		t.Errorf("reserved name error = %v", err)
	}

	// Savepoints of an inner level vanish with it.
	_ = m.Savepoint("outer")
	_ = m.Begin()
	_ = m.Savepoint("inner")
	if err := m.RollbackTo("outer"); !errors.Is(err, sagaerrors.ErrUnknownSavepoint) {
		t.Errorf("outer savepoint from an inner level error = %v", err)
	}
	_ = m.Commit()
	if err := m.RollbackTo("inner"); !errors.Is(err, sagaerrors.ErrUnknownSavepoint) {
		t.Errorf("inner savepoint after commit error = %v", err)
	}
	if err := m.RollbackTo("outer"); err != nil {
		t.Errorf("RollbackTo(outer) error = %v", err)
	}
}

func TestSavepointNameReusedInInnerLevel(t *testing.T) {
	e := &counterEngine{}
	m := New(e, Serializable)

	_ = m.Begin()
	e.value = 1
	if err := m.Savepoint("a"); err != nil {
		t.Fatal(err)
	}
	e.value = 2
	_ = m.Begin()
	e.value = 3
	if err := m.Savepoint("a"); err != nil {
		t.Fatal(err)
	}
	e.value = 4
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := m.RollbackTo("a"); err != nil {
		t.Fatalf("RollbackTo(a) at level 1 error = %v", err)
	}
	if e.value != 1 {
		t.Errorf("value after RollbackTo(a) = %d, want the level 1 savepoint value 1", e.value)
	}
	if err := m.ReleaseSavepoint("a"); err != nil {
		t.Errorf("ReleaseSavepoint(a) error = %v", err)
	}
}

func TestRun(t *testing.T) {
	e := &counterEngine{}
	m := New(e, ReadCommitted)

	if err := m.Run(func() error { e.value = 5; return nil }); err != nil {
		t.Fatal(err)
	}
	if e.value != 5 || m.Level() != 0 {
		t.Errorf("committed run: value %d level %d", e.value, m.Level())
	}

	boom := errors.New("boom")
	if err := m.Run(func() error { e.value = 6; return boom }); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want boom", err)
	}
	if e.value != 5 {
		t.Errorf("failed run should roll back, value = %d", e.value)
	}

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("recovered %v, want kaboom", r)
			}
		}()
		_ = m.Run(func() error { e.value = 7; panic("kaboom") })
	}()
	if e.value != 5 || m.Level() != 0 {
		t.Errorf("panicking run: value %d level %d", e.value, m.Level())
	}

	n, err := Run(m, func() (int, error) { e.value = 8; return 42, nil })
	if err != nil || n != 42 || e.value != 8 {
		t.Errorf("Run[int]() = %d, %v (value %d)", n, err, e.value)
	}
}

func TestRunWithRetry(t *testing.T) {
	e := &counterEngine{}
	m := New(e, ReadCommitted)
	var delays []time.Duration
	m.sleep = func(d time.Duration) { delays = append(delays, d) }

	attempts := 0
	err := m.RunWithRetry(func() error {
		attempts++
		e.value++
		if attempts < 3 {
			return sagaerrors.NewQuery("UPDATE t", nil, errors.New("database is locked"))
		}
		return nil
	}, 5, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 || e.value != 1 {
		t.Errorf("attempts %d value %d, want 3 and 1", attempts, e.value)
	}
	if !slices.Equal(delays, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}) {
		t.Errorf("delays = %v", delays)
	}

	attempts = 0
	fatal := errors.New("constraint")
	if err := m.RunWithRetry(func() error { attempts++; return fatal }, 5, time.Millisecond); !errors.Is(err, fatal) {
		t.Errorf("non-transient error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("non-transient failure retried %d times", attempts)
	}

	attempts = 0
	err = m.RunWithRetry(func() error { attempts++; return sagaerrors.ErrTransient }, 2, time.Millisecond)
	if attempts != 2 || !errors.Is(err, sagaerrors.ErrTransient) || !errors.Is(err, sagaerrors.ErrTransaction) {
		t.Errorf("exhausted retries: attempts %d error %v", attempts, err)
	}
}
