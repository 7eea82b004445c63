package sqldb

import (
	"errors"
	"slices"
	"strings"
	"testing"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/sqlgen"
	"github.com/calounx/sagas-sub011/core/txn"
)

// fakeSession records statements and answers from a script keyed by
// statement prefix.
type fakeSession struct {
	log     []string
	args    [][]any
	fail    map[string]error
	outcome Outcome
	rows    *result.ResultSet
	closed  bool
}

func (f *fakeSession) record(sql string, args []any) error {
	f.log = append(f.log, sql)
	f.args = append(f.args, args)
	for prefix, err := range f.fail {
		if strings.HasPrefix(sql, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeSession) Query(sql string, args []any) (*result.ResultSet, error) {
	if err := f.record(sql, args); err != nil {
		return nil, err
	}
	if f.rows == nil {
		return result.New(nil), nil
	}
	return f.rows, nil
}

func (f *fakeSession) Exec(sql string, args []any) (Outcome, error) {
	if err := f.record(sql, args); err != nil {
		return Outcome{}, err
	}
	return f.outcome, nil
}

func (f *fakeSession) Ping() error  { return nil }
func (f *fakeSession) Close() error { f.closed = true; return nil }

func newFake(prefix string) (*Backend, *fakeSession) {
	f := &fakeSession{fail: map[string]error{}}
	return New(f, Options{Name: "fake", Dialect: sqlgen.SQLite{}, Prefix: prefix}), f
}

func TestExecute(t *testing.T) {
	b, f := newFake("app_")
	f.rows = result.New([]row.Row{row.Of("name", "Luke")})

	rs, err := query.New(b).Table("entities").Where("age", ">", 20).Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rs.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rs.Len())
	}
	if want := `SELECT * FROM "app_entities" AS "entities" WHERE "age" > ?`; f.log[0] != want {
		t.Errorf("sql = %q, want %q", f.log[0], want)
	}
	if !slices.Equal(f.args[0], []any{int64(20)}) {
		t.Errorf("args = %v, want [20]", f.args[0])
	}

	f.outcome = Outcome{Affected: 1, LastID: 7, HasID: true}
	rs, err = query.New(b).Table("entities").Insert(row.Of("name", "Han"))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id, ok := rs.LastInsertID(); !ok || id != 7 {
		t.Errorf("LastInsertID() = %d, %v; want 7, true", id, ok)
	}

	rs, err = query.New(b).Table("entities").Where("name", "=", "Han").Update(row.Of("age", 32))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, ok := rs.LastInsertID(); ok {
		t.Error("update reported an insert id")
	}
	if rs.AffectedRows() != 1 {
		t.Errorf("AffectedRows() = %d, want 1", rs.AffectedRows())
	}
}

func TestTruncateIgnoresOptionalFailures(t *testing.T) {
	b, f := newFake("")
	f.fail["DELETE FROM sqlite_sequence"] = errors.New("no such table: sqlite_sequence")

	if _, err := query.New(b).Table("sagas").Truncate(); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	if len(f.log) != 2 {
		t.Errorf("ran %d statements, want 2: %v", len(f.log), f.log)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		sentinel error
	}{
		{"constraint", errors.New("UNIQUE constraint failed: sagas.title"), "SQLITE_CONSTRAINT", sagaerrors.ErrConstraint},
		{"busy", errors.New("database is locked (5) (SQLITE_BUSY)"), "SQLITE_BUSY", sagaerrors.ErrTransient},
		{"missing table", errors.New("no such table: ghosts"), "SQLITE_ERROR", sagaerrors.ErrTableNotFound},
		{"other", errors.New("near \"FORM\": syntax error"), "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, f := newFake("")
			f.fail["INSERT"] = tt.err

			_, err := query.New(b).Table("sagas").Insert(row.Of("title", "Dune"))
			var qe *sagaerrors.QueryError
			if !errors.As(err, &qe) {
				t.Fatalf("error = %v, want QueryError", err)
			}
			if qe.Code != tt.code {
				t.Errorf("Code = %q, want %q", qe.Code, tt.code)
			}
			if !strings.HasPrefix(qe.Statement, `INSERT INTO "sagas"`) {
				t.Errorf("Statement = %q", qe.Statement)
			}
			if !errors.Is(err, sagaerrors.ErrQuery) {
				t.Error("error does not match ErrQuery")
			}
			if !errors.Is(err, tt.err) {
				t.Error("driver error not wrapped")
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("error does not match %v", tt.sentinel)
			}
		})
	}
}

func TestTransactionStatements(t *testing.T) {
	b, f := newFake("")
	m := txn.New(b, txn.Serializable)

	err := m.Run(func() error {
		return m.Run(func() error { return errors.New("inner failure") })
	})
	if err == nil {
		t.Fatal("Run() error = nil, want inner failure")
	}
	want := []string{
		"BEGIN IMMEDIATE",
		`SAVEPOINT "sagadb_level_2"`,
		`ROLLBACK TO SAVEPOINT "sagadb_level_2"`,
		`RELEASE SAVEPOINT "sagadb_level_2"`,
		"ROLLBACK",
	}
	if !slices.Equal(f.log, want) {
		t.Errorf("statements = %q, want %q", f.log, want)
	}
}

func TestEngineState(t *testing.T) {
	b, f := newFake("")

	if err := b.Commit(); !errors.Is(err, sagaerrors.ErrNotActive) {
		t.Errorf("Commit() without begin error = %v, want ErrNotActive", err)
	}
	if err := b.Begin(txn.ReadCommitted); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := b.Begin(txn.ReadCommitted); !errors.Is(err, sagaerrors.ErrTransactionActive) {
		t.Errorf("second Begin() error = %v, want ErrTransactionActive", err)
	}

	f.fail["COMMIT"] = errors.New("database is locked")
	err := b.Commit()
	if !errors.Is(err, sagaerrors.ErrTransaction) || !errors.Is(err, sagaerrors.ErrTransient) {
		t.Errorf("Commit() error = %v, want transient transaction error", err)
	}
	if err := b.Rollback(); err != nil {
		t.Errorf("Rollback() after failed commit error = %v", err)
	}

	if err := b.Begin(txn.ReadCommitted); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !f.closed || f.log[len(f.log)-1] != "ROLLBACK" {
		t.Errorf("Close() did not roll back and close: %v", f.log)
	}
}

func TestRaw(t *testing.T) {
	tests := []struct {
		sql   string
		query bool
		id    bool
	}{
		{"SELECT 1", true, false},
		{"  -- count\n(SELECT count(*) FROM sagas)", true, false},
		{"/* pragma */ PRAGMA table_info(sagas)", true, false},
		{"with x as (select 1) select * from x", true, false},
		{"insert into sagas (title) values ('Dune')", false, true},
		{"UPDATE sagas SET title = 'Dune'", false, false},
		{"DELETE FROM sagas RETURNING id", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			b, f := newFake("")
			f.outcome = Outcome{Affected: 1, LastID: 3, HasID: true}
			f.rows = result.New([]row.Row{row.Of("n", 1)})

			rs, err := b.Raw(tt.sql)
			if err != nil {
				t.Fatalf("Raw() error = %v", err)
			}
			if got := rs.Len() == 1; got != tt.query {
				t.Errorf("returned rows = %v, want %v", got, tt.query)
			}
			if _, ok := rs.LastInsertID(); ok != tt.id {
				t.Errorf("LastInsertID() ok = %v, want %v", ok, tt.id)
			}
		})
	}
}
