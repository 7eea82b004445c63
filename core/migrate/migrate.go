// Package migrate applies ordered schema migrations and records them in a
// ledger table, so each migration runs once per database.
package migrate

import (
	"fmt"
	"time"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
	"github.com/calounx/sagas-sub011/internal/logging"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// LedgerTable is the logical name of the applied-migration ledger.
const LedgerTable = "migrations"

// Migration is one reversible schema change. Down may be nil for changes
// that cannot be undone.
type Migration struct {
	ID          string
	Description string
	Up          func(schema.Manager) error
	Down        func(schema.Manager) error
}

// Record is one ledger entry.
type Record struct {
	ID          string
	Description string
	Batch       int64
	AppliedAt   time.Time
}

// Conn is what a Migrator needs from a connection.
type Conn interface {
	Schema() (schema.Manager, error)
	Table(name string, alias ...string) *query.Builder
	Transaction() *txn.Manager
}

// Migrator applies and reverts migrations on one connection.
type Migrator struct {
	conn Conn
	now  func() time.Time
}

func New(conn Conn) *Migrator {
	return &Migrator{conn: conn, now: time.Now}
}

var ledger = schema.MustTable(LedgerTable, []schema.ColumnDefinition{
	schema.MustColumn("seq", schema.Integer, schema.AutoIncrement()),
	schema.MustColumn("migration", schema.Varchar, schema.Length(191)),
	schema.MustColumn("description", schema.Varchar, schema.Length(255), schema.Default("")),
	schema.MustColumn("batch", schema.Integer),
	schema.MustColumn("applied_at", schema.DateTime),
}, schema.Indexes(schema.MustIndex("migrations_migration_unique", schema.Unique, "migration")))

func (m *Migrator) schema() (schema.Manager, error) {
	sm, err := m.conn.Schema()
	if err != nil {
		return nil, err
	}
	if _, err := sm.CreateTableIfNotExists(ledger); err != nil {
		return nil, err
	}
	return sm, nil
}

// Applied lists the ledger in application order.
func (m *Migrator) Applied() ([]Record, error) {
	if _, err := m.schema(); err != nil {
		return nil, err
	}
	rs, err := m.conn.Table(LedgerTable).OrderBy("seq", "asc").Get()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, rs.Len())
	for _, r := range rs.All() {
		rec := Record{
			ID:          row.ToString(r.Value("migration")),
			Description: row.ToString(r.Value("description")),
			Batch:       row.ToInt(r.Value("batch")),
		}
		if t, err := time.Parse(row.DateTimeLayout, row.ToString(r.Value("applied_at"))); err == nil {
			rec.AppliedAt = t
		}
		records = append(records, rec)
	}
	return records, nil
}

func check(migrations []Migration) error {
	seen := make(map[string]bool, len(migrations))
	for _, mig := range migrations {
		if mig.ID == "" {
			return sagaerrors.NewValidation("migration.id", "", "migration id is required")
		}
		if seen[mig.ID] {
			return sagaerrors.NewValidation("migration.id", mig.ID, "duplicate migration id")
		}
		if mig.Up == nil {
			return sagaerrors.NewValidation("migration.up", mig.ID, "migration has no up step")
		}
		seen[mig.ID] = true
	}
	return nil
}

// Apply runs the migrations not yet in the ledger, in order, each in its own
// transaction. They share one batch number. It returns the IDs applied
// before the first failure.
func (m *Migrator) Apply(migrations []Migration) ([]string, error) {
	if err := check(migrations); err != nil {
		return nil, err
	}
	sm, err := m.schema()
	if err != nil {
		return nil, err
	}
	records, err := m.Applied()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(records))
	var batch int64
	for _, rec := range records {
		done[rec.ID] = true
		batch = max(batch, rec.Batch)
	}
	batch++

	var applied []string
	for _, mig := range migrations {
		if done[mig.ID] {
			continue
		}
		err := m.conn.Transaction().Run(func() error {
			if err := mig.Up(sm); err != nil {
				return err
			}
			_, err := m.conn.Table(LedgerTable).Insert(row.Of(
				"migration", mig.ID,
				"description", mig.Description,
				"batch", batch,
				"applied_at", m.now().UTC().Format(row.DateTimeLayout),
			))
			return err
		})
		if err != nil {
			return applied, &sagaerrors.MigrationError{ID: mig.ID, Direction: "up", Err: err}
		}
		logging.MigrationApplied(mig.ID, "up", "batch", batch)
		applied = append(applied, mig.ID)
	}
	return applied, nil
}

// Rollback reverts the newest steps applied migrations, newest first, using
// the Down steps of migrations. It returns the IDs reverted before the
// first failure.
func (m *Migrator) Rollback(migrations []Migration, steps int) ([]string, error) {
	if steps < 1 {
		return nil, sagaerrors.NewValidation("steps", fmt.Sprint(steps), "must be positive")
	}
	byID := make(map[string]Migration, len(migrations))
	for _, mig := range migrations {
		byID[mig.ID] = mig
	}
	sm, err := m.schema()
	if err != nil {
		return nil, err
	}
	records, err := m.Applied()
	if err != nil {
		return nil, err
	}

	var reverted []string
	for i := len(records) - 1; i >= 0 && len(reverted) < steps; i-- {
		id := records[i].ID
		mig, ok := byID[id]
		switch {
		case !ok:
			return reverted, &sagaerrors.MigrationError{ID: id, Direction: "down", Err: fmt.Errorf("unknown migration")}
		case mig.Down == nil:
			return reverted, &sagaerrors.MigrationError{ID: id, Direction: "down",
				Err: sagaerrors.NewUnsupported("rollback", "migration has no down step")}
		}
		err := m.conn.Transaction().Run(func() error {
			if err := mig.Down(sm); err != nil {
				return err
			}
			_, err := m.conn.Table(LedgerTable).Where("migration", "=", id).Delete()
			return err
		})
		if err != nil {
			return reverted, &sagaerrors.MigrationError{ID: id, Direction: "down", Err: err}
		}
		logging.MigrationApplied(id, "down")
		reverted = append(reverted, id)
	}
	return reverted, nil
}

// Pending returns the migrations not yet applied, in order.
func (m *Migrator) Pending(migrations []Migration) ([]Migration, error) {
	records, err := m.Applied()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(records))
	for _, rec := range records {
		done[rec.ID] = true
	}
	var pending []Migration
	for _, mig := range migrations {
		if !done[mig.ID] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// validName checks identifiers read from migration documents.
func validName(field, name string) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return sagaerrors.NewValidation(field, name, err.Error())
	}
	return nil
}
