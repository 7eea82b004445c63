package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/sqldb"
	"github.com/calounx/sagas-sub011/core/txn"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()

	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: info=%s, func=%s", info.DriverName, DriverName())
	}
	if info.IsCGO != IsCGO() {
		t.Errorf("IsCGO mismatch: info=%v, func=%v", info.IsCGO, IsCGO())
	}
	switch info.DriverType {
	case "purego":
		if info.DriverName != "sqlite" {
			t.Errorf("purego driver should use 'sqlite' name, got '%s'", info.DriverName)
		}
	case "cgo":
		if info.DriverName != "sqlite3" {
			t.Errorf("cgo driver should use 'sqlite3' name, got '%s'", info.DriverName)
		}
	default:
		t.Errorf("unknown driver type: %s", info.DriverType)
	}
}

func sagaTables() []schema.TableDefinition {
	sagas := schema.MustTable("sagas", []schema.ColumnDefinition{
		schema.MustColumn("id", schema.Integer, schema.AutoIncrement()),
		schema.MustColumn("title", schema.Varchar, schema.Length(100)),
	}, schema.PrimaryKey("id"), schema.Indexes(schema.MustIndex("sagas_title_unique", schema.Unique, "title")))
	entities := schema.MustTable("entities", []schema.ColumnDefinition{
		schema.MustColumn("id", schema.Integer, schema.AutoIncrement()),
		schema.MustColumn("saga_id", schema.Integer),
		schema.MustColumn("name", schema.Varchar, schema.Length(100)),
		schema.MustColumn("age", schema.Integer, schema.Nullable()),
		schema.MustColumn("kind", schema.Varchar, schema.Length(20), schema.Default("person")),
	}, schema.PrimaryKey("id"), schema.ForeignKeys(schema.MustForeignKey("entities_saga_fk",
		[]string{"saga_id"}, "sagas", []string{"id"}, schema.OnDelete(schema.Cascade))))
	return []schema.TableDefinition{sagas, entities}
}

// connect opens a fresh database file holding two sagas and three entities.
func connect(t *testing.T, prefix string) *sqldb.Backend {
	t.Helper()
	b, err := Connect(context.Background(), Options{
		Path:   filepath.Join(t.TempDir(), "sagas.db"),
		Prefix: prefix,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })

	for _, def := range sagaTables() {
		if err := b.Schema().CreateTable(def); err != nil {
			t.Fatalf("CreateTable(%s) error = %v", def.Name(), err)
		}
	}
	if _, err := query.New(b).From("sagas").InsertBatch([]row.Row{
		row.Of("title", "Star Wars"),
		row.Of("title", "Dune"),
	}); err != nil {
		t.Fatalf("seed sagas: %v", err)
	}
	if _, err := query.New(b).From("entities").InsertBatch([]row.Row{
		row.Of("saga_id", 1, "name", "Luke", "age", 30),
		row.Of("saga_id", 1, "name", "Leia", "age", 28),
		row.Of("saga_id", 2, "name", "Paul", "age", 19),
	}); err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	return b
}

func names(t *testing.T, b *query.Builder) []string {
	t.Helper()
	rs, err := b.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var out []string
	for _, v := range rs.Pluck("name") {
		out = append(out, row.ToString(v))
	}
	return out
}

func TestQueries(t *testing.T) {
	b := connect(t, "app_")

	got := names(t, query.New(b).From("entities").Where("saga_id", "=", 1).OrderBy("name", "asc"))
	if want := []string{"Leia", "Luke"}; !slices.Equal(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}

	joined := query.New(b).Table("entities", "e").Select("e.name").
		Join("sagas", "s.id", "=", "e.saga_id", "s").Where("s.title", "=", "Dune")
	if got := names(t, joined); !slices.Equal(got, []string{"Paul"}) {
		t.Errorf("joined names = %v, want [Paul]", got)
	}

	n, err := query.New(b).From("entities").Where("age", ">", 20).Count()
	if err != nil || n != 2 {
		t.Errorf("Count() = %d, %v; want 2", n, err)
	}

	rs, err := query.New(b).From("entities").Insert(row.Of("saga_id", 2, "name", "Chani"))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id, ok := rs.LastInsertID(); !ok || id != 4 {
		t.Errorf("LastInsertID() = %d, %v; want 4, true", id, ok)
	}
	r, ok, err := query.New(b).From("entities").Where("id", "=", 4).First()
	if err != nil || !ok {
		t.Fatalf("First() = %v, %v", ok, err)
	}
	if got := r.Value("kind"); got != "person" {
		t.Errorf("kind = %v, want default person", got)
	}

	raw, err := b.Raw(`SELECT COUNT(*) AS n FROM "app_entities"`)
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}
	if first, _ := raw.First(); row.ToString(first.Value("n")) != "4" {
		t.Errorf("raw count = %v, want 4", first.Value("n"))
	}
}

func TestConstraints(t *testing.T) {
	b := connect(t, "")

	_, err := query.New(b).From("sagas").Insert(row.Of("title", "Dune"))
	if !errors.Is(err, sagaerrors.ErrConstraint) {
		t.Errorf("duplicate title error = %v, want ErrConstraint", err)
	}

	if _, err := query.New(b).From("sagas").Where("id", "=", 1).Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := names(t, query.New(b).From("entities")); !slices.Equal(got, []string{"Paul"}) {
		t.Errorf("entities after cascade = %v, want [Paul]", got)
	}

	_, err = query.New(b).From("ghosts").Get()
	if !errors.Is(err, sagaerrors.ErrTableNotFound) {
		t.Errorf("missing table error = %v, want ErrTableNotFound", err)
	}
}

func TestTransactions(t *testing.T) {
	b := connect(t, "")
	m := txn.New(b, txn.Serializable)
	count := func() int64 {
		n, err := query.New(b).From("entities").Count()
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		return n
	}

	err := m.Run(func() error {
		if _, err := query.New(b).From("entities").Insert(row.Of("saga_id", 1, "name", "Han")); err != nil {
			return err
		}
		inner := m.Run(func() error {
			if _, err := query.New(b).From("entities").Insert(row.Of("saga_id", 1, "name", "Jabba")); err != nil {
				return err
			}
			return errors.New("change of plan")
		})
		if inner == nil {
			t.Error("inner Run() error = nil")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}

	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if _, err := query.New(b).From("entities").Truncate(); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	if got := count(); got != 4 {
		t.Errorf("Count() after rollback = %d, want 4", got)
	}
}

func TestSchemaIntrospection(t *testing.T) {
	b := connect(t, "app_")
	sm := b.Schema()

	tables, err := sm.GetTables()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"entities", "sagas"}; !slices.Equal(tables, want) {
		t.Errorf("GetTables() = %v, want %v", tables, want)
	}

	def, err := sm.GetTable("entities")
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	name, ok := def.Column("name")
	if !ok || name.Type() != schema.Varchar || name.Length() != 100 {
		t.Errorf("name column = %v", name)
	}
	kind, _ := def.Column("kind")
	if _, ok := kind.Default(); !ok {
		t.Error("kind lost its default")
	}
	if !def.HasForeignKey("entities_saga_fk") {
		t.Errorf("foreign keys = %v", def.ForeignKeys())
	}

	if err := sm.AddColumn("entities", schema.MustColumn("bio", schema.Text, schema.Nullable())); err != nil {
		t.Fatalf("AddColumn() error = %v", err)
	}
	if ok, _ := sm.HasColumn("entities", "bio"); !ok {
		t.Error("bio missing after AddColumn")
	}
	if err := sm.AddIndex("entities", schema.MustIndex("entities_name", schema.Plain, "name")); err != nil {
		t.Fatalf("AddIndex() error = %v", err)
	}
	if err := sm.RenameIndex("entities", "entities_name", "entities_by_name"); err != nil {
		t.Fatalf("RenameIndex() error = %v", err)
	}
	ixs, err := sm.GetIndexes("entities")
	if err != nil || len(ixs) != 1 || ixs[0].Name() != "entities_by_name" {
		t.Errorf("GetIndexes() = %v, %v", ixs, err)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"create existing", sm.CreateTable(sagaTables()[0]), sagaerrors.ErrTableExists},
		{"drop missing", sm.DropTable("ghosts"), sagaerrors.ErrTableNotFound},
		{"duplicate column", sm.AddColumn("entities", schema.MustColumn("bio", schema.Text)), sagaerrors.ErrColumnExists},
		{"drop missing index", sm.DropIndex("entities", "nope"), sagaerrors.ErrIndexNotFound},
		{"modify column", sm.ModifyColumn("entities", schema.MustColumn("bio", schema.Varchar, schema.Length(10))), sagaerrors.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
			if !errors.Is(tt.err, sagaerrors.ErrSchema) {
				t.Errorf("error = %v, want a schema error", tt.err)
			}
		})
	}

	if err := sm.RenameTable("sagas", "series"); err != nil {
		t.Fatalf("RenameTable() error = %v", err)
	}
	if ok, _ := sm.HasTable("series"); !ok {
		t.Error("series missing after rename")
	}
	if dropped, err := sm.DropTableIfExists("entities"); err != nil || !dropped {
		t.Errorf("DropTableIfExists() = %v, %v", dropped, err)
	}
}
