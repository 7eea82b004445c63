package database

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
)

var entities = schema.MustTable("entities", []schema.ColumnDefinition{
	schema.MustColumn("id", schema.Integer, schema.AutoIncrement()),
	schema.MustColumn("saga_id", schema.Integer),
	schema.MustColumn("name", schema.Varchar, schema.Length(100)),
})

// seed creates entities with Luke and Leia in saga 1 and Paul in saga 2.
func seed(t *testing.T, c *Connection) {
	t.Helper()
	sm, err := c.Schema()
	if err != nil {
		t.Fatal(err)
	}
	created, err := sm.CreateTableIfNotExists(entities)
	if err != nil || !created {
		t.Fatalf("CreateTableIfNotExists() = %v, %v", created, err)
	}
	if created, err := sm.CreateTableIfNotExists(entities); err != nil || created {
		t.Errorf("second CreateTableIfNotExists() = %v, %v; want false", created, err)
	}
	if _, err := c.Table("entities").InsertBatch([]row.Row{
		row.Of("saga_id", 1, "name", "Luke"),
		row.Of("saga_id", 1, "name", "Leia"),
		row.Of("saga_id", 2, "name", "Paul"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func sagaOne(t *testing.T, c *Connection) ([]string, int64) {
	t.Helper()
	b := c.Table("entities").Where("saga_id", "=", 1)
	rs, err := b.Clone().OrderBy("name", "asc").Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var names []string
	for _, v := range rs.Pluck("name") {
		names = append(names, row.ToString(v))
	}
	n, err := b.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return names, n
}

func TestEndToEnd(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(t *testing.T) Config
	}{
		{"memory", func(*testing.T) Config { return DefaultConfig() }},
		{"sqlite", func(t *testing.T) Config {
			cfg := DefaultConfig()
			cfg.Driver = DriverSQLite
			cfg.DSN = filepath.Join(t.TempDir(), "sagas.db")
			cfg.Prefix = "app_"
			return cfg
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(tt.cfg(t))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer c.Close()
			seed(t, c)

			names, n := sagaOne(t, c)
			if want := []string{"Leia", "Luke"}; !slices.Equal(names, want) || n != 2 {
				t.Errorf("saga 1 = %v (%d), want %v (2)", names, n, want)
			}

			tx := c.Transaction()
			if err := tx.Begin(); err != nil {
				t.Fatal(err)
			}
			if _, err := c.Table("entities").Insert(row.Of("saga_id", 1, "name", "Han")); err != nil {
				t.Fatal(err)
			}
			if err := tx.Rollback(); err != nil {
				t.Fatal(err)
			}
			if _, n := sagaOne(t, c); n != 2 {
				t.Errorf("Count() after rollback = %d, want 2", n)
			}
		})
	}
}

func TestObserver(t *testing.T) {
	var events []query.Event
	cfg := DefaultConfig()
	cfg.Prefix = "x_"
	cfg.Observer = query.ObserverFunc(func(e query.Event) { events = append(events, e) })
	c, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	seed(t, c)

	if _, err := c.Table("entities").Where("name", "=", "Paul").Get(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Table("ghosts").Get(); err == nil {
		t.Fatal("select from a missing table succeeded")
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	insert, sel, failed := events[0], events[1], events[2]
	if insert.Operation != "insert" || insert.Rows != 3 {
		t.Errorf("insert event = %+v", insert)
	}
	if sel.Statement != `SELECT * FROM "x_entities" AS "entities" WHERE "name" = ?` || sel.Rows != 1 {
		t.Errorf("select event = %+v", sel)
	}
	if sel.ConnectionID == "" || sel.ConnectionID != c.ID() || sel.Backend != "memory" {
		t.Errorf("event identity = %q/%q", sel.ConnectionID, sel.Backend)
	}
	if failed.Error == "" || failed.Table != "ghosts" {
		t.Errorf("failed event = %+v", failed)
	}
}

func TestLifecycle(t *testing.T) {
	c, err := Open(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	seed(t, c)
	first := c.ID()

	if err := c.Connect(); err != nil || c.ID() != first {
		t.Errorf("Connect() on a live connection changed it: %v", err)
	}
	if err := c.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if _, err := c.Raw("SELECT 1"); !errors.Is(err, sagaerrors.ErrUnsupported) {
		t.Errorf("memory Raw() error = %v, want ErrUnsupported", err)
	}
	if err := c.Transaction().Begin(); err != nil {
		t.Fatal(err)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
	if c.IsConnected() || c.Transaction().InTransaction() {
		t.Error("still connected or in a transaction after Disconnect()")
	}
	if _, err := c.Table("entities").Get(); !errors.Is(err, sagaerrors.ErrNotConnected) {
		t.Errorf("Get() while disconnected error = %v, want ErrNotConnected", err)
	}
	if err := c.Ping(); !errors.Is(err, sagaerrors.ErrConnection) {
		t.Errorf("Ping() while disconnected error = %v", err)
	}

	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	if c.ID() == first {
		t.Error("reconnect kept the connection id")
	}
	if _, n := sagaOne(t, c); n != 2 {
		t.Errorf("in-process tables lost on reconnect: count = %d", n)
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"unknown driver", Config{Driver: "oracle"}, sagaerrors.ErrInvalidInput},
		{"sqlite without path", Config{Driver: DriverSQLite}, sagaerrors.ErrInvalidInput},
		{"host without api", Config{Driver: DriverHost}, sagaerrors.ErrInvalidInput},
		{"missing image", Config{Driver: DriverMemory, DSN: filepath.Join(os.TempDir(), "sagadb-none.img")}, sagaerrors.ErrConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMemoryImage(t *testing.T) {
	c, err := Open(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	seed(t, c)
	store, ok := c.Store()
	if !ok {
		t.Fatal("Store() not available on the memory driver")
	}
	path := filepath.Join(t.TempDir(), "sagas.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveImage(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg := DefaultConfig()
	cfg.DSN = path
	loaded, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open(image) error = %v", err)
	}
	names, _ := sagaOne(t, loaded)
	if want := []string{"Leia", "Luke"}; !slices.Equal(names, want) {
		t.Errorf("loaded names = %v, want %v", names, want)
	}
}
