package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/calounx/sagas-sub011/core/schema"
)

const migrations = `<migrations>
  <migration id="001_sagas" description="sagas table">
    <up>
      <create-table name="sagas">
        <column name="id" type="integer" auto-increment="true"/>
        <column name="title" type="varchar" length="100"/>
        <index name="sagas_title_unique" type="unique" columns="title"/>
      </create-table>
    </up>
    <down><drop-table name="sagas"/></down>
  </migration>
  <migration id="002_entities" description="entities table">
    <up>
      <create-table name="entities">
        <column name="id" type="integer" auto-increment="true"/>
        <column name="saga_id" type="integer"/>
        <column name="name" type="varchar" length="100"/>
        <foreign-key name="entities_saga_fk" columns="saga_id" references="sagas" ref-columns="id" on-delete="cascade"/>
      </create-table>
    </up>
    <down><drop-table name="entities"/></down>
  </migration>
</migrations>`

// run executes one command line and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("sagadb"), kong.Bind(&cli.Globals), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatalf("kong.New() error = %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })
	err = ctx.Run()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func writeMigrations(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migrations.xml")
	if err := os.WriteFile(path, []byte(migrations), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMigrateAndQuery(t *testing.T) {
	doc := writeMigrations(t)
	db := "--dsn=" + filepath.Join(t.TempDir(), "sagas.db")

	out := mustRun(t, db, "migrate", "up", doc)
	if !strings.Contains(out, "applied 001_sagas") || !strings.Contains(out, "applied 002_entities") {
		t.Errorf("migrate up output = %q", out)
	}
	if out := mustRun(t, db, "migrate", "up", doc); !strings.Contains(out, "nothing to apply") {
		t.Errorf("second migrate up output = %q", out)
	}

	mustRun(t, db, "query", "INSERT INTO sagas (title) VALUES (?)", "Dune")
	out = mustRun(t, db, "query", "INSERT INTO entities (saga_id, name) VALUES (?, ?)", "1", "Paul")
	if !strings.Contains(out, "last insert id 1") {
		t.Errorf("insert output = %q", out)
	}
	out = mustRun(t, db, "query", "SELECT name FROM entities WHERE saga_id = ?", "1")
	if !strings.Contains(out, "Paul") || !strings.Contains(out, "(1 row(s))") {
		t.Errorf("select output = %q", out)
	}
	if out := mustRun(t, db, "query", "--json", "SELECT title FROM sagas"); !strings.Contains(out, `"Dune"`) {
		t.Errorf("json output = %q", out)
	}

	out = mustRun(t, db, "tables")
	for _, want := range []string{"entities", "migrations", "sagas"} {
		if !strings.Contains(out, want) {
			t.Errorf("tables output misses %s: %q", want, out)
		}
	}
	out = mustRun(t, db, "columns", "entities")
	if !strings.Contains(out, "auto_increment") || !strings.Contains(out, "FOREIGN KEY entities_saga_fk") {
		t.Errorf("columns output = %q", out)
	}

	if out := mustRun(t, db, "migrate", "down", doc); !strings.Contains(out, "reverted 002_entities") {
		t.Errorf("migrate down output = %q", out)
	}
	out = mustRun(t, db, "migrate", "status", doc)
	if !strings.Contains(out, "002_entities  -") || !strings.Contains(out, "pending") {
		t.Errorf("status output = %q", out)
	}

	if _, err := run(t, db, "columns", "ghosts"); err == nil {
		t.Error("columns of a missing table succeeded")
	}
	if _, err := run(t, "--driver=memory", "query", "SELECT 1"); err == nil {
		t.Error("raw query on the memory driver succeeded")
	}
}

func TestImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := writeMigrations(t)
	src := "--dsn=" + filepath.Join(dir, "src.db")
	dst := "--dsn=" + filepath.Join(dir, "dst.db")
	image := filepath.Join(dir, "sagas.img")

	mustRun(t, src, "migrate", "up", doc)
	mustRun(t, src, "query", "INSERT INTO sagas (title) VALUES ('Dune'), ('Star Wars')")
	mustRun(t, src, "query", "INSERT INTO entities (saga_id, name) VALUES (1, 'Paul'), (2, 'Luke'), (2, 'Leia')")

	out := mustRun(t, src, "image", "save", image)
	if !strings.Contains(out, "saved 3 table(s)") || !strings.Contains(out, "fingerprint ") {
		t.Errorf("image save output = %q", out)
	}
	info := mustRun(t, "image", "info", image)
	if !strings.Contains(info, "entities") || !strings.Contains(info, strings.Fields(out)[len(strings.Fields(out))-1]) {
		t.Errorf("image info output = %q", info)
	}

	out = mustRun(t, dst, "image", "load", image)
	if got := strings.Fields(out); !slices.Equal(got, []string{"loaded", "sagas", "loaded", "entities", "loaded", "migrations"}) {
		t.Errorf("image load output = %q", out)
	}
	out = mustRun(t, dst, "query", "SELECT COUNT(*) AS n FROM entities WHERE saga_id = 2")
	if !strings.Contains(out, "2") {
		t.Errorf("count output = %q", out)
	}
	out = mustRun(t, "--driver=memory", "--dsn="+image, "tables")
	if !slices.ContainsFunc(strings.Split(out, "\n"), func(line string) bool {
		return slices.Equal(strings.Fields(line), []string{"entities", "3"})
	}) {
		t.Errorf("memory tables output = %q", out)
	}
}

func TestDependencyOrder(t *testing.T) {
	col := schema.MustColumn("id", schema.Integer, schema.AutoIncrement())
	ref := func(name, target string) schema.TableDefinition {
		var opts []schema.TableOption
		cols := []schema.ColumnDefinition{col}
		if target != "" {
			cols = append(cols, schema.MustColumn("ref_id", schema.Integer, schema.Nullable()))
			opts = append(opts, schema.ForeignKeys(schema.MustForeignKey(name+"_fk", []string{"ref_id"}, target, []string{"id"})))
		}
		return schema.MustTable(name, cols, opts...)
	}
	defs := []schema.TableDefinition{ref("a", "b"), ref("b", "c"), ref("c", ""), ref("self", "self")}

	var got []string
	for _, def := range dependencyOrder(defs) {
		got = append(got, def.Name())
	}
	if want := []string{"c", "b", "a", "self"}; !slices.Equal(got, want) {
		t.Errorf("dependencyOrder() = %v, want %v", got, want)
	}
}

func TestVersion(t *testing.T) {
	if out := mustRun(t, "version"); !strings.HasPrefix(out, "sagadb version "+version) {
		t.Errorf("version output = %q", out)
	}
}
