package memory

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/query"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/core/txn"
)

func sagaTables() []schema.TableDefinition {
	sagas := schema.MustTable("sagas", []schema.ColumnDefinition{
		schema.MustColumn("id", schema.Integer, schema.AutoIncrement()),
		schema.MustColumn("title", schema.Varchar, schema.Length(100)),
	}, schema.Indexes(schema.MustIndex("sagas_title_unique", schema.Unique, "title")))
	entities := schema.MustTable("entities", []schema.ColumnDefinition{
		schema.MustColumn("id", schema.Integer, schema.AutoIncrement()),
		schema.MustColumn("saga_id", schema.Integer),
		schema.MustColumn("name", schema.Varchar, schema.Length(100)),
		schema.MustColumn("age", schema.Integer, schema.Nullable()),
		schema.MustColumn("bio", schema.Text, schema.Nullable()),
		schema.MustColumn("kind", schema.Varchar, schema.Length(20), schema.Default("person")),
	}, schema.ForeignKeys(schema.MustForeignKey("entities_saga_fk", []string{"saga_id"}, "sagas", []string{"id"},
		schema.OnDelete(schema.Cascade))))
	return []schema.TableDefinition{sagas, entities}
}

// seeded returns a store holding two sagas and three entities:
// Luke and Leia in saga 1, Paul in saga 2.
func seeded(t *testing.T, prefix string) *Store {
	t.Helper()
	s := New(prefix)
	for _, def := range sagaTables() {
		if err := s.Schema().CreateTable(def); err != nil {
			t.Fatalf("CreateTable(%s) error = %v", def.Name(), err)
		}
	}
	if _, err := query.New(s).From("sagas").InsertBatch([]row.Row{
		row.Of("title", "Star Wars"),
		row.Of("title", "Dune"),
	}); err != nil {
		t.Fatalf("seed sagas: %v", err)
	}
	if _, err := query.New(s).From("entities").InsertBatch([]row.Row{
		row.Of("saga_id", 1, "name", "Luke", "age", 30, "bio", nil),
		row.Of("saga_id", 1, "name", "Leia", "age", 28, "bio", "Princess"),
		row.Of("saga_id", 2, "name", "Paul", "age", 19, "bio", "Duke"),
	}); err != nil {
		t.Fatalf("seed entities: %v", err)
	}
	return s
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

func count(t *testing.T, b *query.Builder) int64 {
	t.Helper()
	n, err := b.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return n
}

func TestEndToEnd(t *testing.T) {
	s := seeded(t, "")
	saga1 := func() *query.Builder {
		return query.New(s).From("entities").Where("saga_id", "=", 1)
	}

	if got, want := names(t, saga1().OrderBy("name", "asc")), []string{"Leia", "Luke"}; !slices.Equal(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	if got := count(t, saga1()); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	m := txn.New(s, txn.Serializable)
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if _, err := query.New(s).From("entities").Insert(row.Of("saga_id", 1, "name", "Han")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := count(t, saga1()); got != 3 {
		t.Errorf("Count() inside transaction = %d, want 3", got)
	}
	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	if got := count(t, saga1()); got != 2 {
		t.Errorf("Count() after rollback = %d, want 2", got)
	}
}

func TestPredicateCoercion(t *testing.T) {
	s := seeded(t, "")
	tests := []struct {
		name string
		b    *query.Builder
		want []string
	}{
		{"loose equality", query.New(s).From("entities").Where("age", "=", "30"), []string{"Luke"}},
		{"strict in", query.New(s).From("entities").WhereIn("age", "30"), nil},
		{"in", query.New(s).From("entities").WhereIn("age", 30, 19).OrderBy("name", "asc"), []string{"Luke", "Paul"}},
		{"null", query.New(s).From("entities").WhereNull("bio"), []string{"Luke"}},
		{"like", query.New(s).From("entities").WhereLike("name", "l%").OrderBy("id", "desc"), []string{"Leia", "Luke"}},
		{"not like skips null", query.New(s).From("entities").WhereNotLike("bio", "P%"), []string{"Paul"}},
		{"between", query.New(s).From("entities").WhereBetween("age", 20, 29), []string{"Leia"}},
		{"left fold", query.New(s).From("entities").Where("name", "=", "Paul").OrWhere("name", "=", "Luke").
			Where("age", ">", 20), []string{"Luke"}},
		{"group", query.New(s).From("entities").Where("saga_id", "=", 1).WhereGroup(func(g *query.Builder) {
			g.Where("age", "<", 29).OrWhereNull("bio")
		}).OrderBy("name", "asc"), []string{"Leia", "Luke"}},
		{"raw", query.New(s).From("entities").WhereRaw("age > ? AND bio IS NOT NULL", 20), []string{"Leia"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := names(t, tt.b); !slices.Equal(got, tt.want) {
				t.Errorf("names = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregates(t *testing.T) {
	s := seeded(t, "")
	entities := func() *query.Builder { return query.New(s).From("entities") }

	if got, err := entities().Sum("age"); err != nil || got != 77 {
		t.Errorf("Sum(age) = %v, %v; want 77", got, err)
	}
	if got, err := entities().Where("saga_id", "=", 1).Avg("age"); err != nil || got != 29 {
		t.Errorf("Avg(age) = %v, %v; want 29", got, err)
	}
	if got, err := entities().Max("name"); err != nil || got != "Paul" {
		t.Errorf("Max(name) = %v, %v; want Paul", got, err)
	}

	empty := func() *query.Builder { return entities().Where("saga_id", "=", 99) }
	if got, err := empty().Sum("age"); err != nil || got != 0 {
		t.Errorf("empty Sum = %v, %v; want 0", got, err)
	}
	if got, err := empty().Avg("age"); err != nil || got != 0 {
		t.Errorf("empty Avg = %v, %v; want 0", got, err)
	}
	if got, err := empty().Min("age"); err != nil || got != nil {
		t.Errorf("empty Min = %v, %v; want nil", got, err)
	}

	if got := count(t, entities().Limit(2)); got != 2 {
		t.Errorf("Count() with limit = %d, want 2", got)
	}
	if got := count(t, entities().Select("saga_id").Distinct()); got != 2 {
		t.Errorf("Count() distinct = %d, want 2", got)
	}
}

func TestGroupBy(t *testing.T) {
	s := seeded(t, "")
	rs, err := query.New(s).From("entities").
		Select("saga_id", "count(*) as total", "max(age) AS oldest").
		GroupBy("saga_id").
		Having("count(*)", ">", 1).
		Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rs.Len() != 1 {
		t.Fatalf("got %d groups, want 1", rs.Len())
	}
	got, _ := rs.First()
	want := row.Of("saga_id", 1, "total", 2, "oldest", 30)
	if !got.Equal(want) {
		t.Errorf("group = %v, want %v", got, want)
	}
	if cols := rs.Columns(); !slices.Equal(cols, []string{"saga_id", "total", "oldest"}) {
		t.Errorf("Columns() = %v", cols)
	}

	ordered, err := query.New(s).From("entities").
		Select("saga_id", "count(*) as total").
		GroupBy("saga_id").
		OrderBy("total", "asc").
		Get()
	if err != nil {
		t.Fatal(err)
	}
	if got := ordered.Pluck("saga_id"); !slices.Equal(got, []any{int64(2), int64(1)}) {
		t.Errorf("saga order = %v, want [2 1]", got)
	}

	if got := count(t, query.New(s).From("entities").GroupBy("saga_id")); got != 2 {
		t.Errorf("Count() of groups = %d, want 2", got)
	}
}

func TestJoins(t *testing.T) {
	s := seeded(t, "app_")
	if _, err := query.New(s).From("entities").Insert(row.Of("saga_id", 7, "name", "Orphan")); err != nil {
		t.Fatal(err)
	}
	rs, err := query.New(s).From("entities", "e").
		Select("e.name", "s.title").
		Join("sagas", "e.saga_id", "=", "s.id", "s").
		OrderBy("e.name", "asc").
		Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := rs.Pluck("title"); !slices.Equal(got, []any{"Star Wars", "Star Wars", "Dune"}) {
		t.Errorf("titles = %v", got)
	}

	left, err := query.New(s).From("entities", "e").
		Select("e.name", "s.title").
		LeftJoin("sagas", "e.saga_id", "=", "s.id", "s").
		WhereNull("s.title").
		Get()
	if err != nil {
		t.Fatal(err)
	}
	if got := left.Pluck("name"); !slices.Equal(got, []any{"Orphan"}) {
		t.Errorf("left join orphans = %v", got)
	}

	if _, err := query.New(s).From("entities", "e").Get(); err != nil {
		t.Fatal(err)
	}
	if err := query.New(s).From("entities").Join("sagas", "entities.saga_id", "<", "sagas.id").Err(); !errors.Is(err, sagaerrors.ErrUnsupported) {
		t.Errorf("non-equi join error = %v, want ErrUnsupported", err)
	}
}

func TestSubqueries(t *testing.T) {
	s := seeded(t, "")
	dune := query.New(s).From("sagas").Select("id").Where("title", "=", "Dune")
	if got := names(t, query.New(s).From("entities").WhereInSub("saga_id", dune)); !slices.Equal(got, []string{"Paul"}) {
		t.Errorf("WhereInSub = %v", got)
	}
	none := query.New(s).From("sagas").Where("title", "=", "Foundation")
	if got := count(t, query.New(s).From("entities").WhereNotExists(none)); got != 3 {
		t.Errorf("WhereNotExists count = %d, want 3", got)
	}
	if got := count(t, query.New(s).From("entities").WhereExists(none)); got != 0 {
		t.Errorf("WhereExists count = %d, want 0", got)
	}
}

func TestWrites(t *testing.T) {
	s := seeded(t, "")
	entities := func() *query.Builder { return query.New(s).From("entities") }

	rs, err := entities().Insert(row.Of("saga_id", "1", "name", "Han"))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id, ok := rs.LastInsertID(); !ok || id != 4 {
		t.Errorf("LastInsertID() = %d, %v; want 4", id, ok)
	}
	han, _, err := entities().Where("id", "=", 4).First()
	if err != nil {
		t.Fatal(err)
	}
	if han.Value("saga_id") != int64(1) || han.Value("kind") != "person" {
		t.Errorf("stored row = %v", han)
	}

	if _, err := entities().Insert(row.Of("saga_id", 1)); !errors.Is(err, sagaerrors.ErrConstraint) {
		t.Errorf("missing NOT NULL column error = %v, want ErrConstraint", err)
	}
	if _, err := entities().Insert(row.Of("id", 1, "saga_id", 1, "name", "Dup")); !errors.Is(err, sagaerrors.ErrConstraint) {
		t.Errorf("duplicate key error = %v, want ErrConstraint", err)
	}
	if _, err := entities().Insert(row.Of("saga_id", 1, "name", "X", "title", "Sir")); !errors.Is(err, sagaerrors.ErrColumnNotFound) {
		t.Errorf("unknown column error = %v, want ErrColumnNotFound", err)
	}
	var qe *sagaerrors.QueryError
	if _, err := entities().Insert(row.Of("saga_id", 1)); !errors.As(err, &qe) || qe.Statement == "" {
		t.Errorf("write errors carry the rendered statement, got %v", err)
	}

	rs, err = entities().Where("saga_id", "=", 1).OrderBy("age", "desc").Limit(1).Update(row.Of("bio", "Jedi"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rs.AffectedRows() != 1 {
		t.Errorf("AffectedRows() = %d, want 1", rs.AffectedRows())
	}
	if got := names(t, entities().Where("bio", "=", "Jedi")); !slices.Equal(got, []string{"Luke"}) {
		t.Errorf("updated = %v, want [Luke]", got)
	}

	if _, err := entities().Offset(1).Update(row.Of("bio", "Smuggler")); !errors.Is(err, sagaerrors.ErrUnsupported) {
		t.Errorf("Update() with offset error = %v, want ErrUnsupported", err)
	}
	if got := count(t, entities().Where("bio", "=", "Smuggler")); got != 0 {
		t.Errorf("Update() with offset changed %d rows", got)
	}

	rs, err = entities().WhereNull("age").Delete()
	if err != nil {
		t.Fatal(err)
	}
	if rs.AffectedRows() != 1 || count(t, entities()) != 3 {
		t.Errorf("Delete() affected %d, %d left", rs.AffectedRows(), count(t, entities()))
	}

	if _, err := entities().Truncate(); err != nil {
		t.Fatal(err)
	}
	rs, err = entities().Insert(row.Of("saga_id", 1, "name", "Rey"))
	if err != nil {
		t.Fatal(err)
	}
	if id, _ := rs.LastInsertID(); id != 1 {
		t.Errorf("id after truncate = %d, want 1", id)
	}
}

func TestUpsert(t *testing.T) {
	s := seeded(t, "")
	sagas := func() *query.Builder { return query.New(s).From("sagas") }

	if _, err := sagas().Upsert(row.Of("id", 2, "title", "Dune Messiah"), "title"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if got := count(t, sagas()); got != 2 {
		t.Errorf("Count() after conflicting upsert = %d, want 2", got)
	}
	title, err := sagas().Where("id", "=", 2).Value("title")
	if err != nil || title != "Dune Messiah" {
		t.Errorf("title = %v, %v", title, err)
	}

	if _, err := sagas().Upsert(row.Of("title", "Foundation")); err != nil {
		t.Fatal(err)
	}
	if got := count(t, sagas()); got != 3 {
		t.Errorf("Count() after inserting upsert = %d, want 3", got)
	}

	if _, err := sagas().Upsert(row.Of("id", 3, "title", "Star Wars"), "title"); !errors.Is(err, sagaerrors.ErrConstraint) {
		t.Errorf("upsert into a taken unique key error = %v, want ErrConstraint", err)
	}
}

func TestNestedTransactions(t *testing.T) {
	s := seeded(t, "")
	m := txn.New(s, txn.ReadCommitted)
	entities := func() *query.Builder { return query.New(s).From("entities") }
	insert := func(name string) {
		t.Helper()
		if _, err := entities().Insert(row.Of("saga_id", 1, "name", name)); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	insert("Han")
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	insert("Chewie")
	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	if got := count(t, entities()); got != 4 {
		t.Errorf("after inner rollback count = %d, want 4", got)
	}

	if err := m.Savepoint("before_rey"); err != nil {
		t.Fatal(err)
	}
	insert("Rey")
	if err := m.RollbackTo("before_rey"); err != nil {
		t.Fatal(err)
	}
	insert("Finn")
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}
	if got, want := names(t, entities().Where("id", ">", 3).OrderBy("id", "asc")), []string{"Han", "Finn"}; !slices.Equal(got, want) {
		t.Errorf("committed = %v, want %v", got, want)
	}
	if err := s.Commit(); !errors.Is(err, sagaerrors.ErrNotActive) {
		t.Errorf("engine Commit() when idle = %v, want ErrNotActive", err)
	}
}

func TestSavepointNameAcrossLevels(t *testing.T) {
	s := seeded(t, "")
	m := txn.New(s, txn.Serializable)
	entities := func() *query.Builder { return query.New(s).From("entities") }

	_ = m.Begin()
	if err := m.Savepoint("mark"); err != nil {
		t.Fatal(err)
	}
	if _, err := entities().Insert(row.Of("saga_id", 1, "name", "Han")); err != nil {
		t.Fatal(err)
	}
	_ = m.Begin()
	if err := m.Savepoint("mark"); err != nil {
		t.Fatal(err)
	}
	if _, err := entities().Insert(row.Of("saga_id", 1, "name", "Chewie")); err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := m.RollbackTo("mark"); err != nil {
		t.Fatalf("RollbackTo(mark) after inner commit error = %v", err)
	}
	if got := count(t, entities()); got != 3 {
		t.Errorf("count after RollbackTo(mark) = %d, want 3", got)
	}
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshotFidelity(t *testing.T) {
	s := seeded(t, "")
	before, err := s.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	m := txn.New(s, txn.Serializable)
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if _, err := query.New(s).From("entities").Where("saga_id", "=", 2).Update(row.Of("age", 20)); err != nil {
		t.Fatal(err)
	}
	if _, err := query.New(s).From("sagas").Insert(row.Of("title", "Foundation")); err != nil {
		t.Fatal(err)
	}
	if err := s.Schema().DropColumn("entities", "bio"); err != nil {
		t.Fatal(err)
	}
	mid, _ := s.Fingerprint()
	if mid == before {
		t.Fatal("mutations did not change the fingerprint")
	}
	if err := m.Rollback(); err != nil {
		t.Fatal(err)
	}
	after, _ := s.Fingerprint()
	if after != before {
		t.Errorf("fingerprint after rollback = %s, want %s", after, before)
	}
}

func TestImageRoundTrip(t *testing.T) {
	s := seeded(t, "x_")
	if _, err := query.New(s).From("entities").Insert(row.Of("saga_id", 2, "name", "Jessica", "bio", []byte{0, 1, 2})); err != nil {
		t.Fatal(err)
	}
	if err := s.Schema().AddColumn("sagas", schema.MustColumn("rating", schema.Double, schema.Nullable(), schema.Default(4.5))); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.SaveImage(&buf); err != nil {
		t.Fatalf("SaveImage() error = %v", err)
	}

	loaded := New("y_")
	if err := loaded.LoadImage(&buf); err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	want, _ := s.Fingerprint()
	got, _ := loaded.Fingerprint()
	if got != want {
		t.Errorf("loaded fingerprint = %s, want %s", got, want)
	}
	rating, err := query.New(loaded).From("sagas").Where("id", "=", 1).Value("rating")
	if err != nil || rating != 4.5 {
		t.Errorf("rating = %#v, %v; want 4.5", rating, err)
	}
	if stats := loaded.Tables(); len(stats) != 2 || stats[1].Name != "sagas" || stats[0].LastID != 4 {
		t.Errorf("Tables() = %+v", stats)
	}

	m := txn.New(loaded, txn.Serializable)
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Restore(s.Snapshot()); !errors.Is(err, sagaerrors.ErrTransactionActive) {
		t.Errorf("Restore() inside a transaction = %v, want ErrTransactionActive", err)
	}
}
