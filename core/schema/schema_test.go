package schema

import (
	"errors"
	"testing"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

func TestColumnTypePredicates(t *testing.T) {
	tests := []struct {
		typ            ColumnType
		requiresLength bool
		numeric        bool
		integer        bool
		text           bool
	}{
		{Integer, false, true, true, false},
		{BigInteger, false, true, true, false},
		{Decimal, false, true, false, false},
		{Varchar, true, false, false, true},
		{Char, true, false, false, true},
		{Text, false, false, false, true},
		{Boolean, false, false, false, false},
		{DateTime, false, false, false, false},
		{Binary, true, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.RequiresLength(); got != tt.requiresLength {
				t.Errorf("RequiresLength() = %v, want %v", got, tt.requiresLength)
			}
			if got := tt.typ.IsNumeric(); got != tt.numeric {
				t.Errorf("IsNumeric() = %v, want %v", got, tt.numeric)
			}
			if got := tt.typ.IsInteger(); got != tt.integer {
				t.Errorf("IsInteger() = %v, want %v", got, tt.integer)
			}
			if got := tt.typ.SupportsAutoIncrement(); got != tt.integer {
				t.Errorf("SupportsAutoIncrement() = %v, want %v", got, tt.integer)
			}
			if got := tt.typ.IsText(); got != tt.text {
				t.Errorf("IsText() = %v, want %v", got, tt.text)
			}
		})
	}
}

func TestEveryColumnTypeHasAName(t *testing.T) {
	for _, typ := range ColumnTypes {
		parsed, err := ParseColumnType(typ.String())
		if err != nil {
			t.Errorf("ParseColumnType(%q) error = %v", typ, err)
			continue
		}
		if parsed != typ {
			t.Errorf("ParseColumnType(%q) = %v", typ, parsed)
		}
	}
}

func TestParseColumnType(t *testing.T) {
	tests := []struct {
		in      string
		want    ColumnType
		wantErr bool
	}{
		{"int", Integer, false},
		{"varchar(255)", Varchar, false},
		{" BIGINT UNSIGNED ", BigInteger, false},
		{"real", Double, false},
		{"geometry", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColumnType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReferentialAction(t *testing.T) {
	for _, s := range []string{"cascade", "SET_NULL", "set null", "restrict", "no action", "SET DEFAULT"} {
		a, err := ParseReferentialAction(s)
		if err != nil {
			t.Errorf("ParseReferentialAction(%q) error = %v", s, err)
			continue
		}
		back, _ := ParseReferentialAction(a.String())
		if back != a {
			t.Errorf("%q does not survive String(): %v != %v", s, back, a)
		}
	}
	if !SetNull.RequiresNullable() || Cascade.RequiresNullable() {
		t.Error("only SET NULL requires nullable columns")
	}
	if _, err := ParseReferentialAction("explode"); !errors.Is(err, sagaerrors.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestIndexTypePredicates(t *testing.T) {
	if !Primary.IsUnique() || !Unique.IsUnique() || Plain.IsUnique() {
		t.Error("IsUnique mismatch")
	}
	if Spatial.AllowsMultipleColumns() || !Plain.AllowsMultipleColumns() {
		t.Error("AllowsMultipleColumns mismatch")
	}
}

func TestNewColumnValidation(t *testing.T) {
	tests := []struct {
		name    string
		col     string
		typ     ColumnType
		opts    []ColumnOption
		wantErr bool
	}{
		{"plain integer", "age", Integer, nil, false},
		{"varchar with length", "name", Varchar, []ColumnOption{Length(100)}, false},
		{"varchar without length", "name", Varchar, nil, true},
		{"length on integer", "age", Integer, []ColumnOption{Length(11)}, true},
		{"bad identifier", "1name", Integer, nil, true},
		{"dashes", "first-name", Text, nil, true},
		{"auto increment text", "id", Text, []ColumnOption{AutoIncrement()}, true},
		{"auto increment integer", "id", BigInteger, []ColumnOption{AutoIncrement(), Unsigned()}, false},
		{"decimal precision", "price", Decimal, []ColumnOption{Precision(10, 2)}, false},
		{"scale above precision", "price", Decimal, []ColumnOption{Precision(2, 3)}, true},
		{"precision on varchar", "name", Varchar, []ColumnOption{Length(5), Precision(3, 1)}, true},
		{"unsigned text", "name", Text, []ColumnOption{Unsigned()}, true},
		{"null default not null", "bio", Text, []ColumnOption{Default(nil)}, true},
		{"null default nullable", "bio", Text, []ColumnOption{Default(nil), Nullable()}, false},
		{"unknown type", "x", ColumnType(99), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewColumn(tt.col, tt.typ, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewColumn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *sagaerrors.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error %T is not a ValidationError", err)
				}
				if c.Name() != "" {
					t.Error("a failed constructor must return the zero value")
				}
			}
		})
	}
}

func TestColumnWithMethodsDoNotMutate(t *testing.T) {
	c := MustColumn("name", Varchar, Length(50))
	renamed, err := c.WithName("title")
	if err != nil {
		t.Fatalf("WithName() error = %v", err)
	}
	if c.Name() != "name" || renamed.Name() != "title" {
		t.Errorf("c=%s renamed=%s", c.Name(), renamed.Name())
	}
	if _, err := c.WithType(Varchar, 0); err == nil {
		t.Error("WithType(VARCHAR, 0) should fail validation")
	}
	withDef, err := c.WithDefault("anon")
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := withDef.Default(); !ok || v != "anon" {
		t.Errorf("Default() = %v, %v", v, ok)
	}
	if _, ok := c.Default(); ok {
		t.Error("original column gained a default")
	}
}

func TestNewIndex(t *testing.T) {
	if _, err := NewIndex("geo", Spatial, "lat", "lng"); err == nil {
		t.Error("spatial index over two columns should fail")
	}
	if _, err := NewIndex("ix", Plain); err == nil {
		t.Error("index without columns should fail")
	}
	if _, err := NewIndex("ix", Plain, "a", "a"); err == nil {
		t.Error("duplicate column should fail")
	}
	pk, err := NewIndex("", Primary, "id")
	if err != nil || pk.Name() != PrimaryIndexName {
		t.Errorf("NewIndex(primary) = %v, %v", pk, err)
	}
	if got := IndexName("users", Unique, "email"); got != "users_email_unique" {
		t.Errorf("IndexName() = %q", got)
	}
}

func TestNewForeignKey(t *testing.T) {
	if _, err := NewForeignKey("fk", []string{"a", "b"}, "sagas", []string{"id"}); err == nil {
		t.Error("mismatched column counts should fail")
	}
	fk, err := NewForeignKey("", []string{"saga_id"}, "sagas", []string{"id"}, OnDelete(Cascade))
	if err != nil {
		t.Fatalf("NewForeignKey() error = %v", err)
	}
	if fk.OnDelete() != Cascade || fk.OnUpdate() != NoAction {
		t.Errorf("actions = %v/%v", fk.OnDelete(), fk.OnUpdate())
	}
}

func entitiesTable(t *testing.T, opts ...TableOption) TableDefinition {
	t.Helper()
	cols := []ColumnDefinition{
		MustColumn("id", BigInteger, AutoIncrement()),
		MustColumn("saga_id", BigInteger),
		MustColumn("name", Varchar, Length(255)),
		MustColumn("parent_id", BigInteger, Nullable()),
	}
	tbl, err := NewTable("entities", cols, opts...)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	return tbl
}

func TestNewTable(t *testing.T) {
	tbl := entitiesTable(t,
		Indexes(MustIndex("", Unique, "saga_id", "name")),
		ForeignKeys(MustForeignKey("", []string{"saga_id"}, "sagas", []string{"id"}, OnDelete(Cascade))),
	)
	if pk := tbl.PrimaryKey(); len(pk) != 1 || pk[0] != "id" {
		t.Errorf("implicit primary key = %v, want [id]", pk)
	}
	if !tbl.HasIndex("entities_saga_id_name_unique") {
		t.Errorf("index names = %v", tbl.Indexes())
	}
	if !tbl.HasForeignKey("entities_saga_id_foreign") {
		t.Errorf("foreign keys = %v", tbl.ForeignKeys())
	}
	keys := tbl.UniqueKeys()
	if len(keys) != 2 || keys[0][0] != "id" || keys[1][1] != "name" {
		t.Errorf("UniqueKeys() = %v", keys)
	}
}

func TestNewTableValidation(t *testing.T) {
	id := MustColumn("id", Integer)
	name := MustColumn("name", Text)
	tests := []struct {
		name string
		cols []ColumnDefinition
		opts []TableOption
	}{
		{"no columns", nil, nil},
		{"duplicate column", []ColumnDefinition{id, id}, nil},
		{"unknown pk column", []ColumnDefinition{id}, []TableOption{PrimaryKey("uuid")}},
		{"unknown index column", []ColumnDefinition{id}, []TableOption{Indexes(MustIndex("ix", Plain, "name"))}},
		{"unknown fk column", []ColumnDefinition{id}, []TableOption{
			ForeignKeys(MustForeignKey("fk", []string{"saga_id"}, "sagas", []string{"id"})),
		}},
		{"set null on not null", []ColumnDefinition{id, name}, []TableOption{
			ForeignKeys(MustForeignKey("fk", []string{"id"}, "sagas", []string{"id"}, OnDelete(SetNull))),
		}},
		{"duplicate index name", []ColumnDefinition{id, name}, []TableOption{
			Indexes(MustIndex("ix", Plain, "id"), MustIndex("ix", Plain, "name")),
		}},
		{"auto increment outside key", []ColumnDefinition{MustColumn("n", Integer, AutoIncrement()), id},
			[]TableOption{PrimaryKey("id")}},
		{"nullable pk", []ColumnDefinition{MustColumn("id", Integer, Nullable())}, []TableOption{PrimaryKey("id")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable("things", tt.cols, tt.opts...); err == nil {
				t.Error("NewTable() should fail")
			} else if !errors.Is(err, sagaerrors.ErrInvalidInput) {
				t.Errorf("error %v is not invalid input", err)
			}
		})
	}
}

func TestTableColumnRename(t *testing.T) {
	tbl := entitiesTable(t, Indexes(MustIndex("by_saga", Plain, "saga_id")))
	renamed, err := tbl.WithColumnRenamed("saga_id", "story_id")
	if err != nil {
		t.Fatalf("WithColumnRenamed() error = %v", err)
	}
	ix, _ := renamed.Index("by_saga")
	if cols := ix.Columns(); cols[0] != "story_id" {
		t.Errorf("index not updated: %v", cols)
	}
	if !tbl.HasColumn("saga_id") {
		t.Error("original table was mutated")
	}
	if _, err := tbl.WithColumnRenamed("saga_id", "name"); err == nil {
		t.Error("renaming onto an existing column should fail")
	}
}

func TestTableWithoutColumn(t *testing.T) {
	tbl := entitiesTable(t,
		Indexes(MustIndex("by_saga", Plain, "saga_id"), MustIndex("by_saga_name", Plain, "saga_id", "name")),
	)
	dropped, err := tbl.WithoutColumn("saga_id")
	if err != nil {
		t.Fatalf("WithoutColumn() error = %v", err)
	}
	if dropped.HasIndex("by_saga") {
		t.Error("single-column index should be dropped with its column")
	}
	ix, ok := dropped.Index("by_saga_name")
	if !ok || len(ix.Columns()) != 1 {
		t.Errorf("composite index should shrink, got %v", ix)
	}
	if len(tbl.Indexes()) != 2 {
		t.Error("original table was mutated")
	}
}

func TestTableEqual(t *testing.T) {
	a := entitiesTable(t)
	b := entitiesTable(t)
	if !a.Equal(b) {
		t.Error("identical definitions should be equal")
	}
	c := a.WithComment("x")
	if a.Equal(c) {
		t.Error("comment should affect equality")
	}
	pkless, err := a.WithoutIndex(PrimaryIndexName)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkless.PrimaryKey()) != 0 {
		t.Errorf("PrimaryKey() = %v after dropping PRIMARY", pkless.PrimaryKey())
	}
}
