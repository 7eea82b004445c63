package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/calounx/sagas-sub011/core/migrate"
	"github.com/calounx/sagas-sub011/core/result"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
)

// QueryCmd runs one raw statement.
type QueryCmd struct {
	SQL      string   `arg:"" help:"Statement to run"`
	Bindings []string `arg:"" optional:"" help:"Positional bindings; numeric values bind as numbers"`
	JSON     bool     `help:"Print rows as JSON"`
}

func (c *QueryCmd) Run(g *Globals) error {
	conn, err := g.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]any, len(c.Bindings))
	for i, b := range c.Bindings {
		args[i] = b
		if n, ok := row.ParseNumber(b); ok {
			args[i] = n
		}
	}
	rs, err := conn.Raw(c.SQL, args...)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	}
	printResult(rs)
	return nil
}

func printResult(rs *result.ResultSet) {
	cols := rs.Columns()
	if len(cols) == 0 && rs.IsEmpty() {
		fmt.Fprintf(stdout, "%d row(s) affected", rs.AffectedRows())
		if id, ok := rs.LastInsertID(); ok {
			fmt.Fprintf(stdout, ", last insert id %d", id)
		}
		fmt.Fprintln(stdout)
		return
	}
	if len(cols) == 0 {
		first, _ := rs.First()
		cols = first.Columns()
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, r := range rs.All() {
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = cell(r.Value(col))
		}
		fmt.Fprintln(w, strings.Join(vals, "\t"))
	}
	w.Flush()
	fmt.Fprintf(stdout, "(%d row(s))\n", rs.Len())
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	return row.ToString(v)
}

// TablesCmd lists every table with its row count.
type TablesCmd struct{}

func (c *TablesCmd) Run(g *Globals) error {
	conn, err := g.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	sm, err := conn.Schema()
	if err != nil {
		return err
	}
	names, err := sm.GetTables()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	for _, name := range names {
		n, err := conn.Table(name).Count()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", name, n)
	}
	return w.Flush()
}

// ColumnsCmd describes one table.
type ColumnsCmd struct {
	Table string `arg:"" help:"Logical table name"`
}

func (c *ColumnsCmd) Run(g *Globals) error {
	conn, err := g.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	sm, err := conn.Schema()
	if err != nil {
		return err
	}
	def, err := sm.GetTable(c.Table)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tTYPE\tNULL\tDEFAULT\tEXTRA")
	for _, col := range def.Columns() {
		typ := col.Type().String()
		if col.Length() > 0 {
			typ = fmt.Sprintf("%s(%d)", typ, col.Length())
		}
		null := "NO"
		if col.Nullable() {
			null = "YES"
		}
		dflt := ""
		if v, ok := col.Default(); ok {
			dflt = row.FormatValue(v)
		}
		var extra []string
		if col.AutoIncrement() {
			extra = append(extra, "auto_increment")
		}
		if col.Unsigned() {
			extra = append(extra, "unsigned")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", col.Name(), typ, null, dflt, strings.Join(extra, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if pk := def.PrimaryKey(); len(pk) > 0 {
		fmt.Fprintf(stdout, "\nPRIMARY KEY (%s)\n", strings.Join(pk, ", "))
	}
	for _, ix := range def.Indexes() {
		if ix.Type() == schema.Primary {
			continue
		}
		fmt.Fprintf(stdout, "INDEX %s %s (%s)\n", ix.Name(), ix.Type(), strings.Join(ix.Columns(), ", "))
	}
	for _, fk := range def.ForeignKeys() {
		fmt.Fprintf(stdout, "FOREIGN KEY %s (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s\n",
			fk.Name(), strings.Join(fk.Columns(), ", "), fk.ReferencedTable(),
			strings.Join(fk.ReferencedColumns(), ", "), fk.OnDelete(), fk.OnUpdate())
	}
	return nil
}

func loadMigrations(path string) ([]migrate.Migration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return migrate.LoadXML(f)
}

// MigrateUpCmd applies pending migrations.
type MigrateUpCmd struct {
	File string `arg:"" help:"XML migration document" type:"existingfile"`
}

func (c *MigrateUpCmd) Run(g *Globals) error {
	migs, err := loadMigrations(c.File)
	if err != nil {
		return err
	}
	conn, err := g.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	applied, err := migrate.New(conn).Apply(migs)
	for _, id := range applied {
		fmt.Fprintf(stdout, "applied %s\n", id)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "nothing to apply")
	}
	return nil
}

// MigrateDownCmd reverts the newest migrations.
type MigrateDownCmd struct {
	File  string `arg:"" help:"XML migration document" type:"existingfile"`
	Steps int    `help:"Number of migrations to revert" default:"1"`
}

func (c *MigrateDownCmd) Run(g *Globals) error {
	migs, err := loadMigrations(c.File)
	if err != nil {
		return err
	}
	conn, err := g.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	reverted, err := migrate.New(conn).Rollback(migs, c.Steps)
	for _, id := range reverted {
		fmt.Fprintf(stdout, "reverted %s\n", id)
	}
	return err
}

// MigrateStatusCmd lists the ledger and the pending migrations.
type MigrateStatusCmd struct {
	File string `arg:"" help:"XML migration document" type:"existingfile"`
}

func (c *MigrateStatusCmd) Run(g *Globals) error {
	migs, err := loadMigrations(c.File)
	if err != nil {
		return err
	}
	conn, err := g.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	m := migrate.New(conn)
	records, err := m.Applied()
	if err != nil {
		return err
	}
	pending, err := m.Pending(migs)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tBATCH\tAPPLIED\tDESCRIPTION")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", rec.ID, rec.Batch, rec.AppliedAt.Format(row.DateTimeLayout), rec.Description)
	}
	for _, mig := range pending {
		fmt.Fprintf(w, "%s\t-\tpending\t%s\n", mig.ID, mig.Description)
	}
	return w.Flush()
}
