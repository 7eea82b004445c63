package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/calounx/sagas-sub011/core/database"
	"github.com/calounx/sagas-sub011/core/memory"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/internal/validation"
)

// copyBatch bounds the rows inserted per statement while copying.
const copyBatch = 500

// openImage opens an in-process connection, loading path when it is set.
func openImage(path string) (*database.Connection, *memory.Store, error) {
	cfg := database.DefaultConfig()
	cfg.DSN = path
	conn, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, _ := conn.Store()
	return conn, store, nil
}

// dependencyOrder sorts tables so that every table follows the tables its
// foreign keys reference. Cycles keep their input order.
func dependencyOrder(defs []schema.TableDefinition) []schema.TableDefinition {
	byName := make(map[string]schema.TableDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name()] = def
	}
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var out []schema.TableDefinition
	var visit func(schema.TableDefinition)
	visit = func(def schema.TableDefinition) {
		if state[def.Name()] != 0 {
			return
		}
		state[def.Name()] = visiting
		for _, fk := range def.ForeignKeys() {
			if ref, ok := byName[fk.ReferencedTable()]; ok && ref.Name() != def.Name() {
				visit(ref)
			}
		}
		state[def.Name()] = done
		out = append(out, def)
	}
	for _, def := range defs {
		visit(def)
	}
	return out
}

// copyTables recreates every table of src in dst and copies its rows, in one
// transaction on dst. It returns the copied table names.
func copyTables(dst, src *database.Connection) ([]string, error) {
	from, err := src.Schema()
	if err != nil {
		return nil, err
	}
	names, err := from.GetTables()
	if err != nil {
		return nil, err
	}
	defs := make([]schema.TableDefinition, 0, len(names))
	for _, name := range names {
		def, err := from.GetTable(name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	to, err := dst.Schema()
	if err != nil {
		return nil, err
	}

	var copied []string
	err = dst.Transaction().Run(func() error {
		for _, def := range dependencyOrder(defs) {
			if err := to.CreateTable(def); err != nil {
				return err
			}
			rs, err := src.Table(def.Name()).Get()
			if err != nil {
				return err
			}
			rows := rs.Rows()
			for start := 0; start < len(rows); start += copyBatch {
				end := min(start+copyBatch, len(rows))
				if _, err := dst.Table(def.Name()).InsertBatch(rows[start:end]); err != nil {
					return err
				}
			}
			copied = append(copied, def.Name())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

// ImageSaveCmd writes the database to a store image.
type ImageSaveCmd struct {
	Path string `arg:"" help:"Image file to write" type:"path"`
}

func (c *ImageSaveCmd) Run(g *Globals) error {
	if err := validation.ValidatePath(c.Path); err != nil {
		return fmt.Errorf("invalid image path: %w", err)
	}
	src, err := g.open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, store, err := openImage("")
	if err != nil {
		return err
	}
	defer dst.Close()

	copied, err := copyTables(dst, src)
	if err != nil {
		return err
	}
	f, err := os.Create(c.Path)
	if err != nil {
		return err
	}
	if err := store.SaveImage(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	sum, err := store.Fingerprint()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "saved %d table(s) to %s\nfingerprint %s\n", len(copied), c.Path, sum)
	return nil
}

// ImageLoadCmd copies a store image into the database.
type ImageLoadCmd struct {
	Path string `arg:"" help:"Image file to read" type:"existingfile"`
}

func (c *ImageLoadCmd) Run(g *Globals) error {
	src, _, err := openImage(c.Path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := g.open()
	if err != nil {
		return err
	}
	defer dst.Close()

	copied, err := copyTables(dst, src)
	if err != nil {
		return err
	}
	for _, name := range copied {
		fmt.Fprintf(stdout, "loaded %s\n", name)
	}
	return nil
}

// ImageInfoCmd prints the fingerprint and statistics of an image.
type ImageInfoCmd struct {
	Path string `arg:"" help:"Image file to read" type:"existingfile"`
}

func (c *ImageInfoCmd) Run() error {
	conn, store, err := openImage(c.Path)
	if err != nil {
		return err
	}
	defer conn.Close()

	sum, err := store.Fingerprint()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "fingerprint %s\n", sum)
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tCOLUMNS\tROWS\tLAST ID")
	for _, t := range store.Tables() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t.Name, t.Columns, t.Rows, t.LastID)
	}
	return w.Flush()
}
