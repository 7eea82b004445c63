package memory

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
	"github.com/calounx/sagas-sub011/internal/logging"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

// ImageVersion is the format version written into store images.
const ImageVersion = 1

// Injectable functions for testing
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// cell is one stored value. JSON has no distinct float or binary type, so
// floats encode as {"float":x} and bytes as {"bytes":"<base64>"}.
type cell struct{ v any }

func (c cell) MarshalJSON() ([]byte, error) {
	switch x := c.v.(type) {
	case float64:
		return json.Marshal(map[string]float64{"float": x})
	case []byte:
		return json.Marshal(map[string]string{"bytes": base64.StdEncoding.EncodeToString(x)})
	}
	return json.Marshal(c.v)
}

func (c *cell) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return fmt.Errorf("image: integer cell %s: %w", x, err)
		}
		c.v = i
	case map[string]any:
		if f, ok := x["float"].(json.Number); ok {
			n, err := f.Float64()
			if err != nil {
				return err
			}
			c.v = n
			return nil
		}
		s, ok := x["bytes"].(string)
		if !ok {
			return fmt.Errorf("image: unknown cell %s", data)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		c.v = b
	default:
		c.v = v
	}
	return nil
}

type columnImage struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Length        int    `json:"length,omitempty"`
	Precision     int    `json:"precision,omitempty"`
	Scale         int    `json:"scale,omitempty"`
	Nullable      bool   `json:"nullable,omitempty"`
	HasDefault    bool   `json:"has_default,omitempty"`
	Default       cell   `json:"default"`
	AutoIncrement bool   `json:"auto_increment,omitempty"`
	Unsigned      bool   `json:"unsigned,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

type indexImage struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Columns []string `json:"columns"`
}

type foreignKeyImage struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`
	OnDelete   string   `json:"on_delete"`
	OnUpdate   string   `json:"on_update"`
}

type tableImage struct {
	Name        string            `json:"name"`
	Comment     string            `json:"comment,omitempty"`
	Columns     []columnImage     `json:"columns"`
	PrimaryKey  []string          `json:"primary_key,omitempty"`
	Indexes     []indexImage      `json:"indexes,omitempty"`
	ForeignKeys []foreignKeyImage `json:"foreign_keys,omitempty"`
	LastID      int64             `json:"last_id"`
	Rows        [][]cell          `json:"rows"`
}

// Image is the serializable form of a store: every table with its schema,
// auto-increment counter and rows in column order. Tables are ordered by
// logical name, so equal stores produce identical images.
type Image struct {
	Version int          `json:"version"`
	Tables  []tableImage `json:"tables"`
}

func imageOf(t *table) tableImage {
	def := t.def
	ti := tableImage{
		Name:       def.Name(),
		Comment:    def.Comment(),
		PrimaryKey: def.PrimaryKey(),
		LastID:     t.lastID,
		Rows:       make([][]cell, len(t.rows)),
	}
	for _, c := range def.Columns() {
		precision, scale := c.Precision()
		ci := columnImage{
			Name:          c.Name(),
			Type:          c.Type().String(),
			Length:        c.Length(),
			Precision:     precision,
			Scale:         scale,
			Nullable:      c.Nullable(),
			AutoIncrement: c.AutoIncrement(),
			Unsigned:      c.Unsigned(),
			Comment:       c.Comment(),
		}
		if d, ok := c.Default(); ok {
			ci.HasDefault, ci.Default = true, cell{d}
		}
		ti.Columns = append(ti.Columns, ci)
	}
	for _, ix := range def.Indexes() {
		ti.Indexes = append(ti.Indexes, indexImage{Name: ix.Name(), Type: ix.Type().String(), Columns: ix.Columns()})
	}
	for _, fk := range def.ForeignKeys() {
		ti.ForeignKeys = append(ti.ForeignKeys, foreignKeyImage{
			Name:       fk.Name(),
			Columns:    fk.Columns(),
			RefTable:   fk.ReferencedTable(),
			RefColumns: fk.ReferencedColumns(),
			OnDelete:   fk.OnDelete().String(),
			OnUpdate:   fk.OnUpdate().String(),
		})
	}
	cols := def.ColumnNames()
	for i, r := range t.rows {
		cells := make([]cell, len(cols))
		for j, c := range cols {
			cells[j] = cell{r.Value(c)}
		}
		ti.Rows[i] = cells
	}
	return ti
}

func (ti tableImage) table() (*table, error) {
	cols := make([]schema.ColumnDefinition, 0, len(ti.Columns))
	for _, ci := range ti.Columns {
		typ, err := schema.ParseColumnType(ci.Type)
		if err != nil {
			return nil, err
		}
		var opts []schema.ColumnOption
		if ci.Length > 0 {
			opts = append(opts, schema.Length(ci.Length))
		}
		if ci.Precision > 0 {
			opts = append(opts, schema.Precision(ci.Precision, ci.Scale))
		}
		if ci.Nullable {
			opts = append(opts, schema.Nullable())
		}
		if ci.HasDefault {
			opts = append(opts, schema.Default(ci.Default.v))
		}
		if ci.AutoIncrement {
			opts = append(opts, schema.AutoIncrement())
		}
		if ci.Unsigned {
			opts = append(opts, schema.Unsigned())
		}
		if ci.Comment != "" {
			opts = append(opts, schema.Comment(ci.Comment))
		}
		c, err := schema.NewColumn(ci.Name, typ, opts...)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	opts := []schema.TableOption{schema.PrimaryKey(ti.PrimaryKey...)}
	if ti.Comment != "" {
		opts = append(opts, schema.TableComment(ti.Comment))
	}
	for _, ii := range ti.Indexes {
		typ, err := schema.ParseIndexType(ii.Type)
		if err != nil {
			return nil, err
		}
		ix, err := schema.NewIndex(ii.Name, typ, ii.Columns...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.Indexes(ix))
	}
	for _, fi := range ti.ForeignKeys {
		onDelete, err := schema.ParseReferentialAction(fi.OnDelete)
		if err != nil {
			return nil, err
		}
		onUpdate, err := schema.ParseReferentialAction(fi.OnUpdate)
		if err != nil {
			return nil, err
		}
		fk, err := schema.NewForeignKey(fi.Name, fi.Columns, fi.RefTable, fi.RefColumns,
			schema.OnDelete(onDelete), schema.OnUpdate(onUpdate))
		if err != nil {
			return nil, err
		}
		opts = append(opts, schema.ForeignKeys(fk))
	}
	def, err := schema.NewTable(ti.Name, cols, opts...)
	if err != nil {
		return nil, err
	}
	names := def.ColumnNames()
	t := &table{def: def, lastID: ti.LastID, rows: make([]row.Row, len(ti.Rows))}
	for i, cells := range ti.Rows {
		vals := make([]any, len(cells))
		for j, c := range cells {
			vals[j] = c.v
		}
		r, err := row.FromColumns(names, vals)
		if err != nil {
			return nil, fmt.Errorf("table %s row %d: %w", ti.Name, i, err)
		}
		t.rows[i] = r
	}
	return t, nil
}

// image captures the store. Callers hold mu.
func (s *Store) image() Image {
	img := Image{Version: ImageVersion, Tables: make([]tableImage, 0, len(s.tables))}
	for _, t := range s.tables {
		img.Tables = append(img.Tables, imageOf(t))
	}
	sort.Slice(img.Tables, func(i, j int) bool { return img.Tables[i].Name < img.Tables[j].Name })
	return img
}

// Snapshot returns the current contents of the store as an Image.
func (s *Store) Snapshot() Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image()
}

// Fingerprint returns the BLAKE3 hex digest of the canonical image. Two
// stores with the same schemas, counters and rows have the same fingerprint.
func (s *Store) Fingerprint() (string, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SaveImage writes an xz-compressed JSON image of the store to w.
func (s *Store) SaveImage(w io.Writer) error {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	zw, err := xzNewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish image: %w", err)
	}
	logging.Debug("image saved", "backend", Backend, "tables", len(s.Tables()), "bytes", len(data))
	return nil
}

// LoadImage replaces the contents of the store with the image read from r.
// It fails while a transaction is active.
func (s *Store) LoadImage(r io.Reader) error {
	zr, err := xzNewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create xz reader: %w", err)
	}
	var img Image
	if err := json.NewDecoder(zr).Decode(&img); err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	return s.Restore(img)
}

// Restore replaces the contents of the store with img.
func (s *Store) Restore(img Image) error {
	if img.Version != ImageVersion {
		return sagaerrors.NewValidation("image.version", fmt.Sprint(img.Version), "unsupported image version")
	}
	loaded := make(tables, len(img.Tables))
	for _, ti := range img.Tables {
		t, err := ti.table()
		if err != nil {
			return fmt.Errorf("failed to load table %s: %w", ti.Name, err)
		}
		loaded[s.TableName(t.def.Name())] = t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return sagaerrors.NewTransaction("load image", sagaerrors.ErrTransactionActive)
	}
	s.tables = loaded
	logging.Info("image loaded", "backend", Backend, "tables", len(loaded))
	return nil
}
