package migrate

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
	"github.com/calounx/sagas-sub011/core/row"
	"github.com/calounx/sagas-sub011/core/schema"
)

// Migration documents look like:
//
//	<migrations>
//	  <migration id="2024_01_create_sagas" description="sagas table">
//	    <up>
//	      <create-table name="sagas">
//	        <column name="id" type="integer" auto-increment="true"/>
//	        <column name="title" type="varchar" length="100"/>
//	        <index name="sagas_title_unique" type="unique" columns="title"/>
//	      </create-table>
//	    </up>
//	    <down>
//	      <drop-table name="sagas"/>
//	    </down>
//	  </migration>
//	</migrations>
var (
	migrationsExpr = xpath.MustCompile("/migrations/migration")
	upExpr         = xpath.MustCompile("up")
	downExpr       = xpath.MustCompile("down")
)

const xmlFormat = "XML migration"

// step is one schema operation read from a document.
type step func(schema.Manager) error

// LoadXML reads migrations from an XML document. Every step is validated
// while loading, so a document that loads cleanly only fails at apply time
// on database state.
func LoadXML(r io.Reader) ([]Migration, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &sagaerrors.ParseError{Format: xmlFormat, Message: err.Error(), Err: err}
	}
	nodes := xmlquery.QuerySelectorAll(doc, migrationsExpr)
	if len(nodes) == 0 {
		return nil, &sagaerrors.ParseError{Format: xmlFormat, Message: "no /migrations/migration elements"}
	}
	migrations := make([]Migration, 0, len(nodes))
	for _, n := range nodes {
		mig, err := parseMigration(n)
		if err != nil {
			return nil, &sagaerrors.ParseError{Format: xmlFormat, Input: n.SelectAttr("id"), Message: err.Error(), Err: err}
		}
		migrations = append(migrations, mig)
	}
	if err := check(migrations); err != nil {
		return nil, &sagaerrors.ParseError{Format: xmlFormat, Message: err.Error(), Err: err}
	}
	return migrations, nil
}

func parseMigration(n *xmlquery.Node) (Migration, error) {
	mig := Migration{ID: n.SelectAttr("id"), Description: n.SelectAttr("description")}
	up := xmlquery.QuerySelector(n, upExpr)
	if up == nil {
		return mig, fmt.Errorf("missing <up>")
	}
	steps, err := parseSteps(up)
	if err != nil {
		return mig, err
	}
	mig.Up = sequence(steps)
	if down := xmlquery.QuerySelector(n, downExpr); down != nil {
		steps, err := parseSteps(down)
		if err != nil {
			return mig, err
		}
		mig.Down = sequence(steps)
	}
	return mig, nil
}

func sequence(steps []step) func(schema.Manager) error {
	return func(sm schema.Manager) error {
		for _, s := range steps {
			if err := s(sm); err != nil {
				return err
			}
		}
		return nil
	}
}

func elements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func parseSteps(n *xmlquery.Node) ([]step, error) {
	var steps []step
	for _, el := range elements(n) {
		s, err := parseStep(el)
		if err != nil {
			return nil, fmt.Errorf("<%s>: %w", el.Data, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// attrs reads required attributes, failing on the first missing one.
func attrs(n *xmlquery.Node, names ...string) ([]string, error) {
	vals := make([]string, len(names))
	for i, name := range names {
		v := strings.TrimSpace(n.SelectAttr(name))
		if v == "" {
			return nil, fmt.Errorf("missing attribute %q", name)
		}
		vals[i] = v
	}
	return vals, nil
}

func flag(n *xmlquery.Node, name string) (bool, error) {
	v := n.SelectAttr(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("attribute %q: %w", name, err)
	}
	return b, nil
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseStep(n *xmlquery.Node) (step, error) {
	switch n.Data {
	case "create-table":
		def, err := parseTable(n)
		if err != nil {
			return nil, err
		}
		lenient, err := flag(n, "if-not-exists")
		if err != nil {
			return nil, err
		}
		if lenient {
			return func(sm schema.Manager) error { _, err := sm.CreateTableIfNotExists(def); return err }, nil
		}
		return func(sm schema.Manager) error { return sm.CreateTable(def) }, nil

	case "drop-table":
		a, err := attrs(n, "name")
		if err != nil {
			return nil, err
		}
		lenient, err := flag(n, "if-exists")
		if err != nil {
			return nil, err
		}
		if lenient {
			return func(sm schema.Manager) error { _, err := sm.DropTableIfExists(a[0]); return err }, nil
		}
		return func(sm schema.Manager) error { return sm.DropTable(a[0]) }, nil

	case "rename-table":
		a, err := names(n, "from", "to")
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.RenameTable(a[0], a[1]) }, nil

	case "add-column", "modify-column":
		a, err := names(n, "table")
		if err != nil {
			return nil, err
		}
		c, err := parseColumn(n)
		if err != nil {
			return nil, err
		}
		if n.Data == "add-column" {
			return func(sm schema.Manager) error { return sm.AddColumn(a[0], c) }, nil
		}
		return func(sm schema.Manager) error { return sm.ModifyColumn(a[0], c) }, nil

	case "drop-column":
		a, err := names(n, "table", "name")
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.DropColumn(a[0], a[1]) }, nil

	case "rename-column":
		a, err := names(n, "table", "from", "to")
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.RenameColumn(a[0], a[1], a[2]) }, nil

	case "add-index":
		a, err := names(n, "table")
		if err != nil {
			return nil, err
		}
		ix, err := parseIndex(n)
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.AddIndex(a[0], ix) }, nil

	case "drop-index":
		a, err := names(n, "table", "name")
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.DropIndex(a[0], a[1]) }, nil

	case "rename-index":
		a, err := names(n, "table", "from", "to")
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.RenameIndex(a[0], a[1], a[2]) }, nil

	case "add-foreign-key":
		a, err := names(n, "table")
		if err != nil {
			return nil, err
		}
		fk, err := parseForeignKey(n)
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.AddForeignKey(a[0], fk) }, nil

	case "drop-foreign-key":
		a, err := names(n, "table", "name")
		if err != nil {
			return nil, err
		}
		return func(sm schema.Manager) error { return sm.DropForeignKey(a[0], a[1]) }, nil
	}
	return nil, fmt.Errorf("unknown step")
}

// names reads required attributes that must be identifiers.
func names(n *xmlquery.Node, keys ...string) ([]string, error) {
	vals, err := attrs(n, keys...)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if err := validName(keys[i], v); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func parseTable(n *xmlquery.Node) (schema.TableDefinition, error) {
	a, err := attrs(n, "name")
	if err != nil {
		return schema.TableDefinition{}, err
	}
	var (
		cols []schema.ColumnDefinition
		opts []schema.TableOption
	)
	if c := n.SelectAttr("comment"); c != "" {
		opts = append(opts, schema.TableComment(c))
	}
	for _, el := range elements(n) {
		switch el.Data {
		case "column":
			c, err := parseColumn(el)
			if err != nil {
				return schema.TableDefinition{}, err
			}
			cols = append(cols, c)
		case "primary-key":
			v, err := attrs(el, "columns")
			if err != nil {
				return schema.TableDefinition{}, err
			}
			opts = append(opts, schema.PrimaryKey(list(v[0])...))
		case "index":
			ix, err := parseIndex(el)
			if err != nil {
				return schema.TableDefinition{}, err
			}
			opts = append(opts, schema.Indexes(ix))
		case "foreign-key":
			fk, err := parseForeignKey(el)
			if err != nil {
				return schema.TableDefinition{}, err
			}
			opts = append(opts, schema.ForeignKeys(fk))
		default:
			return schema.TableDefinition{}, fmt.Errorf("unknown element <%s> in table %s", el.Data, a[0])
		}
	}
	return schema.NewTable(a[0], cols, opts...)
}

func parseColumn(n *xmlquery.Node) (schema.ColumnDefinition, error) {
	a, err := attrs(n, "name", "type")
	if err != nil {
		return schema.ColumnDefinition{}, err
	}
	typ, err := schema.ParseColumnType(a[1])
	if err != nil {
		return schema.ColumnDefinition{}, err
	}
	var opts []schema.ColumnOption
	if v := n.SelectAttr("length"); v != "" {
		length, err := strconv.Atoi(v)
		if err != nil {
			return schema.ColumnDefinition{}, fmt.Errorf("column %s length: %w", a[0], err)
		}
		opts = append(opts, schema.Length(length))
	}
	if v := n.SelectAttr("precision"); v != "" {
		p, s, _ := strings.Cut(v, ",")
		precision, err1 := strconv.Atoi(strings.TrimSpace(p))
		scale, err2 := strconv.Atoi(strings.TrimSpace(s))
		if err1 != nil || (s != "" && err2 != nil) {
			return schema.ColumnDefinition{}, fmt.Errorf("column %s precision %q", a[0], v)
		}
		opts = append(opts, schema.Precision(precision, scale))
	}
	for attr, opt := range map[string]func() schema.ColumnOption{
		"nullable":       schema.Nullable,
		"auto-increment": schema.AutoIncrement,
		"unsigned":       schema.Unsigned,
	} {
		on, err := flag(n, attr)
		if err != nil {
			return schema.ColumnDefinition{}, err
		}
		if on {
			opts = append(opts, opt())
		}
	}
	if hasAttr(n, "default") {
		opts = append(opts, schema.Default(defaultValue(typ, n.SelectAttr("default"))))
	}
	if c := n.SelectAttr("comment"); c != "" {
		opts = append(opts, schema.Comment(c))
	}
	return schema.NewColumn(a[0], typ, opts...)
}

func hasAttr(n *xmlquery.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// defaultValue types a default attribute after its column: numbers for
// numeric columns, booleans for boolean columns, text otherwise.
func defaultValue(typ schema.ColumnType, v string) any {
	switch {
	case typ == schema.Boolean:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	case typ.IsNumeric():
		if num, ok := row.ParseNumber(v); ok {
			return num
		}
	}
	return v
}

func parseIndex(n *xmlquery.Node) (schema.IndexDefinition, error) {
	a, err := attrs(n, "name", "columns")
	if err != nil {
		return schema.IndexDefinition{}, err
	}
	typ, err := schema.ParseIndexType(n.SelectAttr("type"))
	if err != nil {
		return schema.IndexDefinition{}, err
	}
	return schema.NewIndex(a[0], typ, list(a[1])...)
}

func parseForeignKey(n *xmlquery.Node) (schema.ForeignKeyDefinition, error) {
	a, err := attrs(n, "name", "columns", "references", "ref-columns")
	if err != nil {
		return schema.ForeignKeyDefinition{}, err
	}
	var opts []schema.ForeignKeyOption
	if v := n.SelectAttr("on-delete"); v != "" {
		act, err := schema.ParseReferentialAction(v)
		if err != nil {
			return schema.ForeignKeyDefinition{}, err
		}
		opts = append(opts, schema.OnDelete(act))
	}
	if v := n.SelectAttr("on-update"); v != "" {
		act, err := schema.ParseReferentialAction(v)
		if err != nil {
			return schema.ForeignKeyDefinition{}, err
		}
		opts = append(opts, schema.OnUpdate(act))
	}
	return schema.NewForeignKey(a[0], list(a[1]), a[2], list(a[3]), opts...)
}
