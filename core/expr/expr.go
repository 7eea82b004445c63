// Package expr parses the SQL fragments that the in-process backend evaluates
// itself: join conditions, raw WHERE expressions and select items.
//
// The grammars accept a deliberately small SQL subset: boolean AND/OR/NOT with
// parentheses, comparisons, IS [NOT] NULL, [NOT] IN, [NOT] LIKE, [NOT] BETWEEN,
// literals, ? placeholders, column references and function calls.
package expr

import (
	"strconv"
	"strings"

	"github.com/calounx/sagas-sub011/core/cache"
	sagaerrors "github.com/calounx/sagas-sub011/core/errors"
)

// Node is a boolean expression node.
type Node interface{ node() }

// Logical joins terms with AND or OR.
type Logical struct {
	Op    string
	Terms []Node
}

// Not negates X.
type Not struct{ X Node }

// Compare is a binary comparison. Op is one of = != < > <= >=.
type Compare struct {
	Left  Operand
	Op    string
	Right Operand
}

// IsNull tests X for NULL.
type IsNull struct {
	X   Operand
	Not bool
}

// InList tests X for membership in Values.
type InList struct {
	X      Operand
	Values []Operand
	Not    bool
}

// Like matches X against a SQL wildcard pattern.
type Like struct {
	X, Pattern Operand
	Not        bool
}

// Between tests Low <= X <= High.
type Between struct {
	X, Low, High Operand
	Not          bool
}

// Truth is a bare operand used as a condition.
type Truth struct{ X Operand }

func (Logical) node() {}
func (Not) node()     {}
func (Compare) node() {}
func (IsNull) node()  {}
func (InList) node()  {}
func (Like) node()    {}
func (Between) node() {}
func (Truth) node()   {}

// OperandKind tags an Operand.
type OperandKind int

const (
	Literal OperandKind = iota
	Column
	Placeholder
	Func
	Star
)

// Operand is a value-producing leaf.
type Operand struct {
	Kind     OperandKind
	Value    any       // Literal
	Column   string    // Column, possibly qualified; Star with a table prefix
	Index    int       // Placeholder position, from 0
	Name     string    // Func, upper case
	Distinct bool      // Func
	Args     []Operand // Func
}

var aggregates = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

// IsAggregate reports whether the operand is an aggregate function call.
func (o Operand) IsAggregate() bool {
	return o.Kind == Func && aggregates[o.Name]
}

// String renders the operand back to SQL text.
func (o Operand) String() string {
	switch o.Kind {
	case Literal:
		switch v := o.Value.(type) {
		case nil:
			return "NULL"
		case string:
			return "'" + strings.ReplaceAll(v, "'", "''") + "'"
		case bool:
			if v {
				return "TRUE"
			}
			return "FALSE"
		case int64:
			return strconv.FormatInt(v, 10)
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
	case Column:
		return o.Column
	case Placeholder:
		return "?"
	case Star:
		if o.Column != "" {
			return o.Column + ".*"
		}
		return "*"
	case Func:
		args := make([]string, len(o.Args))
		for i, a := range o.Args {
			args[i] = a.String()
		}
		prefix := ""
		if o.Distinct {
			prefix = "DISTINCT "
		}
		return o.Name + "(" + prefix + strings.Join(args, ", ") + ")"
	}
	return ""
}

// Condition is a parsed raw WHERE expression.
type Condition struct {
	Root         Node
	Placeholders int
}

// JoinCondition is a parsed "a.col op b.col" join condition.
type JoinCondition struct {
	Left     string
	Operator string
	Right    string
}

// IsEqui reports whether the condition is an equality.
func (j JoinCondition) IsEqui() bool { return j.Operator == "=" }

// SelectItem is one entry of a select list.
type SelectItem struct {
	Expr  Operand
	Alias string
}

// Name is the output column name: the alias, the bare column, or the
// expression text.
func (s SelectItem) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	if s.Expr.Kind == Column {
		if i := strings.LastIndexByte(s.Expr.Column, '.'); i >= 0 {
			return s.Expr.Column[i+1:]
		}
	}
	return s.Expr.String()
}

var conditionCache = cache.New[string, *Condition](256)

// ParseCondition parses a raw WHERE expression. Results are cached by text
// and must not be modified.
func ParseCondition(s string) (*Condition, error) {
	return cache.GetOrCompute(conditionCache, s, func(s string) (*Condition, error) {
		g, err := conditionParser.ParseString("", s)
		if err != nil {
			return nil, parseError("raw condition", s, err)
		}
		c := &converter{}
		root, err := c.or(g)
		if err != nil {
			return nil, parseError("raw condition", s, err)
		}
		return &Condition{Root: root, Placeholders: c.placeholders}, nil
	})
}

// ParseJoin parses a join condition of the form "a.col = b.col".
func ParseJoin(s string) (JoinCondition, error) {
	g, err := joinParser.ParseString("", s)
	if err != nil {
		return JoinCondition{}, parseError("join condition", s, err)
	}
	return JoinCondition{
		Left:     g.Left.name(),
		Operator: normalizeOp(g.Op),
		Right:    g.Right.name(),
	}, nil
}

// ParseSelectItem parses one select list entry such as "name",
// "e.name AS entity" or "COUNT(*) AS total".
func ParseSelectItem(s string) (SelectItem, error) {
	g, err := selectParser.ParseString("", s)
	if err != nil {
		return SelectItem{}, parseError("select item", s, err)
	}
	c := &converter{}
	op, err := c.operand(g.Expr)
	if err != nil {
		return SelectItem{}, parseError("select item", s, err)
	}
	if c.placeholders > 0 {
		return SelectItem{}, &sagaerrors.ParseError{Format: "select item", Input: s, Message: "placeholders are not allowed"}
	}
	item := SelectItem{Expr: op}
	if g.Alias != nil {
		item.Alias = unquoteIdent(*g.Alias)
	}
	return item, nil
}

func parseError(format, input string, err error) error {
	return &sagaerrors.ParseError{Format: format, Input: input, Message: err.Error(), Err: sagaerrors.ErrInvalidInput}
}

func normalizeOp(op string) string {
	if op == "<>" {
		return "!="
	}
	return op
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && (s[0] == '`' || s[0] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

func (g *columnGrammar) name() string {
	name := unquoteIdent(g.First)
	if g.Rest != nil {
		name += "." + unquoteIdent(*g.Rest)
	}
	return name
}

type converter struct {
	placeholders int
}

func (c *converter) or(g *orGrammar) (Node, error) {
	terms := make([]Node, 0, len(g.Terms))
	for _, t := range g.Terms {
		n, err := c.and(t)
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return Logical{Op: "OR", Terms: terms}, nil
}

func (c *converter) and(g *andGrammar) (Node, error) {
	terms := make([]Node, 0, len(g.Terms))
	for _, t := range g.Terms {
		n, err := c.term(t.Term)
		if err != nil {
			return nil, err
		}
		if t.Not {
			n = Not{X: n}
		}
		terms = append(terms, n)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return Logical{Op: "AND", Terms: terms}, nil
}

func (c *converter) term(g *termGrammar) (Node, error) {
	if g.Group != nil {
		return c.or(g.Group)
	}
	return c.cond(g.Cond)
}

func (c *converter) cond(g *condGrammar) (Node, error) {
	left, err := c.operand(g.Left)
	if err != nil {
		return nil, err
	}
	switch {
	case g.IsNull != nil:
		return IsNull{X: left, Not: g.IsNull.Not}, nil
	case g.Compare != nil:
		right, err := c.operand(g.Compare.Right)
		if err != nil {
			return nil, err
		}
		return Compare{Left: left, Op: normalizeOp(g.Compare.Op), Right: right}, nil
	case g.Like != nil:
		pattern, err := c.operand(g.Like)
		if err != nil {
			return nil, err
		}
		return Like{X: left, Pattern: pattern, Not: g.Not}, nil
	case g.Between != nil:
		low, err := c.operand(g.Between.Low)
		if err != nil {
			return nil, err
		}
		high, err := c.operand(g.Between.High)
		if err != nil {
			return nil, err
		}
		return Between{X: left, Low: low, High: high, Not: g.Not}, nil
	case g.HasIn:
		values := make([]Operand, 0, len(g.In))
		for _, v := range g.In {
			op, err := c.operand(v)
			if err != nil {
				return nil, err
			}
			values = append(values, op)
		}
		return InList{X: left, Values: values, Not: g.Not}, nil
	}
	return Truth{X: left}, nil
}

func (c *converter) operand(g *operandGrammar) (Operand, error) {
	switch {
	case g.Placeholder:
		op := Operand{Kind: Placeholder, Index: c.placeholders}
		c.placeholders++
		return op, nil
	case g.Null:
		return Operand{Kind: Literal}, nil
	case g.Bool != nil:
		return Operand{Kind: Literal, Value: strings.EqualFold(*g.Bool, "TRUE")}, nil
	case g.Number != nil:
		if i, err := strconv.ParseInt(*g.Number, 10, 64); err == nil {
			return Operand{Kind: Literal, Value: i}, nil
		}
		f, err := strconv.ParseFloat(*g.Number, 64)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Kind: Literal, Value: f}, nil
	case g.String != nil:
		s := *g.String
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		return Operand{Kind: Literal, Value: s}, nil
	case g.Func != nil:
		op := Operand{Kind: Func, Name: strings.ToUpper(g.Func.Name), Distinct: g.Func.Distinct}
		for _, a := range g.Func.Args {
			arg, err := c.operand(a)
			if err != nil {
				return Operand{}, err
			}
			op.Args = append(op.Args, arg)
		}
		return op, nil
	case g.Column != nil:
		if g.Column.Rest != nil && *g.Column.Rest == "*" {
			return Operand{Kind: Star, Column: unquoteIdent(g.Column.First)}, nil
		}
		return Operand{Kind: Column, Column: g.Column.name()}, nil
	case g.Star:
		return Operand{Kind: Star}, nil
	}
	return Operand{}, &sagaerrors.ParseError{Format: "operand", Message: "empty operand"}
}
