package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// sqlLexer tokenizes the SQL fragments accepted by the parsers in this package.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Keyword", Pattern: `(?i)\b(AND|OR|NOT|IS|NULL|IN|LIKE|BETWEEN|TRUE|FALSE|AS|DISTINCT)\b`},
	{Name: "QuotedIdent", Pattern: "`[^`]+`|\"[^\"]+\""},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Float", Pattern: `\d+\.\d*(?:[eE][-+]?\d+)?|\d+[eE][-+]?\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Op", Pattern: `<>|!=|<=|>=|=|<|>`},
	{Name: "Punct", Pattern: `[(),.*?\-]`},
})

//nolint:govet // participle grammar tags are not standard struct tags
type orGrammar struct {
	Terms []*andGrammar `@@ ( "OR" @@ )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type andGrammar struct {
	Terms []*notGrammar `@@ ( "AND" @@ )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type notGrammar struct {
	Not  bool         `@"NOT"?`
	Term *termGrammar `@@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type termGrammar struct {
	Group *orGrammar   `  "(" @@ ")"`
	Cond  *condGrammar `| @@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type condGrammar struct {
	Left    *operandGrammar   `@@`
	IsNull  *isNullGrammar    `( @@`
	Compare *compareGrammar   `| @@`
	Not     bool              `| @"NOT"?`
	HasIn   bool              `  ( @"IN"`
	In      []*operandGrammar `    "(" ( @@ ( "," @@ )* )? ")"`
	Like    *operandGrammar   `  | "LIKE" @@`
	Between *betweenGrammar   `  | "BETWEEN" @@ ) )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type isNullGrammar struct {
	Not bool `"IS" @"NOT"? "NULL"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type compareGrammar struct {
	Op    string          `@Op`
	Right *operandGrammar `@@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type betweenGrammar struct {
	Low  *operandGrammar `@@`
	High *operandGrammar `"AND" @@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type operandGrammar struct {
	Placeholder bool           `  @"?"`
	Null        bool           `| @"NULL"`
	Bool        *string        `| @("TRUE" | "FALSE")`
	Number      *string        `| @("-"? (Float | Int))`
	String      *string        `| @String`
	Func        *funcGrammar   `| @@`
	Column      *columnGrammar `| @@`
	Star        bool           `| @"*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type funcGrammar struct {
	Name     string            `@Ident "("`
	Distinct bool              `@"DISTINCT"?`
	Args     []*operandGrammar `( @@ ( "," @@ )* )? ")"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type columnGrammar struct {
	First string  `@(Ident | QuotedIdent)`
	Rest  *string `( "." @(Ident | QuotedIdent | "*") )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type joinGrammar struct {
	Left  *columnGrammar `@@`
	Op    string         `@Op`
	Right *columnGrammar `@@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type selectGrammar struct {
	Expr  *operandGrammar `@@`
	Alias *string         `( "AS"? @(Ident | QuotedIdent) )?`
}

var parserOptions = []participle.Option{
	participle.Lexer(sqlLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(3),
}

var (
	conditionParser = participle.MustBuild[orGrammar](parserOptions...)
	joinParser      = participle.MustBuild[joinGrammar](parserOptions...)
	selectParser    = participle.MustBuild[selectGrammar](parserOptions...)
)
