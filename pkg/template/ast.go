package template

import "github.com/dhbaird/rtemplate/pkg/token"

// Node is the interface implemented by all AST nodes.
// The node set is closed: Text, FieldRef, Loop, Insert, MacroDef, MacroCall
// and Sequence. The code generator switches exhaustively over these.
type Node interface {
	node()
	Position() token.Position
}

// Text is a run of literal template text, preserved byte for byte.
type Text struct {
	Value string
	Pos   token.Position
}

// FieldRef is an inline SQL expression evaluated in the row scope of the
// innermost enclosing loop. The expression may reference columns directly,
// hygienic `$Alias` names, and `@param` names inside macro bodies.
type FieldRef struct {
	Expr string
	Pos  token.Position
}

// Loop iterates the rows of a table in a fixed order, rendering its body
// once per row and joining the results with Sep.
type Loop struct {
	Table   string
	Alias   string // hygienic alias name including the leading $, "" if none
	Where   string // optional row filter, raw SQL expression
	OrderBy string
	Desc    bool
	Sep     string // separator text, already unescaped
	Body    *Sequence
	Pos     token.Position
}

// Insert produces side-effect rows instead of output text. The `$`
// placeholder among Values stands for the rendered body of the block.
type Insert struct {
	Table   string
	Columns []string
	Values  []string
	From    string // optional trailing FROM clause, raw SQL
	Body    *Sequence
	Pos     token.Position
}

// MacroDef defines a reusable fragment. It renders nothing at its
// definition site; the macro table hoists it before code generation.
type MacroDef struct {
	Name   string
	Params []string // parameter names including the leading @
	Body   *Sequence
	Pos    token.Position
}

// MacroCall invokes a macro with positional argument expressions.
type MacroCall struct {
	Name string
	Args []string
	Pos  token.Position
}

// Sequence is the ordered concatenation of child nodes.
type Sequence struct {
	Children []Node
	Pos      token.Position
}

func (*Text) node()      {}
func (*FieldRef) node()  {}
func (*Loop) node()      {}
func (*Insert) node()    {}
func (*MacroDef) node()  {}
func (*MacroCall) node() {}
func (*Sequence) node()  {}

func (n *Text) Position() token.Position      { return n.Pos }
func (n *FieldRef) Position() token.Position  { return n.Pos }
func (n *Loop) Position() token.Position      { return n.Pos }
func (n *Insert) Position() token.Position    { return n.Pos }
func (n *MacroDef) Position() token.Position  { return n.Pos }
func (n *MacroCall) Position() token.Position { return n.Pos }
func (n *Sequence) Position() token.Position  { return n.Pos }

// Template is a parsed template: opaque init/fini SQL plus the compiled body.
// Init sections are kept in source order; fini sections are kept in source
// order too and executed in reverse by the harness.
type Template struct {
	Init []string
	Fini []string
	Body *Sequence
}
