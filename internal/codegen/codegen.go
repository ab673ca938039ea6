// Package codegen lowers a resolved template body into SQLite SQL. The
// whole code section becomes one nested SELECT whose single row and
// single column is the rendered text; INSERT directives become separate
// statements executed ahead of it.
//
// Literal text travels into the query as the format string of printf():
// a sequence of nodes turns into one printf whose format holds the text
// runs (with %s placeholders for the dynamic parts) and whose arguments
// are the lowered dynamic parts. A loop becomes a correlated subquery
// that renders its body once per row and folds the rows together with
// group_concat, so an empty table folds to the empty string.
package codegen

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dhbaird/rtemplate/internal/schema"
	"github.com/dhbaird/rtemplate/pkg/template"
	"github.com/dhbaird/rtemplate/pkg/token"
)

// CompiledQuery is the SQL lowering of a template body.
type CompiledQuery struct {
	// Statements are the INSERT directives, in source order. The engine
	// executes them before Query.
	Statements []string
	// Query is a SELECT producing exactly one row with one text column,
	// the rendered output.
	Query string
	// Tables are the table names the query reads from, sorted.
	Tables []string
}

// GenerationError reports a lowering failure, such as a reference to a
// table the init section never creates.
type GenerationError struct {
	Pos     token.Position
	Message string
}

func (e *GenerationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("generation error at %s: %s", e.Pos, e.Message)
	}
	return "generation error: " + e.Message
}

var (
	aliasRef  = regexp.MustCompile(`\$[A-Za-z][A-Za-z0-9_]*`)
	aliasDecl = regexp.MustCompile(`(?i)\bAS\s+(\$[A-Za-z][A-Za-z0-9_]*)`)
)

// generator carries the emission state: output lines, the current
// indentation depth, and the alias scope stack. Hygienic alias names
// are tagged with the scope depth, one level per enclosing loop.
type generator struct {
	catalog *schema.Catalog
	lines   []string
	depth   int
	scopes  []map[string]string
	tables  map[string]bool
}

// Generate lowers a body that macro resolution has already flattened.
// Macro definitions and calls must not remain in the tree.
func Generate(body *template.Sequence, catalog *schema.Catalog) (*CompiledQuery, error) {
	g := &generator{
		catalog: catalog,
		scopes:  []map[string]string{{}},
		tables:  map[string]bool{},
	}

	// The original template interleaves INSERT directives with output
	// text; the inserts run first, then the remaining nodes render.
	var out CompiledQuery
	rendered := &template.Sequence{Pos: body.Pos}
	for _, child := range body.Children {
		ins, ok := child.(*template.Insert)
		if !ok {
			rendered.Children = append(rendered.Children, child)
			continue
		}
		stmt, err := g.genInsert(ins)
		if err != nil {
			return nil, err
		}
		out.Statements = append(out.Statements, stmt)
	}

	if err := g.genSequence(rendered); err != nil {
		return nil, err
	}
	out.Query = strings.Join(g.lines, "\n")

	out.Tables = make([]string, 0, len(g.tables))
	for name := range g.tables {
		out.Tables = append(out.Tables, name)
	}
	sort.Strings(out.Tables)
	return &out, nil
}

func (g *generator) line(s string) {
	g.lines = append(g.lines, strings.Repeat("  ", g.depth)+s)
}

// genSequence emits `SELECT printf('<fmt>' <args...>) _pp` for a run of
// nodes. Text children contribute to the format string; everything else
// contributes a %s placeholder and one argument expression.
func (g *generator) genSequence(seq *template.Sequence) error {
	var fmtBuf strings.Builder
	for _, child := range seq.Children {
		switch n := child.(type) {
		case *template.Text:
			fmtBuf.WriteString(strings.ReplaceAll(n.Value, "%", "%%"))
		case *template.FieldRef, *template.Loop:
			fmtBuf.WriteString("%s")
		case *template.Insert:
			return &GenerationError{Pos: n.Pos,
				Message: "INSERT directive must be at the top level of the code section"}
		case *template.MacroDef:
			return &GenerationError{Pos: n.Position(),
				Message: "macro definition survived resolution"}
		case *template.MacroCall:
			return &GenerationError{Pos: n.Pos,
				Message: "macro call survived resolution"}
		default:
			return &GenerationError{Pos: child.Position(),
				Message: fmt.Sprintf("cannot lower node %T", child)}
		}
	}

	// printf('') yields NULL in SQLite, not the empty string.
	if fmtBuf.Len() == 0 {
		g.line("SELECT '' _pp")
		return nil
	}

	g.line("SELECT printf(" + quoteText(fmtBuf.String()))
	for _, child := range seq.Children {
		var err error
		switch n := child.(type) {
		case *template.Text:
			// already folded into the format string
		case *template.FieldRef:
			err = g.genFieldRef(n)
		case *template.Loop:
			err = g.genLoop(n)
		}
		if err != nil {
			return err
		}
	}
	g.line(") _pp")
	return nil
}

func (g *generator) genFieldRef(ref *template.FieldRef) error {
	expr, err := g.rewriteAliases(ref.Expr, ref.Pos)
	if err != nil {
		return err
	}
	g.depth++
	g.line(", " + expr)
	g.depth--
	return nil
}

// genLoop emits the per-row subquery. The hygienic alias is renamed to
// _<depth>_<name> so that the same source alias can recur at different
// nesting levels without capture.
func (g *generator) genLoop(loop *template.Loop) error {
	if !g.catalog.HasTable(loop.Table) {
		return &GenerationError{Pos: loop.Pos,
			Message: fmt.Sprintf("unknown table %q: not created by the init section", loop.Table)}
	}
	g.tables[loop.Table] = true

	g.depth++
	g.line(", (SELECT coalesce(group_concat(_pp, " + quoteText(loop.Sep) + "), '') FROM (")

	scope := cloneScope(g.scopes[len(g.scopes)-1])
	from := loop.Table
	if loop.Alias != "" {
		// One scope per loop nesting level; indentation depth moves faster.
		mangled := fmt.Sprintf("_%d_%s", len(g.scopes), loop.Alias[1:])
		scope[loop.Alias] = mangled
		from += " AS " + mangled
	}
	g.scopes = append(g.scopes, scope)

	if err := g.checkOrderColumn(loop); err != nil {
		return err
	}
	where := ""
	if loop.Where != "" {
		cond, err := g.rewriteAliases(loop.Where, loop.Pos)
		if err != nil {
			return err
		}
		where = " WHERE " + cond
	}
	dir := "ASC"
	if loop.Desc {
		dir = "DESC"
	}

	g.depth++
	if err := g.genSequence(loop.Body); err != nil {
		return err
	}
	g.line(fmt.Sprintf("FROM %s%s ORDER BY %s %s", from, where, loop.OrderBy, dir))
	g.depth--

	g.scopes = g.scopes[:len(g.scopes)-1]
	g.line("))")
	g.depth--
	return nil
}

// genInsert emits `INSERT INTO t (cols) SELECT v, ...` where a bare $
// value stands for the rendered body subquery.
func (g *generator) genInsert(ins *template.Insert) (string, error) {
	if !g.catalog.HasTable(ins.Table) {
		return "", &GenerationError{Pos: ins.Pos,
			Message: fmt.Sprintf("unknown table %q: not created by the init section", ins.Table)}
	}
	for _, col := range ins.Columns {
		if !g.catalog.HasColumn(ins.Table, col) {
			return "", &GenerationError{Pos: ins.Pos,
				Message: fmt.Sprintf("table %q has no column %q", ins.Table, col)}
		}
	}
	g.tables[ins.Table] = true

	sub := &generator{catalog: g.catalog, scopes: []map[string]string{{}}, tables: g.tables}

	// Aliases declared in the trailing FROM clause are visible to the
	// VALUES expressions and to the $ body subquery.
	from := ins.From
	if from != "" {
		scope := sub.scopes[0]
		for _, m := range aliasDecl.FindAllStringSubmatch(from, -1) {
			scope[m[1]] = "_0_" + m[1][1:]
		}
		var err error
		from, err = sub.rewriteAliases(from, ins.Pos)
		if err != nil {
			return "", err
		}
	}

	sub.line(fmt.Sprintf("INSERT INTO %s (%s)", ins.Table, strings.Join(ins.Columns, ", ")))
	sub.line("SELECT")
	slots := 0
	for i, value := range ins.Values {
		comma := ""
		if i > 0 {
			comma = ", "
		}
		if value == "$" {
			slots++
			sub.line(comma + "(")
			sub.depth++
			if err := sub.genSequence(ins.Body); err != nil {
				return "", err
			}
			sub.depth--
			sub.line(")")
			continue
		}
		expr, err := sub.rewriteAliases(value, ins.Pos)
		if err != nil {
			return "", err
		}
		sub.line(comma + expr)
	}
	if slots != 1 {
		return "", &GenerationError{Pos: ins.Pos,
			Message: fmt.Sprintf("INSERT directive needs exactly one $ body slot, got %d", slots)}
	}
	if from != "" {
		sub.line(from)
	}
	return strings.Join(sub.lines, "\n"), nil
}

// checkOrderColumn validates a plain-identifier ORDER BY key against
// the loop table's declared columns. Qualified names and expressions
// are left to SQLite.
func (g *generator) checkOrderColumn(loop *template.Loop) error {
	col := loop.OrderBy
	if !isIdent(col) {
		return nil
	}
	if !g.catalog.HasColumn(loop.Table, col) {
		return &GenerationError{Pos: loop.Pos,
			Message: fmt.Sprintf("table %q has no column %q to order by", loop.Table, col)}
	}
	return nil
}

// rewriteAliases replaces every $Name reference with its mangled form
// from the current scope.
func (g *generator) rewriteAliases(expr string, pos token.Position) (string, error) {
	scope := g.scopes[len(g.scopes)-1]
	var unknown string
	out := aliasRef.ReplaceAllStringFunc(expr, func(ref string) string {
		if mangled, ok := scope[ref]; ok {
			return mangled
		}
		if unknown == "" {
			unknown = ref
		}
		return ref
	})
	if unknown != "" {
		return "", &GenerationError{Pos: pos,
			Message: fmt.Sprintf("alias %s is not in scope", unknown)}
	}
	return out, nil
}

func cloneScope(scope map[string]string) map[string]string {
	out := make(map[string]string, len(scope))
	for k, v := range scope {
		out[k] = v
	}
	return out
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
		case ch >= '0' && ch <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// quoteText turns literal text into a SQLite string expression. Quotes
// are doubled and each newline becomes an x'0a' blob concatenation, so
// the generated SQL stays single-line-safe and byte-exact. Carriage
// returns pass through inside the literal; SQLite accepts them.
func quoteText(s string) string {
	parts := strings.Split(s, "\n")
	for i, part := range parts {
		parts[i] = "'" + strings.ReplaceAll(part, "'", "''") + "'"
	}
	return strings.Join(parts, " || x'0a' || ")
}
