package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhbaird/rtemplate/pkg/token"
)

// Parser consumes the token stream and builds a Template. It keeps an
// explicit stack of open constructs to enforce well-nestedness and fails
// fast on the first structural violation.
type Parser struct {
	lex  *Lexer
	tok  token.Token
	open []string // open construct kinds, innermost last
}

// Parse parses template source into a Template.
func Parse(input string) (*Template, error) {
	p := &Parser{lex: NewLexer(input)}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseTemplate()
}

// next advances to the next token.
func (p *Parser) next() error {
	tok, err := p.lex.NextToken()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) parseTemplate() (*Template, error) {
	tpl := &Template{Body: &Sequence{}}
	for {
		switch p.tok.Type {
		case token.EOF:
			return tpl, nil
		case token.SECTION:
			name := p.tok.Literal
			if err := p.next(); err != nil {
				return nil, err
			}
			switch name {
			case "init":
				if p.tok.Type == token.TEXT {
					tpl.Init = append(tpl.Init, p.tok.Literal)
					if err := p.next(); err != nil {
						return nil, err
					}
				}
			case "fini":
				if p.tok.Type == token.TEXT {
					tpl.Fini = append(tpl.Fini, p.tok.Literal)
					if err := p.next(); err != nil {
						return nil, err
					}
				}
			case "code":
				seq, err := p.parseBody("")
				if err != nil {
					return nil, err
				}
				tpl.Body.Children = append(tpl.Body.Children, seq.Children...)
			case "done":
				// content until the next marker is discarded by the lexer
			}
		default:
			return nil, &ParseError{Pos: p.tok.Pos,
				Message: fmt.Sprintf("unexpected %s outside any section", p.tok.Type)}
		}
	}
}

// parseBody parses body content until the closing token of openKind
// ("LOOP", "INSERT", "MACRO") or, at the top level, a section boundary.
// The closing token is consumed.
func (p *Parser) parseBody(openKind string) (*Sequence, error) {
	seq := &Sequence{Pos: p.tok.Pos}
	for {
		switch p.tok.Type {
		case token.TEXT:
			seq.Children = append(seq.Children, &Text{Value: p.tok.Literal, Pos: p.tok.Pos})
		case token.ESCAPE:
			node, err := parseEscape(p.tok.Literal, p.tok.Pos)
			if err != nil {
				return nil, err
			}
			seq.Children = append(seq.Children, node)
		case token.LOOP_OPEN:
			loop, err := p.parseLoop()
			if err != nil {
				return nil, err
			}
			seq.Children = append(seq.Children, loop)
			continue // parseLoop already advanced past the block
		case token.INSERT_OPEN:
			ins, err := p.parseInsert()
			if err != nil {
				return nil, err
			}
			seq.Children = append(seq.Children, ins)
			continue
		case token.MACRO_OPEN:
			if len(p.open) != 0 {
				return nil, &ParseError{Pos: p.tok.Pos,
					Message: fmt.Sprintf("macro definition not allowed inside %s block", p.open[len(p.open)-1])}
			}
			def, err := p.parseMacro()
			if err != nil {
				return nil, err
			}
			seq.Children = append(seq.Children, def)
			continue
		case token.BLOCK_END:
			if openKind == "LOOP" || openKind == "INSERT" {
				if err := p.next(); err != nil {
					return nil, err
				}
				return seq, nil
			}
			return nil, p.closeMismatch("END")
		case token.MACRO_END:
			if openKind == "MACRO" {
				if err := p.next(); err != nil {
					return nil, err
				}
				return seq, nil
			}
			return nil, p.closeMismatch("ENDMACRO")
		case token.SECTION, token.EOF:
			if openKind != "" {
				return nil, &ParseError{Pos: p.tok.Pos,
					Expected: closerFor(openKind), Found: p.tok.Type.String()}
			}
			return seq, nil
		default:
			return nil, &ParseError{Pos: p.tok.Pos,
				Message: fmt.Sprintf("unexpected token %s", p.tok.Type)}
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
}

// closeMismatch builds the error for a closing directive that does not match
// the innermost open construct.
func (p *Parser) closeMismatch(found string) error {
	expected := "end of section"
	if len(p.open) > 0 {
		expected = closerFor(p.open[len(p.open)-1])
	}
	return &ParseError{Pos: p.tok.Pos, Expected: expected, Found: found}
}

func closerFor(kind string) string {
	if kind == "MACRO" {
		return "ENDMACRO"
	}
	return "END"
}

// Directive argument patterns.
var (
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	aliasPattern  = regexp.MustCompile(`^\$[A-Za-z][A-Za-z0-9_]*$`)
	paramPattern  = regexp.MustCompile(`^@[a-z][A-Za-z0-9_]*$`)
	macroHead     = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)$`)
	insertPattern = regexp.MustCompile(`(?is)^insert\s+into\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)\s*values\s*\(([^)]*)\)\s*(from\b.*)?$`)
	callPattern   = regexp.MustCompile(`(?is)^call\s+([A-Za-z_][A-Za-z0-9_]*)\s*\((.*)\)$`)
)

// parseLoop parses `FROM table [AS $X] [WHERE expr] ORDER BY col
// [ASC|DESC] [SEP '...']` and the block body up to the matching END.
func (p *Parser) parseLoop() (*Loop, error) {
	pos := p.tok.Pos
	loop := &Loop{Pos: pos}

	fields, err := splitDirective(p.tok.Literal, pos)
	if err != nil {
		return nil, err
	}
	i := 0
	expect := func(what string) (string, error) {
		if i >= len(fields) {
			return "", &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: missing %s", what)}
		}
		f := fields[i]
		i++
		return f, nil
	}

	// FROM <table>
	if _, err := expect("FROM"); err != nil {
		return nil, err
	}
	tbl, err := expect("table name")
	if err != nil {
		return nil, err
	}
	// A @param table name is legal inside a macro body; resolution
	// substitutes it before the catalog check.
	if !identPattern.MatchString(tbl) && !paramPattern.MatchString(tbl) {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: invalid table name %q", tbl)}
	}
	loop.Table = tbl

	// [AS $Alias]
	if i < len(fields) && strings.EqualFold(fields[i], "as") {
		i++
		alias, err := expect("alias")
		if err != nil {
			return nil, err
		}
		if !aliasPattern.MatchString(alias) {
			return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: invalid alias %q, must be $Name", alias)}
		}
		loop.Alias = alias
	}

	// [WHERE <expr>] up to the ORDER BY keyword
	if i < len(fields) && strings.EqualFold(fields[i], "where") {
		i++
		var cond []string
		for i < len(fields) && !strings.EqualFold(fields[i], "order") {
			cond = append(cond, fields[i])
			i++
		}
		if len(cond) == 0 {
			return nil, &ParseError{Pos: pos, Message: "loop directive: empty WHERE condition"}
		}
		loop.Where = strings.Join(cond, " ")
	}

	// ORDER BY <col> [ASC|DESC]
	kw, err := expect("ORDER BY")
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(kw, "order") {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: expected ORDER BY, found %q", kw)}
	}
	kw, err = expect("BY")
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(kw, "by") {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: expected ORDER BY, found ORDER %q", kw)}
	}
	col, err := expect("ordering column")
	if err != nil {
		return nil, err
	}
	if !identPattern.MatchString(col) {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: invalid ordering column %q", col)}
	}
	loop.OrderBy = col

	if i < len(fields) && (strings.EqualFold(fields[i], "asc") || strings.EqualFold(fields[i], "desc")) {
		loop.Desc = strings.EqualFold(fields[i], "desc")
		i++
	}

	// [SEP '...']
	if i < len(fields) && strings.EqualFold(fields[i], "sep") {
		i++
		quoted, err := expect("separator string")
		if err != nil {
			return nil, err
		}
		sep, err := unquoteSep(quoted, pos)
		if err != nil {
			return nil, err
		}
		loop.Sep = sep
	}

	if i != len(fields) {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("loop directive: unexpected %q", fields[i])}
	}

	if err := p.next(); err != nil {
		return nil, err
	}
	p.open = append(p.open, "LOOP")
	body, err := p.parseBody("LOOP")
	if err != nil {
		return nil, err
	}
	p.open = p.open[:len(p.open)-1]
	loop.Body = body
	return loop, nil
}

// parseInsert parses `INSERT INTO tbl (cols) VALUES (vals) [FROM ...]` and
// the block body up to the matching END.
func (p *Parser) parseInsert() (*Insert, error) {
	pos := p.tok.Pos
	m := insertPattern.FindStringSubmatch(p.tok.Literal)
	if m == nil {
		return nil, &ParseError{Pos: pos,
			Message: "malformed INSERT directive, want INSERT INTO table (cols) VALUES (vals)"}
	}
	ins := &Insert{Table: m[1], From: strings.TrimSpace(m[4]), Pos: pos}
	for _, c := range strings.Split(m[2], ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !identPattern.MatchString(c) {
			return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("INSERT directive: invalid column %q", c)}
		}
		ins.Columns = append(ins.Columns, c)
	}
	ins.Values = splitArgs(m[3])
	if len(ins.Columns) == 0 {
		return nil, &ParseError{Pos: pos, Message: "INSERT directive: no columns"}
	}
	if len(ins.Columns) != len(ins.Values) {
		return nil, &ParseError{Pos: pos,
			Message: fmt.Sprintf("INSERT directive: %d columns but %d values", len(ins.Columns), len(ins.Values))}
	}

	if err := p.next(); err != nil {
		return nil, err
	}
	p.open = append(p.open, "INSERT")
	body, err := p.parseBody("INSERT")
	if err != nil {
		return nil, err
	}
	p.open = p.open[:len(p.open)-1]
	ins.Body = body
	return ins, nil
}

// parseMacro parses `name(@a, @b)` from a MACRO_OPEN token and the macro
// body up to the matching ENDMACRO.
func (p *Parser) parseMacro() (*MacroDef, error) {
	pos := p.tok.Pos
	m := macroHead.FindStringSubmatch(p.tok.Literal)
	if m == nil {
		return nil, &ParseError{Pos: pos,
			Message: fmt.Sprintf("malformed macro definition %q, want name(@a, ...)", p.tok.Literal)}
	}
	def := &MacroDef{Name: m[1], Pos: pos}
	for _, prm := range strings.Split(m[2], ",") {
		prm = strings.TrimSpace(prm)
		if prm == "" {
			continue
		}
		if !paramPattern.MatchString(prm) {
			return nil, &ParseError{Pos: pos,
				Message: fmt.Sprintf("macro %s: invalid parameter %q, must be @name", def.Name, prm)}
		}
		def.Params = append(def.Params, prm)
	}

	if err := p.next(); err != nil {
		return nil, err
	}
	p.open = append(p.open, "MACRO")
	body, err := p.parseBody("MACRO")
	if err != nil {
		return nil, err
	}
	p.open = p.open[:len(p.open)-1]
	def.Body = body
	return def, nil
}

// parseEscape classifies an inline escape as a macro call or a field
// expression.
func parseEscape(expr string, pos token.Position) (Node, error) {
	if m := callPattern.FindStringSubmatch(expr); m != nil {
		return &MacroCall{Name: m[1], Args: splitArgs(m[2]), Pos: pos}, nil
	}
	if strings.HasPrefix(strings.ToLower(expr), "call ") || strings.EqualFold(expr, "call") {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("malformed macro call %q", expr)}
	}
	if expr == "" {
		return nil, &ParseError{Pos: pos, Message: "empty escape"}
	}
	return &FieldRef{Expr: expr, Pos: pos}, nil
}

// splitDirective splits directive content on whitespace, keeping quoted
// strings (with doubled-quote escapes) as single fields.
func splitDirective(s string, pos token.Position) ([]string, error) {
	var fields []string
	i := 0
	for i < len(s) {
		switch {
		case s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r':
			i++
		case s[i] == '\'':
			start := i
			i++
			for i < len(s) {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			if i > len(s) || s[i-1] != '\'' || i-start < 2 {
				return nil, &ParseError{Pos: pos, Message: "unterminated string in directive"}
			}
			fields = append(fields, s[start:i])
		default:
			start := i
			for i < len(s) && !strings.ContainsAny(string(s[i]), " \t\n\r'") {
				i++
			}
			fields = append(fields, s[start:i])
		}
	}
	return fields, nil
}

// splitArgs splits a comma-separated argument list at top level, respecting
// quotes and paren nesting.
func splitArgs(s string) []string {
	var args []string
	depth := 0
	start := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == quote {
				if i+1 < len(s) && s[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				if a := strings.TrimSpace(s[start:i]); a != "" {
					args = append(args, a)
				}
				start = i + 1
			}
		}
	}
	if a := strings.TrimSpace(s[start:]); a != "" {
		args = append(args, a)
	}
	return args
}

// unquoteSep unquotes a SEP separator string. Inside the quotes `''` is a
// literal quote, `\n` a newline and `\\` a backslash; any other backslash
// escape is an error.
func unquoteSep(quoted string, pos token.Position) (string, error) {
	if len(quoted) < 2 || quoted[0] != '\'' || quoted[len(quoted)-1] != '\'' {
		return "", &ParseError{Pos: pos, Message: fmt.Sprintf("separator must be a quoted string, got %q", quoted)}
	}
	body := quoted[1 : len(quoted)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\'':
			if i+1 < len(body) && body[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			return "", &ParseError{Pos: pos, Message: "stray quote in separator"}
		case '\\':
			if i+1 >= len(body) {
				return "", &ParseError{Pos: pos, Message: "dangling backslash in separator"}
			}
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case '\\':
				b.WriteByte('\\')
			default:
				return "", &ParseError{Pos: pos,
					Message: fmt.Sprintf("unsupported escape \\%c in separator", body[i])}
			}
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String(), nil
}
