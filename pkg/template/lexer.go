// Package template implements the template language frontend: a single-pass
// lexer and a recursive-descent parser producing the AST compiled by
// internal/codegen.
//
// A template has line-oriented sections:
//
//	%% init   raw SQL, executed before the body
//	%% code   template body: literal text, {% ... %} directives,
//	          {{ ... }} escapes and {# ... #} comments
//	%% fini   raw SQL, executed after the body (in reverse section order)
//	%% done   everything following is ignored until the next marker
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhbaird/rtemplate/pkg/token"
)

type lexMode int

const (
	modeDone lexMode = iota // outside any section, input ignored
	modeRaw                 // init/fini, content is opaque text
	modeCode                // body, directives are recognized
)

// sectionMarker matches a `%% name` line at the start of the remaining input.
var sectionMarker = regexp.MustCompile(`^[ \t]*%% (init|code|fini|done)[ \t]*(\r\n|\n|$)`)

// Lexer tokenizes template source in a single linear scan. Lookahead never
// exceeds the delimiter length except for the line-anchored section markers.
type Lexer struct {
	input       string
	pos         int // byte offset of the current character
	line        int // 1-based line of the current character
	col         int // 1-based column of the current character
	atLineStart bool
	mode        lexMode
}

// NewLexer creates a new Lexer for the given source.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:       input,
		line:        1,
		col:         1,
		atLineStart: true,
	}
}

// position returns the position of the current character.
func (l *Lexer) position() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// advance consumes one byte.
func (l *Lexer) advance() {
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
		l.atLineStart = true
	} else {
		l.col++
		l.atLineStart = false
	}
}

// advanceN consumes n bytes.
func (l *Lexer) advanceN(n int) {
	for i := 0; i < n && l.pos < len(l.input); i++ {
		l.advance()
	}
}

func (l *Lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// sectionAt returns the section name if a marker line begins at the current
// position, along with the marker's byte length.
func (l *Lexer) sectionAt() (string, int, bool) {
	if !l.atLineStart {
		return "", 0, false
	}
	m := sectionMarker.FindStringSubmatch(l.input[l.pos:])
	if m == nil {
		return "", 0, false
	}
	return m[1], len(m[0]), true
}

// NextToken returns the next token, or a *LexError.
func (l *Lexer) NextToken() (token.Token, error) {
	for {
		if l.pos >= len(l.input) {
			return token.Token{Type: token.EOF, Pos: l.position()}, nil
		}

		if name, n, ok := l.sectionAt(); ok {
			tok := token.Token{Type: token.SECTION, Literal: name, Pos: l.position()}
			l.advanceN(n)
			switch name {
			case "code":
				l.mode = modeCode
			case "init", "fini":
				l.mode = modeRaw
			default:
				l.mode = modeDone
			}
			return tok, nil
		}

		switch l.mode {
		case modeDone:
			l.skipToNextLine()
		case modeRaw:
			if tok, ok := l.readRawText(); ok {
				return tok, nil
			}
		case modeCode:
			return l.nextCodeToken()
		}
	}
}

// skipToNextLine discards input up to and including the next newline.
func (l *Lexer) skipToNextLine() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		l.advance()
		if ch == '\n' {
			return
		}
	}
}

// readRawText reads opaque section content up to the next marker line.
func (l *Lexer) readRawText() (token.Token, bool) {
	start := l.pos
	startPos := l.position()
	for l.pos < len(l.input) {
		if _, _, ok := l.sectionAt(); ok {
			break
		}
		l.advance()
	}
	if l.pos == start {
		return token.Token{}, false
	}
	return token.Token{Type: token.TEXT, Literal: l.input[start:l.pos], Pos: startPos}, true
}

// nextCodeToken scans the body section: a literal run, a directive, an
// escape, or a comment.
func (l *Lexer) nextCodeToken() (token.Token, error) {
	start := l.pos
	startPos := l.position()

	for l.pos < len(l.input) {
		if _, _, ok := l.sectionAt(); ok {
			break
		}
		if l.hasPrefix("{%") || l.hasPrefix("{{") || l.hasPrefix("{#") {
			break
		}
		l.advance()
	}
	if l.pos > start {
		return token.Token{Type: token.TEXT, Literal: l.input[start:l.pos], Pos: startPos}, nil
	}
	if l.pos >= len(l.input) {
		return token.Token{Type: token.EOF, Pos: l.position()}, nil
	}
	if _, _, ok := l.sectionAt(); ok {
		// Let NextToken emit the SECTION token.
		return l.NextToken()
	}

	switch {
	case l.hasPrefix("{#"):
		if err := l.skipComment(); err != nil {
			return token.Token{}, err
		}
		return l.NextToken()
	case l.hasPrefix("{{"):
		return l.readEscape()
	default:
		return l.readDirective()
	}
}

// skipComment consumes a {# ... #} comment. Comments nest.
func (l *Lexer) skipComment() error {
	open := l.pos
	l.advanceN(2)
	depth := 1
	for l.pos < len(l.input) {
		switch {
		case l.hasPrefix("{#"):
			depth++
			l.advanceN(2)
		case l.hasPrefix("#}"):
			depth--
			l.advanceN(2)
			if depth == 0 {
				return nil
			}
		default:
			l.advance()
		}
	}
	return &LexError{Offset: open, Message: "unterminated comment"}
}

// readEscape scans a {{ ... }} inline escape, skipping quoted strings so a
// `}}` inside a string literal does not close the escape.
func (l *Lexer) readEscape() (token.Token, error) {
	open := l.pos
	startPos := l.position()
	l.advanceN(2)
	innerStart := l.pos
	for l.pos < len(l.input) {
		switch {
		case l.hasPrefix("}}"):
			inner := l.input[innerStart:l.pos]
			l.advanceN(2)
			return token.Token{Type: token.ESCAPE, Literal: strings.TrimSpace(inner), Pos: startPos}, nil
		case l.input[l.pos] == '\'' || l.input[l.pos] == '"':
			l.skipQuoted(l.input[l.pos])
		default:
			l.advance()
		}
	}
	return token.Token{}, &LexError{Offset: open, Message: "unterminated escape"}
}

// readDirective scans a {% ... %} directive and classifies it by its leading
// keyword (case-insensitive).
func (l *Lexer) readDirective() (token.Token, error) {
	open := l.pos
	startPos := l.position()
	l.advanceN(2)
	innerStart := l.pos
	for l.pos < len(l.input) {
		switch {
		case l.hasPrefix("%}"):
			inner := strings.TrimSpace(l.input[innerStart:l.pos])
			l.advanceN(2)
			return l.classifyDirective(inner, startPos, open)
		case l.input[l.pos] == '\'' || l.input[l.pos] == '"':
			l.skipQuoted(l.input[l.pos])
		default:
			l.advance()
		}
	}
	return token.Token{}, &LexError{Offset: open, Message: "unterminated directive"}
}

func (l *Lexer) classifyDirective(inner string, pos token.Position, open int) (token.Token, error) {
	if strings.HasPrefix(inner, "-") || strings.HasPrefix(inner, "+") {
		return token.Token{}, &LexError{Offset: open, Message: "whitespace-trim modifiers are not supported"}
	}
	keyword := inner
	rest := ""
	if i := strings.IndexAny(inner, " \t\r\n"); i >= 0 {
		keyword = inner[:i]
		rest = strings.TrimSpace(inner[i:])
	}
	switch strings.ToLower(keyword) {
	case "end":
		if rest != "" {
			return token.Token{}, &LexError{Offset: open, Message: fmt.Sprintf("unexpected content after END: %q", rest)}
		}
		return token.Token{Type: token.BLOCK_END, Pos: pos}, nil
	case "endmacro":
		if rest != "" {
			return token.Token{}, &LexError{Offset: open, Message: fmt.Sprintf("unexpected content after ENDMACRO: %q", rest)}
		}
		return token.Token{Type: token.MACRO_END, Pos: pos}, nil
	case "macro":
		return token.Token{Type: token.MACRO_OPEN, Literal: rest, Pos: pos}, nil
	case "from":
		return token.Token{Type: token.LOOP_OPEN, Literal: inner, Pos: pos}, nil
	case "insert":
		return token.Token{Type: token.INSERT_OPEN, Literal: inner, Pos: pos}, nil
	}
	return token.Token{}, &LexError{Offset: open, Message: fmt.Sprintf("unknown directive %q", keyword)}
}

// skipQuoted consumes a quoted run inside a directive or escape. A doubled
// quote is the SQL escape for a literal quote and does not end the run.
func (l *Lexer) skipQuoted(quote byte) {
	l.advance() // opening quote
	for l.pos < len(l.input) {
		if l.input[l.pos] == quote {
			l.advance()
			if l.pos < len(l.input) && l.input[l.pos] == quote {
				l.advance() // doubled quote, still inside
				continue
			}
			return
		}
		l.advance()
	}
}

// Tokenize returns all tokens from the input, stopping at the first error.
func Tokenize(input string) ([]token.Token, error) {
	l := NewLexer(input)
	var tokens []token.Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens, nil
		}
	}
}
