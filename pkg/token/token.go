// Package token defines the token types for template parsing.
//
// The template language has a small closed token set: literal text runs,
// section markers, directive tokens and inline escapes. Directive
// arguments are carried as raw text and decomposed by the parser.
package token

import "fmt"

// Type represents the type of a lexical token.
type Type int32

const (
	// Special tokens
	EOF Type = iota
	ILLEGAL

	// TEXT is a run of literal template text, preserved verbatim.
	TEXT

	// SECTION is a line-level `%% name` marker. Literal holds the name
	// (init, code, fini, done).
	SECTION

	// Directive tokens. Literal holds the content between the delimiters,
	// with the leading directive keyword stripped for MACRO_OPEN.
	LOOP_OPEN   // {% FROM ... %}
	INSERT_OPEN // {% INSERT ... %}
	MACRO_OPEN  // {% MACRO name(@a, ...) %}
	BLOCK_END   // {% END %}
	MACRO_END   // {% ENDMACRO %}

	// ESCAPE is an inline `{{ expr }}` escape. Literal holds the inner
	// expression text; `call name(...)` escapes are classified by the parser.
	ESCAPE
)

// tokenNames maps token types to their string representations.
var tokenNames = map[Type]string{
	EOF:         "EOF",
	ILLEGAL:     "ILLEGAL",
	TEXT:        "TEXT",
	SECTION:     "SECTION",
	LOOP_OPEN:   "LOOP_OPEN",
	INSERT_OPEN: "INSERT_OPEN",
	MACRO_OPEN:  "MACRO_OPEN",
	BLOCK_END:   "BLOCK_END",
	MACRO_END:   "MACRO_END",
	ESCAPE:      "ESCAPE",
}

// String returns a human-readable representation of the token type.
func (t Type) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

// IsDirective returns true for tokens produced by a {% ... %} block.
func (t Type) IsDirective() bool {
	return t >= LOOP_OPEN && t <= MACRO_END
}

// Token represents a lexical token with position information.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}
