package template

import (
	"fmt"

	"github.com/dhbaird/rtemplate/pkg/token"
)

// LexError represents a lexical analysis error. Offset is the byte offset of
// the construct that could not be scanned (e.g. an unterminated directive).
type LexError struct {
	Offset  int
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: %s", e.Offset, e.Message)
}

// ParseError represents a structural error with position information.
// For nesting mismatches Expected and Found name the directive kinds.
type ParseError struct {
	Pos      token.Position
	Expected string
	Found    string
	Message  string
}

func (e *ParseError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("parse error at line %d, column %d: expected %s, found %s",
			e.Pos.Line, e.Pos.Column, e.Expected, e.Found)
	}
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}
