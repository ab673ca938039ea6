package template_test

import (
	"errors"
	"testing"

	"github.com/dhbaird/rtemplate/pkg/template"
	"github.com/dhbaird/rtemplate/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(toks []token.Token) []token.Type {
	types := make([]token.Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestLexer_Sections(t *testing.T) {
	src := "%% init\nCREATE TABLE t (a);\n%% code\nhello\n%% fini\nDROP TABLE t;\n"
	toks, err := template.Tokenize(src)
	require.NoError(t, err)

	assert.Equal(t, []token.Type{
		token.SECTION, token.TEXT,
		token.SECTION, token.TEXT,
		token.SECTION, token.TEXT,
		token.EOF,
	}, tokenTypes(toks))
	assert.Equal(t, "init", toks[0].Literal)
	assert.Equal(t, "CREATE TABLE t (a);\n", toks[1].Literal)
	assert.Equal(t, "code", toks[2].Literal)
	assert.Equal(t, "hello\n", toks[3].Literal)
	assert.Equal(t, "DROP TABLE t;\n", toks[5].Literal)
}

func TestLexer_TextBeforeFirstSectionIgnored(t *testing.T) {
	src := "preamble notes\n%% code\nbody"
	toks, err := template.Tokenize(src)
	require.NoError(t, err)
	assert.Equal(t, []token.Type{token.SECTION, token.TEXT, token.EOF}, tokenTypes(toks))
	assert.Equal(t, "body", toks[1].Literal)
}

func TestLexer_DoneSectionDiscards(t *testing.T) {
	src := "%% code\na\n%% done\nthis is ignored {% not even lexed\n%% code\nb"
	toks, err := template.Tokenize(src)
	require.NoError(t, err)
	assert.Equal(t, []token.Type{
		token.SECTION, token.TEXT, token.SECTION, token.SECTION, token.TEXT, token.EOF,
	}, tokenTypes(toks))
	assert.Equal(t, "b", toks[4].Literal)
}

func TestLexer_DirectiveKinds(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want token.Type
	}{
		{"loop open", "{% FROM Edge ORDER BY up %}", token.LOOP_OPEN},
		{"loop open lowercase", "{% from Edge order by up %}", token.LOOP_OPEN},
		{"insert open", "{% INSERT INTO t (a) VALUES (1) %}", token.INSERT_OPEN},
		{"macro open", "{% MACRO f(@x) %}", token.MACRO_OPEN},
		{"block end", "{% END %}", token.BLOCK_END},
		{"macro end", "{% ENDMACRO %}", token.MACRO_END},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := template.Tokenize("%% code\n" + tt.src)
			require.NoError(t, err)
			require.Len(t, toks, 3)
			assert.Equal(t, tt.want, toks[1].Type)
		})
	}
}

func TestLexer_MacroOpenStripsKeyword(t *testing.T) {
	toks, err := template.Tokenize("%% code\n{% macro pair(@a, @b) %}")
	require.NoError(t, err)
	assert.Equal(t, "pair(@a, @b)", toks[1].Literal)
}

func TestLexer_EscapeToken(t *testing.T) {
	toks, err := template.Tokenize("%% code\na{{ up }}b")
	require.NoError(t, err)
	assert.Equal(t, []token.Type{token.SECTION, token.TEXT, token.ESCAPE, token.TEXT, token.EOF},
		tokenTypes(toks))
	assert.Equal(t, "up", toks[2].Literal)
}

func TestLexer_EscapeWithQuotedBraces(t *testing.T) {
	toks, err := template.Tokenize("%% code\n{{ '}}' || up }}")
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, token.ESCAPE, toks[1].Type)
	assert.Equal(t, "'}}' || up", toks[1].Literal)
}

func TestLexer_CommentsNest(t *testing.T) {
	toks, err := template.Tokenize("%% code\na{# outer {# inner #} still outer #}b")
	require.NoError(t, err)
	assert.Equal(t, []token.Type{token.SECTION, token.TEXT, token.TEXT, token.EOF}, tokenTypes(toks))
	assert.Equal(t, "a", toks[1].Literal)
	assert.Equal(t, "b", toks[2].Literal)
}

func TestLexer_UnterminatedConstructs(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantOffset int
	}{
		{"directive", "%% code\nab{% FROM t ORDER BY a", 10},
		{"escape", "%% code\n{{ up", 8},
		{"comment", "%% code\nxy{# nope", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := template.Tokenize(tt.src)
			require.Error(t, err)
			var lexErr *template.LexError
			require.True(t, errors.As(err, &lexErr))
			assert.Equal(t, tt.wantOffset, lexErr.Offset)
		})
	}
}

func TestLexer_TrimModifiersRejected(t *testing.T) {
	for _, src := range []string{"%% code\n{%- FROM t ORDER BY a %}", "%% code\n{%+ END %}"} {
		_, err := template.Tokenize(src)
		var lexErr *template.LexError
		require.True(t, errors.As(err, &lexErr), "source %q", src)
		assert.Contains(t, lexErr.Error(), "whitespace-trim")
	}
}

func TestLexer_UnknownDirective(t *testing.T) {
	_, err := template.Tokenize("%% code\n{% while true %}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown directive")
}

func TestLexer_LiteralPreservesQuotesAndNewlines(t *testing.T) {
	body := "line 'one'\n\"line two\"\n\tline three\n"
	toks, err := template.Tokenize("%% code\n" + body)
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, body, toks[1].Literal)
}
