package template_test

import (
	"errors"
	"testing"

	"github.com/dhbaird/rtemplate/pkg/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digraphSrc = `%% init
CREATE TABLE Edge ( up, dn );
INSERT INTO Edge VALUES ('c','b'),('b','a');
%% code
digraph {
{% FROM Edge ORDER BY up DESC SEP '' %}{{ up }} -> {{ dn }};
{% END %}}
%% fini
DROP TABLE Edge;
`

func TestParse_Digraph(t *testing.T) {
	tpl, err := template.Parse(digraphSrc)
	require.NoError(t, err)

	require.Len(t, tpl.Init, 1)
	assert.Contains(t, tpl.Init[0], "CREATE TABLE Edge")
	require.Len(t, tpl.Fini, 1)
	assert.Contains(t, tpl.Fini[0], "DROP TABLE Edge")

	require.Len(t, tpl.Body.Children, 3)
	text, ok := tpl.Body.Children[0].(*template.Text)
	require.True(t, ok)
	assert.Equal(t, "digraph {\n", text.Value)

	loop, ok := tpl.Body.Children[1].(*template.Loop)
	require.True(t, ok)
	assert.Equal(t, "Edge", loop.Table)
	assert.Equal(t, "up", loop.OrderBy)
	assert.True(t, loop.Desc)
	assert.Equal(t, "", loop.Sep)

	require.Len(t, loop.Body.Children, 4)
	up, ok := loop.Body.Children[0].(*template.FieldRef)
	require.True(t, ok)
	assert.Equal(t, "up", up.Expr)
	mid, ok := loop.Body.Children[1].(*template.Text)
	require.True(t, ok)
	assert.Equal(t, " -> ", mid.Value)
	tail, ok := loop.Body.Children[3].(*template.Text)
	require.True(t, ok)
	assert.Equal(t, ";\n", tail.Value)

	closing, ok := tpl.Body.Children[2].(*template.Text)
	require.True(t, ok)
	assert.Equal(t, "}\n", closing.Value)
}

func TestParse_LoopDirective(t *testing.T) {
	tests := []struct {
		name      string
		directive string
		wantAlias string
		wantDesc  bool
		wantSep   string
	}{
		{"defaults", "{% FROM t ORDER BY a %}", "", false, ""},
		{"asc explicit", "{% FROM t ORDER BY a ASC %}", "", false, ""},
		{"desc", "{% FROM t ORDER BY a DESC %}", "", true, ""},
		{"alias", "{% FROM t AS $T ORDER BY a %}", "$T", false, ""},
		{"sep plain", "{% FROM t ORDER BY a SEP ', ' %}", "", false, ", "},
		{"sep newline", `{% FROM t ORDER BY a SEP '\n' %}`, "", false, "\n"},
		{"sep quote", "{% FROM t ORDER BY a SEP '''' %}", "", false, "'"},
		{"sep backslash", `{% FROM t ORDER BY a SEP '\\' %}`, "", false, `\`},
		{"everything", `{% from t as $X order by a desc sep '; ' %}`, "$X", true, "; "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := template.Parse("%% code\n" + tt.directive + "x{% END %}")
			require.NoError(t, err)
			require.Len(t, tpl.Body.Children, 1)
			loop := tpl.Body.Children[0].(*template.Loop)
			assert.Equal(t, "t", loop.Table)
			assert.Equal(t, "a", loop.OrderBy)
			assert.Equal(t, tt.wantAlias, loop.Alias)
			assert.Equal(t, tt.wantDesc, loop.Desc)
			assert.Equal(t, tt.wantSep, loop.Sep)
		})
	}
}

func TestParse_LoopDirectiveWhere(t *testing.T) {
	tpl, err := template.Parse(
		"%% code\n{% FROM t AS $T WHERE $T.kind = 'x' AND $T.n > 1 ORDER BY a %}x{% END %}")
	require.NoError(t, err)
	loop := tpl.Body.Children[0].(*template.Loop)
	assert.Equal(t, "$T.kind = 'x' AND $T.n > 1", loop.Where)
	assert.Equal(t, "a", loop.OrderBy)
}

func TestParse_LoopDirectiveParamTable(t *testing.T) {
	// A macro may loop over a table passed as a parameter.
	src := "%% code\n{% MACRO dump(@tbl) %}{% FROM @tbl ORDER BY id %}x{% END %}{% ENDMACRO %}"
	tpl, err := template.Parse(src)
	require.NoError(t, err)
	def := tpl.Body.Children[0].(*template.MacroDef)
	loop := def.Body.Children[0].(*template.Loop)
	assert.Equal(t, "@tbl", loop.Table)
}

func TestParse_LoopDirectiveErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing order by", "{% FROM t %}x{% END %}", "missing ORDER BY"},
		{"order without by", "{% FROM t ORDER a %}x{% END %}", "expected ORDER BY"},
		{"bad separator escape", `{% FROM t ORDER BY a SEP '\t' %}x{% END %}`, `unsupported escape \t`},
		{"trailing junk", "{% FROM t ORDER BY a LIMIT 3 %}x{% END %}", "unexpected"},
		{"bad alias", "{% FROM t AS x ORDER BY a %}x{% END %}", "invalid alias"},
		{"empty where", "{% FROM t WHERE ORDER BY a %}x{% END %}", "empty WHERE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := template.Parse("%% code\n" + tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_NestingMismatch(t *testing.T) {
	_, err := template.Parse("%% code\n{% FROM t ORDER BY a %}{% ENDMACRO %}")
	require.Error(t, err)
	var parseErr *template.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "END", parseErr.Expected)
	assert.Equal(t, "ENDMACRO", parseErr.Found)
}

func TestParse_UnterminatedLoopAtEOF(t *testing.T) {
	_, err := template.Parse("%% code\n{% FROM t ORDER BY a %}body")
	require.Error(t, err)
	var parseErr *template.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "END", parseErr.Expected)
	assert.Equal(t, "EOF", parseErr.Found)
}

func TestParse_StrayEnd(t *testing.T) {
	_, err := template.Parse("%% code\ntext{% END %}")
	require.Error(t, err)
	var parseErr *template.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "end of section", parseErr.Expected)
}

func TestParse_MacroDefinition(t *testing.T) {
	src := "%% code\n{% MACRO edge(@u, @d) %}{{ @u }} -> {{ @d }};{% ENDMACRO %}{{ call edge(up, dn) }}"
	tpl, err := template.Parse(src)
	require.NoError(t, err)
	require.Len(t, tpl.Body.Children, 2)

	def := tpl.Body.Children[0].(*template.MacroDef)
	assert.Equal(t, "edge", def.Name)
	assert.Equal(t, []string{"@u", "@d"}, def.Params)
	require.Len(t, def.Body.Children, 4)
	assert.Equal(t, "@u", def.Body.Children[0].(*template.FieldRef).Expr)
	assert.Equal(t, " -> ", def.Body.Children[1].(*template.Text).Value)
	assert.Equal(t, "@d", def.Body.Children[2].(*template.FieldRef).Expr)
	assert.Equal(t, ";", def.Body.Children[3].(*template.Text).Value)

	call := tpl.Body.Children[1].(*template.MacroCall)
	assert.Equal(t, "edge", call.Name)
	assert.Equal(t, []string{"up", "dn"}, call.Args)
}

func TestParse_MacroInsideLoopRejected(t *testing.T) {
	src := "%% code\n{% FROM t ORDER BY a %}{% MACRO f() %}x{% ENDMACRO %}{% END %}"
	_, err := template.Parse(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "macro definition not allowed inside LOOP")
}

func TestParse_CallArgSplitting(t *testing.T) {
	tpl, err := template.Parse("%% code\n{{ call f(printf('%s, %s', a, b), 'x,y', t.col) }}")
	require.NoError(t, err)
	call := tpl.Body.Children[0].(*template.MacroCall)
	assert.Equal(t, []string{"printf('%s, %s', a, b)", "'x,y'", "t.col"}, call.Args)
}

func TestParse_Insert(t *testing.T) {
	src := "%% code\n{% INSERT INTO sys_Write (path, content) VALUES ('out.txt', $$) %}hello{% END %}"
	tpl, err := template.Parse(src)
	require.NoError(t, err)
	ins := tpl.Body.Children[0].(*template.Insert)
	assert.Equal(t, "sys_Write", ins.Table)
	assert.Equal(t, []string{"path", "content"}, ins.Columns)
	assert.Equal(t, []string{"'out.txt'", "$$"}, ins.Values)
	assert.Equal(t, "", ins.From)
	require.Len(t, ins.Body.Children, 1)
}

func TestParse_InsertWithFrom(t *testing.T) {
	src := "%% code\n{% INSERT INTO out (path, content) VALUES (name, $$) FROM Pages %}x{% END %}"
	tpl, err := template.Parse(src)
	require.NoError(t, err)
	ins := tpl.Body.Children[0].(*template.Insert)
	assert.Equal(t, "FROM Pages", ins.From)
}

func TestParse_InsertArityMismatch(t *testing.T) {
	_, err := template.Parse("%% code\n{% INSERT INTO t (a, b) VALUES (1) %}x{% END %}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 columns but 1 values")
}

func TestParse_MultipleCodeSectionsConcatenate(t *testing.T) {
	tpl, err := template.Parse("%% code\nfirst\n%% code\nsecond")
	require.NoError(t, err)
	require.Len(t, tpl.Body.Children, 2)
	assert.Equal(t, "first\n", tpl.Body.Children[0].(*template.Text).Value)
	assert.Equal(t, "second", tpl.Body.Children[1].(*template.Text).Value)
}

func TestParse_MultipleInitSectionsKeepOrder(t *testing.T) {
	tpl, err := template.Parse("%% init\nA;\n%% init\nB;\n%% code\nx")
	require.NoError(t, err)
	require.Len(t, tpl.Init, 2)
	assert.Equal(t, "A;\n", tpl.Init[0])
	assert.Equal(t, "B;\n", tpl.Init[1])
}

func TestParse_EmptyEscapeRejected(t *testing.T) {
	_, err := template.Parse("%% code\n{{  }}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty escape")
}
