package commands

import (
	"bytes"
	"testing"

	"github.com/dhbaird/rtemplate/internal/cli/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCommand_ReportsSummary(t *testing.T) {
	src := "%% init\nCREATE TABLE Edge (up, dn);\n" +
		"%% code\n" +
		"{% MACRO arrow(@u, @d) %}{{ @u }} -> {{ @d }}{% ENDMACRO %}" +
		"{% FROM Edge ORDER BY up %}{{ call arrow(up, dn) }}{% END %}"
	path := testutil.WriteTemplate(t, src)

	cmd := NewCheckCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	report := out.String()
	assert.Contains(t, report, "Template OK")
	assert.Contains(t, report, "Edge")
	assert.Contains(t, report, "sys_Write")
	assert.Contains(t, report, "arrow")
	assert.Contains(t, report, "@u, @d")
	assert.Contains(t, report, "init sections: 1, fini sections: 0, insert directives: 0")
}

func TestCheckCommand_MacroTableShowsCallsInExpansionOrder(t *testing.T) {
	src := "%% code\n" +
		"{% MACRO leaf() %}x{% ENDMACRO %}" +
		"{% MACRO wrap() %}[{{ call leaf() }}]{% ENDMACRO %}" +
		"{{ call wrap() }}"
	path := testutil.WriteTemplate(t, src)

	cmd := NewCheckCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	report := out.String()
	assert.Contains(t, report, "Calls")
	assert.Contains(t, report, "leaf")
	assert.Contains(t, report, "wrap")
}

func TestCheckCommand_FailsOnBrokenTemplate(t *testing.T) {
	path := testutil.WriteTemplate(t, "%% code\n{{ call nope() }}")

	cmd := NewCheckCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved")
}
