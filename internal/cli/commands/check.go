package commands

import (
	"fmt"
	"strings"

	"github.com/dhbaird/rtemplate/internal/engine"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <template>",
		Short: "Validate a template without executing it",
		Long: `Parse and compile a template, reporting lexical, syntactic,
macro-resolution and generation errors. On success a summary of the
template's tables and macros is printed.`,
		Example: `  rtemplate check site.rt`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0])
		},
	}
	return cmd
}

func runCheck(cmd *cobra.Command, arg string) error {
	src, err := readSource(cmd, arg)
	if err != nil {
		return err
	}

	compiled, err := engine.Compile(src)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Template OK")
	fmt.Fprintln(out)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Columns", "Read by body"})
	read := map[string]bool{}
	for _, name := range compiled.Query.Tables {
		read[name] = true
	}
	for _, name := range compiled.Catalog.Tables() {
		t.AppendRow(table.Row{
			name,
			strings.Join(compiled.Catalog.Columns(name), ", "),
			read[name],
		})
	}
	t.Render()

	// Macros are listed in expansion order: a macro's callees first.
	if names := compiled.Macros.ExpansionOrder(); len(names) > 0 {
		fmt.Fprintln(out)
		m := table.NewWriter()
		m.SetOutputMirror(out)
		m.SetStyle(table.StyleLight)
		m.AppendHeader(table.Row{"Macro", "Parameters", "Calls"})
		for _, name := range names {
			def, _ := compiled.Macros.Get(name)
			m.AppendRow(table.Row{
				name,
				strings.Join(def.Params, ", "),
				strings.Join(compiled.Macros.Calls(name), ", "),
			})
		}
		m.Render()
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "init sections: %d, fini sections: %d, insert directives: %d\n",
		len(compiled.Template.Init), len(compiled.Template.Fini), len(compiled.Query.Statements))
	return nil
}
