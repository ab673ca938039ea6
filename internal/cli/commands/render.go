package commands

import (
	"fmt"

	"github.com/dhbaird/rtemplate/internal/engine"
	"github.com/spf13/cobra"
)

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Print the SQL a template compiles to",
		Long: `Compile a template and print the full SQL script a run would
execute, without touching a database.

This is useful for debugging template issues and for piping the script
into a SQLite shell by hand.`,
		Example: `  # Inspect the generated SQL
  rtemplate render site.rt

  # Save it for later
  rtemplate render site.rt > site.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0])
		},
	}
	return cmd
}

func runRender(cmd *cobra.Command, arg string) error {
	src, err := readSource(cmd, arg)
	if err != nil {
		return err
	}

	compiled, err := engine.Compile(src)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), compiled.Script())
	return nil
}
