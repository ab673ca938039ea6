package commands

import (
	"fmt"

	"github.com/dhbaird/rtemplate/internal/config"
	"github.com/dhbaird/rtemplate/internal/engine"
	"github.com/dhbaird/rtemplate/pkg/adapter"
	"github.com/dhbaird/rtemplate/pkg/adapters/sqlite"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <template>",
		Short: "Render a template against SQLite",
		Long: `Compile a template into SQL, execute it, and print the rendered
output. Rows inserted into sys_Write are materialized as files under
the --prefix directory; without a prefix they are reported but not
written.

Use "-" as the template argument to read from stdin.`,
		Example: `  # Render to stdout
  rtemplate run site.rt

  # Render and write sys_Write files under ./gen
  rtemplate run site.rt --prefix gen

  # Run against a database file instead of in-memory
  rtemplate run site.rt --database site.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0])
		},
	}
	return cmd
}

func runRun(cmd *cobra.Command, arg string) error {
	cfg := GetConfig(cmd.Context())
	logger := GetLogger(cmd.Context())

	src, err := readSource(cmd, arg)
	if err != nil {
		return err
	}

	dbPath := cfg.Database
	if dbPath == config.DefaultDatabase {
		dbPath = ""
	}

	eng := engine.New(engine.Config{
		Adapter:         sqlite.New(),
		AdapterConfig:   adapter.Config{Path: dbPath},
		Prefix:          cfg.Prefix,
		SkipFiniOnError: cfg.SkipFiniOnError,
		Logger:          logger,
	})
	defer func() { _ = eng.Close() }()

	result, err := eng.Run(cmd.Context(), src)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Output)
	if len(result.Files) > 0 && !result.Written {
		fmt.Fprintf(cmd.ErrOrStderr(),
			"Warning: %d sys_Write file(s) not written; pass --prefix DIR to materialize them\n",
			len(result.Files))
	}
	return nil
}
