// Package cli provides the command-line interface for rtemplate.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dhbaird/rtemplate/internal/cli/commands"
	"github.com/dhbaird/rtemplate/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rtemplate",
		Short: "rtemplate - relational template renderer",
		Long: `rtemplate compiles text templates with row-iteration loops and macros
into a single SQLite query, then runs that query to produce the
rendered output and any side-effect files.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Verbose)

			ctx := context.WithValue(cmd.Context(), commands.ConfigKey{}, cfg)
			ctx = context.WithValue(ctx, commands.LoggerKey{}, logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if used := config.GetConfigFileUsed(); used != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Relational template renderer built with Go and SQLite
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rtemplate.yaml)")
	rootCmd.PersistentFlags().StringP("database", "d", "", "Path to SQLite database (empty for in-memory)")
	rootCmd.PersistentFlags().StringP("prefix", "p", "", "Directory to write sys_Write files under")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("skip-fini-on-error", false, "Do not run fini sections after a failed run")

	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
