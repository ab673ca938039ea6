package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dhbaird/rtemplate/internal/config"
	"github.com/spf13/cobra"
)

// ConfigKey is the context key the root command stores the loaded
// configuration under.
type ConfigKey struct{}

// LoggerKey is the context key the root command stores the logger under.
type LoggerKey struct{}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(ConfigKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{Database: config.DefaultDatabase}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// readSource reads a template from a file path, or from stdin when the
// argument is "-".
func readSource(cmd *cobra.Command, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read template from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}
