// Package config provides configuration management for the rtemplate
// CLI. Settings are layered: defaults, then rtemplate.yaml, then
// RTEMPLATE_ environment variables, then command-line flags.
package config

import (
	"log/slog"
	"os"
)

// Default configuration values.
const (
	DefaultDatabase = ":memory:"
	EnvPrefix       = "RTEMPLATE_"
)

// Config holds all CLI configuration options.
type Config struct {
	// Database is the SQLite database path, ":memory:" for a throwaway
	// in-memory database.
	Database string `koanf:"database"`
	// Prefix is the directory sys_Write files are written under. Empty
	// disables file materialization.
	Prefix string `koanf:"prefix"`
	// Verbose enables debug logging.
	Verbose bool `koanf:"verbose"`
	// SkipFiniOnError leaves fini sections unexecuted after a failed run.
	SkipFiniOnError bool `koanf:"skip_fini_on_error"`
}

// NewLogger builds the CLI logger. Logs go to stderr so rendered output
// on stdout stays clean.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
