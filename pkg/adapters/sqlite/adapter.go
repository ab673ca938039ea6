// Package sqlite provides a SQLite database adapter backed by the
// pure-Go modernc.org/sqlite driver, so builds need no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dhbaird/rtemplate/pkg/adapter"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
func New() *Adapter {
	return &Adapter{}
}

// Connect opens the SQLite database. Use ":memory:" (or leave the path
// empty) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	// A pooled second connection would see its own empty in-memory
	// database, so pin everything to one.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg

	return nil
}
