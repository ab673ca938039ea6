// Package adapter defines the database contract the execution engine
// runs against. Concrete implementations live in pkg/adapters/
// subdirectories.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the connection settings for an adapter.
type Config struct {
	// Path is the database file path. ":memory:" (or empty) opens a
	// throwaway in-memory database.
	Path string
}

// Adapter is the interface the engine drives. Implementations wrap a
// database/sql connection for one SQL backend.
type Adapter interface {
	// Connect establishes the database connection.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) error

	// Query runs a statement that returns rows. The caller owns the
	// returned rows and must close them.
	Query(ctx context.Context, sql string) (*sql.Rows, error)

	// QueryText runs a query expected to yield exactly one row with a
	// single text column and returns that text.
	QueryText(ctx context.Context, sql string) (string, error)
}
