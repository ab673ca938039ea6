package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// BaseSQLAdapter provides common database/sql functionality for
// adapters. Embed it in concrete implementations to get standard
// Close, Exec, Query, and QueryText implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*sql.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// QueryText executes a query expected to produce exactly one row with
// one text column.
func (b *BaseSQLAdapter) QueryText(ctx context.Context, sqlStr string) (string, error) {
	rows, err := b.Query(ctx, sqlStr)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("failed to read query result: %w", err)
		}
		return "", fmt.Errorf("query produced no rows, expected one")
	}
	var text string
	if err := rows.Scan(&text); err != nil {
		return "", fmt.Errorf("failed to scan query result: %w", err)
	}
	if rows.Next() {
		return "", fmt.Errorf("query produced more than one row, expected one")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read query result: %w", err)
	}
	return text, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}
