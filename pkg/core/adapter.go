package core

import (
	"context"
	"database/sql"
)

// Adapter defines the interface that all database adapters must implement.
// The SQL kernel executes cell code through an Adapter.
type Adapter interface {
	// Connect establishes a connection to the database.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the database connection.
	Close() error

	// Ping verifies the connection is still alive.
	Ping(ctx context.Context) error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// SQLDB exposes the underlying connection pool (nil before Connect).
	SQLDB() *sql.DB

	// DialectName returns the SQL dialect name (e.g., "duckdb", "postgres", "sqlite").
	DialectName() string
}

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
