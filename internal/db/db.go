// Package db provides database persistence for famplan.
//
// A single store database holds members, sources, recurrence rules and
// tasks. SQLite (.famplan/famplan.db) is the default; PostgreSQL is selected
// through configuration.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/famplan/internal/db/driver"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// memoryDSN selects a private in-memory SQLite database.
const memoryDSN = ":memory:"

// schemaFiles exposes the embedded migrations to the driver.
type schemaFiles struct{}

func (schemaFiles) ReadDir(name string) ([]driver.DirEntry, error) {
	entries, err := schemaFS.ReadDir(name)
	if err != nil {
		return nil, err
	}
	out := make([]driver.DirEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry
	}
	return out, nil
}

func (schemaFiles) ReadFile(name string) ([]byte, error) {
	return schemaFS.ReadFile(name)
}

// DB is an open connection behind a dialect driver.
type DB struct {
	driver driver.Driver
	dsn    string
}

// OpenInMemory opens a fresh in-memory SQLite database.
func OpenInMemory() (*DB, error) {
	return OpenWithDialect(memoryDSN, driver.DialectSQLite)
}

// OpenWithDialect connects to dsn. For a SQLite file the parent directory
// is created first.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*DB, error) {
	if dialect == driver.DialectSQLite && dsn != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	return &DB{driver: drv, dsn: dsn}, nil
}

// Close closes the connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// Path returns the DSN the database was opened with.
func (d *DB) Path() string {
	return d.dsn
}

// Driver returns the dialect driver.
func (d *DB) Driver() driver.Driver {
	return d.driver
}

// Migrate applies pending migrations named {schemaType}_NNN.sql.
func (d *DB) Migrate(ctx context.Context, schemaType string) error {
	return d.driver.Migrate(ctx, schemaFiles{}, schemaType)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (driver.Tx, error) {
	return d.driver.BeginTx(ctx, opts)
}
