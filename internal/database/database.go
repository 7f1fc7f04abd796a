// Package database is the sqlite store behind the forwarding service:
// accounts, destinations, policies, run history, and the single-flight run
// flag. Repositories are methods on DB.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// sqlite options: WAL so the HTTP trigger and the scheduler can share the
// file, foreign keys for the per-user cascades, and a busy timeout instead
// of immediate SQLITE_BUSY failures.
const dsnOptions = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

// DB wraps sqlx.DB
type DB struct {
	*sqlx.DB
}

// New opens the database at path, creating the parent directory when missing
func New(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{db}, nil
}

// Migrate applies the schema. Every statement is idempotent, so it runs
// unconditionally at startup.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
