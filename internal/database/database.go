// Package database opens the reservation ledger database and keeps its
// schema up to date.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the booking engine.
type DB struct {
	*sql.DB
}

// New opens the database at path and runs migrations. Use ":memory:"
// for an ephemeral test ledger.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The ledger is single-writer; a second connection would only
	// contend on sqlite's own lock.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
			key TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			service_duration_minutes INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'reserved',
			created_at DATETIME NOT NULL,
			reserved_until DATETIME NOT NULL,
			confirmed_at DATETIME,
			cancelled_at DATETIME,
			remarcation_count INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_date ON reservations(date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_customer ON reservations(customer_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(status, reserved_until)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Ping verifies the connection for readiness checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
