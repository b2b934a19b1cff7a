// Package db provides the SQLite connection and schema for the colour history.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Bulb history - append-only, one row per colour change or failed poll
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bulb_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			light_id INTEGER,
			side TEXT,
			is_on INTEGER,
			brightness INTEGER,
			color_mode TEXT,
			ct REAL,
			x REAL,
			y REAL,
			r REAL,
			g REAL,
			b REAL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_history_ts ON bulb_history(timestamp);
		CREATE INDEX IF NOT EXISTS idx_history_light_ts ON bulb_history(light_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create bulb_history table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
