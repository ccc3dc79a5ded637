// Package sqlite persists browser sessions in a SQLite database.
//
// Using SQLite lets UI state survive a restart of a single-node deployment
// without running anything next to the binary. modernc.org/sqlite is a pure
// Go port, so no C toolchain is needed to build it.
//
// Each session is one row: the id, the whole session as a JSON document, and
// its timestamps as separate columns so the janitor can sweep idle rows
// with an indexed range delete instead of decoding every document.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/sessions.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// The pool is capped at a single connection. SQLite allows one writer at a
// time anyway, and with ":memory:" every extra connection would open a
// separate, empty database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL keeps readers from blocking on the writer.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent so it runs on
// each start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	return nil
}
