// Package sqlite implements the repository interfaces on SQLite.
//
// SQLite is embedded — one file, no server to run — which fits a
// single-process catalog API. The modernc.org/sqlite driver is a pure Go
// translation of SQLite, so the binary cross-compiles without cgo.
//
// Connection options live in the DSN, not in pool-level PRAGMA
// statements: database/sql hands out whichever pooled connection is
// free, and an Exec'd pragma only configures the one connection it ran
// on. DSN options apply to every connection the pool opens:
//
//   - foreign_keys(1): enforce REFERENCES, so deleting a book cascades
//     to its ratings on whichever connection runs the DELETE
//   - journal_mode(WAL): readers proceed concurrently with writes
//   - busy_timeout: a connection blocked by the single SQLite writer
//     waits instead of failing with SQLITE_BUSY
//   - _txlock=immediate: transactions take the write lock at BEGIN, so
//     two rating transactions queue up rather than both reading stale
//     state and deadlocking at the first write
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql at init time.
	_ "modernc.org/sqlite"
)

// dsnOptions is appended to every database path that does not carry its
// own options.
const dsnOptions = "?_txlock=immediate" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)"

// DB wraps the sql.DB pool and implements repository.BookRepository and
// repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for a throwaway in-memory database in tests.
func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += dsnOptions
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A ":memory:" database exists per connection; cap the pool at one
	// so every query sees the same database.
	if strings.Contains(dbPath, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	// Surface bad paths and permission problems now rather than on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Call on shutdown so the WAL is
// flushed and the file lock released.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it safe to
// run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			author         TEXT NOT NULL,
			genre          TEXT NOT NULL,
			year           INTEGER NOT NULL,
			image_url      TEXT NOT NULL DEFAULT '',
			owner_id       TEXT NOT NULL REFERENCES users(id),
			average_rating REAL NOT NULL DEFAULT 0,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_books_owner_id ON books(owner_id);
		CREATE INDEX IF NOT EXISTS idx_books_average_rating ON books(average_rating DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating books table: %w", err)
	}

	// One rating per rater per book is a schema-level invariant: the
	// primary key makes a duplicate INSERT fail even if two requests
	// race past the application-level check.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS ratings (
			book_id    TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			rater_id   TEXT NOT NULL,
			grade      INTEGER NOT NULL CHECK (grade BETWEEN 0 AND 5),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (book_id, rater_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating ratings table: %w", err)
	}

	return nil
}
