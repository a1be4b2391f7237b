// Package sqlite provides SQLite persistence for coursebot.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned when an update or remove targets a key that no
// longer exists in the catalog.
var ErrNotFound = errors.New("record not found")

// StoreConfig holds database configuration.
type StoreConfig struct {
	Path     string // path to the SQLite database file
	MaxConns int    // maximum open connections (default: 4)
	WALMode  bool   // enable write-ahead logging
}

// Store wraps the database connection with a prepared-statement cache.
// Schema creation runs on open, so a fresh path is immediately usable.
type Store struct {
	cfg StoreConfig

	mu    sync.Mutex
	db    *sql.DB
	stmts map[string]*sql.Stmt
}

// NewStore opens (or creates) the database at cfg.Path and ensures the
// schema exists.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}

	s := &Store{cfg: cfg}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// newStoreFromDB wraps an existing connection. Used by tests.
func newStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db, stmts: make(map[string]*sql.Stmt)}
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.cfg.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxConns)
	db.SetMaxIdleConns(s.cfg.MaxConns)
	db.SetConnMaxLifetime(0) // SQLite connections are cheap, never expire

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if s.cfg.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("set synchronous mode: %w", err)
		}
	}
	// Retry instead of failing immediately when another writer holds the lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.stmts = make(map[string]*sql.Stmt)
	s.mu.Unlock()
	return nil
}

func createSchema(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS courses (
			key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			link TEXT NOT NULL,
			created_at TEXT NOT NULL,
			created_at_epoch INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_courses_category ON courses(category);
		CREATE TABLE IF NOT EXISTS recipients (
			chat_id INTEGER PRIMARY KEY,
			first_seen TEXT NOT NULL,
			first_seen_epoch INTEGER NOT NULL
		);
	`
	_, err := db.Exec(schema)
	return err
}

// Reset closes the current connection and reopens the database, recreating
// the schema. Called by the file watcher when the backing file disappears.
func (s *Store) Reset() error {
	s.mu.Lock()
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	s.stmts = nil
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db != nil {
		_ = db.Close()
	}
	return s.open()
}

// GetStmt returns a cached prepared statement for query, preparing it on
// first use.
func (s *Store) GetStmt(query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// ExecContext executes a query through the statement cache.
func (s *Store) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	stmt, err := s.GetStmt(query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// QueryContext runs a query through the statement cache.
func (s *Store) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	stmt, err := s.GetStmt(query)
	if err != nil {
		return nil, err
	}
	return stmt.QueryContext(ctx, args...)
}

// QueryRowContext runs a single-row query through the statement cache. A
// preparation failure surfaces on Scan, matching database/sql semantics.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	stmt, err := s.GetStmt(query)
	if err != nil {
		s.mu.Lock()
		db := s.db
		s.mu.Unlock()
		return db.QueryRowContext(ctx, query, args...)
	}
	return stmt.QueryRowContext(ctx, args...)
}

// Close closes all cached statements and the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	s.stmts = nil
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return errors.New("store is closed")
	}
	return db.Ping()
}
