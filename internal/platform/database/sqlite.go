package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// SQLite wraps a database/sql handle opened with the modernc driver.
type SQLite struct {
	DB *sql.DB
}

// OpenSQLite opens the SQLite database at dsn, applies pragmas and creates
// the tutor tables. File-backed databases get their parent directory created.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if !isMemoryDSN(dsn) {
		if err := os.MkdirAll(filepath.Dir(strings.TrimPrefix(dsn, "file:")), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// SQLite serializes writers anyway; a single connection also keeps
	// :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db, isMemoryDSN(dsn)); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying pragmas: %w", err)
	}

	for i, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}

	return &SQLite{DB: db}, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.DB.Close()
}

// HealthCheck verifies the database handle is usable.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func applyPragmas(ctx context.Context, db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tutor_topics (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		variants   TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tutor_topics_name_fold_idx ON tutor_topics (lower(name))`,
	// progress is an ordered JSON array of {topic, score}, not an object.
	`CREATE TABLE IF NOT EXISTS tutor_users (
		user_id       INTEGER PRIMARY KEY,
		current_topic TEXT,
		progress      TEXT NOT NULL DEFAULT '[]',
		updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
