// Package store provides SQLite persistence for exercise records, photos,
// users, API usage, and access control.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds SQLite configuration.
type Config struct {
	// Path is the database file location.
	Path string `yaml:"path"`

	// JournalMode is the SQLite journal mode.
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout is the SQLite busy timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`
}

// Store wraps the SQLite database connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database, verifies connectivity, and applies
// the schema.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "./data/kryten.db"
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5000
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON",
		cfg.Path, cfg.JournalMode, cfg.BusyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates the schema_version table and applies the schema.
// The schema itself is idempotent via IF NOT EXISTS.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read schema version: %w", err)
	}

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if current == 0 {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
	}

	s.logger.Debug("database ready", "schema_version", 1)
	return nil
}

// Today returns the current date in the YYYY-MM-DD form used by the
// recorded_date column. UTC, matching SQLite's date('now').
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}

const schema = `
-- Exercise records
CREATE TABLE IF NOT EXISTS exercises (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       INTEGER NOT NULL,
    username      TEXT,
    exercise      TEXT NOT NULL,
    count         REAL NOT NULL,
    unit          TEXT NOT NULL DEFAULT 'reps',
    notes         TEXT,
    recorded_at   TEXT NOT NULL DEFAULT (datetime('now')),
    recorded_date TEXT NOT NULL DEFAULT (date('now'))
);
CREATE INDEX IF NOT EXISTS idx_exercises_user_date ON exercises(user_id, recorded_date);
CREATE INDEX IF NOT EXISTS idx_exercises_date ON exercises(recorded_date);

-- Proof photos attached to exercises
CREATE TABLE IF NOT EXISTS exercise_photos (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    exercise_id INTEGER NOT NULL,
    file_id     TEXT NOT NULL,
    local_path  TEXT,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY (exercise_id) REFERENCES exercises(id)
);

-- Known users
CREATE TABLE IF NOT EXISTS users (
    user_id    INTEGER PRIMARY KEY,
    username   TEXT,
    first_name TEXT,
    added_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Model API usage accounting
CREATE TABLE IF NOT EXISTS api_usage (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       INTEGER,
    input_tokens  INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    model         TEXT,
    cost_usd      REAL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Per-sender access state
CREATE TABLE IF NOT EXISTS access_control (
    user_id      INTEGER PRIMARY KEY,
    first_name   TEXT,
    username     TEXT,
    status       TEXT NOT NULL DEFAULT 'pending',
    requested_at TEXT NOT NULL DEFAULT (datetime('now')),
    resolved_at  TEXT
);
`
