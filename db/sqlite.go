package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Errors returned by the store layer. Callers distinguish them with
// errors.Is; everything else is an underlying storage failure.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Logger is the logging surface the store and service layers need.
// *utils.Logger satisfies it.
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// DB wraps the SQLite database connection backing all three object stores.
type DB struct {
	conn *sql.DB
}

// migration is one step of a store's ordered schema history. Steps run inside
// a transaction and may transform existing rows, not just alter structure.
type migration struct {
	version int
	apply   func(tx *sql.Tx) error
}

// New opens (creating if necessary) the database at dbPath and brings every
// store up to its latest schema version. A store created by this call is
// seeded with its built-in dataset exactly once.
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate brings all stores up to date.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
		store TEXT PRIMARY KEY,
		version INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	stores := []struct {
		name       string
		migrations []migration
		seed       func(tx *sql.Tx) error
	}{
		{"chat_settings", settingMigrations, seedSettings},
		{"conversations", conversationMigrations, nil},
		{"file_data", fileDataMigrations, nil},
	}

	for _, s := range stores {
		if err := db.migrateStore(s.name, s.migrations, s.seed); err != nil {
			return fmt.Errorf("store %s: %w", s.name, err)
		}
	}
	return nil
}

// migrateStore applies every migration newer than the store's recorded
// version, each in its own transaction so a reopened database resumes where
// it left off. seed runs only when the store did not exist before this call.
func (db *DB) migrateStore(name string, migrations []migration, seed func(tx *sql.Tx) error) error {
	var current int
	err := db.conn.QueryRow(
		"SELECT version FROM schema_versions WHERE store = ?", name,
	).Scan(&current)
	fresh := false
	if err == sql.ErrNoRows {
		fresh = true
		current = 0
	} else if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_versions (store, version) VALUES (?, ?)
			 ON CONFLICT(store) DO UPDATE SET version = excluded.version`,
			name, m.version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	if fresh && seed != nil {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin seeding: %w", err)
		}
		if err := seed(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("seeding failed: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit seeding: %w", err)
		}
	}

	return nil
}
