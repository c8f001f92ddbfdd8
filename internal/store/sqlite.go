// Package store provides storage backends for receipts.
//
// This file implements an SQLite-backed receipt store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nisiwa02/sleep-journal-app/internal/lockfile"
	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db   *sql.DB
	lock *lockfile.Lock
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dir := sqliteDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Only one process may own a database file.
	var lock *lockfile.Lock
	if path := sqlitePath(dsn); path != "" {
		l, err := lockfile.Acquire(path)
		if err != nil {
			return nil, fmt.Errorf("failed to lock database: %w", err)
		}
		lock = l
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		lock.Release()
		return nil, err
	}
	// database/sql would otherwise open several connections to one file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		lock.Release()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		lock.Release()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, lock: lock}, nil
}

// sqlitePath returns the database file path, or "" for in-memory databases.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

// sqliteDir returns the directory holding the database file, or "" for
// in-memory databases.
func sqliteDir(dsn string) string {
	path := sqlitePath(dsn)
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, receiptArgs(r)...)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "request_id", r.RequestID)
		return fmt.Errorf("failed to insert receipt %s: %w", r.RequestID, err)
	}
	slog.Debug("SQLiteStore AddReceipt succeeded", "request_id", r.RequestID, "status", r.Status)
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT ` + receiptColumns + ` FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts, err := scanReceipts(rows)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

// ClearReceipts deletes all records in receipts table (for tests).
func (s *SQLiteStore) ClearReceipts() error {
	_, err := s.db.Exec("DELETE FROM receipts")
	if err != nil {
		slog.Error("SQLiteStore ClearReceipts failed", "error", err)
		return err
	}
	return nil
}

// PruneReceipts deletes receipts recorded before the given unix second.
func (s *SQLiteStore) PruneReceipts(before int64) (int, error) {
	res, err := s.db.Exec(`DELETE FROM receipts WHERE time < ?`, before)
	if err != nil {
		slog.Error("SQLiteStore PruneReceipts failed", "error", err)
		return 0, fmt.Errorf("failed to prune receipts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned receipts: %w", err)
	}
	slog.Debug("SQLiteStore PruneReceipts succeeded", "removed", n)
	return int(n), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	if lerr := s.lock.Release(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}
