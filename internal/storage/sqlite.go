package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"ledmkt-backend/pkg/logger"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type SQLiteStorage struct {
	path string
	db   *sql.DB
}

func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

func (s *SQLiteStorage) Init() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageInit, err)
		}
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}
	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	s.db = db
	logger.Infof("SQLite storage initialized at %s", s.path)
	return nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key, value string) error {
	query := `
        INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backup writes a consistent copy of the database next to it.
func (s *SQLiteStorage) Backup() error {
	target := fmt.Sprintf("%s.backup", s.path)
	_ = os.Remove(target)
	if _, err := s.db.Exec(`VACUUM INTO ?`, target); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	logger.Infof("Backup completed: %s", target)
	return nil
}
