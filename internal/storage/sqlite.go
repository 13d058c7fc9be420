package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/bunken/internal/models"
)

// SQLiteRepository implements EntryRepository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		fields TEXT,
		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_entries_updated_at ON entries(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Put inserts or replaces an entry. Replacing keeps the original added_at so
// the entry's age survives edits.
func (r *SQLiteRepository) Put(ctx context.Context, entry *models.Entry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("entry key must not be empty")
	}
	fieldsJSON, err := json.Marshal(entry.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	now := time.Now()
	if entry.AddedAt.IsZero() {
		entry.AddedAt = now
	}
	entry.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entries (key, type, fields, added_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   type = excluded.type,
		   fields = excluded.fields,
		   updated_at = excluded.updated_at`,
		entry.Key, entry.Type, string(fieldsJSON), entry.AddedAt, entry.UpdatedAt,
	)
	return err
}

// PutBatch inserts or replaces entries in a single transaction.
func (r *SQLiteRepository) PutBatch(ctx context.Context, entries []*models.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (key, type, fields, added_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   type = excluded.type,
		   fields = excluded.fields,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, entry := range entries {
		if entry == nil || entry.Key == "" {
			return fmt.Errorf("entry key must not be empty")
		}
		fieldsJSON, err := json.Marshal(entry.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields for %s: %w", entry.Key, err)
		}
		if entry.AddedAt.IsZero() {
			entry.AddedAt = now
		}
		entry.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, entry.Key, entry.Type, string(fieldsJSON), entry.AddedAt, entry.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Find returns the entry stored under key.
func (r *SQLiteRepository) Find(ctx context.Context, key string) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT key, type, fields, added_at, updated_at FROM entries WHERE key = ?`, key,
	)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// All returns every stored entry ordered by key.
func (r *SQLiteRepository) All(ctx context.Context) ([]*models.Entry, error) {
	return r.queryEntries(ctx,
		`SELECT key, type, fields, added_at, updated_at FROM entries ORDER BY key`)
}

// List returns entries ordered by key with offset and limit.
func (r *SQLiteRepository) List(ctx context.Context, offset, limit int) ([]*models.Entry, error) {
	return r.queryEntries(ctx,
		`SELECT key, type, fields, added_at, updated_at FROM entries ORDER BY key LIMIT ? OFFSET ?`,
		limit, offset)
}

func (r *SQLiteRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*models.Entry, error) {
	var entry models.Entry
	var fieldsJSON string
	if err := row.Scan(&entry.Key, &entry.Type, &fieldsJSON, &entry.AddedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}
	if fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &entry.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields for %s: %w", entry.Key, err)
		}
	}
	return &entry, nil
}

// Delete removes the entry stored under key.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entry %q: %w", key, ErrNotFound)
	}
	return nil
}

// Count returns the total number of stored entries.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
