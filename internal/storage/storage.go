// Package storage persists bibliography entries for the search core.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/bunken/internal/models"
)

// ErrNotFound is returned when no entry exists under the requested key.
var ErrNotFound = errors.New("entry not found")

// EntryRepository defines persistence operations for bibliography entries.
// The search core only reads; writes come from the CLI and the watcher.
type EntryRepository interface {
	// Find returns the entry stored under key. Missing entries yield an
	// error wrapping ErrNotFound.
	Find(ctx context.Context, key string) (*models.Entry, error)
	// All returns every stored entry ordered by key.
	All(ctx context.Context) ([]*models.Entry, error)
	// List returns entries ordered by key with offset and limit.
	List(ctx context.Context, offset, limit int) ([]*models.Entry, error)
	// Put inserts or replaces an entry. The added timestamp of an existing
	// entry is preserved; the updated timestamp is always refreshed.
	Put(ctx context.Context, entry *models.Entry) error
	// PutBatch inserts or replaces multiple entries atomically.
	PutBatch(ctx context.Context, entries []*models.Entry) error
	// Delete removes the entry stored under key. Deleting a missing key
	// yields an error wrapping ErrNotFound.
	Delete(ctx context.Context, key string) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)

	Close() error
}
