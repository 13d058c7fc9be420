package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/bunken/internal/models"
)

// MemoryRepository implements EntryRepository with an in-process map. It is
// used by tests and by ephemeral sessions that load a library from a file.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.Entry
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*models.Entry)}
}

// Put inserts or replaces an entry. The stored copy is detached from the
// caller's value so later mutations do not leak into the repository.
func (r *MemoryRepository) Put(ctx context.Context, entry *models.Entry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("entry key must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := cloneEntry(entry)
	if prev, ok := r.entries[entry.Key]; ok {
		stored.AddedAt = prev.AddedAt
	} else if stored.AddedAt.IsZero() {
		stored.AddedAt = now
	}
	stored.UpdatedAt = now
	r.entries[entry.Key] = stored
	return nil
}

// PutBatch inserts or replaces multiple entries.
func (r *MemoryRepository) PutBatch(ctx context.Context, entries []*models.Entry) error {
	for _, entry := range entries {
		if err := r.Put(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the entry stored under key.
func (r *MemoryRepository) Find(ctx context.Context, key string) (*models.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("entry %q: %w", key, ErrNotFound)
	}
	return cloneEntry(entry), nil
}

// All returns every stored entry ordered by key.
func (r *MemoryRepository) All(ctx context.Context) ([]*models.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*models.Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, cloneEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// List returns entries ordered by key with offset and limit.
func (r *MemoryRepository) List(ctx context.Context, offset, limit int) ([]*models.Entry, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Delete removes the entry stored under key.
func (r *MemoryRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return fmt.Errorf("entry %q: %w", key, ErrNotFound)
	}
	delete(r.entries, key)
	return nil
}

// Count returns the number of stored entries.
func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entries)), nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryRepository) Close() error { return nil }

func cloneEntry(entry *models.Entry) *models.Entry {
	clone := *entry
	if entry.Fields != nil {
		clone.Fields = make(map[string]string, len(entry.Fields))
		for k, v := range entry.Fields {
			clone.Fields[k] = v
		}
	}
	return &clone
}
