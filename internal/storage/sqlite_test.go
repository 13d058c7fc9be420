package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/bunken/internal/models"
)

func TestSQLiteRepository_CRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	ctx := context.Background()

	entry := &models.Entry{
		Key:  "smith2020",
		Type: "article",
		Fields: map[string]string{
			"title":  "Quantum Algorithms",
			"author": "Alice Smith",
			"year":   "2020",
		},
	}
	if err := repo.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}
	if entry.AddedAt.IsZero() {
		t.Error("AddedAt should be set")
	}

	got, err := repo.Find(ctx, "smith2020")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "article" || got.Field("title") != "Quantum Algorithms" {
		t.Errorf("got %+v", got)
	}

	entry.Fields["title"] = "Quantum Algorithms Revisited"
	if err := repo.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.Find(ctx, "smith2020")
	if got.Field("title") != "Quantum Algorithms Revisited" {
		t.Errorf("expected updated title, got %s", got.Field("title"))
	}

	list, err := repo.List(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 entry, got %d", len(list))
	}

	if err := repo.Delete(ctx, "smith2020"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Find(ctx, "smith2020"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteRepository_PutPreservesAddedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	ctx := context.Background()

	entry := &models.Entry{Key: "doe2019", Type: "book", Fields: map[string]string{"title": "First"}}
	if err := repo.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}
	first, err := repo.Find(ctx, "doe2019")
	if err != nil {
		t.Fatal(err)
	}

	entry.Fields["title"] = "Second"
	if err := repo.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}
	second, err := repo.Find(ctx, "doe2019")
	if err != nil {
		t.Fatal(err)
	}

	if !second.AddedAt.Equal(first.AddedAt) {
		t.Errorf("AddedAt changed on replace: %v -> %v", first.AddedAt, second.AddedAt)
	}
	if second.Field("title") != "Second" {
		t.Errorf("expected replaced title, got %s", second.Field("title"))
	}
}

func TestSQLiteRepository_PutBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	ctx := context.Background()

	entries := []*models.Entry{
		{Key: "a1", Type: "article", Fields: map[string]string{"title": "A"}},
		{Key: "b2", Type: "book", Fields: map[string]string{"title": "B"}},
		{Key: "c3", Type: "misc", Fields: map[string]string{"title": "C"}},
	}
	if err := repo.PutBatch(ctx, entries); err != nil {
		t.Fatal(err)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v, want 3", n, err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Key != "a1" || all[2].Key != "c3" {
		t.Errorf("All() should be ordered by key, got %d entries", len(all))
	}
}

func TestSQLiteRepository_DeleteMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	if err := repo.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	ctx := context.Background()

	for _, key := range []string{"e1", "e2", "e3", "e4", "e5"} {
		if err := repo.Put(ctx, &models.Entry{Key: key, Type: "misc"}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Key != "e3" || page[1].Key != "e4" {
		t.Errorf("List(2, 2) = %v", keysOf(page))
	}
}

func keysOf(entries []*models.Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}
