package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestHistory(t *testing.T, opts ...Option) (*History, string) {
	t.Helper()
	dir := t.TempDir()
	h, err := New(dir, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return h, dir
}

func mustRecord(t *testing.T, h *History, query string, results int, took time.Duration) {
	t.Helper()
	if err := h.Record(query, results, took); err != nil {
		t.Fatalf("Record(%q) error: %v", query, err)
	}
}

func TestHistoryRecordAndRecent(t *testing.T) {
	h, _ := newTestHistory(t)

	mustRecord(t, h, "first", 1, 10*time.Millisecond)
	mustRecord(t, h, "second", 2, 20*time.Millisecond)
	mustRecord(t, h, "third", 3, 30*time.Millisecond)

	recent := h.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(recent))
	}
	if recent[0].Query != "third" || recent[1].Query != "second" {
		t.Errorf("Recent(2) = [%s %s], want newest first", recent[0].Query, recent[1].Query)
	}
	if recent[0].ID == "" {
		t.Error("entry ID is empty")
	}
	if recent[0].ResultCount != 3 {
		t.Errorf("ResultCount = %d, want 3", recent[0].ResultCount)
	}
	if recent[0].SearchTimeMS != 30 {
		t.Errorf("SearchTimeMS = %d, want 30", recent[0].SearchTimeMS)
	}

	if got := h.Recent(0); len(got) != 3 {
		t.Errorf("len(Recent(0)) = %d, want all 3", len(got))
	}
	if got := h.Recent(10); len(got) != 3 {
		t.Errorf("len(Recent(10)) = %d, want 3", len(got))
	}
}

func TestHistoryPersistence(t *testing.T) {
	h, dir := newTestHistory(t)
	mustRecord(t, h, "durable", 4, 15*time.Millisecond)
	if _, err := h.SaveSearch("mine", "author:hinton", "favorite author"); err != nil {
		t.Fatalf("SaveSearch() error: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("New() reopen error: %v", err)
	}
	recent := reopened.Recent(1)
	if len(recent) != 1 || recent[0].Query != "durable" {
		t.Errorf("Recent() after reopen = %+v, want the recorded search", recent)
	}
	saved, ok := reopened.GetSaved("mine")
	if !ok || saved.Query != "author:hinton" {
		t.Errorf("GetSaved() after reopen = %+v, %v", saved, ok)
	}
}

func TestHistoryMaxEntries(t *testing.T) {
	h, _ := newTestHistory(t, WithMaxEntries(3))

	for _, q := range []string{"a", "b", "c", "d", "e"} {
		mustRecord(t, h, q, 0, time.Millisecond)
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("len(Recent(0)) = %d, want 3", len(recent))
	}
	if recent[0].Query != "e" || recent[2].Query != "c" {
		t.Errorf("retained queries = [%s .. %s], want [e .. c]", recent[0].Query, recent[2].Query)
	}
}

func TestHistoryPopular(t *testing.T) {
	h, _ := newTestHistory(t)

	for _, q := range []string{"neural", "bayesian", "neural", "attention", "neural", "attention"} {
		mustRecord(t, h, q, 0, time.Millisecond)
	}

	got := h.Popular(2)
	if len(got) != 2 {
		t.Fatalf("len(Popular(2)) = %d, want 2", len(got))
	}
	if got[0].Query != "neural" || got[0].Count != 3 {
		t.Errorf("Popular[0] = %+v, want neural x3", got[0])
	}
	if got[1].Query != "attention" || got[1].Count != 2 {
		t.Errorf("Popular[1] = %+v, want attention x2", got[1])
	}
}

func TestHistoryClearOlderThan(t *testing.T) {
	h, _ := newTestHistory(t)
	mustRecord(t, h, "old", 0, time.Millisecond)
	mustRecord(t, h, "new", 0, time.Millisecond)

	removed, err := h.ClearOlderThan(time.Hour)
	if err != nil {
		t.Fatalf("ClearOlderThan() error: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 for fresh entries", removed)
	}

	removed, err = h.ClearOlderThan(0)
	if err != nil {
		t.Fatalf("ClearOlderThan() error: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if got := h.Recent(0); len(got) != 0 {
		t.Errorf("Recent() after clear = %v, want empty", got)
	}
}

func TestHistoryCorruptFilesStartFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, historyFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, savedFile), []byte("[]"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	h, err := New(dir)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := h.Recent(0); len(got) != 0 {
		t.Errorf("Recent() = %v, want empty after corrupt file", got)
	}
	mustRecord(t, h, "recovers", 1, time.Millisecond)
	if got := h.Recent(0); len(got) != 1 {
		t.Errorf("Recent() = %v, want the new entry", got)
	}
}

func TestSavedSearches(t *testing.T) {
	h, _ := newTestHistory(t)

	created, err := h.SaveSearch("ml", "machine learning", "broad sweep")
	if err != nil {
		t.Fatalf("SaveSearch() error: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Errorf("SaveSearch() = %+v, want ID and CreatedAt set", created)
	}

	used, err := h.MarkUsed("ml")
	if err != nil {
		t.Fatalf("MarkUsed() error: %v", err)
	}
	if used.UseCount != 1 || used.LastUsed.IsZero() {
		t.Errorf("MarkUsed() = %+v, want use count 1", used)
	}

	updated, err := h.SaveSearch("ml", "deep learning", "narrower")
	if err != nil {
		t.Fatalf("SaveSearch() update error: %v", err)
	}
	if updated.ID != created.ID {
		t.Error("updating a saved search changed its ID")
	}
	if updated.UseCount != 1 {
		t.Errorf("UseCount after update = %d, want 1", updated.UseCount)
	}
	if updated.Query != "deep learning" {
		t.Errorf("Query = %q, want %q", updated.Query, "deep learning")
	}

	if _, err := h.SaveSearch("", "q", ""); err == nil {
		t.Error("SaveSearch() with empty name expected error")
	}
	if _, err := h.SaveSearch("n", "", ""); err == nil {
		t.Error("SaveSearch() with empty query expected error")
	}
	if _, err := h.MarkUsed("missing"); err == nil {
		t.Error("MarkUsed(missing) expected error")
	}

	if _, err := h.SaveSearch("recent", "year:2024", ""); err != nil {
		t.Fatalf("SaveSearch() error: %v", err)
	}
	all := h.ListSaved()
	if len(all) != 2 {
		t.Fatalf("len(ListSaved()) = %d, want 2", len(all))
	}

	removed, err := h.DeleteSaved("ml")
	if err != nil {
		t.Fatalf("DeleteSaved() error: %v", err)
	}
	if !removed {
		t.Error("DeleteSaved() = false, want true")
	}
	if removed, _ := h.DeleteSaved("ml"); removed {
		t.Error("DeleteSaved() = true for a missing search")
	}
}

func TestHistoryStatistics(t *testing.T) {
	h, _ := newTestHistory(t)

	if got := h.Statistics(); got.TotalSearches != 0 {
		t.Errorf("TotalSearches = %d, want 0", got.TotalSearches)
	}

	mustRecord(t, h, "neural", 10, 150*time.Millisecond)
	mustRecord(t, h, "neural", 10, 250*time.Millisecond)
	mustRecord(t, h, "bayesian", 4, 200*time.Millisecond)
	if _, err := h.SaveSearch("s", "q", ""); err != nil {
		t.Fatalf("SaveSearch() error: %v", err)
	}

	got := h.Statistics()
	if got.TotalSearches != 3 {
		t.Errorf("TotalSearches = %d, want 3", got.TotalSearches)
	}
	if got.UniqueQueries != 2 {
		t.Errorf("UniqueQueries = %d, want 2", got.UniqueQueries)
	}
	if got.AvgSearchTimeMS != 200 {
		t.Errorf("AvgSearchTimeMS = %v, want 200", got.AvgSearchTimeMS)
	}
	if got.AvgResultCount != 8 {
		t.Errorf("AvgResultCount = %v, want 8", got.AvgResultCount)
	}
	if got.SavedSearches != 1 {
		t.Errorf("SavedSearches = %d, want 1", got.SavedSearches)
	}
}
