// Package history keeps a persistent record of past searches and a set of
// named saved searches, stored as JSON under a data directory.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxEntries = 1000
	historyFile       = "history.json"
	savedFile         = "saved_searches.json"
)

// Entry is one recorded search.
type Entry struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	ResultCount  int       `json:"result_count"`
	SearchTimeMS int64     `json:"search_time_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// SavedSearch is a named query kept for reuse.
type SavedSearch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Query       string    `json:"query"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
	UseCount    int       `json:"use_count"`
}

// QueryCount pairs a query with how often it was run.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Statistics summarizes the recorded history.
type Statistics struct {
	TotalSearches   int     `json:"total_searches"`
	UniqueQueries   int     `json:"unique_queries"`
	AvgSearchTimeMS float64 `json:"avg_search_time_ms"`
	AvgResultCount  float64 `json:"avg_result_count"`
	SavedSearches   int     `json:"saved_searches"`
}

// History manages the search log and saved searches. All methods are safe
// for concurrent use.
type History struct {
	mu         sync.Mutex
	dataDir    string
	maxEntries int
	entries    []Entry
	saved      map[string]*SavedSearch
	logger     *zap.Logger
}

// Option configures a History.
type Option func(*History)

// WithMaxEntries bounds the number of retained history entries.
func WithMaxEntries(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxEntries = n
		}
	}
}

// WithLogger sets the logger for load warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(h *History) { h.logger = logger }
}

// New opens the history stored in dataDir, creating the directory when
// needed. An empty dataDir places it under the user cache directory.
// Unreadable or corrupt files start a fresh history rather than failing.
func New(dataDir string, opts ...Option) (*History, error) {
	if dataDir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache dir: %w", err)
		}
		dataDir = filepath.Join(cache, "bunken", "history")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	h := &History{
		dataDir:    dataDir,
		maxEntries: defaultMaxEntries,
		saved:      make(map[string]*SavedSearch),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.loadHistory()
	h.loadSaved()
	return h, nil
}

func (h *History) loadHistory() {
	data, err := os.ReadFile(filepath.Join(h.dataDir, historyFile))
	if err != nil {
		return
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		if h.logger != nil {
			h.logger.Warn("ignoring corrupt history file", zap.Error(err))
		}
		return
	}
	h.entries = entries
}

func (h *History) loadSaved() {
	data, err := os.ReadFile(filepath.Join(h.dataDir, savedFile))
	if err != nil {
		return
	}
	var saved map[string]*SavedSearch
	if err := json.Unmarshal(data, &saved); err != nil {
		if h.logger != nil {
			h.logger.Warn("ignoring corrupt saved searches file", zap.Error(err))
		}
		return
	}
	if saved != nil {
		h.saved = saved
	}
}

func (h *History) persistHistory() error {
	data, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(h.dataDir, historyFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

func (h *History) persistSaved() error {
	data, err := json.MarshalIndent(h.saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode saved searches: %w", err)
	}
	if err := os.WriteFile(filepath.Join(h.dataDir, savedFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write saved searches: %w", err)
	}
	return nil
}

// Record appends a search to the history, trimming the oldest entries past
// the retention bound.
func (h *History) Record(query string, resultCount int, took time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{
		ID:           uuid.New().String(),
		Query:        query,
		ResultCount:  resultCount,
		SearchTimeMS: took.Milliseconds(),
		Timestamp:    time.Now(),
	})
	if len(h.entries) > h.maxEntries {
		h.entries = append([]Entry(nil), h.entries[len(h.entries)-h.maxEntries:]...)
	}
	return h.persistHistory()
}

// Recent returns up to n history entries, newest first.
func (h *History) Recent(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(h.entries) - 1; i >= len(h.entries)-n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// Popular returns the most frequently run queries, most frequent first.
// Ties order alphabetically.
func (h *History) Popular(n int) []QueryCount {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range h.entries {
		counts[e.Query]++
	}
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ClearOlderThan removes history entries older than age and reports how
// many were removed.
func (h *History) ClearOlderThan(age time.Duration) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-age)
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(h.entries) - len(kept)
	h.entries = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, h.persistHistory()
}

// Clear removes all history entries. Saved searches are untouched.
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	return h.persistHistory()
}

// SaveSearch stores a named query. Saving an existing name updates its
// query and description but keeps its identity and usage counters.
func (h *History) SaveSearch(name, query, description string) (*SavedSearch, error) {
	if name == "" {
		return nil, fmt.Errorf("saved search name cannot be empty")
	}
	if query == "" {
		return nil, fmt.Errorf("saved search query cannot be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.saved[name]
	if ok {
		s.Query = query
		s.Description = description
	} else {
		s = &SavedSearch{
			ID:          uuid.New().String(),
			Name:        name,
			Query:       query,
			Description: description,
			CreatedAt:   time.Now(),
		}
		h.saved[name] = s
	}
	if err := h.persistSaved(); err != nil {
		return nil, err
	}
	copied := *s
	return &copied, nil
}

// GetSaved returns the saved search with the given name.
func (h *History) GetSaved(name string) (*SavedSearch, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.saved[name]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// ListSaved returns all saved searches, newest first.
func (h *History) ListSaved() []SavedSearch {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SavedSearch, 0, len(h.saved))
	for _, s := range h.saved {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DeleteSaved removes a saved search and reports whether it existed.
func (h *History) DeleteSaved(name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.saved[name]; !ok {
		return false, nil
	}
	delete(h.saved, name)
	return true, h.persistSaved()
}

// MarkUsed bumps the usage counter of a saved search and returns the
// updated record.
func (h *History) MarkUsed(name string) (*SavedSearch, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.saved[name]
	if !ok {
		return nil, fmt.Errorf("saved search %q not found", name)
	}
	s.UseCount++
	s.LastUsed = time.Now()
	if err := h.persistSaved(); err != nil {
		return nil, err
	}
	copied := *s
	return &copied, nil
}

// Statistics summarizes the history and saved searches.
func (h *History) Statistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Statistics{
		TotalSearches: len(h.entries),
		SavedSearches: len(h.saved),
	}
	if len(h.entries) == 0 {
		return stats
	}

	unique := make(map[string]struct{})
	var totalTime int64
	var totalResults int
	for _, e := range h.entries {
		unique[e.Query] = struct{}{}
		totalTime += e.SearchTimeMS
		totalResults += e.ResultCount
	}
	stats.UniqueQueries = len(unique)
	stats.AvgSearchTimeMS = float64(totalTime) / float64(len(h.entries))
	stats.AvgResultCount = float64(totalResults) / float64(len(h.entries))
	return stats
}
