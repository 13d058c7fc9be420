package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/query"
	"github.com/hyperjump/bunken/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryRepository, *MemoryBackend) {
	t.Helper()
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	backend := NewMemoryBackend(nil, nil)
	for _, e := range testEntries() {
		if err := repo.Put(ctx, e); err != nil {
			t.Fatalf("Put(%s) error: %v", e.Key, err)
		}
		if err := backend.Index(ctx, e); err != nil {
			t.Fatalf("Index(%s) error: %v", e.Key, err)
		}
	}
	engine, err := NewEngine(backend, repo)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return engine, repo, backend
}

func collectionKeys(c *models.SearchResultCollection) []string {
	var keys []string
	for _, m := range c.Matches {
		keys = append(keys, m.EntryKey)
	}
	return keys
}

func hasSuggestionKind(c *models.SearchResultCollection, kind string) bool {
	for _, s := range c.Suggestions {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func TestEngineSearch(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	got, err := engine.Search(context.Background(), models.SearchRequest{Query: "neural"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	if got.Total != 3 {
		t.Errorf("Total = %d, want 3", got.Total)
	}
	if got.Query != "neural" {
		t.Errorf("Query = %q, want %q", got.Query, "neural")
	}
	if got.Statistics.BackendName != "memory" {
		t.Errorf("BackendName = %q, want %q", got.Statistics.BackendName, "memory")
	}
	if got.SortOrder != models.SortRelevance {
		t.Errorf("SortOrder = %q, want %q", got.SortOrder, models.SortRelevance)
	}
	if got.CurrentPage() != 1 {
		t.Errorf("CurrentPage() = %d, want 1", got.CurrentPage())
	}
	for i, m := range got.Matches {
		if m.Entry == nil {
			t.Errorf("match %s has no entry", m.EntryKey)
		}
		if m.Score < 0 || m.Score > 100 {
			t.Errorf("match %s score = %v, want within [0, 100]", m.EntryKey, m.Score)
		}
		if i > 0 && m.Score > got.Matches[i-1].Score {
			t.Errorf("matches not in descending score order at %d", i)
		}
	}
}

func TestEngineSearchEmptyQuery(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	for _, q := range []string{"", "   "} {
		if _, err := engine.Search(context.Background(), models.SearchRequest{Query: q}); err == nil {
			t.Errorf("Search(%q) expected error", q)
		}
	}
}

func TestEngineParseErrorPropagates(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Search(context.Background(), models.SearchRequest{Query: `"unclosed phrase`})
	var queryErr *query.Error
	if !errors.As(err, &queryErr) {
		t.Fatalf("Search() error = %v (%T), want *query.Error", err, err)
	}
	if queryErr.Msg != "unmatched quote" {
		t.Errorf("Msg = %q, want %q", queryErr.Msg, "unmatched quote")
	}
}

func TestEngineSearchPagination(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	backend := NewMemoryBackend(nil, nil)
	for i := 0; i < 100; i++ {
		e := &models.Entry{
			Key:  fmt.Sprintf("entry%03d", i),
			Type: "article",
			Fields: map[string]string{
				"title": fmt.Sprintf("Shared Corpus Document %03d", i),
				"year":  "2020",
			},
		}
		if err := repo.Put(ctx, e); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		if err := backend.Index(ctx, e); err != nil {
			t.Fatalf("Index() error: %v", err)
		}
	}
	engine, err := NewEngine(backend, repo)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	got, err := engine.Search(ctx, models.SearchRequest{Query: "corpus", Offset: 80, Limit: 20})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	if got.Total != 100 {
		t.Errorf("Total = %d, want 100", got.Total)
	}
	if len(got.Matches) != 20 {
		t.Errorf("len(Matches) = %d, want 20", len(got.Matches))
	}
	if got.CurrentPage() != 5 {
		t.Errorf("CurrentPage() = %d, want 5", got.CurrentPage())
	}
	if got.TotalPages() != 5 {
		t.Errorf("TotalPages() = %d, want 5", got.TotalPages())
	}
	if got.HasMore() {
		t.Error("HasMore() = true, want false on the last page")
	}
	if !got.HasPrevious() {
		t.Error("HasPrevious() = false, want true")
	}
}

func TestEngineFacets(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	unfiltered, err := engine.Search(ctx, models.SearchRequest{Query: "networks"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if unfiltered.Total != 2 {
		t.Fatalf("Total = %d, want 2", unfiltered.Total)
	}

	types := unfiltered.GetFacet("entry_type")
	if types == nil {
		t.Fatal("GetFacet(entry_type) = nil")
	}
	if len(types.Values) != 2 {
		t.Fatalf("entry_type values = %d, want 2", len(types.Values))
	}

	filtered, err := engine.Search(ctx, models.SearchRequest{
		Query:   "networks",
		Filters: map[string][]string{"entry_type": {"book"}},
	})
	if err != nil {
		t.Fatalf("Search() with filter error: %v", err)
	}
	if got, want := collectionKeys(filtered), []string{"goodfellow2019"}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("filtered keys = %v, want %v", got, want)
	}
	if filtered.Total != 1 {
		t.Errorf("filtered Total = %d, want 1", filtered.Total)
	}

	// Facets keep describing the unfiltered candidates so counts do not
	// collapse while filters are active.
	types = filtered.GetFacet("entry_type")
	if types == nil || len(types.Values) != 2 {
		t.Fatalf("filtered entry_type facet = %+v, want both types", types)
	}
	var selected bool
	for _, v := range types.Values {
		if v.Value == "book" && v.Selected {
			selected = true
		}
	}
	if !selected {
		t.Error("book facet value not marked selected")
	}
}

func TestEngineSortOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		sortBy models.SortOrder
		want   []string
	}{
		{models.SortDateDesc, []string{"hinton2024", "goodfellow2019"}},
		{models.SortDateAsc, []string{"goodfellow2019", "hinton2024"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.sortBy), func(t *testing.T) {
			got, err := engine.Search(ctx, models.SearchRequest{Query: "networks", SortBy: tc.sortBy})
			if err != nil {
				t.Fatalf("Search() error: %v", err)
			}
			keys := collectionKeys(got)
			if len(keys) != 2 || keys[0] != tc.want[0] || keys[1] != tc.want[1] {
				t.Errorf("keys = %v, want %v", keys, tc.want)
			}
		})
	}
}

func TestEngineHighlights(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	got, err := engine.Search(ctx, models.SearchRequest{Query: "bayesian"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got.Matches) == 0 {
		t.Fatal("expected a match")
	}
	snippets := got.Matches[0].Highlights["title"]
	if len(snippets) == 0 || !strings.Contains(snippets[0], "<mark>Bayesian</mark>") {
		t.Errorf("title highlights = %v, want marked snippet", snippets)
	}

	off := false
	plain, err := engine.Search(ctx, models.SearchRequest{Query: "bayesian", Highlight: &off})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(plain.Matches) == 0 || plain.Matches[0].Highlights != nil {
		t.Errorf("Highlights = %v, want none when disabled", plain.Matches[0].Highlights)
	}
}

func TestEngineResultCache(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	req := models.SearchRequest{Query: "neural"}

	first, err := engine.Search(ctx, req)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	second, err := engine.Search(ctx, req)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if first != second {
		t.Error("repeated search did not hit the cache")
	}

	engine.InvalidateCache()
	third, err := engine.Search(ctx, req)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if third == first {
		t.Error("search after invalidation returned the cached page")
	}
}

func TestEngineSuggestions(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("relaxation on scarce results", func(t *testing.T) {
		got, err := engine.Search(ctx, models.SearchRequest{Query: "quantum flux"})
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		if got.Total != 0 {
			t.Fatalf("Total = %d, want 0", got.Total)
		}
		if !hasSuggestionKind(got, models.SuggestionRelaxation) {
			t.Errorf("suggestions = %+v, want a relaxation", got.Suggestions)
		}
		if len(got.Suggestions) > 3 {
			t.Errorf("len(Suggestions) = %d, want at most 3", len(got.Suggestions))
		}
	})

	t.Run("field widening for fielded queries", func(t *testing.T) {
		got, err := engine.Search(ctx, models.SearchRequest{Query: "title:quantum"})
		if err != nil {
			t.Fatalf("Search() error: %v", err)
		}
		var found bool
		for _, s := range got.Suggestions {
			if s.Kind == models.SuggestionField && s.Suggestion == "title quantum" {
				found = true
			}
		}
		if !found {
			t.Errorf("suggestions = %+v, want field widening to %q", got.Suggestions, "title quantum")
		}
	})
}

func TestEngineMoreLikeThis(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	got, err := engine.MoreLikeThis(ctx, "goodfellow2019", 0, 5)
	if err != nil {
		t.Fatalf("MoreLikeThis() error: %v", err)
	}
	keys := collectionKeys(got)
	for _, k := range keys {
		if k == "goodfellow2019" {
			t.Error("MoreLikeThis() returned the source entry")
		}
	}
	var foundSimilar bool
	for _, k := range keys {
		if k == "hinton2024" {
			foundSimilar = true
		}
	}
	if !foundSimilar {
		t.Errorf("similar keys = %v, want hinton2024 among them", keys)
	}

	none, err := engine.MoreLikeThis(ctx, "goodfellow2019", 1000, 5)
	if err != nil {
		t.Fatalf("MoreLikeThis() error: %v", err)
	}
	if len(none.Matches) != 0 {
		t.Errorf("len(Matches) = %d, want 0 above min score", len(none.Matches))
	}

	if _, err := engine.MoreLikeThis(ctx, "missing", 0, 5); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MoreLikeThis(missing) error = %v, want ErrNotFound", err)
	}
}

func TestEngineSuggestCompletions(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	got, err := engine.Suggest(context.Background(), "bay", "", 5)
	if err != nil {
		t.Fatalf("Suggest() error: %v", err)
	}
	var found bool
	for _, s := range got {
		if s == "bayesian" {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggest(bay) = %v, want bayesian among completions", got)
	}
}

func TestEngineValidate(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"empty", "", 1},
		{"unmatched quote", `"bad`, 1},
		{"valid", "neural networks", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := engine.Validate(tc.query); len(got) != tc.want {
				t.Errorf("Validate(%q) = %v, want %d problems", tc.query, got, tc.want)
			}
		})
	}
}

func TestEngineStatistics(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.Search(context.Background(), models.SearchRequest{Query: "neural"}); err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	stats := engine.Statistics()
	if stats.Backend != "memory" {
		t.Errorf("Backend = %q, want %q", stats.Backend, "memory")
	}
	if stats.IndexSize != 5 {
		t.Errorf("IndexSize = %d, want 5", stats.IndexSize)
	}
	if stats.CachedPages < 1 {
		t.Errorf("CachedPages = %d, want at least 1", stats.CachedPages)
	}
}
