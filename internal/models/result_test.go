package models

import (
	"testing"
)

func TestClampScore(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"negative clamps to zero", -5.0, 0},
		{"above range clamps to 100", 150.0, 100},
		{"in range unchanged", 42.5, 42.5},
		{"zero boundary", 0, 0},
		{"upper boundary", 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampScore(tt.score); got != tt.want {
				t.Errorf("ClampScore(%v) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestNewCollection_Invariants(t *testing.T) {
	matches := []SearchMatch{
		NewSearchMatch("key1", 2.0),
		NewSearchMatch("key2", 1.5),
	}

	t.Run("clamps negative offset", func(t *testing.T) {
		c := NewCollection("q", matches, 10, -3, 20)
		if c.Offset != 0 {
			t.Errorf("Offset = %d, want 0", c.Offset)
		}
	})

	t.Run("raises limit to one", func(t *testing.T) {
		c := NewCollection("q", matches, 10, 0, 0)
		if c.Limit != 1 {
			t.Errorf("Limit = %d, want 1", c.Limit)
		}
	})

	t.Run("total covers matches", func(t *testing.T) {
		c := NewCollection("q", matches, 1, 0, 20)
		if c.Total != len(matches) {
			t.Errorf("Total = %d, want %d", c.Total, len(matches))
		}
	})
}

func TestCollection_Pagination(t *testing.T) {
	tests := []struct {
		name            string
		total           int
		offset          int
		limit           int
		wantPage        int
		wantTotalPages  int
		wantHasMore     bool
		wantHasPrevious bool
	}{
		{"last page", 100, 80, 20, 5, 5, false, true},
		{"first page", 100, 0, 20, 1, 5, true, false},
		{"middle page", 100, 40, 20, 3, 5, true, true},
		{"partial last page", 95, 80, 20, 5, 5, false, true},
		{"single page", 5, 0, 20, 1, 1, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollection("q", nil, tt.total, tt.offset, tt.limit)
			if got := c.CurrentPage(); got != tt.wantPage {
				t.Errorf("CurrentPage() = %d, want %d", got, tt.wantPage)
			}
			if got := c.TotalPages(); got != tt.wantTotalPages {
				t.Errorf("TotalPages() = %d, want %d", got, tt.wantTotalPages)
			}
			if got := c.HasMore(); got != tt.wantHasMore {
				t.Errorf("HasMore() = %v, want %v", got, tt.wantHasMore)
			}
			if got := c.HasPrevious(); got != tt.wantHasPrevious {
				t.Errorf("HasPrevious() = %v, want %v", got, tt.wantHasPrevious)
			}
		})
	}
}

func TestCollection_FilterByScore(t *testing.T) {
	c := NewCollection("q", []SearchMatch{
		NewSearchMatch("a", 3.0),
		NewSearchMatch("b", 1.0),
		NewSearchMatch("c", 2.0),
	}, 3, 10, 20)

	filtered := c.FilterByScore(2.0)
	if len(filtered.Matches) != 2 {
		t.Fatalf("FilterByScore() kept %d matches, want 2", len(filtered.Matches))
	}
	if filtered.Matches[0].EntryKey != "a" || filtered.Matches[1].EntryKey != "c" {
		t.Errorf("FilterByScore() kept %q, %q; want a, c", filtered.Matches[0].EntryKey, filtered.Matches[1].EntryKey)
	}
	if filtered.Total != 2 {
		t.Errorf("Total = %d, want 2", filtered.Total)
	}
	if filtered.Offset != 0 {
		t.Errorf("Offset = %d, want 0", filtered.Offset)
	}
	if len(c.Matches) != 3 {
		t.Error("FilterByScore() mutated the original collection")
	}
}

func entryWithFields(key string, fields map[string]string) *Entry {
	return &Entry{Key: key, Type: "article", Fields: fields}
}

func TestCollection_SortBy(t *testing.T) {
	matches := []SearchMatch{
		{EntryKey: "old", Score: 1.0, Entry: entryWithFields("old", map[string]string{"year": "2010", "title": "The Beta Paper", "author": "Zimmer, Anna"})},
		{EntryKey: "new", Score: 2.0, Entry: entryWithFields("new", map[string]string{"year": "2023", "title": "Alpha Study", "author": "John Smith"})},
		{EntryKey: "undated", Score: 3.0, Entry: entryWithFields("undated", map[string]string{"title": "A Gamma Report", "author": "Brown, Lee"})},
	}
	c := NewCollection("q", matches, 3, 0, 20)

	keys := func(col *SearchResultCollection) []string {
		out := make([]string, len(col.Matches))
		for i, m := range col.Matches {
			out[i] = m.EntryKey
		}
		return out
	}

	tests := []struct {
		name  string
		order SortOrder
		want  []string
	}{
		{"relevance", SortRelevance, []string{"undated", "new", "old"}},
		{"date descending puts missing last", SortDateDesc, []string{"new", "old", "undated"}},
		{"date ascending puts missing last", SortDateAsc, []string{"old", "new", "undated"}},
		{"title ascending ignores articles", SortTitleAsc, []string{"new", "old", "undated"}},
		{"title descending", SortTitleDesc, []string{"undated", "old", "new"}},
		{"author ascending uses surname", SortAuthorAsc, []string{"undated", "new", "old"}},
		{"author descending", SortAuthorDesc, []string{"old", "new", "undated"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(c.SortBy(tt.order))
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("SortBy(%s) = %v, want %v", tt.order, got, tt.want)
				}
			}
		})
	}

	if c.Matches[0].EntryKey != "old" {
		t.Error("SortBy() mutated the original collection")
	}
}

func TestMergeCollections(t *testing.T) {
	first := NewCollection("q", []SearchMatch{
		NewSearchMatch("key1", 2.0),
		NewSearchMatch("key2", 1.5),
	}, 2, 0, 20)
	second := NewCollection("q", []SearchMatch{
		NewSearchMatch("key3", 1.8),
		NewSearchMatch("key2", 1.5),
	}, 2, 0, 20)

	merged := MergeCollections([]*SearchResultCollection{first, second}, true)
	if merged.Total != 3 {
		t.Fatalf("merged Total = %d, want 3", merged.Total)
	}
	want := []string{"key1", "key3", "key2"}
	for i, key := range want {
		if merged.Matches[i].EntryKey != key {
			t.Errorf("merged.Matches[%d] = %q, want %q", i, merged.Matches[i].EntryKey, key)
		}
	}
}

func TestMergeCollections_Facets(t *testing.T) {
	first := NewCollection("q", nil, 0, 0, 20)
	first.Facets = []Facet{{
		Field: "entry_type",
		Kind:  FacetTerms,
		Values: []FacetValue{
			{Value: "article", Count: 3},
			{Value: "book", Count: 1},
		},
	}}
	second := NewCollection("q", nil, 0, 0, 20)
	second.Facets = []Facet{{
		Field: "entry_type",
		Kind:  FacetTerms,
		Values: []FacetValue{
			{Value: "article", Count: 2},
			{Value: "misc", Count: 2},
		},
	}}

	merged := MergeCollections([]*SearchResultCollection{first, second}, false)
	facet := merged.GetFacet("entry_type")
	if facet == nil {
		t.Fatal("expected merged entry_type facet")
	}
	want := []FacetValue{
		{Value: "article", Count: 5},
		{Value: "misc", Count: 2},
		{Value: "book", Count: 1},
	}
	if len(facet.Values) != len(want) {
		t.Fatalf("merged facet has %d values, want %d", len(facet.Values), len(want))
	}
	for i, v := range want {
		if facet.Values[i].Value != v.Value || facet.Values[i].Count != v.Count {
			t.Errorf("facet.Values[%d] = %+v, want %+v", i, facet.Values[i], v)
		}
	}
}

func TestCollection_ScoreRange(t *testing.T) {
	empty := NewCollection("q", nil, 0, 0, 20)
	if min, max := empty.ScoreRange(); min != 0 || max != 0 {
		t.Errorf("ScoreRange() on empty = (%v, %v), want (0, 0)", min, max)
	}

	c := NewCollection("q", []SearchMatch{
		NewSearchMatch("a", 4.0),
		NewSearchMatch("b", 1.0),
		NewSearchMatch("c", 2.5),
	}, 3, 0, 20)
	if min, max := c.ScoreRange(); min != 1.0 || max != 4.0 {
		t.Errorf("ScoreRange() = (%v, %v), want (1, 4)", min, max)
	}
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		input   string
		want    SortOrder
		wantErr bool
	}{
		{"", SortRelevance, false},
		{"relevance", SortRelevance, false},
		{"date", SortDateDesc, false},
		{"date_asc", SortDateAsc, false},
		{"Title", SortTitleAsc, false},
		{"author_desc", SortAuthorDesc, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSortOrder(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSortOrder(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSortOrder(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
