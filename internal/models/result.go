package models

import (
	"fmt"
	"sort"
	"strings"
)

// SortOrder enumerates result orderings.
type SortOrder string

const (
	SortRelevance  SortOrder = "relevance"
	SortDateDesc   SortOrder = "date_desc"
	SortDateAsc    SortOrder = "date_asc"
	SortTitleAsc   SortOrder = "title_asc"
	SortTitleDesc  SortOrder = "title_desc"
	SortAuthorAsc  SortOrder = "author_asc"
	SortAuthorDesc SortOrder = "author_desc"
)

// ParseSortOrder converts a user-supplied sort name to a SortOrder.
// Bare "date", "title", and "author" map to date_desc, title_asc, and author_asc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relevance":
		return SortRelevance, nil
	case "date", "date_desc":
		return SortDateDesc, nil
	case "date_asc":
		return SortDateAsc, nil
	case "title", "title_asc":
		return SortTitleAsc, nil
	case "title_desc":
		return SortTitleDesc, nil
	case "author", "author_asc":
		return SortAuthorAsc, nil
	case "author_desc":
		return SortAuthorDesc, nil
	default:
		return "", fmt.Errorf("unknown sort order: %q", s)
	}
}

// SearchMatch is a single search hit: an entry key with its relevance score,
// optionally carrying the resolved entry, highlights, and an explanation.
type SearchMatch struct {
	EntryKey    string              `json:"entry_key"`
	Score       float64             `json:"score"`
	Entry       *Entry              `json:"entry,omitempty"`
	Highlights  map[string][]string `json:"highlights,omitempty"`
	Explanation string              `json:"explanation,omitempty"`
}

// NewSearchMatch creates a match with the score clamped to [0, 100].
func NewSearchMatch(entryKey string, score float64) SearchMatch {
	return SearchMatch{EntryKey: entryKey, Score: ClampScore(score)}
}

// ClampScore clamps a relevance score to the [0, 100] range.
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// FacetKind enumerates the facet aggregation strategies.
type FacetKind string

const (
	FacetTerms         FacetKind = "terms"
	FacetRange         FacetKind = "range"
	FacetDateHistogram FacetKind = "date_histogram"
)

// FacetValue is one bucket of a facet: a distinct value and its match count.
type FacetValue struct {
	Value    string `json:"value"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected,omitempty"`
}

// Facet is a navigable breakdown of result counts for one field.
// Values are sorted by count descending (ties by value ascending) and
// truncated by the facet engine before construction.
type Facet struct {
	Field       string       `json:"field"`
	DisplayName string       `json:"display_name"`
	Kind        FacetKind    `json:"kind"`
	Values      []FacetValue `json:"values"`
}

// TopValues returns the first n facet values (already sorted by count).
func (f *Facet) TopValues(n int) []FacetValue {
	if n >= len(f.Values) {
		return f.Values
	}
	return f.Values[:n]
}

// Suggestion kinds.
const (
	SuggestionSpelling   = "spelling"
	SuggestionRelaxation = "relaxation"
	SuggestionField      = "field"
	SuggestionCompletion = "completion"
)

// SearchSuggestion proposes an improved query to the user.
type SearchSuggestion struct {
	Suggestion  string  `json:"suggestion"`
	Kind        string  `json:"kind"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// SearchStatistics describes how a search executed.
type SearchStatistics struct {
	TotalResults int    `json:"total_results"`
	SearchTimeMS int64  `json:"search_time_ms"`
	QueryTimeMS  int64  `json:"query_time_ms,omitempty"`
	FetchTimeMS  int64  `json:"fetch_time_ms,omitempty"`
	BackendName  string `json:"backend_name"`
	IndexSize    int    `json:"index_size,omitempty"`
}

// SearchResultCollection is the complete answer to one search: the matched
// page, pagination metadata, facets, suggestions, and execution statistics.
// Collections are treated as immutable; every transform returns a new one.
type SearchResultCollection struct {
	Matches     []SearchMatch      `json:"matches"`
	Total       int                `json:"total"`
	Offset      int                `json:"offset"`
	Limit       int                `json:"limit"`
	Facets      []Facet            `json:"facets,omitempty"`
	Suggestions []SearchSuggestion `json:"suggestions,omitempty"`
	Statistics  SearchStatistics   `json:"statistics"`
	Query       string             `json:"query"`
	SortOrder   SortOrder          `json:"sort_order"`
}

// NewCollection creates a result collection, clamping offset to >= 0, limit
// to >= 1, and raising total to at least the match count.
func NewCollection(query string, matches []SearchMatch, total, offset, limit int) *SearchResultCollection {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 1
	}
	if total < len(matches) {
		total = len(matches)
	}
	return &SearchResultCollection{
		Matches:   matches,
		Total:     total,
		Offset:    offset,
		Limit:     limit,
		Query:     query,
		SortOrder: SortRelevance,
	}
}

// NewEmptyCollection creates a collection with no matches.
func NewEmptyCollection(query string, limit int, backendName string) *SearchResultCollection {
	c := NewCollection(query, nil, 0, 0, limit)
	c.Statistics = SearchStatistics{BackendName: backendName}
	return c
}

// HasResults reports whether the collection contains any matches.
func (c *SearchResultCollection) HasResults() bool { return len(c.Matches) > 0 }

// CurrentPage returns the 1-based page number of this collection's slice.
func (c *SearchResultCollection) CurrentPage() int { return c.Offset/c.Limit + 1 }

// TotalPages returns the number of pages needed to cover all results.
func (c *SearchResultCollection) TotalPages() int {
	return (c.Total + c.Limit - 1) / c.Limit
}

// HasMore reports whether results exist beyond this collection's slice.
func (c *SearchResultCollection) HasMore() bool { return c.Offset+c.Limit < c.Total }

// HasPrevious reports whether results exist before this collection's slice.
func (c *SearchResultCollection) HasPrevious() bool { return c.Offset > 0 }

// GetFacet returns the facet for a field, or nil when absent.
func (c *SearchResultCollection) GetFacet(field string) *Facet {
	for i := range c.Facets {
		if c.Facets[i].Field == field {
			return &c.Facets[i]
		}
	}
	return nil
}

// ScoreRange returns the minimum and maximum match scores, or (0, 0) when empty.
func (c *SearchResultCollection) ScoreRange() (min, max float64) {
	if len(c.Matches) == 0 {
		return 0, 0
	}
	min, max = c.Matches[0].Score, c.Matches[0].Score
	for _, m := range c.Matches[1:] {
		if m.Score < min {
			min = m.Score
		}
		if m.Score > max {
			max = m.Score
		}
	}
	return min, max
}

// FilterByScore returns a new collection holding only matches scoring at or
// above min. Total is reset to the filtered count and offset to zero.
func (c *SearchResultCollection) FilterByScore(min float64) *SearchResultCollection {
	filtered := make([]SearchMatch, 0, len(c.Matches))
	for _, m := range c.Matches {
		if m.Score >= min {
			filtered = append(filtered, m)
		}
	}
	out := *c
	out.Matches = filtered
	out.Total = len(filtered)
	out.Offset = 0
	return &out
}

// SortBy returns a new collection with matches ordered by the given sort order.
// Ties keep their original relative order.
func (c *SearchResultCollection) SortBy(order SortOrder) *SearchResultCollection {
	sorted := make([]SearchMatch, len(c.Matches))
	copy(sorted, c.Matches)

	switch order {
	case SortRelevance:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	case SortDateAsc, SortDateDesc:
		asc := order == SortDateAsc
		sort.SliceStable(sorted, func(i, j int) bool {
			yi, iok := matchYear(sorted[i])
			yj, jok := matchYear(sorted[j])
			if iok != jok {
				// Entries without a year sort last in either direction.
				return iok
			}
			if !iok {
				return false
			}
			if asc {
				return yi < yj
			}
			return yi > yj
		})
	case SortTitleAsc:
		sort.SliceStable(sorted, func(i, j int) bool { return titleSortKey(sorted[i]) < titleSortKey(sorted[j]) })
	case SortTitleDesc:
		sort.SliceStable(sorted, func(i, j int) bool { return titleSortKey(sorted[i]) > titleSortKey(sorted[j]) })
	case SortAuthorAsc:
		sort.SliceStable(sorted, func(i, j int) bool { return authorSortKey(sorted[i]) < authorSortKey(sorted[j]) })
	case SortAuthorDesc:
		sort.SliceStable(sorted, func(i, j int) bool { return authorSortKey(sorted[i]) > authorSortKey(sorted[j]) })
	}

	out := *c
	out.Matches = sorted
	out.SortOrder = order
	return &out
}

func matchYear(m SearchMatch) (int, bool) {
	if m.Entry == nil {
		return 0, false
	}
	return m.Entry.Year()
}

// titleSortKey lowercases the title and strips one leading article.
func titleSortKey(m SearchMatch) string {
	if m.Entry == nil {
		return ""
	}
	title := strings.ToLower(m.Entry.Title())
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(title, article) {
			return title[len(article):]
		}
	}
	return title
}

// authorSortKey normalizes the first author to surname-first order: the text
// before a comma when present, otherwise the last whitespace-delimited token
// (with the full name appended so equal surnames keep a stable order).
func authorSortKey(m SearchMatch) string {
	if m.Entry == nil {
		return ""
	}
	author := strings.ToLower(m.Entry.Field("author"))
	if author == "" {
		return ""
	}
	if idx := strings.Index(author, ","); idx >= 0 {
		return strings.TrimSpace(author[:idx])
	}
	words := strings.Fields(author)
	if len(words) == 0 {
		return author
	}
	return words[len(words)-1] + "|" + author
}

// MergeCollections merges result collections into one: matches are
// concatenated with first-occurrence-wins deduplication by entry key,
// optionally re-sorted by score, and facets are merged field-by-field by
// summing value counts.
func MergeCollections(collections []*SearchResultCollection, sortByRelevance bool) *SearchResultCollection {
	if len(collections) == 0 {
		return NewEmptyCollection("", 20, "unknown")
	}
	if len(collections) == 1 {
		return collections[0]
	}

	seen := make(map[string]struct{})
	var unique []SearchMatch
	for _, col := range collections {
		for _, m := range col.Matches {
			if _, ok := seen[m.EntryKey]; ok {
				continue
			}
			seen[m.EntryKey] = struct{}{}
			unique = append(unique, m)
		}
	}
	if sortByRelevance {
		sort.SliceStable(unique, func(i, j int) bool { return unique[i].Score > unique[j].Score })
	}

	base := collections[0]
	out := NewCollection(base.Query, unique, len(unique), 0, base.Limit)
	out.Facets = mergeFacets(collections)
	out.Suggestions = base.Suggestions
	out.Statistics = base.Statistics
	if sortByRelevance {
		out.SortOrder = SortRelevance
	} else {
		out.SortOrder = base.SortOrder
	}
	return out
}

func mergeFacets(collections []*SearchResultCollection) []Facet {
	type merged struct {
		displayName string
		kind        FacetKind
		counts      map[string]int
	}
	byField := make(map[string]*merged)
	var order []string

	for _, col := range collections {
		for _, f := range col.Facets {
			m, ok := byField[f.Field]
			if !ok {
				m = &merged{displayName: f.DisplayName, kind: f.Kind, counts: make(map[string]int)}
				byField[f.Field] = m
				order = append(order, f.Field)
			}
			for _, v := range f.Values {
				m.counts[v.Value] += v.Count
			}
		}
	}

	facets := make([]Facet, 0, len(order))
	for _, field := range order {
		m := byField[field]
		values := make([]FacetValue, 0, len(m.counts))
		for value, count := range m.counts {
			values = append(values, FacetValue{Value: value, Count: count})
		}
		sort.Slice(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Value < values[j].Value
		})
		facets = append(facets, Facet{Field: field, DisplayName: m.displayName, Kind: m.kind, Values: values})
	}
	return facets
}
