package models

import (
	"fmt"
	"strings"
)

// SearchRequest represents a search request with pagination, sorting, and facet filters.
type SearchRequest struct {
	Query  string    `json:"query"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
	SortBy SortOrder `json:"sort_by,omitempty"`
	// Filters maps a facet field to the selected values. An entry must match
	// every selected value in every active field (AND semantics).
	Filters map[string][]string `json:"filters,omitempty"`
	// Highlight controls snippet generation; defaults to true when unset.
	Highlight *bool `json:"highlight,omitempty"`
}

// HighlightOrDefault returns whether to highlight results; defaults to true when unset.
func (r *SearchRequest) HighlightOrDefault() bool {
	if r.Highlight != nil {
		return *r.Highlight
	}
	return true
}

// Validate ensures the request has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes limit, offset, and sort order.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.Limit <= 0 {
		r.Limit = 20
	}
	if r.Limit > 100 {
		r.Limit = 100
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.SortBy == "" {
		r.SortBy = SortRelevance
	}
	return nil
}
