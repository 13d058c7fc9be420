package facet

import "github.com/hyperjump/bunken/internal/models"

// MatchesFilters reports whether entry satisfies every facet filter.
// Filters combine as AND across fields; the selected values within a field
// combine as OR. Fields with no selected values are ignored.
func MatchesFilters(entry *models.Entry, filters map[string][]string) bool {
	for field, selected := range filters {
		if len(selected) == 0 {
			continue
		}
		if entry == nil {
			return false
		}
		if !matchesAny(entry, field, selected) {
			return false
		}
	}
	return true
}

func matchesAny(entry *models.Entry, field string, selected []string) bool {
	for _, v := range fieldValues(entry, field) {
		for _, s := range selected {
			if v == s {
				return true
			}
		}
	}
	return false
}

// Apply keeps the matches whose entries satisfy filters. With no active
// filters the input slice is returned unchanged.
func Apply(matches []*models.SearchMatch, filters map[string][]string) []*models.SearchMatch {
	active := false
	for _, selected := range filters {
		if len(selected) > 0 {
			active = true
			break
		}
	}
	if !active {
		return matches
	}
	filtered := make([]*models.SearchMatch, 0, len(matches))
	for _, m := range matches {
		if m == nil {
			continue
		}
		if MatchesFilters(m.Entry, filters) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// MarkSelected flags the facet values that appear in filters so callers can
// render active selections.
func MarkSelected(facets []models.Facet, filters map[string][]string) {
	for i := range facets {
		selected := filters[facets[i].Field]
		if len(selected) == 0 {
			continue
		}
		for j := range facets[i].Values {
			for _, s := range selected {
				if facets[i].Values[j].Value == s {
					facets[i].Values[j].Selected = true
					break
				}
			}
		}
	}
}
