// Package cli provides CLI output utilities for bunken.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hyperjump/bunken/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, results *models.SearchResultCollection, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		writeSearchResultsText(w, results)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, results *models.SearchResultCollection) {
	fmt.Fprintf(w, "\nFound %d results in %dms (page %d of %d)\n\n",
		results.Total, results.Statistics.SearchTimeMS, results.CurrentPage(), results.TotalPages())
	for i := range results.Matches {
		writeOneMatch(w, &results.Matches[i], results.Offset+i+1)
	}
	if len(results.Facets) > 0 {
		WriteFacets(w, results.Facets)
	}
	if len(results.Suggestions) > 0 {
		fmt.Fprintln(w, "Suggestions:")
		for _, s := range results.Suggestions {
			fmt.Fprintf(w, "  %s (%s)\n", s.Suggestion, s.Kind)
		}
	}
}

func writeOneMatch(w io.Writer, match *models.SearchMatch, rank int) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	title := match.EntryKey
	if match.Entry != nil && match.Entry.Title() != "" {
		title = match.Entry.Title()
	}
	fmt.Fprintf(w, "%d. %s [%s] score %.1f\n", rank, title, match.EntryKey, match.Score)
	if match.Entry != nil {
		if line := entryByline(match.Entry); line != "" {
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
	if len(match.Highlights) > 0 {
		fields := make([]string, 0, len(match.Highlights))
		for f := range match.Highlights {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, field := range fields {
			for _, snippet := range match.Highlights[field] {
				fmt.Fprintf(w, "   %s: %s\n", field, snippet)
			}
		}
	} else if match.Entry != nil && match.Entry.Abstract() != "" {
		fmt.Fprintf(w, "   %s\n", Truncate(match.Entry.Abstract(), 200))
	}
	fmt.Fprintln(w)
}

// entryByline summarizes an entry as "author, venue, year", skipping blanks.
func entryByline(entry *models.Entry) string {
	var parts []string
	if a := entry.Field("author"); a != "" {
		parts = append(parts, a)
	}
	if j := entry.Field("journal"); j != "" {
		parts = append(parts, j)
	} else if b := entry.Field("booktitle"); b != "" {
		parts = append(parts, b)
	} else if p := entry.Field("publisher"); p != "" {
		parts = append(parts, p)
	}
	if y := entry.Field("year"); y != "" {
		parts = append(parts, y)
	}
	return strings.Join(parts, ", ")
}

// WriteFacets writes facet breakdowns to w as indented count lines.
// Selected values are marked with an asterisk.
func WriteFacets(w io.Writer, facets []models.Facet) {
	for _, facet := range facets {
		fmt.Fprintf(w, "%s:\n", facet.DisplayName)
		for _, value := range facet.Values {
			marker := " "
			if value.Selected {
				marker = "*"
			}
			fmt.Fprintf(w, " %s %s (%d)\n", marker, value.Value, value.Count)
		}
		fmt.Fprintln(w)
	}
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(results *models.SearchResultCollection) {
	_ = WriteSearchResults(os.Stdout, results, OutputText)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
