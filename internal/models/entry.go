// Package models defines core data structures for bibliography entries,
// search requests, and search results.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Entry represents a single bibliography entry (article, book, inproceedings, ...).
// Fields holds the raw BibTeX-style field values keyed by lowercase field name.
// The search core consumes entries read-only and never mutates them.
type Entry struct {
	Key       string            `json:"key" db:"key"`
	Type      string            `json:"type" db:"type"`
	Fields    map[string]string `json:"fields" db:"fields"`
	AddedAt   time.Time         `json:"added_at" db:"added_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// Field returns the named field's raw value, or "" when absent.
// Names are matched case-insensitively (stored keys are lowercase by convention).
func (e *Entry) Field(name string) string {
	if e == nil || e.Fields == nil {
		return ""
	}
	if v, ok := e.Fields[name]; ok {
		return v
	}
	return e.Fields[strings.ToLower(name)]
}

// Title returns the entry title, or "" when absent.
func (e *Entry) Title() string { return e.Field("title") }

// Abstract returns the entry abstract, or "" when absent.
func (e *Entry) Abstract() string { return e.Field("abstract") }

// Authors splits the author field on " and " (BibTeX convention) and returns
// the individual names with surrounding whitespace trimmed.
func (e *Entry) Authors() []string {
	raw := e.Field("author")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, " and ")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			authors = append(authors, p)
		}
	}
	return authors
}

// Keywords splits the keywords field on commas and returns the trimmed values.
func (e *Entry) Keywords() []string {
	raw := e.Field("keywords")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keywords = append(keywords, p)
		}
	}
	return keywords
}

// Year returns the publication year when the year field holds an integer.
func (e *Entry) Year() (int, bool) {
	raw := strings.TrimSpace(e.Field("year"))
	if raw == "" {
		return 0, false
	}
	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return y, true
}

// Date returns the best-known publication date: the date field when it parses
// as YYYY-MM-DD or YYYY-MM, otherwise January 1st of the publication year.
func (e *Entry) Date() (time.Time, bool) {
	raw := strings.TrimSpace(e.Field("date"))
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if y, ok := e.Year(); ok {
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// AttachmentPath returns the path of the linked document (PDF etc.), or "".
func (e *Entry) AttachmentPath() string { return e.Field("file") }
