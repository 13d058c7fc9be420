// Package index builds and holds the in-memory inverted index over
// bibliography entries.
package index

import (
	"fmt"
	"time"
)

// Error reports a failure indexing one entry. Batch operations collect these
// per key instead of aborting.
type Error struct {
	Key string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("index: %s", e.Msg)
	}
	return fmt.Sprintf("index entry %q: %s", e.Key, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Document is the indexed form of one entry: analyzed tokens and stored raw
// text per field, plus the numeric and date values range queries and facets
// read.
type Document struct {
	Key       string
	Type      string
	Tokens    map[string][]string
	Stored    map[string]string
	Numeric   map[string]float64
	Dates     map[string]time.Time
	IndexedAt time.Time
}

// FieldLength returns the token count of one field.
func (d *Document) FieldLength(field string) int {
	if d == nil {
		return 0
	}
	return len(d.Tokens[field])
}

// Length returns the total token count across all fields.
func (d *Document) Length() int {
	if d == nil {
		return 0
	}
	total := 0
	for _, tokens := range d.Tokens {
		total += len(tokens)
	}
	return total
}

// NumericValue returns the parsed numeric value of a field.
func (d *Document) NumericValue(field string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.Numeric[field]
	return v, ok
}

// StoredText returns the stored raw text of a field.
func (d *Document) StoredText(field string) string {
	if d == nil {
		return ""
	}
	return d.Stored[field]
}
