// Package facet aggregates entry field values into facets and filters
// matches by facet selections.
package facet

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/bunken/internal/models"
)

// Date histogram intervals.
const (
	IntervalYear  = "year"
	IntervalMonth = "month"
	IntervalDay   = "day"
)

// RangeBucket defines one bucket of a range facet. Values fall into the
// bucket when From <= value < To; a nil bound leaves that side open.
type RangeBucket struct {
	From  *float64
	To    *float64
	Label string
}

// Bound is a convenience for building range bucket literals.
func Bound(v float64) *float64 { return &v }

func (b RangeBucket) contains(v float64) bool {
	if b.From != nil && v < *b.From {
		return false
	}
	if b.To != nil && v >= *b.To {
		return false
	}
	return true
}

func (b RangeBucket) labelOrDefault() string {
	if b.Label != "" {
		return b.Label
	}
	switch {
	case b.From == nil && b.To == nil:
		return "all"
	case b.From == nil:
		return "< " + formatBound(*b.To)
	case b.To == nil:
		return ">= " + formatBound(*b.From)
	default:
		return formatBound(*b.From) + "-" + formatBound(*b.To)
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FieldConfig configures how one field is faceted.
type FieldConfig struct {
	Kind     models.FacetKind
	Size     int
	MinCount int
	Ranges   []RangeBucket
	Interval string
}

// Config maps field names to facet configurations, keeping the order fields
// were configured in so facet output is deterministic.
type Config struct {
	order  []string
	fields map[string]FieldConfig
}

// NewConfig returns an empty facet configuration.
func NewConfig() *Config {
	return &Config{fields: make(map[string]FieldConfig)}
}

// DefaultConfig returns the built-in facet configuration for bibliography
// entries.
func DefaultConfig() *Config {
	c := NewConfig()
	c.Set("entry_type", FieldConfig{Kind: models.FacetTerms, Size: 10})
	c.Set("year", FieldConfig{Kind: models.FacetRange, Ranges: []RangeBucket{
		{To: Bound(2000), Label: "Before 2000"},
		{From: Bound(2000), To: Bound(2010), Label: "2000-2009"},
		{From: Bound(2010), To: Bound(2020), Label: "2010-2019"},
		{From: Bound(2020), Label: "2020+"},
	}})
	c.Set("keywords", FieldConfig{Kind: models.FacetTerms, Size: 20, MinCount: 1})
	c.Set("author", FieldConfig{Kind: models.FacetTerms, Size: 15})
	c.Set("journal", FieldConfig{Kind: models.FacetTerms, Size: 10})
	c.Set("publisher", FieldConfig{Kind: models.FacetTerms, Size: 10})
	return c
}

// Set adds or replaces the configuration for field. New fields append to the
// output order; existing fields keep their position.
func (c *Config) Set(field string, cfg FieldConfig) {
	if _, exists := c.fields[field]; !exists {
		c.order = append(c.order, field)
	}
	c.fields[field] = cfg
}

// Field returns the configuration for field.
func (c *Config) Field(field string) (FieldConfig, bool) {
	cfg, ok := c.fields[field]
	return cfg, ok
}

// Fields returns the configured field names in configuration order.
func (c *Config) Fields() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

var displayNames = map[string]string{
	"entry_type": "Entry Type",
	"year":       "Publication Year",
	"keywords":   "Keywords",
	"author":     "Authors",
	"journal":    "Journal",
	"publisher":  "Publisher",
	"booktitle":  "Conference/Book",
}

// DisplayName returns the human-readable label for a faceted field.
func DisplayName(field string) string {
	if name, ok := displayNames[field]; ok {
		return name
	}
	return titleCase(strings.ReplaceAll(field, "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
