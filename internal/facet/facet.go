package facet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/bunken/internal/models"
)

// fieldValues returns the countable values one entry contributes to a facet
// on field. Multi-valued fields split into their individual values.
func fieldValues(entry *models.Entry, field string) []string {
	if entry == nil {
		return nil
	}
	switch field {
	case "entry_type":
		if entry.Type == "" {
			return nil
		}
		return []string{strings.ToLower(entry.Type)}
	case "keywords":
		return entry.Keywords()
	case "author":
		return entry.Authors()
	default:
		if v := strings.TrimSpace(entry.Field(field)); v != "" {
			return []string{v}
		}
		return nil
	}
}

func stringValues(entries []*models.Entry, field string) []string {
	var out []string
	for _, e := range entries {
		out = append(out, fieldValues(e, field)...)
	}
	return out
}

// numericValues parses field as a number per entry. Values like "2020-06"
// contribute their leading integer, matching how partial dates are stored.
func numericValues(entries []*models.Entry, field string) []float64 {
	var out []float64
	for _, e := range entries {
		raw := strings.TrimSpace(e.Field(field))
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			out = append(out, v)
			continue
		}
		if head, _, found := strings.Cut(raw, "-"); found {
			if v, err := strconv.ParseFloat(strings.TrimSpace(head), 64); err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}

func dateValues(entries []*models.Entry, field string) []time.Time {
	var out []time.Time
	for _, e := range entries {
		switch field {
		case "added":
			if !e.AddedAt.IsZero() {
				out = append(out, e.AddedAt)
			}
		case "modified":
			if !e.UpdatedAt.IsZero() {
				out = append(out, e.UpdatedAt)
			}
		default:
			if d, ok := e.Date(); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

// Terms builds a terms facet from values. Values occurring fewer than
// minCount times are dropped and the result is truncated to size entries,
// ordered by count descending then value ascending.
func Terms(field, displayName string, values []string, size, minCount int) models.Facet {
	if size <= 0 {
		size = 10
	}
	if minCount <= 0 {
		minCount = 1
	}
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	facetValues := make([]models.FacetValue, 0, len(counts))
	for v, c := range counts {
		if c >= minCount {
			facetValues = append(facetValues, models.FacetValue{Value: v, Count: c})
		}
	}
	sort.Slice(facetValues, func(i, j int) bool {
		if facetValues[i].Count != facetValues[j].Count {
			return facetValues[i].Count > facetValues[j].Count
		}
		return facetValues[i].Value < facetValues[j].Value
	})
	if len(facetValues) > size {
		facetValues = facetValues[:size]
	}
	return models.Facet{
		Field:       field,
		DisplayName: displayName,
		Kind:        models.FacetTerms,
		Values:      facetValues,
	}
}

// Range buckets numeric values into the configured ranges. Each value lands
// in the first bucket containing it, and only non-empty buckets appear in the
// result, in definition order.
func Range(field, displayName string, values []float64, buckets []RangeBucket) models.Facet {
	counts := make(map[string]int, len(buckets))
	for _, v := range values {
		for _, b := range buckets {
			if b.contains(v) {
				counts[b.labelOrDefault()]++
				break
			}
		}
	}
	facetValues := make([]models.FacetValue, 0, len(buckets))
	for _, b := range buckets {
		label := b.labelOrDefault()
		if c, ok := counts[label]; ok && c > 0 {
			facetValues = append(facetValues, models.FacetValue{Value: label, Count: c})
			delete(counts, label)
		}
	}
	return models.Facet{
		Field:       field,
		DisplayName: displayName,
		Kind:        models.FacetRange,
		Values:      facetValues,
	}
}

// DateHistogram buckets dates by calendar interval. Bucket keys sort
// chronologically.
func DateHistogram(field, displayName string, dates []time.Time, interval string) models.Facet {
	counts := make(map[string]int)
	for _, d := range dates {
		counts[histogramKey(d, interval)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	facetValues := make([]models.FacetValue, 0, len(keys))
	for _, k := range keys {
		facetValues = append(facetValues, models.FacetValue{Value: k, Count: counts[k]})
	}
	return models.Facet{
		Field:       field,
		DisplayName: displayName,
		Kind:        models.FacetDateHistogram,
		Values:      facetValues,
	}
}

func histogramKey(d time.Time, interval string) string {
	switch interval {
	case IntervalYear:
		return strconv.Itoa(d.Year())
	case IntervalDay:
		return d.Format("2006-01-02")
	default:
		return fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month()))
	}
}

// Aggregator computes facets over search matches according to a
// configuration.
type Aggregator struct {
	config *Config
}

// NewAggregator returns an aggregator using config, or the default
// configuration when config is nil.
func NewAggregator(config *Config) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Aggregator{config: config}
}

// Config returns the aggregator's configuration.
func (a *Aggregator) Config() *Config {
	return a.config
}

// Aggregate computes the facet for one field over matches. Fields without an
// explicit configuration aggregate as a terms facet with defaults.
func (a *Aggregator) Aggregate(matches []*models.SearchMatch, field string) models.Facet {
	entries := entriesOf(matches)
	cfg, _ := a.config.Field(field)
	displayName := DisplayName(field)
	switch cfg.Kind {
	case models.FacetRange:
		return Range(field, displayName, numericValues(entries, field), cfg.Ranges)
	case models.FacetDateHistogram:
		return DateHistogram(field, displayName, dateValues(entries, field), cfg.Interval)
	default:
		return Terms(field, displayName, stringValues(entries, field), cfg.Size, cfg.MinCount)
	}
}

// AggregateAll computes every configured facet over matches, in
// configuration order.
func (a *Aggregator) AggregateAll(matches []*models.SearchMatch) []models.Facet {
	fields := a.config.Fields()
	facets := make([]models.Facet, 0, len(fields))
	for _, field := range fields {
		facets = append(facets, a.Aggregate(matches, field))
	}
	return facets
}

func entriesOf(matches []*models.SearchMatch) []*models.Entry {
	entries := make([]*models.Entry, 0, len(matches))
	for _, m := range matches {
		if m != nil && m.Entry != nil {
			entries = append(entries, m.Entry)
		}
	}
	return entries
}
