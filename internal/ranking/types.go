// Package ranking orders search matches by relevance. It provides BM25 and
// TF-IDF base algorithms plus wrappers for custom boosts, recency decay, and
// weighted combinations of algorithms.
package ranking

import (
	"sort"

	"github.com/hyperjump/bunken/internal/models"
)

// Algorithm scores a single match against the query terms.
type Algorithm interface {
	// Score calculates the relevance score for a match. Higher is better.
	Score(match *models.SearchMatch, terms []string, ctx *Context) (float64, error)
	// Name returns the algorithm name for explanations and logging.
	Name() string
}

// Context holds the collection statistics the algorithms need. The indexer
// fills it from the current index snapshot.
type Context struct {
	// TotalDocs is the number of entries in the collection.
	TotalDocs int
	// AvgDocLength is the average entry length in tokens across all fields.
	AvgDocLength float64
	// DocFrequencies maps terms to the number of entries containing them.
	DocFrequencies map[string]int
	// FieldLengths maps field names to their average token count.
	FieldLengths map[string]float64
}

// NewContext creates an empty scoring context.
func NewContext() *Context {
	return &Context{
		DocFrequencies: make(map[string]int),
		FieldLengths:   make(map[string]float64),
	}
}

// DocFrequency returns the document frequency for term. Terms missing from
// the statistics count as appearing in one document, so unseen terms score
// as very rare rather than disappearing.
func (c *Context) DocFrequency(term string) int {
	if df, ok := c.DocFrequencies[term]; ok && df > 0 {
		return df
	}
	return 1
}

// fallbackFieldLengths approximates average field lengths for collections
// whose statistics have not been computed yet.
var fallbackFieldLengths = map[string]float64{
	"title":    10,
	"abstract": 100,
	"keywords": 5,
}

// AvgFieldLength returns the average token count for field, falling back to
// a built-in approximation when the statistics lack the field.
func (c *Context) AvgFieldLength(field string) float64 {
	if l, ok := c.FieldLengths[field]; ok && l > 0 {
		return l
	}
	if l, ok := fallbackFieldLengths[field]; ok {
		return l
	}
	return 10
}

// FieldWeights maps field names to score multipliers.
type FieldWeights struct {
	weights map[string]float64
}

// DefaultFieldWeights returns the built-in field weight table.
func DefaultFieldWeights() map[string]float64 {
	return map[string]float64{
		"title":     2.0,
		"abstract":  1.0,
		"keywords":  1.5,
		"author":    1.2,
		"journal":   0.8,
		"booktitle": 0.8,
		"note":      0.5,
	}
}

// NewFieldWeights creates field weights with the defaults overlaid by custom.
func NewFieldWeights(custom map[string]float64) *FieldWeights {
	weights := DefaultFieldWeights()
	for field, w := range custom {
		weights[field] = w
	}
	return &FieldWeights{weights: weights}
}

// Weight returns the multiplier for field, 1.0 for unknown fields.
func (w *FieldWeights) Weight(field string) float64 {
	if v, ok := w.weights[field]; ok {
		return v
	}
	return 1.0
}

// Fields returns the field names with configured weights, sorted.
func (w *FieldWeights) Fields() []string {
	fields := make([]string, 0, len(w.weights))
	for f := range w.weights {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Rank scores every match with alg and sorts them by score descending. The
// sort is stable, so matches with equal scores keep their input order. The
// input slice is modified in place and returned.
func Rank(alg Algorithm, matches []*models.SearchMatch, terms []string, ctx *Context) ([]*models.SearchMatch, error) {
	for _, match := range matches {
		score, err := alg.Score(match, terms, ctx)
		if err != nil {
			return nil, err
		}
		match.Score = score
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}
