package ranking

import (
	"math"
	"strings"

	"github.com/hyperjump/bunken/internal/models"
)

// TFIDFScore computes the TF-IDF score of a single term: term frequency
// normalized by document length, times the log inverse document frequency.
// A zero document frequency or document length yields 0.
func TFIDFScore(termFreq, docFreq, totalDocs, docLength int) float64 {
	var tf float64
	if docLength > 0 {
		tf = float64(termFreq) / float64(docLength)
	}

	var idf float64
	if docFreq > 0 {
		idf = math.Log(float64(totalDocs) / float64(docFreq))
	}

	return tf * idf
}

// TFIDF implements classic TF-IDF relevance with per-field weighting. It is
// simpler than BM25 and useful as a secondary signal in compound rankers.
type TFIDF struct {
	weights *FieldWeights
	fields  []string
}

// NewTFIDF creates a TF-IDF ranker. Nil weights select the defaults.
func NewTFIDF(weights *FieldWeights) *TFIDF {
	if weights == nil {
		weights = NewFieldWeights(nil)
	}
	return &TFIDF{weights: weights, fields: scoredFields}
}

// Name returns "tfidf".
func (r *TFIDF) Name() string { return "tfidf" }

// Score sums the weighted TF-IDF contributions of every query term across
// the scored fields of the matched entry.
func (r *TFIDF) Score(match *models.SearchMatch, terms []string, ctx *Context) (float64, error) {
	if match == nil || match.Entry == nil {
		return 0, nil
	}

	var total float64
	for _, term := range terms {
		term = strings.ToLower(term)
		if term == "" {
			continue
		}
		docFreq := ctx.DocFrequency(term)

		for _, field := range r.fields {
			text := match.Entry.Field(field)
			if text == "" {
				continue
			}
			tf := strings.Count(strings.ToLower(text), term)
			if tf == 0 {
				continue
			}
			fieldLength := len(strings.Fields(text))
			score := TFIDFScore(tf, docFreq, ctx.TotalDocs, fieldLength)
			total += score * r.weights.Weight(field)
		}
	}
	return total, nil
}
