package ranking

import (
	"math"
	"strings"

	"github.com/hyperjump/bunken/internal/models"
)

// BM25Params tunes the BM25 scoring function.
type BM25Params struct {
	// K1 controls term frequency saturation.
	K1 float64
	// B controls document length normalization.
	B float64
}

// DefaultBM25Params returns the standard parameter values.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.2, B: 0.75}
}

// scoredFields are the entry fields whose text contributes to relevance.
var scoredFields = []string{"title", "abstract", "keywords", "author", "journal", "booktitle", "note"}

// BM25Score computes the BM25 score of a single term in a single field.
// The IDF component is zeroed instead of going negative-infinite when the
// term appears in more documents than exist, and the average length is
// floored to 1 to keep the normalization defined.
func BM25Score(termFreq, docFreq, docLength int, avgLength float64, totalDocs int, k1, b float64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5

	var idf float64
	if numerator > 0 && denominator > 0 {
		idf = math.Log(numerator / denominator)
	}

	if avgLength <= 0 {
		avgLength = 1
	}
	tfDenominator := float64(termFreq) + k1*(1-b+b*(float64(docLength)/avgLength))
	if tfDenominator <= 0 {
		return 0
	}
	tfComponent := (float64(termFreq) * (k1 + 1)) / tfDenominator

	return idf * tfComponent
}

// BM25 implements the Okapi BM25 ranking function with per-field weighting.
type BM25 struct {
	params  BM25Params
	weights *FieldWeights
	fields  []string
}

// NewBM25 creates a BM25 ranker. Nil params or weights select the defaults.
func NewBM25(params *BM25Params, weights *FieldWeights) *BM25 {
	p := DefaultBM25Params()
	if params != nil {
		p = *params
	}
	if weights == nil {
		weights = NewFieldWeights(nil)
	}
	return &BM25{params: p, weights: weights, fields: scoredFields}
}

// Name returns "bm25".
func (r *BM25) Name() string { return "bm25" }

// Score sums the weighted BM25 contributions of every query term across the
// scored fields of the matched entry.
func (r *BM25) Score(match *models.SearchMatch, terms []string, ctx *Context) (float64, error) {
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
			score := BM25Score(tf, docFreq, fieldLength, ctx.AvgFieldLength(field), ctx.TotalDocs, r.params.K1, r.params.B)
			total += score * r.weights.Weight(field)
		}
	}
	return total, nil
}
