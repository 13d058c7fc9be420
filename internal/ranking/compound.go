package ranking

import "github.com/hyperjump/bunken/internal/models"

// WeightedAlgorithm pairs an algorithm with its share of the compound score.
type WeightedAlgorithm struct {
	Algorithm Algorithm
	Weight    float64
}

// Compound combines several algorithms into one weighted score. Weights are
// normalized to sum to 1 at construction, so callers can pass any positive
// proportions.
type Compound struct {
	rankers         []WeightedAlgorithm
	fallbackOnError bool
}

// NewCompound creates a compound ranker. When fallbackOnError is set, an
// algorithm returning an error is skipped instead of failing the whole
// score. A non-positive weight total falls back to equal shares.
func NewCompound(rankers []WeightedAlgorithm, fallbackOnError bool) *Compound {
	var total float64
	for _, r := range rankers {
		total += r.Weight
	}

	normalized := make([]WeightedAlgorithm, len(rankers))
	for i, r := range rankers {
		weight := r.Weight
		if total > 0 {
			weight = r.Weight / total
		} else if len(rankers) > 0 {
			weight = 1.0 / float64(len(rankers))
		}
		normalized[i] = WeightedAlgorithm{Algorithm: r.Algorithm, Weight: weight}
	}

	return &Compound{rankers: normalized, fallbackOnError: fallbackOnError}
}

// Name returns "compound".
func (r *Compound) Name() string { return "compound" }

// Score sums the weighted sub-scores.
func (r *Compound) Score(match *models.SearchMatch, terms []string, ctx *Context) (float64, error) {
	var total float64
	for _, wr := range r.rankers {
		score, err := wr.Algorithm.Score(match, terms, ctx)
		if err != nil {
			if r.fallbackOnError {
				continue
			}
			return 0, err
		}
		total += score * wr.Weight
	}
	return total, nil
}
