package ranking

import (
	"strings"

	"github.com/hyperjump/bunken/internal/models"
)

// BoostFunc computes a score multiplier for a match.
type BoostFunc func(match *models.SearchMatch, terms []string, ctx *Context) (float64, error)

// Boosting wraps a base algorithm and multiplies its score by the factor
// returned by a boost function.
type Boosting struct {
	base  Algorithm
	boost BoostFunc
}

// NewBoosting creates a boosting ranker around base.
func NewBoosting(base Algorithm, boost BoostFunc) *Boosting {
	return &Boosting{base: base, boost: boost}
}

// Name returns the base algorithm name with a "boosted_" prefix.
func (r *Boosting) Name() string { return "boosted_" + r.base.Name() }

// Score multiplies the base score by the boost factor.
func (r *Boosting) Score(match *models.SearchMatch, terms []string, ctx *Context) (float64, error) {
	base, err := r.base.Score(match, terms, ctx)
	if err != nil {
		return 0, err
	}
	factor, err := r.boost(match, terms, ctx)
	if err != nil {
		return 0, err
	}
	return base * factor, nil
}

// TitleAllTermsBoost returns a boost applying factor when the entry title
// contains every query term.
func TitleAllTermsBoost(factor float64) BoostFunc {
	return func(match *models.SearchMatch, terms []string, _ *Context) (float64, error) {
		if match == nil || match.Entry == nil || len(terms) == 0 {
			return 1.0, nil
		}
		title := strings.ToLower(match.Entry.Title())
		if title == "" {
			return 1.0, nil
		}
		for _, term := range terms {
			if !strings.Contains(title, strings.ToLower(term)) {
				return 1.0, nil
			}
		}
		return factor, nil
	}
}
