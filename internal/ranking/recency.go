package ranking

import (
	"math"
	"time"

	"github.com/hyperjump/bunken/internal/models"
)

// DefaultDecayRate is the per-year score decay used when none is configured.
const DefaultDecayRate = 0.1

// Recency wraps a base algorithm and decays its score exponentially with
// entry age: score * (1-decayRate)^years.
type Recency struct {
	base      Algorithm
	decayRate float64
	reference time.Time
}

// NewRecency creates a recency ranker. decayRate is the per-year decay in
// [0,1). A zero reference time means the current time.
func NewRecency(base Algorithm, decayRate float64, reference time.Time) *Recency {
	if reference.IsZero() {
		reference = time.Now()
	}
	return &Recency{base: base, decayRate: decayRate, reference: reference}
}

// Name returns the base algorithm name with a "recency_" prefix.
func (r *Recency) Name() string { return "recency_" + r.base.Name() }

// Score decays the base score by entry age. Entries without any usable date
// keep their base score.
func (r *Recency) Score(match *models.SearchMatch, terms []string, ctx *Context) (float64, error) {
	base, err := r.base.Score(match, terms, ctx)
	if err != nil {
		return 0, err
	}
	if match == nil || match.Entry == nil {
		return base, nil
	}

	date, ok := entryDate(match.Entry)
	if !ok {
		return base, nil
	}

	years := r.reference.Sub(date).Hours() / (24 * 365.25)
	factor := math.Pow(1-r.decayRate, years)
	return base * factor, nil
}

// entryDate picks the timestamp used for aging: when the entry was added to
// the library, else the publication date (January 1st of the year when only
// the year is known).
func entryDate(e *models.Entry) (time.Time, bool) {
	if !e.AddedAt.IsZero() {
		return e.AddedAt, true
	}
	return e.Date()
}
