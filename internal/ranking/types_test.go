package ranking

import (
	"errors"
	"testing"

	"github.com/hyperjump/bunken/internal/models"
)

// stubAlgorithm returns canned scores keyed by entry key.
type stubAlgorithm struct {
	scores map[string]float64
	err    error
}

func (s *stubAlgorithm) Score(match *models.SearchMatch, _ []string, _ *Context) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[match.EntryKey], nil
}

func (s *stubAlgorithm) Name() string { return "stub" }

func entryWith(key string, fields map[string]string) *models.Entry {
	return &models.Entry{Key: key, Type: "article", Fields: fields}
}

func matchWith(key string, fields map[string]string) *models.SearchMatch {
	return &models.SearchMatch{EntryKey: key, Entry: entryWith(key, fields)}
}

func TestFieldWeights_Weight(t *testing.T) {
	weights := NewFieldWeights(nil)

	tests := []struct {
		field string
		want  float64
	}{
		{"title", 2.0},
		{"abstract", 1.0},
		{"keywords", 1.5},
		{"author", 1.2},
		{"journal", 0.8},
		{"booktitle", 0.8},
		{"note", 0.5},
		{"unknown", 1.0},
	}

	for _, tt := range tests {
		if got := weights.Weight(tt.field); got != tt.want {
			t.Errorf("Weight(%q) = %v, want %v", tt.field, got, tt.want)
		}
	}
}

func TestFieldWeights_Custom(t *testing.T) {
	weights := NewFieldWeights(map[string]float64{"title": 5.0, "venue": 0.3})

	if got := weights.Weight("title"); got != 5.0 {
		t.Errorf("Weight(title) = %v, want custom 5.0", got)
	}
	if got := weights.Weight("venue"); got != 0.3 {
		t.Errorf("Weight(venue) = %v, want 0.3", got)
	}
	if got := weights.Weight("abstract"); got != 1.0 {
		t.Errorf("Weight(abstract) = %v, want default 1.0", got)
	}
}

func TestContext_DocFrequency(t *testing.T) {
	ctx := NewContext()
	ctx.DocFrequencies["learning"] = 42

	if got := ctx.DocFrequency("learning"); got != 42 {
		t.Errorf("DocFrequency(learning) = %d, want 42", got)
	}
	if got := ctx.DocFrequency("unseen"); got != 1 {
		t.Errorf("DocFrequency(unseen) = %d, want 1", got)
	}
}

func TestContext_AvgFieldLength(t *testing.T) {
	ctx := NewContext()
	ctx.FieldLengths["title"] = 7.5

	if got := ctx.AvgFieldLength("title"); got != 7.5 {
		t.Errorf("AvgFieldLength(title) = %v, want 7.5", got)
	}
	if got := ctx.AvgFieldLength("abstract"); got != 100 {
		t.Errorf("AvgFieldLength(abstract) = %v, want fallback 100", got)
	}
	if got := ctx.AvgFieldLength("unknown"); got != 10 {
		t.Errorf("AvgFieldLength(unknown) = %v, want fallback 10", got)
	}
}

func TestRank_SortsByScoreDescending(t *testing.T) {
	alg := &stubAlgorithm{scores: map[string]float64{"a": 1.0, "b": 3.0, "c": 2.0}}
	matches := []*models.SearchMatch{
		matchWith("a", nil),
		matchWith("b", nil),
		matchWith("c", nil),
	}

	ranked, err := Rank(alg, matches, []string{"x"}, NewContext())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	wantOrder := []string{"b", "c", "a"}
	for i, want := range wantOrder {
		if ranked[i].EntryKey != want {
			t.Errorf("ranked[%d] = %q, want %q", i, ranked[i].EntryKey, want)
		}
	}
	if ranked[0].Score != 3.0 {
		t.Errorf("ranked[0].Score = %v, want 3.0", ranked[0].Score)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	alg := &stubAlgorithm{scores: map[string]float64{"first": 1.0, "second": 1.0, "third": 1.0}}
	matches := []*models.SearchMatch{
		matchWith("first", nil),
		matchWith("second", nil),
		matchWith("third", nil),
	}

	ranked, err := Rank(alg, matches, nil, NewContext())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if ranked[i].EntryKey != want {
			t.Errorf("ranked[%d] = %q, want input order preserved", i, ranked[i].EntryKey)
		}
	}
}

func TestRank_PropagatesError(t *testing.T) {
	wantErr := errors.New("scorer broken")
	alg := &stubAlgorithm{err: wantErr}
	matches := []*models.SearchMatch{matchWith("a", nil)}

	if _, err := Rank(alg, matches, nil, NewContext()); !errors.Is(err, wantErr) {
		t.Errorf("Rank() error = %v, want %v", err, wantErr)
	}
}
