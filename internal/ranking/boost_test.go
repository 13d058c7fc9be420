package ranking

import (
	"errors"
	"testing"

	"github.com/hyperjump/bunken/internal/models"
)

func TestBoosting_AppliesFactor(t *testing.T) {
	base := &stubAlgorithm{scores: map[string]float64{"covered": 2.0, "partial": 2.0}}
	ranker := NewBoosting(base, TitleAllTermsBoost(3.0))

	covered := matchWith("covered", map[string]string{"title": "Deep Learning Survey"})
	partial := matchWith("partial", map[string]string{"title": "Deep Dive Into Systems"})

	coveredScore, err := ranker.Score(covered, []string{"deep", "learning"}, NewContext())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if coveredScore != 6.0 {
		t.Errorf("score with all terms in title = %v, want 6.0", coveredScore)
	}

	partialScore, err := ranker.Score(partial, []string{"deep", "learning"}, NewContext())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if partialScore != 2.0 {
		t.Errorf("score with missing term = %v, want unboosted 2.0", partialScore)
	}
}

func TestBoosting_NoTermsNoBoost(t *testing.T) {
	base := &stubAlgorithm{scores: map[string]float64{"a": 1.5}}
	ranker := NewBoosting(base, TitleAllTermsBoost(4.0))

	score, err := ranker.Score(matchWith("a", map[string]string{"title": "Anything"}), nil, NewContext())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 1.5 {
		t.Errorf("score with empty terms = %v, want 1.5", score)
	}
}

func TestBoosting_PropagatesBoostError(t *testing.T) {
	wantErr := errors.New("boost failed")
	base := &stubAlgorithm{scores: map[string]float64{"a": 1.0}}
	ranker := NewBoosting(base, func(*models.SearchMatch, []string, *Context) (float64, error) {
		return 0, wantErr
	})

	if _, err := ranker.Score(matchWith("a", nil), []string{"x"}, NewContext()); !errors.Is(err, wantErr) {
		t.Errorf("Score() error = %v, want %v", err, wantErr)
	}
}

func TestBoosting_PropagatesBaseError(t *testing.T) {
	wantErr := errors.New("base failed")
	ranker := NewBoosting(&stubAlgorithm{err: wantErr}, TitleAllTermsBoost(2.0))

	if _, err := ranker.Score(matchWith("a", nil), []string{"x"}, NewContext()); !errors.Is(err, wantErr) {
		t.Errorf("Score() error = %v, want %v", err, wantErr)
	}
}
