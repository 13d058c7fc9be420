package query

import (
	"strings"
	"testing"
)

// fakeDictionary is a fixed in-memory vocabulary for expander tests.
type fakeDictionary struct {
	frequencies map[string]int
}

func (d *fakeDictionary) GetAllTerms() ([]string, error) {
	terms := make([]string, 0, len(d.frequencies))
	for term := range d.frequencies {
		terms = append(terms, term)
	}
	return terms, nil
}

func (d *fakeDictionary) GetTermFrequency(term string) (int, error) {
	return d.frequencies[term], nil
}

func (d *fakeDictionary) ContainsTerm(term string) (bool, error) {
	_, ok := d.frequencies[term]
	return ok, nil
}

func newTestDictionary() *fakeDictionary {
	return &fakeDictionary{frequencies: map[string]int{
		"machine":  8,
		"learning": 10,
		"neural":   6,
		"network":  5,
		"quantum":  3,
	}}
}

func TestExpander_Suggest(t *testing.T) {
	expander := NewExpander(newTestDictionary())

	suggestions := expander.Suggest("lerning")
	if len(suggestions) == 0 {
		t.Fatal("Suggest() returned no suggestions for a close typo")
	}
	if suggestions[0].Term != "learning" {
		t.Errorf("best suggestion = %q, want learning", suggestions[0].Term)
	}
	if suggestions[0].Distance != 1 {
		t.Errorf("distance = %d, want 1", suggestions[0].Distance)
	}
}

func TestExpander_SuggestTransposition(t *testing.T) {
	expander := NewExpander(newTestDictionary())

	// Adjacent transposition counts as one edit.
	suggestions := expander.Suggest("machien")
	if len(suggestions) == 0 {
		t.Fatal("Suggest() returned no suggestions for a transposition")
	}
	if suggestions[0].Term != "machine" {
		t.Errorf("best suggestion = %q, want machine", suggestions[0].Term)
	}
	if suggestions[0].Distance != 1 {
		t.Errorf("distance = %d, want 1", suggestions[0].Distance)
	}
}

func TestExpander_IsMisspelled(t *testing.T) {
	expander := NewExpander(newTestDictionary())

	if expander.IsMisspelled("machine") {
		t.Error("IsMisspelled(machine) = true for a dictionary word")
	}
	if !expander.IsMisspelled("machne") {
		t.Error("IsMisspelled(machne) = false for a typo")
	}

	noDict := NewExpander(nil)
	if noDict.IsMisspelled("anything") {
		t.Error("IsMisspelled() = true without a dictionary")
	}
}

func TestExpander_ExpandSpelling(t *testing.T) {
	expander := NewExpander(newTestDictionary())

	expanded := expander.Expand(NewTerm("lerning"), &ExpandOptions{Spelling: true})
	boolean, ok := expanded.(*Boolean)
	if !ok {
		t.Fatalf("Expand() = %T, want *Boolean", expanded)
	}
	if boolean.Op != OpOr {
		t.Errorf("Op = %v, want OR", boolean.Op)
	}
	if len(boolean.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(boolean.Children))
	}
	corrected, ok := boolean.Children[1].(*Term)
	if !ok {
		t.Fatalf("corrected child = %T, want *Term", boolean.Children[1])
	}
	if corrected.Text != "learning" {
		t.Errorf("corrected term = %q, want learning", corrected.Text)
	}
	if corrected.Boost != 0.8 {
		t.Errorf("corrected boost = %v, want 0.8", corrected.Boost)
	}
}

func TestExpander_ExpandAbbreviations(t *testing.T) {
	expander := NewExpander(nil)

	expanded := expander.Expand(NewTerm("ml"), &ExpandOptions{Abbreviations: true})
	boolean, ok := expanded.(*Boolean)
	if !ok {
		t.Fatalf("Expand() = %T, want *Boolean", expanded)
	}
	if len(boolean.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(boolean.Children))
	}
	phrase, ok := boolean.Children[1].(*Phrase)
	if !ok {
		t.Fatalf("expansion = %T, want *Phrase", boolean.Children[1])
	}
	if phrase.Text != "machine learning" {
		t.Errorf("expansion = %q, want %q", phrase.Text, "machine learning")
	}
	if phrase.Boost != 0.7 {
		t.Errorf("expansion boost = %v, want 0.7", phrase.Boost)
	}
}

func TestExpander_ExpandSynonyms(t *testing.T) {
	expander := NewExpander(nil, WithSynonyms(map[string][]string{
		"algorithm": {"method", "approach"},
	}))

	expanded := expander.Expand(NewTerm("algorithm"), &ExpandOptions{Synonyms: true})
	boolean, ok := expanded.(*Boolean)
	if !ok {
		t.Fatalf("Expand() = %T, want *Boolean", expanded)
	}
	if len(boolean.Children) != 3 {
		t.Fatalf("children = %d, want original plus two synonyms", len(boolean.Children))
	}
	for _, child := range boolean.Children[1:] {
		term, ok := child.(*Term)
		if !ok {
			t.Fatalf("synonym child = %T, want *Term", child)
		}
		if term.Boost != 0.7 {
			t.Errorf("synonym boost = %v, want 0.7", term.Boost)
		}
	}
}

func TestExpander_ExpandFields(t *testing.T) {
	expander := NewExpander(nil)

	q := &Field{Name: "title", Inner: NewTerm("attention")}
	expanded := expander.Expand(q, &ExpandOptions{Fields: true})
	boolean, ok := expanded.(*Boolean)
	if !ok {
		t.Fatalf("Expand() = %T, want *Boolean", expanded)
	}
	if len(boolean.Children) != 2 {
		t.Fatalf("children = %d, want title and abstract", len(boolean.Children))
	}

	abstract, ok := boolean.Children[1].(*Field)
	if !ok {
		t.Fatalf("second child = %T, want *Field", boolean.Children[1])
	}
	if abstract.Name != "abstract" {
		t.Errorf("expanded field = %q, want abstract", abstract.Name)
	}
	inner, ok := abstract.Inner.(*Term)
	if !ok {
		t.Fatalf("inner = %T, want *Term", abstract.Inner)
	}
	if inner.Boost != 0.5 {
		t.Errorf("abstract boost = %v, want 0.5", inner.Boost)
	}
}

func TestExpander_Relax(t *testing.T) {
	expander := NewExpander(nil)
	and := &Boolean{Op: OpAnd, Children: []Query{NewTerm("machine"), NewTerm("learning")}}

	t.Run("level one converts and to or", func(t *testing.T) {
		relaxed := expander.Relax(and, 1)
		boolean, ok := relaxed.(*Boolean)
		if !ok {
			t.Fatalf("Relax() = %T, want *Boolean", relaxed)
		}
		if boolean.Op != OpOr {
			t.Errorf("Op = %v, want OR", boolean.Op)
		}
	})

	t.Run("level two adds fuzzy variants", func(t *testing.T) {
		relaxed := expander.Relax(NewTerm("learning"), 2)
		boolean, ok := relaxed.(*Boolean)
		if !ok {
			t.Fatalf("Relax() = %T, want *Boolean", relaxed)
		}
		if _, ok := boolean.Children[1].(*Fuzzy); !ok {
			t.Errorf("second child = %T, want *Fuzzy", boolean.Children[1])
		}
	})

	t.Run("level two keeps short terms exact", func(t *testing.T) {
		relaxed := expander.Relax(NewTerm("ml"), 2)
		if _, ok := relaxed.(*Term); !ok {
			t.Errorf("Relax() = %T, want *Term unchanged", relaxed)
		}
	})

	t.Run("level three adds wildcards", func(t *testing.T) {
		relaxed := expander.Relax(NewTerm("learning"), 3)
		found := false
		var walk func(q Query)
		walk = func(q Query) {
			switch node := q.(type) {
			case *Wildcard:
				if strings.HasSuffix(node.Pattern, "*") {
					found = true
				}
			case *Boolean:
				for _, child := range node.Children {
					walk(child)
				}
			}
		}
		walk(relaxed)
		if !found {
			t.Error("Relax(level 3) produced no wildcard variant")
		}
	})

	t.Run("level zero is identity", func(t *testing.T) {
		if got := expander.Relax(and, 0); got != and {
			t.Error("Relax(0) rebuilt the query")
		}
	})
}

func TestExpander_SuggestCorrections(t *testing.T) {
	expander := NewExpander(newTestDictionary(), WithSynonyms(map[string][]string{
		"quantum": {"quantised"},
	}))

	q := &Boolean{Op: OpAnd, Children: []Query{NewTerm("lerning"), NewTerm("quantum")}}
	corrections := expander.SuggestCorrections(q, 3)
	if len(corrections) == 0 {
		t.Fatal("SuggestCorrections() returned nothing")
	}
	if corrections[0].Kind != "spelling" {
		t.Errorf("first correction kind = %q, want spelling (highest confidence)", corrections[0].Kind)
	}
	if !strings.Contains(corrections[0].Suggested, "learning") {
		t.Errorf("suggested query %q does not contain the corrected term", corrections[0].Suggested)
	}
	for i := 1; i < len(corrections); i++ {
		if corrections[i].Confidence > corrections[i-1].Confidence {
			t.Error("corrections are not sorted by confidence")
		}
	}
}

func TestExpander_ExpandLeavesInputIntact(t *testing.T) {
	expander := NewExpander(newTestDictionary())

	original := NewTerm("lerning")
	expander.Expand(original, nil)
	if original.Text != "lerning" || original.Boost != 1.0 {
		t.Error("Expand() modified the input query")
	}
}
