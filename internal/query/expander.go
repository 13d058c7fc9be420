package query

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TermDictionary provides access to the indexed vocabulary for spell
// checking. This interface allows dependency injection for testing.
type TermDictionary interface {
	// GetAllTerms returns all unique terms in the index.
	GetAllTerms() ([]string, error)
	// GetTermFrequency returns the document frequency for a term.
	GetTermFrequency(term string) (int, error)
	// ContainsTerm checks if a term exists in the index.
	ContainsTerm(term string) (bool, error)
}

// Suggestion represents a spelling suggestion with its score.
type Suggestion struct {
	Term      string  // The suggested term
	Distance  int     // Edit distance from the original term
	Frequency int     // Document frequency (popularity)
	Score     float64 // Combined score for ranking
}

// Correction proposes an improved form of a whole query.
type Correction struct {
	Original    string
	Suggested   string
	Kind        string // "spelling", "synonym", or "expansion"
	Confidence  float64
	Explanation string
}

// DefaultAbbreviations maps common research abbreviations to their
// expansions.
var DefaultAbbreviations = map[string]string{
	"ml":   "machine learning",
	"dl":   "deep learning",
	"ai":   "artificial intelligence",
	"nlp":  "natural language processing",
	"cv":   "computer vision",
	"rl":   "reinforcement learning",
	"gan":  "generative adversarial network",
	"lstm": "long short term memory",
	"cnn":  "convolutional neural network",
	"rnn":  "recurrent neural network",
	"hci":  "human computer interaction",
	"db":   "database",
}

// DefaultSynonyms maps terms to related terms used for recall expansion.
var DefaultSynonyms = map[string][]string{
	"neural network":   {"deep learning", "neural net"},
	"machine learning": {"statistical learning", "pattern recognition"},
	"optimization":     {"optimisation", "optimal"},
	"algorithm":        {"method", "approach", "technique"},
	"performance":      {"speed", "efficiency"},
	"accuracy":         {"precision", "recall"},
}

// defaultFieldExpansions widens single-field queries to related fields.
var defaultFieldExpansions = map[string][]string{
	"title":  {"title", "abstract"},
	"author": {"author", "editor"},
	"venue":  {"journal", "booktitle", "publisher"},
}

// defaultExpansionBoosts weights each expanded field; the original field
// keeps full weight.
var defaultExpansionBoosts = map[string]map[string]float64{
	"title":  {"title": 1.0, "abstract": 0.5},
	"author": {"author": 1.0, "editor": 0.7},
	"venue":  {"journal": 1.0, "booktitle": 0.9, "publisher": 0.6},
}

// Expander rewrites query trees for better recall: spelling correction
// against the indexed vocabulary, synonym and abbreviation alternatives,
// and related-field widening.
type Expander struct {
	dictionary TermDictionary

	synonyms        map[string][]string
	abbreviations   map[string]string
	fieldExpansions map[string][]string
	expansionBoosts map[string]map[string]float64

	maxDistance    int
	minFreq        int
	maxSuggestions int

	// Cached terms for faster lookup
	termsCache []string
	termSet    map[string]struct{}
	cacheMu    sync.RWMutex
	cacheValid bool
}

// ExpanderOption is a functional option for configuring an Expander.
type ExpanderOption func(*Expander)

// WithMaxDistance sets the maximum edit distance for spelling suggestions.
func WithMaxDistance(d int) ExpanderOption {
	return func(e *Expander) {
		if d > 0 {
			e.maxDistance = d
		}
	}
}

// WithMinFrequency sets the minimum document frequency for suggestions.
// Terms with lower frequency are ignored (likely rare or noise).
func WithMinFrequency(f int) ExpanderOption {
	return func(e *Expander) {
		if f >= 0 {
			e.minFreq = f
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions per term.
func WithMaxSuggestions(n int) ExpanderOption {
	return func(e *Expander) {
		if n > 0 {
			e.maxSuggestions = n
		}
	}
}

// WithSynonyms replaces the synonym table.
func WithSynonyms(synonyms map[string][]string) ExpanderOption {
	return func(e *Expander) {
		if synonyms != nil {
			e.synonyms = synonyms
		}
	}
}

// WithAbbreviations replaces the abbreviation table.
func WithAbbreviations(abbreviations map[string]string) ExpanderOption {
	return func(e *Expander) {
		if abbreviations != nil {
			e.abbreviations = abbreviations
		}
	}
}

// WithFieldExpansion adds or replaces a field expansion. The first field
// keeps full weight unless boosts overrides it.
func WithFieldExpansion(field string, fields []string, boosts map[string]float64) ExpanderOption {
	return func(e *Expander) {
		e.fieldExpansions[field] = fields
		if boosts != nil {
			e.expansionBoosts[field] = boosts
			return
		}
		defaults := make(map[string]float64, len(fields))
		for i, f := range fields {
			defaults[f] = 1.0 - float64(i)*0.2
		}
		e.expansionBoosts[field] = defaults
	}
}

// NewExpander creates an Expander. The dictionary may be nil, in which
// case spelling correction is disabled and only the static synonym,
// abbreviation, and field tables apply.
func NewExpander(dict TermDictionary, opts ...ExpanderOption) *Expander {
	e := &Expander{
		dictionary:      dict,
		synonyms:        DefaultSynonyms,
		abbreviations:   DefaultAbbreviations,
		fieldExpansions: make(map[string][]string, len(defaultFieldExpansions)),
		expansionBoosts: make(map[string]map[string]float64, len(defaultExpansionBoosts)),
		maxDistance:     2,
		minFreq:         1,
		maxSuggestions:  5,
		termSet:         make(map[string]struct{}),
	}
	for field, fields := range defaultFieldExpansions {
		e.fieldExpansions[field] = fields
	}
	for field, boosts := range defaultExpansionBoosts {
		e.expansionBoosts[field] = boosts
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ExpandOptions selects which expansions Expand applies. Nil enables all.
type ExpandOptions struct {
	Spelling      bool
	Synonyms      bool
	Abbreviations bool
	Fields        bool
}

// Expand returns a query rewritten for better recall. The input tree is
// never modified; unchanged subtrees are shared with the result.
func (e *Expander) Expand(q Query, opts *ExpandOptions) Query {
	if opts == nil {
		opts = &ExpandOptions{Spelling: true, Synonyms: true, Abbreviations: true, Fields: true}
	}

	expanded := q
	if opts.Spelling && e.dictionary != nil {
		expanded = e.correctSpelling(expanded)
	}
	if opts.Abbreviations {
		expanded = e.expandAbbreviations(expanded)
	}
	if opts.Synonyms {
		expanded = e.expandSynonyms(expanded)
	}
	if opts.Fields {
		expanded = e.expandFields(expanded)
	}
	return expanded
}

// correctSpelling ORs misspelled terms with their best dictionary
// correction at a reduced boost, so the original spelling still wins when
// it actually occurs in the collection.
func (e *Expander) correctSpelling(q Query) Query {
	switch node := q.(type) {
	case *Term:
		if !e.IsMisspelled(node.Text) {
			return q
		}
		suggestions := e.Suggest(node.Text)
		if len(suggestions) == 0 {
			return q
		}
		corrected := &Term{Text: suggestions[0].Term, Boost: node.Boost * 0.8}
		return &Boolean{Op: OpOr, Children: []Query{node, corrected}}

	case *Phrase:
		words := strings.Fields(node.Text)
		correctedWords := make([]string, len(words))
		changed := false
		for i, word := range words {
			correctedWords[i] = word
			if !e.IsMisspelled(word) {
				continue
			}
			if suggestions := e.Suggest(word); len(suggestions) > 0 {
				correctedWords[i] = suggestions[0].Term
				changed = true
			}
		}
		if !changed {
			return q
		}
		corrected := &Phrase{Text: strings.Join(correctedWords, " "), Boost: node.Boost * 0.8}
		return &Boolean{Op: OpOr, Children: []Query{node, corrected}}

	case *Field:
		return &Field{Name: node.Name, Inner: e.correctSpelling(node.Inner)}

	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = e.correctSpelling(child)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}

// expandAbbreviations ORs abbreviation terms with their spelled-out form
// as a phrase at a reduced boost.
func (e *Expander) expandAbbreviations(q Query) Query {
	switch node := q.(type) {
	case *Term:
		expansion, ok := e.abbreviations[strings.ToLower(node.Text)]
		if !ok {
			return q
		}
		return &Boolean{Op: OpOr, Children: []Query{
			node,
			expansionQuery(expansion, node.Boost*0.7),
		}}

	case *Field:
		return &Field{Name: node.Name, Inner: e.expandAbbreviations(node.Inner)}

	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = e.expandAbbreviations(child)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}

// expandSynonyms ORs terms and phrases with their synonyms at a reduced
// boost.
func (e *Expander) expandSynonyms(q Query) Query {
	switch node := q.(type) {
	case *Term:
		synonyms, ok := e.synonyms[strings.ToLower(node.Text)]
		if !ok {
			return q
		}
		children := []Query{node}
		for _, synonym := range synonyms {
			children = append(children, expansionQuery(synonym, node.Boost*0.7))
		}
		return &Boolean{Op: OpOr, Children: children}

	case *Phrase:
		synonyms, ok := e.synonyms[strings.ToLower(node.Text)]
		if !ok {
			return q
		}
		children := []Query{node}
		for _, synonym := range synonyms {
			children = append(children, expansionQuery(synonym, node.Boost*0.7))
		}
		return &Boolean{Op: OpOr, Children: children}

	case *Field:
		return &Field{Name: node.Name, Inner: e.expandSynonyms(node.Inner)}

	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = e.expandSynonyms(child)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}

// expandFields turns a query against an expandable field into an OR across
// its related fields, each at its configured weight.
func (e *Expander) expandFields(q Query) Query {
	switch node := q.(type) {
	case *Field:
		fields, ok := e.fieldExpansions[strings.ToLower(node.Name)]
		if !ok || len(fields) < 2 {
			return &Field{Name: node.Name, Inner: e.expandFields(node.Inner)}
		}
		boosts := e.expansionBoosts[strings.ToLower(node.Name)]
		children := make([]Query, 0, len(fields))
		for _, field := range fields {
			boost, ok := boosts[field]
			if !ok {
				boost = 0.5
			}
			children = append(children, &Field{
				Name:  field,
				Inner: adjustBoost(node.Inner, boost),
			})
		}
		return &Boolean{Op: OpOr, Children: children}

	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = e.expandFields(child)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}

// Relax loosens a query for broader matching. Level 1 converts AND groups
// to OR; level 2 additionally ORs longer terms with a fuzzy variant; level
// 3 additionally ORs terms with a prefix wildcard.
func (e *Expander) Relax(q Query, level int) Query {
	if level <= 0 {
		return q
	}
	relaxed := relaxOperators(q)
	if level >= 2 {
		relaxed = addFuzzy(relaxed)
	}
	if level >= 3 {
		relaxed = addWildcards(relaxed)
	}
	return relaxed
}

func relaxOperators(q Query) Query {
	switch node := q.(type) {
	case *Boolean:
		op := node.Op
		if op == OpAnd {
			op = OpOr
		}
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = relaxOperators(child)
		}
		return &Boolean{Op: op, Children: children}
	case *Field:
		return &Field{Name: node.Name, Inner: relaxOperators(node.Inner)}
	}
	return q
}

func addFuzzy(q Query) Query {
	switch node := q.(type) {
	case *Term:
		// Fuzzifying short terms floods the results with noise.
		if len(node.Text) < 4 {
			return q
		}
		fuzzy := &Fuzzy{Text: node.Text, MaxEdits: 1, Boost: node.Boost * 0.8}
		return &Boolean{Op: OpOr, Children: []Query{node, fuzzy}}
	case *Field:
		return &Field{Name: node.Name, Inner: addFuzzy(node.Inner)}
	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = addFuzzy(child)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}

func addWildcards(q Query) Query {
	switch node := q.(type) {
	case *Term:
		if len(node.Text) < 3 {
			return q
		}
		wildcard := &Wildcard{Pattern: node.Text + "*", Boost: node.Boost * 0.6}
		return &Boolean{Op: OpOr, Children: []Query{node, wildcard}}
	case *Field:
		return &Field{Name: node.Name, Inner: addWildcards(node.Inner)}
	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = addWildcards(child)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}

// SuggestCorrections generates ways to improve a query, ordered by
// confidence: spelling fixes, synonym alternatives, then field widening.
func (e *Expander) SuggestCorrections(q Query, maxCorrections int) []Correction {
	original := q.String()
	var corrections []Correction

	if e.dictionary != nil {
		for _, term := range q.Terms() {
			if !e.IsMisspelled(term) {
				continue
			}
			suggestions := e.Suggest(term)
			if len(suggestions) == 0 {
				continue
			}
			best := suggestions[0].Term
			corrections = append(corrections, Correction{
				Original:    original,
				Suggested:   strings.Replace(original, term, best, 1),
				Kind:        "spelling",
				Confidence:  0.8,
				Explanation: fmt.Sprintf("Did you mean %q instead of %q?", best, term),
			})
		}
	}

	for _, term := range q.Terms() {
		synonyms, ok := e.synonyms[strings.ToLower(term)]
		if !ok || len(synonyms) == 0 {
			continue
		}
		limit := min(len(synonyms), 2)
		alternatives := strings.Join(synonyms[:limit], " OR ")
		corrections = append(corrections, Correction{
			Original:    original,
			Suggested:   strings.Replace(original, term, "("+term+" OR "+alternatives+")", 1),
			Kind:        "synonym",
			Confidence:  0.7,
			Explanation: "Include related terms: " + strings.Join(synonyms[:limit], ", "),
		})
	}

	if fieldQuery, ok := q.(*Field); ok {
		if fields, ok := e.fieldExpansions[strings.ToLower(fieldQuery.Name)]; ok && len(fields) > 1 {
			var others []string
			for _, f := range fields {
				if f != strings.ToLower(fieldQuery.Name) {
					others = append(others, f)
				}
			}
			if len(others) > 0 {
				corrections = append(corrections, Correction{
					Original:    original,
					Suggested:   original + " OR " + others[0] + ":" + fieldQuery.Inner.String(),
					Kind:        "expansion",
					Confidence:  0.6,
					Explanation: "Also search in: " + strings.Join(others, ", "),
				})
			}
		}
	}

	sort.SliceStable(corrections, func(i, j int) bool {
		return corrections[i].Confidence > corrections[j].Confidence
	})
	if len(corrections) > maxCorrections {
		corrections = corrections[:maxCorrections]
	}
	return corrections
}

// RefreshCache updates the internal term cache from the dictionary.
// This should be called after the index changes.
func (e *Expander) RefreshCache() error {
	if e.dictionary == nil {
		return nil
	}
	terms, err := e.dictionary.GetAllTerms()
	if err != nil {
		return err
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	e.termsCache = terms
	e.termSet = make(map[string]struct{}, len(terms))
	for _, t := range terms {
		e.termSet[strings.ToLower(t)] = struct{}{}
	}
	e.cacheValid = true

	return nil
}

// IsMisspelled checks if a term is likely misspelled (not in the
// dictionary). Without a dictionary every term counts as spelled right.
func (e *Expander) IsMisspelled(term string) bool {
	if e.dictionary == nil {
		return false
	}
	if !e.cacheValid {
		if err := e.RefreshCache(); err != nil {
			return false
		}
	}

	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()

	_, exists := e.termSet[strings.ToLower(term)]
	return !exists
}

// Suggest returns spelling suggestions for a single term, best first.
func (e *Expander) Suggest(term string) []Suggestion {
	if e.dictionary == nil {
		return nil
	}
	if !e.cacheValid {
		if err := e.RefreshCache(); err != nil {
			return nil
		}
	}

	termLower := strings.ToLower(term)

	e.cacheMu.RLock()
	terms := e.termsCache
	e.cacheMu.RUnlock()

	suggestions := make([]Suggestion, 0)
	for _, dictTerm := range terms {
		dictTermLower := strings.ToLower(dictTerm)
		if dictTermLower == termLower {
			continue
		}

		// Length difference alone can rule out a candidate.
		lenDiff := len(dictTermLower) - len(termLower)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if lenDiff > e.maxDistance {
			continue
		}

		distance := DamerauLevenshteinDistance(termLower, dictTermLower)
		if distance > e.maxDistance {
			continue
		}

		freq, err := e.dictionary.GetTermFrequency(dictTerm)
		if err != nil || freq < e.minFreq {
			continue
		}

		// Lower distance is better, higher frequency is better.
		score := (1.0 / float64(distance+1)) * float64(freq)
		suggestions = append(suggestions, Suggestion{
			Term:      dictTerm,
			Distance:  distance,
			Frequency: freq,
			Score:     score,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	if len(suggestions) > e.maxSuggestions {
		suggestions = suggestions[:e.maxSuggestions]
	}
	return suggestions
}

// expansionQuery builds the query node for an expansion text: a phrase
// when the text has several words, a term otherwise.
func expansionQuery(text string, boost float64) Query {
	if strings.ContainsRune(text, ' ') {
		return &Phrase{Text: text, Boost: boost}
	}
	return &Term{Text: text, Boost: boost}
}

// adjustBoost returns a copy of the query with every leaf boost multiplied
// by factor.
func adjustBoost(q Query, factor float64) Query {
	switch node := q.(type) {
	case *Term:
		return &Term{Text: node.Text, Boost: node.Boost * factor}
	case *Phrase:
		return &Phrase{Text: node.Text, Boost: node.Boost * factor}
	case *Wildcard:
		return &Wildcard{Pattern: node.Pattern, Boost: node.Boost * factor}
	case *Fuzzy:
		return &Fuzzy{Text: node.Text, MaxEdits: node.MaxEdits, Boost: node.Boost * factor}
	case *Field:
		return &Field{Name: node.Name, Inner: adjustBoost(node.Inner, factor)}
	case *Boolean:
		children := make([]Query, len(node.Children))
		for i, child := range node.Children {
			children[i] = adjustBoost(child, factor)
		}
		return &Boolean{Op: node.Op, Children: children}
	}
	return q
}
