// Package analysis tokenizes bibliography entry fields for indexing. Each
// field is handled by an analyzer matched to its semantics: free text goes
// through the standard pipeline, identifiers are kept whole, and author
// strings are split into names and name parts.
package analysis

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Analyzer turns raw field text into index tokens.
type Analyzer interface {
	Analyze(text string) []string
}

// DefaultStopWords returns the English stop words dropped by the standard
// analyzer.
func DefaultStopWords() map[string]struct{} {
	const words = "a an and are as at be by can for from have if in is it may " +
		"not of on or that the this to us we when will with yet you your"
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Config controls the steps of the text processing pipeline.
type Config struct {
	Lowercase      bool
	RemoveAccents  bool
	SplitCamelCase bool
	// StopWords are dropped after lowercasing; nil disables the filter.
	StopWords map[string]struct{}
	// MinTokenLength and MaxTokenLength bound token size in runes; zero or
	// negative values disable the corresponding bound.
	MinTokenLength int
	MaxTokenLength int
}

// DefaultConfig returns the pipeline configuration used for free-text fields.
func DefaultConfig() Config {
	return Config{
		Lowercase:      true,
		RemoveAccents:  true,
		SplitCamelCase: true,
		StopWords:      DefaultStopWords(),
		MinTokenLength: 2,
		MaxTokenLength: 50,
	}
}

// TextProcessor is a configurable tokenization pipeline shared by the
// analyzers in this package.
type TextProcessor struct {
	config Config
}

// NewTextProcessor creates a processor with the given configuration.
func NewTextProcessor(config Config) *TextProcessor {
	return &TextProcessor{config: config}
}

// Process runs text through the configured pipeline and returns the tokens.
func (p *TextProcessor) Process(text string) []string {
	if text == "" {
		return nil
	}
	if p.config.SplitCamelCase {
		text = splitCamelCase(text)
	}
	if p.config.RemoveAccents {
		text = RemoveAccents(text)
	}

	tokens := Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		length := utf8.RuneCountInString(tok)
		if p.config.MinTokenLength > 0 && length < p.config.MinTokenLength {
			continue
		}
		if p.config.MaxTokenLength > 0 && length > p.config.MaxTokenLength {
			continue
		}
		if p.config.Lowercase {
			tok = strings.ToLower(tok)
		}
		if p.config.StopWords != nil {
			if _, stop := p.config.StopWords[strings.ToLower(tok)]; stop {
				continue
			}
		}
		out = append(out, tok)
	}
	return out
}

// ExtractKeywords returns the most frequent processed tokens, most frequent
// first. Ties keep their order of first appearance. It is used to build
// similarity queries from an entry's own text.
func (p *TextProcessor) ExtractKeywords(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	tokens := p.Process(text)
	if len(tokens) == 0 {
		return nil
	}

	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > max {
		order = order[:max]
	}
	return order
}

// Tokenize splits text into word tokens, treating punctuation as separators.
// Underscores are part of tokens, matching word-character semantics.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// RemoveAccents strips combining diacritical marks after NFD decomposition,
// so "Café" and "Cafe" index to the same token.
func RemoveAccents(text string) string {
	decomposed := norm.NFD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	camelBoundary   = regexp.MustCompile(`([a-z])([A-Z])`)
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
)

func splitCamelCase(text string) string {
	text = camelBoundary.ReplaceAllString(text, "$1 $2")
	return acronymBoundary.ReplaceAllString(text, "$1 $2")
}

// StandardAnalyzer is the default analyzer for free-text fields. It splits
// camel case, strips accents and punctuation, lowercases, and removes stop
// words.
type StandardAnalyzer struct {
	processor *TextProcessor
}

// NewStandardAnalyzer creates a standard analyzer with the default pipeline.
func NewStandardAnalyzer() *StandardAnalyzer {
	return &StandardAnalyzer{processor: NewTextProcessor(DefaultConfig())}
}

// Analyze tokenizes free text.
func (a *StandardAnalyzer) Analyze(text string) []string {
	return a.processor.Process(text)
}

// KeywordAnalyzer treats the entire input as one lowercase token. It is used
// for atomic values such as DOIs, journal names, and entry types.
type KeywordAnalyzer struct{}

// Analyze returns the trimmed, lowercased input as a single token.
func (a *KeywordAnalyzer) Analyze(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	return []string{text}
}

// AuthorAnalyzer tokenizes BibTeX author lists. Names are separated by
// " and ". Each full name becomes one token, keeping the surname/initial
// structure intact for faceting, and the individual name parts are added so
// a bare surname still matches.
type AuthorAnalyzer struct{}

var authorSeparator = regexp.MustCompile(`\s+and\s+`)

// Analyze tokenizes an author list.
func (a *AuthorAnalyzer) Analyze(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var tokens []string
	for _, author := range authorSeparator.Split(text, -1) {
		author = strings.TrimSpace(author)
		if author == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(author))
		for _, part := range strings.Fields(author) {
			clean := strings.ToLower(stripNamePunctuation(part))
			if clean != "" {
				tokens = append(tokens, clean)
			}
		}
	}

	seen := make(map[string]struct{}, len(tokens))
	unique := tokens[:0]
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		unique = append(unique, tok)
	}
	return unique
}

func stripNamePunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == ',' {
			return -1
		}
		return r
	}, s)
}

// Analyzer names recognized by the Manager.
const (
	AnalyzerStandard = "standard"
	AnalyzerKeyword  = "keyword"
	AnalyzerAuthor   = "author"
)

// Manager selects the analyzer for each entry field.
type Manager struct {
	analyzers map[string]Analyzer
	fields    map[string]string
}

// NewManager creates a manager with the built-in analyzers and field
// mappings.
func NewManager() *Manager {
	return &Manager{
		analyzers: map[string]Analyzer{
			AnalyzerStandard: NewStandardAnalyzer(),
			AnalyzerKeyword:  &KeywordAnalyzer{},
			AnalyzerAuthor:   &AuthorAnalyzer{},
		},
		fields: map[string]string{
			"title":       AnalyzerStandard,
			"abstract":    AnalyzerStandard,
			"keywords":    AnalyzerStandard,
			"tags":        AnalyzerStandard,
			"note":        AnalyzerStandard,
			"content":     AnalyzerStandard,
			"search_text": AnalyzerStandard,

			"author": AnalyzerAuthor,
			"editor": AnalyzerAuthor,

			"journal":      AnalyzerKeyword,
			"booktitle":    AnalyzerKeyword,
			"publisher":    AnalyzerKeyword,
			"series":       AnalyzerKeyword,
			"school":       AnalyzerKeyword,
			"institution":  AnalyzerKeyword,
			"organization": AnalyzerKeyword,
			"entry_type":   AnalyzerKeyword,
			"key":          AnalyzerKeyword,
			"doi":          AnalyzerKeyword,
			"isbn":         AnalyzerKeyword,
			"issn":         AnalyzerKeyword,
			"url":          AnalyzerKeyword,
		},
	}
}

// Register adds or replaces a named analyzer.
func (m *Manager) Register(name string, a Analyzer) {
	m.analyzers[name] = a
}

// MapField assigns a named analyzer to a field.
func (m *Manager) MapField(field, analyzer string) {
	m.fields[field] = analyzer
}

// Named returns the analyzer registered under name.
func (m *Manager) Named(name string) (Analyzer, bool) {
	a, ok := m.analyzers[name]
	return a, ok
}

// AnalyzerNameFor returns the name of the analyzer mapped to field,
// defaulting to AnalyzerStandard for unmapped fields.
func (m *Manager) AnalyzerNameFor(field string) string {
	if name, ok := m.fields[field]; ok {
		return name
	}
	return AnalyzerStandard
}

// AnalyzerFor returns the analyzer for field, defaulting to the standard
// analyzer for unmapped fields.
func (m *Manager) AnalyzerFor(field string) Analyzer {
	if name, ok := m.fields[field]; ok {
		if a, ok := m.analyzers[name]; ok {
			return a
		}
	}
	return m.analyzers[AnalyzerStandard]
}

// AnalyzeField tokenizes text with the analyzer mapped to field.
func (m *Manager) AnalyzeField(field, text string) []string {
	return m.AnalyzerFor(field).Analyze(text)
}
