// Package highlight locates query matches inside entry fields and renders
// highlighted snippets around them.
package highlight

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/query"
)

// Relative span scores by match quality. Each is multiplied by the query
// node's boost.
const (
	phraseScore    = 2.0
	boundaryScore  = 1.5
	wildcardScore  = 1.3
	substringScore = 1.0
)

// Span is one highlighted region of a field, addressed by byte offsets into
// the original text.
type Span struct {
	Text  string
	Start int
	End   int
	Score float64
}

// FieldHighlights carries the spans found in one field together with the
// field's full text.
type FieldHighlights struct {
	Field string
	Text  string
	Spans []Span
}

// Options configures a Highlighter. Zero values fall back to the defaults:
// at most 3 spans per field, one 200 character snippet per field, and the
// mark tag.
type Options struct {
	MaxPerField   int
	MaxSnippets   int
	SnippetLength int
	Tag           string
}

// Highlighter finds and renders highlights for search results.
type Highlighter struct {
	maxPerField   int
	maxSnippets   int
	snippetLength int
	tag           string
}

// New returns a highlighter with opts applied over the defaults. A nil opts
// uses the defaults unchanged.
func New(opts *Options) *Highlighter {
	h := &Highlighter{maxPerField: 3, maxSnippets: 1, snippetLength: 200, tag: "mark"}
	if opts != nil {
		if opts.MaxPerField > 0 {
			h.maxPerField = opts.MaxPerField
		}
		if opts.MaxSnippets > 0 {
			h.maxSnippets = opts.MaxSnippets
		}
		if opts.SnippetLength > 0 {
			h.snippetLength = opts.SnippetLength
		}
		if opts.Tag != "" {
			h.tag = opts.Tag
		}
	}
	return h
}

// DefaultFields returns the fields highlighted when the caller does not name
// any.
func DefaultFields() []string {
	return []string{"title", "abstract", "author", "keywords", "note"}
}

// TermBoosts walks the query tree and collects the highlightable texts with
// their boosts: term and fuzzy words, phrase texts, and wildcard patterns,
// all lowercased. Range queries match numbers and contribute nothing.
func TermBoosts(q query.Query) map[string]float64 {
	terms := make(map[string]float64)
	collectTerms(q, terms)
	return terms
}

func collectTerms(q query.Query, terms map[string]float64) {
	switch node := q.(type) {
	case *query.Term:
		terms[strings.ToLower(node.Text)] = normalizeBoost(node.Boost)
	case *query.Phrase:
		terms[strings.ToLower(node.Text)] = normalizeBoost(node.Boost)
	case *query.Wildcard:
		terms[strings.ToLower(node.Pattern)] = normalizeBoost(node.Boost)
	case *query.Fuzzy:
		terms[strings.ToLower(node.Text)] = normalizeBoost(node.Boost)
	case *query.Field:
		collectTerms(node.Inner, terms)
	case *query.Boolean:
		for _, child := range node.Children {
			collectTerms(child, terms)
		}
	}
}

func normalizeBoost(boost float64) float64 {
	if boost == 0 {
		return 1.0
	}
	return boost
}

// Find returns the highlight spans of q in text, merged and capped at the
// per-field maximum, ordered by position.
func (h *Highlighter) Find(text string, q query.Query) []Span {
	if q == nil {
		return nil
	}
	return h.findSpans(text, TermBoosts(q))
}

// Entry finds highlight spans in the named entry fields. Fields without any
// span are absent from the result; a nil fields slice highlights the default
// fields.
func (h *Highlighter) Entry(entry *models.Entry, q query.Query, fields []string) map[string]FieldHighlights {
	if entry == nil || q == nil {
		return nil
	}
	if fields == nil {
		fields = DefaultFields()
	}
	terms := TermBoosts(q)
	result := make(map[string]FieldHighlights)
	for _, field := range fields {
		text := entry.Field(field)
		if text == "" {
			continue
		}
		spans := h.findSpans(text, terms)
		if len(spans) == 0 {
			continue
		}
		result[field] = FieldHighlights{Field: field, Text: text, Spans: spans}
	}
	return result
}

// Snippets renders up to the configured number of highlighted snippets per
// matching field, shaped for models.SearchMatch.Highlights.
func (h *Highlighter) Snippets(entry *models.Entry, q query.Query, fields []string) map[string][]string {
	found := h.Entry(entry, q, fields)
	if len(found) == 0 {
		return nil
	}
	snippets := make(map[string][]string, len(found))
	for field, fh := range found {
		snippets[field] = h.RenderSnippets(fh.Text, fh.Spans)
	}
	return snippets
}

func (h *Highlighter) findSpans(text string, terms map[string]float64) []Span {
	if text == "" || len(terms) == 0 {
		return nil
	}
	textLower := strings.ToLower(text)

	ordered := make([]string, 0, len(terms))
	for t := range terms {
		ordered = append(ordered, t)
	}
	sort.Strings(ordered)

	var spans []Span
	for _, term := range ordered {
		boost := terms[term]
		switch {
		case strings.TrimSpace(term) == "":
			continue
		case strings.ContainsAny(term, "*?"):
			spans = append(spans, wildcardSpans(text, term, boost)...)
		case strings.Contains(term, " "):
			spans = append(spans, phraseSpans(text, textLower, term, boost)...)
		default:
			spans = append(spans, termSpans(text, textLower, term, boost)...)
		}
	}

	spans = mergeSpans(text, spans)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	if len(spans) > h.maxPerField {
		spans = spans[:h.maxPerField]
	}
	return spans
}

// phraseSpans finds every occurrence of the lowercased phrase as a plain
// substring.
func phraseSpans(text, textLower, phrase string, boost float64) []Span {
	var spans []Span
	for start := 0; ; {
		i := strings.Index(textLower[start:], phrase)
		if i < 0 {
			break
		}
		pos := start + i
		end := pos + len(phrase)
		spans = append(spans, Span{
			Text:  text[pos:end],
			Start: pos,
			End:   end,
			Score: phraseScore * boost,
		})
		start = pos + 1
	}
	return spans
}

// termSpans prefers whole-word matches; only when the term never appears on
// a word boundary does it fall back to substring matches at a lower score.
func termSpans(text, textLower, term string, boost float64) []Span {
	var spans []Span
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	for _, loc := range re.FindAllStringIndex(textLower, -1) {
		spans = append(spans, Span{
			Text:  text[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
			Score: boundaryScore * boost,
		})
	}
	if len(spans) > 0 {
		return spans
	}
	for start := 0; ; {
		i := strings.Index(textLower[start:], term)
		if i < 0 {
			break
		}
		pos := start + i
		end := pos + len(term)
		spans = append(spans, Span{
			Text:  text[pos:end],
			Start: pos,
			End:   end,
			Score: substringScore * boost,
		})
		start = pos + 1
	}
	return spans
}

// wildcardSpans translates the pattern into a word-boundary regexp, with *
// standing for any run of word characters and ? for exactly one. Patterns
// that do not compile fall back to matching their literal prefix extended to
// the end of the word.
func wildcardSpans(text, pattern string, boost float64) []Span {
	expr := strings.NewReplacer("*", `\w*`, "?", `\w`).Replace(pattern)
	re, err := regexp.Compile(`(?i)\b` + expr + `\b`)
	if err != nil {
		return prefixSpans(text, pattern, boost)
	}
	var spans []Span
	for _, loc := range re.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{
			Text:  text[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
			Score: wildcardScore * boost,
		})
	}
	return spans
}

func prefixSpans(text, pattern string, boost float64) []Span {
	prefix := strings.TrimRight(pattern, "*?")
	if prefix == "" {
		return nil
	}
	textLower := strings.ToLower(text)
	var spans []Span
	for start := 0; ; {
		i := strings.Index(textLower[start:], prefix)
		if i < 0 {
			break
		}
		pos := start + i
		end := pos + len(prefix)
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(textLower[end:])
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			end += size
		}
		spans = append(spans, Span{
			Text:  text[pos:end],
			Start: pos,
			End:   end,
			Score: wildcardScore * boost,
		})
		start = pos + 1
	}
	return spans
}

// mergeSpans collapses overlapping or adjacent spans into one covering span
// that keeps the highest score.
func mergeSpans(text string, spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	merged := make([]Span, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start <= current.End {
			if next.End > current.End {
				current.End = next.End
			}
			if next.Score > current.Score {
				current.Score = next.Score
			}
			continue
		}
		current.Text = text[current.Start:current.End]
		merged = append(merged, current)
		current = next
	}
	current.Text = text[current.Start:current.End]
	merged = append(merged, current)
	return merged
}
