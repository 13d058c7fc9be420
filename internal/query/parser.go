package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Error reports a query string the parser rejected.
type Error struct {
	Query string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Msg)
}

// Parser turns query strings into Query trees. A Parser is stateless and
// safe for concurrent use; the zero value is ready to use.
//
// Grammar: a query is a sequence of clauses. Adjacent clauses are joined by
// an implicit AND; an explicit OR joins the surrounding AND groups and binds
// looser than AND; NOT negates the clause that follows it. A clause is a
// bare word, a "quoted phrase", a field:value restriction, a trailing-*/?
// wildcard, a word~ or word~N fuzzy term, or a numeric range written
// field:a..b, field:>=a, field:<=b, field:>a, or field:<b. Any clause may
// carry a ^boost suffix.
type Parser struct{}

// NewParser creates a query parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse builds the query tree for a query string. The same string always
// yields an identical tree. It returns an *Error for an empty query, an
// unmatched quote, a non-numeric range bound, or a query with no
// searchable clauses.
func (p *Parser) Parse(queryStr string) (Query, error) {
	trimmed := strings.TrimSpace(queryStr)
	if trimmed == "" {
		return nil, &Error{Query: queryStr, Msg: "query cannot be empty"}
	}

	tokens, err := tokenize(queryStr, trimmed)
	if err != nil {
		return nil, err
	}
	return p.parseTokens(queryStr, tokens)
}

// tokenize splits a query into whitespace-separated tokens, keeping quoted
// sections (including field:"..." forms) together as single tokens.
func tokenize(queryStr, trimmed string) ([]string, error) {
	var tokens []string
	runes := []rune(trimmed)

	for i := 0; i < len(runes); {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		start := i
		inQuote := false
		for i < len(runes) {
			if runes[i] == '"' {
				inQuote = !inQuote
			} else if unicode.IsSpace(runes[i]) && !inQuote {
				break
			}
			i++
		}
		if inQuote {
			return nil, &Error{Query: queryStr, Msg: "unmatched quote"}
		}
		tokens = append(tokens, string(runes[start:i]))
	}
	return tokens, nil
}

// parseTokens assembles clauses into AND groups joined by OR.
func (p *Parser) parseTokens(queryStr string, tokens []string) (Query, error) {
	var orGroups []Query
	var andGroup []Query
	negateNext := false

	flushAnd := func() {
		switch len(andGroup) {
		case 0:
		case 1:
			orGroups = append(orGroups, andGroup[0])
		default:
			orGroups = append(orGroups, &Boolean{Op: OpAnd, Children: andGroup})
		}
		andGroup = nil
	}

	for _, tok := range tokens {
		switch strings.ToUpper(tok) {
		case "AND":
			// Adjacent clauses are AND-joined already.
			continue
		case "OR":
			flushAnd()
			continue
		case "NOT":
			negateNext = true
			continue
		}

		clause, err := p.parseClause(queryStr, tok)
		if err != nil {
			return nil, err
		}
		if negateNext {
			clause = &Boolean{Op: OpNot, Children: []Query{clause}}
			negateNext = false
		}
		andGroup = append(andGroup, clause)
	}
	flushAnd()

	switch len(orGroups) {
	case 0:
		return nil, &Error{Query: queryStr, Msg: "query has no searchable clauses"}
	case 1:
		return orGroups[0], nil
	default:
		return &Boolean{Op: OpOr, Children: orGroups}, nil
	}
}

// urlSchemes are colon-bearing prefixes that must not be mistaken for
// field restrictions.
var urlSchemes = map[string]struct{}{
	"http":   {},
	"https":  {},
	"ftp":    {},
	"ftps":   {},
	"file":   {},
	"mailto": {},
}

func (p *Parser) parseClause(queryStr, tok string) (Query, error) {
	if strings.HasPrefix(tok, `"`) {
		return parsePhrase(tok), nil
	}

	if idx := strings.Index(tok, ":"); idx > 0 {
		name := strings.ToLower(tok[:idx])
		value := tok[idx+1:]
		if _, isScheme := urlSchemes[name]; !isScheme && value != "" && isFieldName(name) {
			return p.parseFieldValue(queryStr, name, value)
		}
	}

	return parseSimpleClause(tok), nil
}

// parseFieldValue parses the value side of a field:value clause, which may
// be a range, phrase, wildcard, fuzzy term, plain term, or a further
// field restriction.
func (p *Parser) parseFieldValue(queryStr, name, value string) (Query, error) {
	if rq, ok, err := parseRange(queryStr, name, value); ok {
		return rq, err
	}

	inner, err := p.parseClause(queryStr, value)
	if err != nil {
		return nil, err
	}
	return &Field{Name: name, Inner: inner}, nil
}

// parseRange recognizes field:a..b and the field:>=a comparison forms.
// ok reports whether the value used range syntax at all; when it did,
// non-numeric bounds are an error rather than a fallback to term parsing.
func parseRange(queryStr, name, value string) (*Range, bool, error) {
	if low, high, found := strings.Cut(value, ".."); found {
		lo, err := parseBound(queryStr, low)
		if err != nil {
			return nil, true, err
		}
		hi, err := parseBound(queryStr, high)
		if err != nil {
			return nil, true, err
		}
		return &Range{Field: name, Low: lo, High: hi, IncludeLow: true, IncludeHigh: true}, true, nil
	}

	type comparison struct {
		prefix  string
		isLow   bool
		include bool
	}
	// Two-character operators must be tried before their one-character prefixes.
	for _, cmp := range []comparison{
		{">=", true, true},
		{"<=", false, true},
		{">", true, false},
		{"<", false, false},
	} {
		if !strings.HasPrefix(value, cmp.prefix) {
			continue
		}
		bound, err := parseBound(queryStr, value[len(cmp.prefix):])
		if err != nil {
			return nil, true, err
		}
		rq := &Range{Field: name}
		if cmp.isLow {
			rq.Low = bound
			rq.IncludeLow = cmp.include
		} else {
			rq.High = bound
			rq.IncludeHigh = cmp.include
		}
		return rq, true, nil
	}

	return nil, false, nil
}

func parseBound(queryStr, s string) (*float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, &Error{Query: queryStr, Msg: fmt.Sprintf("non-numeric range bound %q", s)}
	}
	return &v, nil
}

// parseSimpleClause handles the leaf forms that need no field context:
// phrase, fuzzy, wildcard, and plain term.
func parseSimpleClause(tok string) Query {
	if strings.HasPrefix(tok, `"`) {
		return parsePhrase(tok)
	}

	text, boost := splitBoost(tok)

	if base, edits, ok := splitFuzzy(text); ok {
		return &Fuzzy{Text: strings.ToLower(base), MaxEdits: edits, Boost: boost}
	}
	if strings.ContainsAny(text, "*?") {
		return &Wildcard{Pattern: strings.ToLower(text), Boost: boost}
	}
	return &Term{Text: strings.ToLower(text), Boost: boost}
}

func parsePhrase(tok string) *Phrase {
	inner := tok[1:]
	boost := 1.0
	if end := strings.Index(inner, `"`); end >= 0 {
		suffix := inner[end+1:]
		inner = inner[:end]
		if strings.HasPrefix(suffix, "^") {
			if b, err := strconv.ParseFloat(suffix[1:], 64); err == nil && b > 0 {
				boost = b
			}
		}
	}
	return &Phrase{Text: strings.ToLower(inner), Boost: boost}
}

// splitBoost strips a trailing ^N boost suffix, returning the remaining
// text and the boost (1.0 when absent or malformed).
func splitBoost(tok string) (string, float64) {
	idx := strings.LastIndex(tok, "^")
	if idx <= 0 {
		return tok, 1.0
	}
	boost, err := strconv.ParseFloat(tok[idx+1:], 64)
	if err != nil || boost <= 0 {
		return tok, 1.0
	}
	return tok[:idx], boost
}

// splitFuzzy strips a trailing ~ or ~N fuzzy suffix. The default edit
// distance is 2.
func splitFuzzy(tok string) (string, int, bool) {
	idx := strings.LastIndex(tok, "~")
	if idx <= 0 {
		return tok, 0, false
	}
	base, suffix := tok[:idx], tok[idx+1:]
	if suffix == "" {
		return base, 2, true
	}
	edits, err := strconv.Atoi(suffix)
	if err != nil || edits < 0 {
		return tok, 0, false
	}
	return base, edits, true
}

// isFieldName reports whether a colon prefix looks like a field name
// rather than arbitrary text.
func isFieldName(name string) bool {
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return name != ""
}
