// Package query parses search query strings into typed query trees and
// expands them for better recall.
package query

import (
	"strconv"
	"strings"
)

// Operator joins the children of a Boolean query.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
)

// Query is one node of a parsed query tree. Trees are immutable: built once
// per query string, shared freely, and discarded when the request completes.
type Query interface {
	// String renders the node in query grammar form.
	String() string
	// Terms returns the searchable term texts beneath the node, in order.
	Terms() []string

	isQuery()
}

// Term matches a single word against all text fields.
type Term struct {
	Text  string
	Boost float64
}

// NewTerm creates a term query with the default boost.
func NewTerm(text string) *Term {
	return &Term{Text: text, Boost: 1.0}
}

func (q *Term) isQuery() {}

func (q *Term) String() string {
	return q.Text + boostSuffix(q.Boost)
}

func (q *Term) Terms() []string {
	return []string{q.Text}
}

// Phrase matches an exact word sequence.
type Phrase struct {
	Text  string
	Boost float64
}

// NewPhrase creates a phrase query with the default boost.
func NewPhrase(text string) *Phrase {
	return &Phrase{Text: text, Boost: 1.0}
}

func (q *Phrase) isQuery() {}

func (q *Phrase) String() string {
	return `"` + q.Text + `"` + boostSuffix(q.Boost)
}

func (q *Phrase) Terms() []string {
	return strings.Fields(q.Text)
}

// Field restricts its inner query to a single named field.
type Field struct {
	Name  string
	Inner Query
}

func (q *Field) isQuery() {}

func (q *Field) String() string {
	return q.Name + ":" + q.Inner.String()
}

func (q *Field) Terms() []string {
	return q.Inner.Terms()
}

// Boolean combines child queries with AND, OR, or NOT. A NOT node negates
// its children; inside an AND group it acts as an exclusion filter.
type Boolean struct {
	Op       Operator
	Children []Query
}

func (q *Boolean) isQuery() {}

func (q *Boolean) String() string {
	if len(q.Children) == 0 {
		return ""
	}
	parts := make([]string, len(q.Children))
	for i, child := range q.Children {
		parts[i] = child.String()
	}
	if q.Op == OpNot {
		if len(parts) == 2 {
			return parts[0] + " NOT " + parts[1]
		}
		return "NOT " + parts[0]
	}
	return "(" + strings.Join(parts, " "+string(q.Op)+" ") + ")"
}

func (q *Boolean) Terms() []string {
	var terms []string
	for _, child := range q.Children {
		terms = append(terms, child.Terms()...)
	}
	return terms
}

// Wildcard matches whole tokens against a pattern where * stands for any
// run of word characters and ? for exactly one.
type Wildcard struct {
	Pattern string
	Boost   float64
}

// NewWildcard creates a wildcard query with the default boost.
func NewWildcard(pattern string) *Wildcard {
	return &Wildcard{Pattern: pattern, Boost: 1.0}
}

func (q *Wildcard) isQuery() {}

func (q *Wildcard) String() string {
	return q.Pattern + boostSuffix(q.Boost)
}

// Terms returns the literal fragments of the pattern with wildcards removed.
func (q *Wildcard) Terms() []string {
	fragments := strings.FieldsFunc(q.Pattern, func(r rune) bool {
		return r == '*' || r == '?'
	})
	return fragments
}

// Fuzzy matches words within a bounded edit distance of the term.
type Fuzzy struct {
	Text     string
	MaxEdits int
	Boost    float64
}

// NewFuzzy creates a fuzzy query with the default edit distance of 2.
func NewFuzzy(text string) *Fuzzy {
	return &Fuzzy{Text: text, MaxEdits: 2, Boost: 1.0}
}

func (q *Fuzzy) isQuery() {}

func (q *Fuzzy) String() string {
	s := q.Text + "~"
	if q.MaxEdits != 2 {
		s += strconv.Itoa(q.MaxEdits)
	}
	return s + boostSuffix(q.Boost)
}

func (q *Fuzzy) Terms() []string {
	return []string{q.Text}
}

// Range matches numeric field values between two bounds. A nil bound leaves
// that end open.
type Range struct {
	Field       string
	Low         *float64
	High        *float64
	IncludeLow  bool
	IncludeHigh bool
}

func (q *Range) isQuery() {}

func (q *Range) String() string {
	switch {
	case q.Low != nil && q.High != nil:
		return q.Field + ":" + formatBound(*q.Low) + ".." + formatBound(*q.High)
	case q.Low != nil:
		op := ">"
		if q.IncludeLow {
			op = ">="
		}
		return q.Field + ":" + op + formatBound(*q.Low)
	case q.High != nil:
		op := "<"
		if q.IncludeHigh {
			op = "<="
		}
		return q.Field + ":" + op + formatBound(*q.High)
	default:
		return q.Field + ":*"
	}
}

func (q *Range) Terms() []string {
	var terms []string
	if q.Low != nil {
		terms = append(terms, formatBound(*q.Low))
	}
	if q.High != nil {
		terms = append(terms, formatBound(*q.High))
	}
	return terms
}

// Contains reports whether a value falls inside the range.
func (q *Range) Contains(v float64) bool {
	if q.Low != nil {
		if q.IncludeLow {
			if v < *q.Low {
				return false
			}
		} else if v <= *q.Low {
			return false
		}
	}
	if q.High != nil {
		if q.IncludeHigh {
			if v > *q.High {
				return false
			}
		} else if v >= *q.High {
			return false
		}
	}
	return true
}

func boostSuffix(boost float64) string {
	if boost == 1.0 || boost == 0 {
		return ""
	}
	return "^" + strconv.FormatFloat(boost, 'g', -1, 64)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
