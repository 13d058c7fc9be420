package analysis

import "sort"

// FieldType classifies how a field's value is indexed and queried.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldKeyword FieldType = "keyword"
	FieldNumeric FieldType = "numeric"
	FieldDate    FieldType = "date"
	FieldStored  FieldType = "stored"
)

// FieldDefinition describes one indexable field of a bibliography entry.
type FieldDefinition struct {
	Name     string
	Type     FieldType
	Indexed  bool
	Stored   bool
	Analyzed bool
	Boost    float64
	// Analyzer overrides the analyzer chosen by the Manager's field mapping.
	// Empty means use the mapping.
	Analyzer string
}

// defaultFields is the built-in schema for BibTeX-style entries. The boosts
// here are index-time boosts consumed by the Bleve mapping; rank-time field
// weights live in the ranking package.
var defaultFields = []FieldDefinition{
	{Name: "title", Type: FieldText, Indexed: true, Stored: true, Analyzed: true, Boost: 2.0},
	{Name: "abstract", Type: FieldText, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "author", Type: FieldText, Indexed: true, Stored: true, Analyzed: true, Boost: 1.5},
	{Name: "editor", Type: FieldText, Indexed: true, Stored: true, Analyzed: true, Boost: 1.2},
	{Name: "note", Type: FieldText, Indexed: true, Stored: true, Analyzed: true, Boost: 0.5},
	{Name: "keywords", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 1.2},
	{Name: "tags", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},

	{Name: "journal", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "booktitle", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "publisher", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 0.8},
	{Name: "series", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 0.8},
	{Name: "school", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 0.8},
	{Name: "institution", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 0.8},
	{Name: "organization", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 0.8},

	{Name: "entry_type", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "key", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: false, Boost: 1.0},
	{Name: "doi", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: false, Boost: 1.0},
	{Name: "isbn", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: false, Boost: 1.0},
	{Name: "issn", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: false, Boost: 1.0},
	{Name: "url", Type: FieldKeyword, Indexed: true, Stored: true, Analyzed: false, Boost: 1.0},

	{Name: "year", Type: FieldNumeric, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "volume", Type: FieldNumeric, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "number", Type: FieldNumeric, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "chapter", Type: FieldNumeric, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},

	{Name: "added", Type: FieldDate, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},
	{Name: "modified", Type: FieldDate, Indexed: true, Stored: true, Analyzed: true, Boost: 1.0},

	// content holds extracted attachment text; search_text is the combined
	// free-text blob used for unfielded queries. Neither is returned in
	// results, so they are indexed but not stored.
	{Name: "content", Type: FieldText, Indexed: true, Stored: false, Analyzed: true, Boost: 0.8},
	{Name: "search_text", Type: FieldText, Indexed: true, Stored: false, Analyzed: true, Boost: 1.0},

	{Name: "author_list", Type: FieldStored, Indexed: false, Stored: true, Analyzed: false, Boost: 1.0},
	{Name: "editor_list", Type: FieldStored, Indexed: false, Stored: true, Analyzed: false, Boost: 1.0},
}

// Schema holds the field definitions shared by the indexer, backends, and
// facet engine.
type Schema struct {
	fields map[string]FieldDefinition
}

// NewSchema returns a schema with the built-in field definitions.
func NewSchema() *Schema {
	s := &Schema{fields: make(map[string]FieldDefinition, len(defaultFields))}
	for _, def := range defaultFields {
		s.fields[def.Name] = def
	}
	return s
}

// Field returns the definition for name.
func (s *Schema) Field(name string) (FieldDefinition, bool) {
	def, ok := s.fields[name]
	return def, ok
}

// Define adds or replaces a field definition. A zero boost is normalized
// to 1.0 so partially filled custom definitions behave sensibly.
func (s *Schema) Define(def FieldDefinition) {
	if def.Boost == 0 {
		def.Boost = 1.0
	}
	s.fields[def.Name] = def
}

// Boost returns the index-time boost for name, 1.0 for unknown fields.
func (s *Schema) Boost(name string) float64 {
	if def, ok := s.fields[name]; ok {
		return def.Boost
	}
	return 1.0
}

// ShouldAnalyze reports whether the field's value goes through an analyzer.
// Unknown fields are analyzed like free text.
func (s *Schema) ShouldAnalyze(name string) bool {
	if def, ok := s.fields[name]; ok {
		return def.Analyzed
	}
	return true
}

// SearchableFields returns the fields that term and phrase queries can target.
func (s *Schema) SearchableFields() []string {
	return s.selectFields(func(def FieldDefinition) bool {
		return def.Indexed && (def.Type == FieldText || def.Type == FieldKeyword)
	})
}

// FacetFields returns the fields suitable for faceted aggregation.
func (s *Schema) FacetFields() []string {
	return s.selectFields(func(def FieldDefinition) bool {
		return def.Indexed && def.Type == FieldKeyword
	})
}

// NumericFields returns the fields that support range queries.
func (s *Schema) NumericFields() []string {
	return s.selectFields(func(def FieldDefinition) bool {
		return def.Indexed && def.Type == FieldNumeric
	})
}

// DateFields returns the fields holding entry timestamps.
func (s *Schema) DateFields() []string {
	return s.selectFields(func(def FieldDefinition) bool {
		return def.Indexed && def.Type == FieldDate
	})
}

func (s *Schema) selectFields(keep func(FieldDefinition) bool) []string {
	names := make([]string, 0, len(s.fields))
	for name, def := range s.fields {
		if keep(def) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
