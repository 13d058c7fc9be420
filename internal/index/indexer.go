package index

import (
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/bunken/internal/analysis"
	"github.com/hyperjump/bunken/internal/models"
)

// searchTextFields are concatenated, in order, into the search_text field
// that unfielded queries run against.
var searchTextFields = []string{"title", "author", "abstract", "keywords", "journal", "booktitle", "note"}

// EntryIndexer converts bibliography entries into indexable documents.
type EntryIndexer struct {
	schema    *analysis.Schema
	analyzers *analysis.Manager
}

// NewEntryIndexer creates an indexer. Nil arguments fall back to the default
// schema and analyzer set.
func NewEntryIndexer(schema *analysis.Schema, analyzers *analysis.Manager) *EntryIndexer {
	if schema == nil {
		schema = analysis.NewSchema()
	}
	if analyzers == nil {
		analyzers = analysis.NewManager()
	}
	return &EntryIndexer{schema: schema, analyzers: analyzers}
}

// Index converts one entry into a Document. A failure indexes nothing of the
// entry and returns an *Error carrying the entry key.
func (ix *EntryIndexer) Index(entry *models.Entry) (*Document, error) {
	if entry == nil {
		return nil, &Error{Msg: "nil entry"}
	}
	if strings.TrimSpace(entry.Key) == "" {
		return nil, &Error{Msg: "empty entry key"}
	}

	now := time.Now()
	doc := &Document{
		Key:       entry.Key,
		Type:      strings.ToLower(entry.Type),
		Tokens:    make(map[string][]string),
		Stored:    make(map[string]string),
		Numeric:   make(map[string]float64),
		Dates:     make(map[string]time.Time),
		IndexedAt: now,
	}

	for field, value := range entry.Fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		def, known := ix.schema.Field(field)
		if known && !def.Indexed {
			if def.Stored {
				doc.Stored[field] = value
			}
			continue
		}
		if !known || def.Stored {
			doc.Stored[field] = value
		}
		if tokens := ix.analyzers.AnalyzeField(field, value); len(tokens) > 0 {
			doc.Tokens[field] = tokens
		}
	}

	if doc.Type != "" {
		doc.Tokens["entry_type"] = []string{doc.Type}
	}
	ix.addNameLists(doc, entry)

	var searchText []string
	for _, field := range searchTextFields {
		if v := entry.Field(field); strings.TrimSpace(v) != "" {
			searchText = append(searchText, v)
		}
	}
	if len(searchText) > 0 {
		joined := strings.Join(searchText, " ")
		if tokens := ix.analyzers.AnalyzeField("search_text", joined); len(tokens) > 0 {
			doc.Tokens["search_text"] = tokens
		}
	}

	if err := ix.addNumericFields(doc, entry); err != nil {
		return nil, err
	}
	ix.addDates(doc, entry, now)

	return doc, nil
}

// addNameLists stores the split author and editor names so results can show
// individual people without re-parsing the BibTeX " and " separators.
func (ix *EntryIndexer) addNameLists(doc *Document, entry *models.Entry) {
	if list := nameList(entry.Field("author")); list != "" {
		doc.Stored["author_list"] = list
	}
	if list := nameList(entry.Field("editor")); list != "" {
		doc.Stored["editor_list"] = list
	}
}

// nameList splits a BibTeX name field on " and " and rejoins the trimmed
// names with "; ", which never appears inside a single name.
func nameList(raw string) string {
	var names []string
	for _, p := range strings.Split(raw, " and ") {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return strings.Join(names, "; ")
}

// addNumericFields parses the schema's numeric fields. Values like "12-15"
// contribute their leading integer. A year that holds no integer at all
// fails the entry; other numeric fields are skipped silently.
func (ix *EntryIndexer) addNumericFields(doc *Document, entry *models.Entry) error {
	for _, field := range ix.schema.NumericFields() {
		raw := strings.TrimSpace(entry.Field(field))
		if raw == "" {
			continue
		}
		v, ok := leadingInt(raw)
		if !ok {
			if field == "year" {
				return &Error{Key: entry.Key, Msg: "year " + strconv.Quote(raw) + " is not numeric"}
			}
			continue
		}
		doc.Numeric[field] = v
	}
	return nil
}

func (ix *EntryIndexer) addDates(doc *Document, entry *models.Entry, now time.Time) {
	added := entry.AddedAt
	if added.IsZero() {
		added = now
	}
	doc.Dates["added"] = added

	modified := entry.UpdatedAt
	if modified.IsZero() {
		modified = added
	}
	doc.Dates["modified"] = modified
}

// Validate checks a built document for the invariants the index relies on.
func (ix *EntryIndexer) Validate(doc *Document) error {
	if doc == nil {
		return &Error{Msg: "nil document"}
	}
	if strings.TrimSpace(doc.Key) == "" {
		return &Error{Msg: "document has empty key"}
	}
	if doc.Type == "" {
		return &Error{Key: doc.Key, Msg: "document has no entry type"}
	}
	return nil
}

// leadingInt parses the integer prefix of values like "2020" or "2020-06".
func leadingInt(raw string) (float64, bool) {
	head, _, _ := strings.Cut(raw, "-")
	v, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, false
	}
	return float64(v), true
}
