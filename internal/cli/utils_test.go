package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/hyperjump/bunken/internal/models"
)

func sampleResults() *models.SearchResultCollection {
	entry := &models.Entry{
		Key:  "lamport1998",
		Type: "article",
		Fields: map[string]string{
			"title":   "The Part-Time Parliament",
			"author":  "Leslie Lamport",
			"journal": "ACM Transactions on Computer Systems",
			"year":    "1998",
		},
	}
	matches := []models.SearchMatch{
		{
			EntryKey: "lamport1998",
			Score:    87.5,
			Entry:    entry,
			Highlights: map[string][]string{
				"title": {"The Part-Time <mark>Parliament</mark>"},
			},
		},
	}
	c := models.NewCollection("parliament", matches, 1, 0, 20)
	c.Statistics = models.SearchStatistics{
		TotalResults: 1,
		SearchTimeMS: 12,
		BackendName:  "memory",
	}
	c.Facets = []models.Facet{
		{
			Field:       "entry_type",
			DisplayName: "Entry Type",
			Kind:        models.FacetTerms,
			Values: []models.FacetValue{
				{Value: "article", Count: 1, Selected: true},
			},
		},
	}
	c.Suggestions = []models.SearchSuggestion{
		{Suggestion: "parliaments", Kind: models.SuggestionSpelling, Confidence: 0.8},
	}
	return c
}

func TestWriteSearchResults_JSON(t *testing.T) {
	results := sampleResults()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, results, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}

	var decoded models.SearchResultCollection
	if err := json.NewDecoder(strings.NewReader(buf.String())).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != results.Query || decoded.Total != results.Total {
		t.Errorf("decoded query=%q total=%d, want query=%q total=%d",
			decoded.Query, decoded.Total, results.Query, results.Total)
	}
	if len(decoded.Matches) != 1 || decoded.Matches[0].EntryKey != "lamport1998" {
		t.Errorf("decoded matches: want one match with key lamport1998, got %+v", decoded.Matches)
	}
}

func TestWriteSearchResults_JSON_empty(t *testing.T) {
	results := models.NewEmptyCollection("nothing", 20, "memory")
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, results, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResultCollection
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("empty collection JSON decode: %v", err)
	}
	if decoded.Total != 0 || len(decoded.Matches) != 0 {
		t.Errorf("expected empty collection, got total=%d matches=%d", decoded.Total, len(decoded.Matches))
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	results := sampleResults()
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, results, OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Found 1 results",
		"12ms",
		"The Part-Time Parliament",
		"[lamport1998]",
		"score 87.5",
		"Leslie Lamport, ACM Transactions on Computer Systems, 1998",
		"title: The Part-Time <mark>Parliament</mark>",
		"Entry Type:",
		"* article (1)",
		"Suggestions:",
		"parliaments (spelling)",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_text_abstractFallback(t *testing.T) {
	entry := &models.Entry{
		Key:  "noHl",
		Type: "article",
		Fields: map[string]string{
			"title":    "Untagged",
			"abstract": "An abstract shown when no highlight exists.",
		},
	}
	matches := []models.SearchMatch{{EntryKey: "noHl", Score: 1, Entry: entry}}
	results := models.NewCollection("q", matches, 1, 0, 20)

	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, results, OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	if !strings.Contains(buf.String(), "An abstract shown when no highlight exists.") {
		t.Errorf("expected abstract fallback in output:\n%s", buf.String())
	}
}

func TestWriteSearchResults_unknownFormatTreatedAsText(t *testing.T) {
	results := models.NewEmptyCollection("x", 20, "memory")
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, results, SearchOutputFormat("unknown")); err != nil {
		t.Fatalf("WriteSearchResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Found") {
		t.Errorf("unknown format should fall back to text; got %q", buf.String())
	}
}

func TestEntryByline(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   string
	}{
		{"journal article", map[string]string{"author": "A. Author", "journal": "J. Test", "year": "2020"}, "A. Author, J. Test, 2020"},
		{"booktitle fallback", map[string]string{"author": "B", "booktitle": "Proc. Conf"}, "B, Proc. Conf"},
		{"publisher fallback", map[string]string{"publisher": "Pub House", "year": "1999"}, "Pub House, 1999"},
		{"all blank", map[string]string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &models.Entry{Key: "k", Fields: tt.fields}
			if got := entryByline(entry); got != tt.want {
				t.Errorf("entryByline() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hi", 5, "hi"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"maxLen zero", "ab", 0, "ab"},
		{"maxLen negative", "ab", -1, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
		{"single long", "word", 1, "word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWords(tt.s, tt.maxWords)
			if got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}

func TestPrintSearchResults(t *testing.T) {
	results := models.NewEmptyCollection("print test", 20, "memory")
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
		_ = w.Close()
	}()
	PrintSearchResults(results)
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("PrintSearchResults should write to stdout; got %q", buf.String())
	}
}
