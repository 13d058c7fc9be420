package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/bunken/internal/analysis"
	"github.com/hyperjump/bunken/internal/index"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/query"
	"github.com/hyperjump/bunken/internal/ranking"
)

// BleveBackend implements Backend over an in-memory Bleve index. It exists
// as the pluggable alternative to MemoryBackend; the document mapping is
// derived from the shared field schema.
type BleveBackend struct {
	mu        sync.RWMutex
	idx       bleve.Index
	schema    *analysis.Schema
	analyzers *analysis.Manager
	indexer   *index.EntryIndexer
}

// NewBleveBackend creates a memory-only Bleve backend. A nil schema selects
// the default field schema.
func NewBleveBackend(schema *analysis.Schema) (*BleveBackend, error) {
	if schema == nil {
		schema = analysis.NewSchema()
	}
	analyzers := analysis.NewManager()
	idx, err := bleve.NewMemOnly(buildMapping(schema, analyzers))
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &BleveBackend{
		idx:       idx,
		schema:    schema,
		analyzers: analyzers,
		indexer:   index.NewEntryIndexer(schema, analyzers),
	}, nil
}

// buildMapping derives the Bleve document mapping from the field schema.
// Tokenized fields use Bleve's standard analyzer (lowercase + tokenize, no
// stemming); keyword fields index a single exact token.
func buildMapping(schema *analysis.Schema, analyzers *analysis.Manager) mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	for _, name := range schema.SearchableFields() {
		fm := bleve.NewTextFieldMapping()
		if analyzers.AnalyzerNameFor(name) == analysis.AnalyzerKeyword {
			fm.Analyzer = keyword.Name
		} else {
			fm.Analyzer = standard.Name
		}
		docMapping.AddFieldMappingsAt(name, fm)
	}
	for _, name := range schema.NumericFields() {
		docMapping.AddFieldMappingsAt(name, bleve.NewNumericFieldMapping())
	}

	im.AddDocumentMapping("entry", docMapping)
	im.DefaultType = "entry"
	im.DefaultMapping = docMapping
	return im
}

// current returns the live index handle. Queries keep using the handle
// they grabbed even while Reindex swaps in a replacement.
func (b *BleveBackend) current() bleve.Index {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idx
}

// Name returns "bleve".
func (b *BleveBackend) Name() string { return "bleve" }

// bleveDocument flattens an entry into the map Bleve indexes: raw text for
// searchable fields, parsed numbers for numeric fields, plus the combined
// search_text blob.
func (b *BleveBackend) bleveDocument(entry *models.Entry, doc *index.Document) map[string]any {
	m := make(map[string]any)
	for _, name := range b.schema.SearchableFields() {
		if name == "entry_type" || name == "search_text" || name == "content" {
			continue
		}
		v := entry.Field(name)
		if v == "" {
			continue
		}
		// Keyword fields carry a single exact token; lowercase it here so
		// they match case-insensitively like the tokenized fields.
		if b.analyzers.AnalyzerNameFor(name) == analysis.AnalyzerKeyword {
			v = strings.ToLower(v)
		}
		m[name] = v
	}
	m["entry_type"] = strings.ToLower(entry.Type)
	for name, v := range doc.Numeric {
		m[name] = v
	}

	var parts []string
	for _, name := range defaultQueryFields {
		if v := entry.Field(name); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		m["search_text"] = strings.Join(parts, " ")
	}
	return m
}

// Index adds or replaces one entry. The entry passes through the shared
// indexer first so schema violations surface as the same *IndexError the
// memory backend reports.
func (b *BleveBackend) Index(ctx context.Context, entry *models.Entry) error {
	doc, err := b.indexer.Index(entry)
	if err != nil {
		return err
	}
	if err := b.current().Index(entry.Key, b.bleveDocument(entry, doc)); err != nil {
		return &IndexError{Key: entry.Key, Msg: "bleve index failed", Err: err}
	}
	return nil
}

// IndexBatch adds entries through one Bleve batch, continuing past
// per-entry failures.
func (b *BleveBackend) IndexBatch(ctx context.Context, entries []*models.Entry) (*index.Report, error) {
	return b.indexInto(ctx, b.current(), entries)
}

// Reindex rebuilds the index from entries off to the side and swaps it in.
// The previous index stays open for queries already holding it and is
// reclaimed by the garbage collector.
func (b *BleveBackend) Reindex(ctx context.Context, entries []*models.Entry) (*index.Report, error) {
	fresh, err := bleve.NewMemOnly(buildMapping(b.schema, b.analyzers))
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	report, err := b.indexInto(ctx, fresh, entries)
	if err != nil {
		fresh.Close()
		return report, err
	}
	b.mu.Lock()
	b.idx = fresh
	b.mu.Unlock()
	return report, nil
}

func (b *BleveBackend) indexInto(ctx context.Context, idx bleve.Index, entries []*models.Entry) (*index.Report, error) {
	report := &index.Report{Failed: make(map[string]error)}
	batch := idx.NewBatch()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		doc, err := b.indexer.Index(entry)
		if err != nil {
			key := ""
			if entry != nil {
				key = entry.Key
			}
			report.Failed[key] = err
			continue
		}
		if err := batch.Index(entry.Key, b.bleveDocument(entry, doc)); err != nil {
			report.Failed[entry.Key] = err
			continue
		}
		report.Processed++
	}

	if err := idx.Batch(batch); err != nil {
		return report, fmt.Errorf("bleve batch failed: %w", err)
	}
	return report, nil
}

// Delete removes an entry and reports whether it was present.
func (b *BleveBackend) Delete(ctx context.Context, key string) (bool, error) {
	idx := b.current()
	doc, err := idx.Document(key)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	if err := idx.Delete(key); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every entry. Bleve has no truncate, so documents are
// deleted through a batch.
func (b *BleveBackend) Clear(ctx context.Context) error {
	idx := b.current()
	count, err := idx.DocCount()
	if err != nil {
		return err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	results, err := idx.Search(req)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, hit := range results.Hits {
		batch.Delete(hit.ID)
	}
	return idx.Batch(batch)
}

// Query translates the parsed query into Bleve's query types and executes
// it.
func (b *BleveBackend) Query(ctx context.Context, q query.Query, opts Options) (*Result, error) {
	if q == nil {
		return nil, &Error{Op: "query", Err: fmt.Errorf("nil query")}
	}
	start := time.Now()
	idx := b.current()

	bq, err := b.translate(q, "")
	if err != nil {
		return nil, err
	}

	size := opts.Limit
	if size <= 0 {
		count, err := idx.DocCount()
		if err != nil {
			return nil, &Error{Op: "query", Err: err}
		}
		size = int(count)
	}

	req := bleve.NewSearchRequest(bq)
	req.Size = size
	results, err := idx.Search(req)
	if err != nil {
		return nil, &Error{Op: "query", Err: err}
	}

	matches := make([]models.SearchMatch, 0, len(results.Hits))
	for _, hit := range results.Hits {
		if hit.Score < opts.MinScore {
			continue
		}
		matches = append(matches, models.NewSearchMatch(hit.ID, hit.Score))
	}
	return &Result{
		Matches: matches,
		Total:   int(results.Total),
		TookMS:  time.Since(start).Milliseconds(),
	}, nil
}

// translate converts one query tree node. A non-empty field restricts the
// node to that field.
func (b *BleveBackend) translate(q query.Query, field string) (blevequery.Query, error) {
	switch node := q.(type) {
	case *query.Term:
		mq := bleve.NewMatchQuery(node.Text)
		mq.SetBoost(normBoost(node.Boost))
		if field != "" {
			mq.SetField(field)
		}
		return mq, nil

	case *query.Phrase:
		pq := bleve.NewMatchPhraseQuery(node.Text)
		pq.SetBoost(normBoost(node.Boost))
		if field != "" {
			pq.SetField(field)
		}
		return pq, nil

	case *query.Wildcard:
		wq := bleve.NewWildcardQuery(strings.ToLower(node.Pattern))
		wq.SetBoost(normBoost(node.Boost))
		if field != "" {
			wq.SetField(field)
		}
		return wq, nil

	case *query.Fuzzy:
		fq := bleve.NewFuzzyQuery(strings.ToLower(node.Text))
		fq.SetFuzziness(node.MaxEdits)
		fq.SetBoost(normBoost(node.Boost))
		if field != "" {
			fq.SetField(field)
		}
		return fq, nil

	case *query.Range:
		incLow, incHigh := node.IncludeLow, node.IncludeHigh
		rq := bleve.NewNumericRangeInclusiveQuery(node.Low, node.High, &incLow, &incHigh)
		rq.SetField(node.Field)
		return rq, nil

	case *query.Field:
		return b.translate(node.Inner, node.Name)

	case *query.Boolean:
		children := make([]blevequery.Query, 0, len(node.Children))
		for _, child := range node.Children {
			translated, err := b.translate(child, field)
			if err != nil {
				return nil, err
			}
			children = append(children, translated)
		}
		switch node.Op {
		case query.OpAnd:
			return bleve.NewConjunctionQuery(children...), nil
		case query.OpOr:
			return bleve.NewDisjunctionQuery(children...), nil
		case query.OpNot:
			boolean := bleve.NewBooleanQuery()
			if len(children) == 1 {
				boolean.AddMust(bleve.NewMatchAllQuery())
				boolean.AddMustNot(children[0])
			} else {
				boolean.AddMust(children[0])
				boolean.AddMustNot(children[1:]...)
			}
			return boolean, nil
		}
		return nil, &Error{Op: "query", Err: fmt.Errorf("unsupported boolean operator %q", node.Op)}
	}
	return nil, &Error{Op: "query", Err: fmt.Errorf("unsupported query node %T", q)}
}

// RankingContext estimates collection statistics by querying per-term
// document frequencies.
func (b *BleveBackend) RankingContext(ctx context.Context, terms []string) (*ranking.Context, error) {
	count, err := b.current().DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get doc count: %w", err)
	}

	rctx := ranking.NewContext()
	rctx.TotalDocs = int(count)
	for _, term := range terms {
		freq, err := b.GetTermFrequency(term)
		if err != nil {
			continue
		}
		rctx.DocFrequencies[strings.ToLower(term)] = freq
	}
	return rctx, nil
}

// Stats reports index size counters.
func (b *BleveBackend) Stats() BackendStats {
	stats := BackendStats{}
	if count, err := b.current().DocCount(); err == nil {
		stats.Documents = int(count)
	}
	if terms, err := b.GetAllTerms(); err == nil {
		stats.Terms = len(terms)
	}
	return stats
}

// Close closes the underlying Bleve index.
func (b *BleveBackend) Close() error {
	return b.current().Close()
}

// Suggest returns indexed terms completing prefix from the field's
// dictionary, most frequent first.
func (b *BleveBackend) Suggest(ctx context.Context, prefix, field string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if field == "" {
		field = "search_text"
	}

	dict, err := b.current().FieldDict(field)
	if err != nil {
		return nil, err
	}
	defer dict.Close()

	type candidate struct {
		term string
		freq int
	}
	var candidates []candidate
	for {
		entry, err := dict.Next()
		if err != nil || entry == nil {
			break
		}
		if strings.HasPrefix(entry.Term, prefix) {
			candidates = append(candidates, candidate{term: entry.Term, freq: int(entry.Count)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		return candidates[i].term < candidates[j].term
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.term
	}
	return out, nil
}

// GetAllTerms returns the unique terms of the main text fields, satisfying
// query.TermDictionary for the expander.
func (b *BleveBackend) GetAllTerms() ([]string, error) {
	idx := b.current()
	terms := make([]string, 0)
	seen := make(map[string]struct{})

	for _, field := range []string{"search_text", "title"} {
		dict, err := idx.FieldDict(field)
		if err != nil {
			continue
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				terms = append(terms, entry.Term)
				seen[entry.Term] = struct{}{}
			}
		}
		dict.Close()
	}
	return terms, nil
}

// GetTermFrequency returns the number of documents containing term.
func (b *BleveBackend) GetTermFrequency(term string) (int, error) {
	q := bleve.NewMatchQuery(term)
	req := bleve.NewSearchRequest(q)
	req.Size = 0
	results, err := b.current().Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(results.Total), nil
}

// ContainsTerm reports whether term occurs in the index.
func (b *BleveBackend) ContainsTerm(term string) (bool, error) {
	freq, err := b.GetTermFrequency(term)
	if err != nil {
		return false, err
	}
	return freq > 0, nil
}
