package search

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/bunken/internal/analysis"
	"github.com/hyperjump/bunken/internal/index"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/query"
	"github.com/hyperjump/bunken/internal/ranking"
)

// queryFieldBoosts weights each field's contribution to the raw backend
// score. These are retrieval-time boosts; the ranking package applies its
// own weights when re-scoring.
var queryFieldBoosts = map[string]float64{
	"title":    2.0,
	"author":   1.5,
	"keywords": 1.2,
	"abstract": 1.0,
	"journal":  1.0,
	"note":     0.5,
}

const defaultQueryFieldBoost = 0.8

// defaultQueryFields are the fields consulted for unfielded terms and
// phrases.
var defaultQueryFields = []string{"title", "author", "abstract", "keywords", "journal", "booktitle", "note"}

// MemoryBackend is the reference in-process backend. It evaluates every
// query variant directly against the inverted index.
type MemoryBackend struct {
	mu        sync.RWMutex
	idx       *index.MemoryIndex
	indexer   *index.EntryIndexer
	pipeline  *index.Pipeline
	analyzers *analysis.Manager
}

// NewMemoryBackend creates a memory backend. Nil schema or analyzers select
// the defaults.
func NewMemoryBackend(schema *analysis.Schema, analyzers *analysis.Manager) *MemoryBackend {
	if schema == nil {
		schema = analysis.NewSchema()
	}
	if analyzers == nil {
		analyzers = analysis.NewManager()
	}
	indexer := index.NewEntryIndexer(schema, analyzers)
	return &MemoryBackend{
		idx:       index.NewMemoryIndex(),
		indexer:   indexer,
		pipeline:  index.NewPipeline(indexer),
		analyzers: analyzers,
	}
}

// Name returns "memory".
func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) current() *index.MemoryIndex {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idx
}

// Index adds or replaces one entry in the index.
func (b *MemoryBackend) Index(ctx context.Context, entry *models.Entry) error {
	doc, err := b.indexer.Index(entry)
	if err != nil {
		return err
	}
	b.current().Add(doc)
	return nil
}

// IndexBatch adds or replaces entries, continuing past per-entry failures.
func (b *MemoryBackend) IndexBatch(ctx context.Context, entries []*models.Entry) (*index.Report, error) {
	return b.pipeline.IndexAll(ctx, b.current(), entries)
}

// Reindex rebuilds the index from scratch and swaps it in. Queries in
// flight keep reading the old index until they finish.
func (b *MemoryBackend) Reindex(ctx context.Context, entries []*models.Entry) (*index.Report, error) {
	fresh := index.NewMemoryIndex()
	report, err := b.pipeline.IndexAll(ctx, fresh, entries)
	if err != nil {
		return report, err
	}
	b.mu.Lock()
	b.idx = fresh
	b.mu.Unlock()
	return report, nil
}

// Delete removes an entry and reports whether it was present.
func (b *MemoryBackend) Delete(ctx context.Context, key string) (bool, error) {
	return b.current().Remove(key), nil
}

// Clear removes every entry from the index.
func (b *MemoryBackend) Clear(ctx context.Context) error {
	b.current().Clear()
	return nil
}

// Query evaluates a parsed query against a consistent snapshot of the
// index.
func (b *MemoryBackend) Query(ctx context.Context, q query.Query, opts Options) (*Result, error) {
	if q == nil {
		return nil, &Error{Op: "query", Err: fmt.Errorf("nil query")}
	}
	start := time.Now()
	snap := b.current().Snapshot()
	defer snap.Release()

	scores, err := b.eval(snap, q, opts.Fields)
	if err != nil {
		return nil, err
	}

	matches := make([]models.SearchMatch, 0, len(scores))
	for key, score := range scores {
		if score < opts.MinScore {
			continue
		}
		matches = append(matches, models.NewSearchMatch(key, score))
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].EntryKey < matches[j].EntryKey
	})
	total := len(matches)
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return &Result{Matches: matches, Total: total, TookMS: time.Since(start).Milliseconds()}, nil
}

func (b *MemoryBackend) eval(snap *index.Snapshot, q query.Query, fields []string) (map[string]float64, error) {
	switch node := q.(type) {
	case *query.Term:
		return b.termScores(snap, node.Text, fields, node.Boost), nil
	case *query.Phrase:
		return phraseScores(snap, node.Text, fields, node.Boost), nil
	case *query.Wildcard:
		return wildcardScores(snap, node.Pattern, fields, node.Boost)
	case *query.Fuzzy:
		return b.fuzzyScores(snap, node.Text, node.MaxEdits, fields, node.Boost), nil
	case *query.Range:
		return rangeScores(snap, node), nil
	case *query.Field:
		return b.eval(snap, node.Inner, []string{node.Name})
	case *query.Boolean:
		return b.evalBoolean(snap, node, fields)
	}
	return nil, &Error{Op: "query", Err: fmt.Errorf("unsupported query node %T", q)}
}

func (b *MemoryBackend) evalBoolean(snap *index.Snapshot, node *query.Boolean, fields []string) (map[string]float64, error) {
	if len(node.Children) == 0 {
		return map[string]float64{}, nil
	}

	switch node.Op {
	case query.OpOr:
		combined := make(map[string]float64)
		for _, child := range node.Children {
			childScores, err := b.eval(snap, child, fields)
			if err != nil {
				return nil, err
			}
			for key, score := range childScores {
				combined[key] += score
			}
		}
		return combined, nil

	case query.OpNot:
		// A single child negates against the whole collection; otherwise
		// the first child is positive and the rest are exclusions.
		var positive map[string]float64
		negations := node.Children
		if len(node.Children) == 1 {
			positive = allDocScores(snap)
		} else {
			var err error
			positive, err = b.eval(snap, node.Children[0], fields)
			if err != nil {
				return nil, err
			}
			negations = node.Children[1:]
		}
		for _, child := range negations {
			excluded, err := b.eval(snap, child, fields)
			if err != nil {
				return nil, err
			}
			for key := range excluded {
				delete(positive, key)
			}
		}
		return positive, nil

	default:
		combined, err := b.eval(snap, node.Children[0], fields)
		if err != nil {
			return nil, err
		}
		for _, child := range node.Children[1:] {
			childScores, err := b.eval(snap, child, fields)
			if err != nil {
				return nil, err
			}
			for key := range combined {
				score, ok := childScores[key]
				if !ok {
					delete(combined, key)
					continue
				}
				combined[key] += score
			}
		}
		return combined, nil
	}
}

// termScores scores one term across the query fields: saturated term
// frequency normalized by field length, weighted by the field boost.
func (b *MemoryBackend) termScores(snap *index.Snapshot, text string, fields []string, boost float64) map[string]float64 {
	scores := make(map[string]float64)
	boost = normBoost(boost)
	for _, field := range queryFields(fields) {
		for _, token := range b.analyzers.AnalyzeField(field, text) {
			for key, tf := range snap.Postings(token, field) {
				doc, ok := snap.Doc(key)
				if !ok {
					continue
				}
				scores[key] += termFieldScore(tf, doc.FieldLength(field)) * fieldBoost(field) * boost
			}
		}
	}
	return scores
}

// termFieldScore saturates term frequency against the field length so long
// fields do not dominate.
func termFieldScore(tf, fieldLength int) float64 {
	return float64(tf) / (float64(tf) + 1.2*(0.25+0.75*float64(fieldLength)/100))
}

// phraseScores matches the phrase as a case-insensitive substring of each
// field's stored text.
func phraseScores(snap *index.Snapshot, text string, fields []string, boost float64) map[string]float64 {
	scores := make(map[string]float64)
	phrase := strings.ToLower(strings.TrimSpace(text))
	if phrase == "" {
		return scores
	}
	boost = normBoost(boost)
	snap.Each(func(doc *index.Document) bool {
		var score float64
		for _, field := range queryFields(fields) {
			fieldText := doc.StoredText(field)
			if fieldText == "" {
				continue
			}
			if strings.Contains(strings.ToLower(fieldText), phrase) {
				score += fieldBoost(field) * boost
			}
		}
		if score > 0 {
			scores[doc.Key] = score
		}
		return true
	})
	return scores
}

// wildcardScores matches the pattern against the term dictionary and scores
// each field containing a matching token once.
func wildcardScores(snap *index.Snapshot, pattern string, fields []string, boost float64) (map[string]float64, error) {
	re, err := compileWildcard(pattern)
	if err != nil {
		return nil, &Error{Op: "wildcard", Err: err}
	}
	boost = normBoost(boost)

	var matched []string
	for _, term := range snap.Terms() {
		if re.MatchString(term) {
			matched = append(matched, term)
		}
	}

	scores := make(map[string]float64)
	for _, field := range queryFields(fields) {
		fieldKeys := make(map[string]struct{})
		for _, term := range matched {
			for key := range snap.Postings(term, field) {
				fieldKeys[key] = struct{}{}
			}
		}
		for key := range fieldKeys {
			scores[key] += fieldBoost(field) * boost
		}
	}
	return scores, nil
}

// compileWildcard translates a wildcard pattern into an anchored regexp
// over dictionary tokens: * becomes \w* and ? becomes \w.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range strings.ToLower(pattern) {
		switch r {
		case '*':
			sb.WriteString(`\w*`)
		case '?':
			sb.WriteString(`\w`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// fuzzyScores matches dictionary terms within the edit distance budget,
// scoring closer terms higher.
func (b *MemoryBackend) fuzzyScores(snap *index.Snapshot, text string, maxEdits int, fields []string, boost float64) map[string]float64 {
	if maxEdits <= 0 {
		maxEdits = 2
	}
	target := strings.ToLower(text)
	boost = normBoost(boost)

	scores := make(map[string]float64)
	for _, term := range snap.Terms() {
		if !query.WithinDistance(target, term, maxEdits) {
			continue
		}
		weight := boost / float64(1+query.LevenshteinDistance(target, term))
		for _, field := range queryFields(fields) {
			for key, tf := range snap.Postings(term, field) {
				doc, ok := snap.Doc(key)
				if !ok {
					continue
				}
				scores[key] += termFieldScore(tf, doc.FieldLength(field)) * fieldBoost(field) * weight
			}
		}
	}
	return scores
}

// rangeScores matches numeric field values inside the range. Bounded ranges
// get a small bonus for values near the range center.
func rangeScores(snap *index.Snapshot, node *query.Range) map[string]float64 {
	scores := make(map[string]float64)
	snap.Each(func(doc *index.Document) bool {
		v, ok := doc.NumericValue(node.Field)
		if !ok || !node.Contains(v) {
			return true
		}
		scores[doc.Key] = rangeScore(node, v)
		return true
	})
	return scores
}

func rangeScore(node *query.Range, v float64) float64 {
	if node.Low == nil || node.High == nil {
		return 1.0
	}
	size := *node.High - *node.Low
	if size <= 0 {
		return 1.0
	}
	offset := 2*(v-*node.Low)/size - 1
	if offset < 0 {
		offset = -offset
	}
	return 1.0 + 0.5*(1-offset)
}

func allDocScores(snap *index.Snapshot) map[string]float64 {
	scores := make(map[string]float64, snap.Count())
	snap.Each(func(doc *index.Document) bool {
		scores[doc.Key] = 1.0
		return true
	})
	return scores
}

func queryFields(fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	return defaultQueryFields
}

func fieldBoost(field string) float64 {
	if b, ok := queryFieldBoosts[field]; ok {
		return b
	}
	return defaultQueryFieldBoost
}

func normBoost(boost float64) float64 {
	if boost <= 0 {
		return 1.0
	}
	return boost
}

// RankingContext returns the collection statistics of the current snapshot.
func (b *MemoryBackend) RankingContext(ctx context.Context, terms []string) (*ranking.Context, error) {
	snap := b.current().Snapshot()
	defer snap.Release()
	return snap.Stats(), nil
}

// Stats reports index size counters.
func (b *MemoryBackend) Stats() BackendStats {
	snap := b.current().Snapshot()
	defer snap.Release()
	return BackendStats{Documents: snap.Count(), Terms: len(snap.Terms())}
}

// Close is a no-op for the memory backend.
func (b *MemoryBackend) Close() error { return nil }

// Suggest returns indexed terms completing prefix, most frequent first.
// A non-empty field restricts completions to terms occurring in it.
func (b *MemoryBackend) Suggest(ctx context.Context, prefix, field string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	snap := b.current().Snapshot()
	defer snap.Release()

	type candidate struct {
		term string
		freq int
	}
	var candidates []candidate
	for _, term := range snap.Terms() {
		if !strings.HasPrefix(term, prefix) {
			continue
		}
		if field != "" && len(snap.Postings(term, field)) == 0 {
			continue
		}
		candidates = append(candidates, candidate{term: term, freq: snap.DocFrequency(term)})
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

// GetAllTerms returns the indexed vocabulary, satisfying
// query.TermDictionary for the expander.
func (b *MemoryBackend) GetAllTerms() ([]string, error) {
	snap := b.current().Snapshot()
	defer snap.Release()
	return snap.Terms(), nil
}

// GetTermFrequency returns the document frequency of term.
func (b *MemoryBackend) GetTermFrequency(term string) (int, error) {
	snap := b.current().Snapshot()
	defer snap.Release()
	return snap.DocFrequency(strings.ToLower(term)), nil
}

// ContainsTerm reports whether term occurs in the index.
func (b *MemoryBackend) ContainsTerm(term string) (bool, error) {
	freq, err := b.GetTermFrequency(term)
	if err != nil {
		return false, err
	}
	return freq > 0, nil
}
