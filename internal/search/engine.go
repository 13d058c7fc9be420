// Package search runs bibliography searches end to end: it parses queries,
// executes them against a pluggable backend, resolves matches to stored
// entries, ranks, facets, highlights, and assembles the result page.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/bunken/internal/analysis"
	"github.com/hyperjump/bunken/internal/facet"
	"github.com/hyperjump/bunken/internal/highlight"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/query"
	"github.com/hyperjump/bunken/internal/ranking"
	"github.com/hyperjump/bunken/internal/storage"
)

// Engine orchestrates a search request across the backend, repository,
// ranker, facet aggregator, and highlighter.
type Engine struct {
	backend     Backend
	repo        storage.EntryRepository
	parser      *query.Parser
	expander    *query.Expander
	ranker      ranking.Algorithm
	aggregator  *facet.Aggregator
	highlighter *highlight.Highlighter
	processor   *analysis.TextProcessor
	cache       *lru.Cache[string, *models.SearchResultCollection]
	logger      *zap.Logger

	lastQueryMS atomic.Int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRanker replaces the default BM25 ranker.
func WithRanker(r ranking.Algorithm) EngineOption {
	return func(e *Engine) { e.ranker = r }
}

// WithExpander replaces the expander built from the backend's term
// dictionary.
func WithExpander(x *query.Expander) EngineOption {
	return func(e *Engine) { e.expander = x }
}

// WithFacetConfig replaces the default facet configuration.
func WithFacetConfig(cfg *facet.Config) EngineOption {
	return func(e *Engine) { e.aggregator = facet.NewAggregator(cfg) }
}

// WithHighlighter replaces the default highlighter.
func WithHighlighter(h *highlight.Highlighter) EngineOption {
	return func(e *Engine) { e.highlighter = h }
}

// WithLogger attaches a logger. Without one the engine is silent.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// defaultCacheSize bounds the result cache; repeated identical requests
// (pagination round trips, facet toggling) hit the cache instead of the
// backend.
const defaultCacheSize = 128

// NewEngine creates a search engine over the given backend and entry
// repository. When the backend exposes its term dictionary, spelling
// correction and query expansion are enabled automatically.
func NewEngine(backend Backend, repo storage.EntryRepository, opts ...EngineOption) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("entry repository is required")
	}

	e := &Engine{
		backend:     backend,
		repo:        repo,
		parser:      query.NewParser(),
		ranker:      ranking.NewBM25(nil, nil),
		aggregator:  facet.NewAggregator(facet.DefaultConfig()),
		highlighter: highlight.New(nil),
		processor:   analysis.NewTextProcessor(analysis.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.expander == nil {
		if dict, ok := backend.(query.TermDictionary); ok {
			e.expander = query.NewExpander(dict)
		}
	}

	cache, err := lru.New[string, *models.SearchResultCollection](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	e.cache = cache
	return e, nil
}

// Search runs one search request through the full pipeline: parse, expand,
// query the backend, resolve entries, rank, apply facet filters, build
// facets, paginate, and highlight the returned page.
func (e *Engine) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResultCollection, error) {
	startTime := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(&req)
	if cached, ok := e.cache.Get(key); ok {
		if e.logger != nil {
			e.logger.Debug("result cache hit", zap.String("query", req.Query))
		}
		return cached, nil
	}

	parseStart := time.Now()
	parsed, err := e.parser.Parse(req.Query)
	if err != nil {
		return nil, err
	}
	executed := parsed
	if e.expander != nil {
		executed = e.expander.Expand(parsed, nil)
	}
	queryTime := time.Since(parseStart).Milliseconds()

	backendResult, err := e.backend.Query(ctx, executed, Options{})
	if err != nil {
		var searchErr *Error
		if errors.As(err, &searchErr) {
			return nil, err
		}
		return nil, &Error{Op: "backend query", Err: err}
	}

	fetchStart := time.Now()
	candidates := e.resolve(ctx, backendResult.Matches)
	fetchTime := time.Since(fetchStart).Milliseconds()

	terms := executed.Terms()
	candidates = e.rank(ctx, candidates, terms)

	// Facets describe the whole candidate set so counts stay stable while
	// the user toggles filters.
	facets := e.aggregator.AggregateAll(candidates)
	facet.MarkSelected(facets, req.Filters)
	filtered := facet.Apply(candidates, req.Filters)

	ordered := make([]models.SearchMatch, len(filtered))
	for i, m := range filtered {
		ordered[i] = *m
	}
	if req.SortBy != models.SortRelevance {
		tmp := models.NewCollection(req.Query, ordered, len(ordered), 0, len(ordered))
		ordered = tmp.SortBy(req.SortBy).Matches
	}

	total := len(ordered)
	start := req.Offset
	end := req.Offset + req.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	page := ordered[start:end]

	if req.HighlightOrDefault() {
		for i := range page {
			e.highlightMatch(&page[i], parsed)
		}
	}

	collection := models.NewCollection(req.Query, page, total, req.Offset, req.Limit)
	collection.SortOrder = req.SortBy
	collection.Facets = facets
	collection.Suggestions = e.buildSuggestions(parsed, req.Query, total)
	collection.Statistics = models.SearchStatistics{
		TotalResults: total,
		SearchTimeMS: time.Since(startTime).Milliseconds(),
		QueryTimeMS:  queryTime,
		FetchTimeMS:  fetchTime,
		BackendName:  e.backend.Name(),
		IndexSize:    e.backend.Stats().Documents,
	}

	e.cache.Add(key, collection)
	e.lastQueryMS.Store(collection.Statistics.SearchTimeMS)
	if e.logger != nil {
		e.logger.Debug("search completed",
			zap.String("query", req.Query),
			zap.Int("total", total),
			zap.Int("returned", len(page)),
			zap.Int64("took_ms", collection.Statistics.SearchTimeMS))
	}
	return collection, nil
}

// resolve hydrates backend matches with their stored entries. Matches whose
// entry has disappeared from the repository are dropped.
func (e *Engine) resolve(ctx context.Context, matches []models.SearchMatch) []*models.SearchMatch {
	resolved := make([]*models.SearchMatch, 0, len(matches))
	for i := range matches {
		m := matches[i]
		entry, err := e.repo.Find(ctx, m.EntryKey)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("indexed entry missing from repository",
					zap.String("key", m.EntryKey), zap.Error(err))
			}
			continue
		}
		m.Entry = entry
		resolved = append(resolved, &m)
	}
	return resolved
}

// rank re-scores candidates with the configured ranker using collection
// statistics from the backend. Ranking failures leave the backend order in
// place rather than failing the search.
func (e *Engine) rank(ctx context.Context, candidates []*models.SearchMatch, terms []string) []*models.SearchMatch {
	if e.ranker == nil || len(candidates) == 0 || len(terms) == 0 {
		return candidates
	}
	rctx, err := e.backend.RankingContext(ctx, terms)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("ranking context unavailable, keeping backend scores", zap.Error(err))
		}
		return candidates
	}
	ranked, err := ranking.Rank(e.ranker, candidates, terms, rctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("ranking failed, keeping backend scores", zap.Error(err))
		}
		return candidates
	}
	for _, m := range ranked {
		m.Score = models.ClampScore(m.Score)
	}
	return ranked
}

// highlightMatch fills in snippet highlights for one match. A failure in a
// single field degrades to no highlights for that field.
func (e *Engine) highlightMatch(m *models.SearchMatch, q query.Query) {
	if m.Entry == nil {
		return
	}
	snippets := e.highlighter.Snippets(m.Entry, q, nil)
	if len(snippets) > 0 {
		m.Highlights = snippets
	}
}

// buildSuggestions assembles up to three query improvement hints: spelling
// corrections, a relaxed query when results are scarce, and a cross-field
// variant for fielded queries that underperform.
func (e *Engine) buildSuggestions(parsed query.Query, rawQuery string, total int) []models.SearchSuggestion {
	var suggestions []models.SearchSuggestion

	if e.expander != nil {
		for _, c := range e.expander.SuggestCorrections(parsed, 2) {
			suggestions = append(suggestions, models.SearchSuggestion{
				Suggestion:  c.Suggested,
				Kind:        models.SuggestionSpelling,
				Confidence:  c.Confidence,
				Description: c.Explanation,
			})
		}

		if total < 3 {
			relaxed := e.expander.Relax(parsed, 1)
			if relaxed.String() != parsed.String() {
				suggestions = append(suggestions, models.SearchSuggestion{
					Suggestion:  relaxed.String(),
					Kind:        models.SuggestionRelaxation,
					Confidence:  0.7,
					Description: "Relaxed query for more results",
				})
			}
		}
	}

	if total < 5 && strings.Contains(rawQuery, ":") {
		suggestions = append(suggestions, models.SearchSuggestion{
			Suggestion:  strings.ReplaceAll(rawQuery, ":", " "),
			Kind:        models.SuggestionField,
			Confidence:  0.6,
			Description: "Search across all fields",
		})
	}

	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

// MoreLikeThis finds entries similar to the given one by searching with the
// salient terms of its title, abstract, and keywords. The source entry is
// excluded from the results.
func (e *Engine) MoreLikeThis(ctx context.Context, key string, minScore float64, limit int) (*models.SearchResultCollection, error) {
	if limit <= 0 {
		limit = 10
	}
	entry, err := e.repo.Find(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("more like %q: %w", key, err)
	}

	seed := strings.TrimSpace(strings.Join([]string{
		entry.Title(),
		entry.Abstract(),
		entry.Field("keywords"),
	}, " "))
	keywords := e.processor.ExtractKeywords(seed, 10)
	if len(keywords) == 0 {
		return models.NewEmptyCollection("", limit, e.backend.Name()), nil
	}

	collection, err := e.Search(ctx, models.SearchRequest{
		Query: strings.Join(keywords, " OR "),
		Limit: limit + 1,
	})
	if err != nil {
		return nil, err
	}

	kept := make([]models.SearchMatch, 0, len(collection.Matches))
	for _, m := range collection.Matches {
		if m.EntryKey == key || m.Score < minScore {
			continue
		}
		kept = append(kept, m)
		if len(kept) == limit {
			break
		}
	}
	similar := models.NewCollection(collection.Query, kept, len(kept), 0, limit)
	similar.Statistics = collection.Statistics
	similar.Statistics.TotalResults = len(kept)
	return similar, nil
}

// Suggest returns term completions for an interactive prefix. Backends
// without completion support yield no suggestions.
func (e *Engine) Suggest(ctx context.Context, prefix, field string, limit int) ([]string, error) {
	suggester, ok := e.backend.(Suggester)
	if !ok {
		return nil, nil
	}
	return suggester.Suggest(ctx, prefix, field, limit)
}

// Validate checks a query string without executing it and returns the
// problems found, or nil when the query is well-formed.
func (e *Engine) Validate(queryStr string) []string {
	if strings.TrimSpace(queryStr) == "" {
		return []string{"query cannot be empty"}
	}
	if _, err := e.parser.Parse(queryStr); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// Statistics reports engine-level counters.
type Statistics struct {
	Backend      string `json:"backend"`
	IndexSize    int    `json:"index_size"`
	IndexedTerms int    `json:"indexed_terms"`
	LastQueryMS  int64  `json:"last_query_ms"`
	CachedPages  int    `json:"cached_pages"`
}

// Statistics returns current engine counters.
func (e *Engine) Statistics() Statistics {
	stats := e.backend.Stats()
	return Statistics{
		Backend:      e.backend.Name(),
		IndexSize:    stats.Documents,
		IndexedTerms: stats.Terms,
		LastQueryMS:  e.lastQueryMS.Load(),
		CachedPages:  e.cache.Len(),
	}
}

// InvalidateCache drops all cached result pages. Callers invalidate after
// any index mutation.
func (e *Engine) InvalidateCache() {
	e.cache.Purge()
}

// RefreshDictionary reloads the expander's vocabulary cache so spelling
// suggestions track the current index contents.
func (e *Engine) RefreshDictionary() error {
	if e.expander == nil {
		return nil
	}
	return e.expander.RefreshCache()
}

// cacheKey serializes the request parts that affect the result page.
// Filter fields and values are sorted so equal requests always collide.
func cacheKey(req *models.SearchRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%d|%d|%s|%t", req.Query, req.Limit, req.Offset, req.SortBy, req.HighlightOrDefault())

	fields := make([]string, 0, len(req.Filters))
	for f := range req.Filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		values := append([]string(nil), req.Filters[f]...)
		sort.Strings(values)
		fmt.Fprintf(&sb, "|%s=%s", f, strings.Join(values, ","))
	}
	return sb.String()
}
