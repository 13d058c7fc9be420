package search

import (
	"context"

	"github.com/hyperjump/bunken/internal/index"
	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/query"
	"github.com/hyperjump/bunken/internal/ranking"
)

// Options carries per-query execution settings to a backend.
type Options struct {
	// Limit caps the number of matches returned. Zero means no cap.
	Limit int
	// Fields restricts unfielded terms and phrases to the named fields.
	// Empty searches the default text fields.
	Fields []string
	// MinScore drops matches scoring below the threshold.
	MinScore float64
}

// Result is a backend's answer to one query: the matched keys with raw
// scores ordered best-first, the total match count before the limit, and
// the evaluation time.
type Result struct {
	Matches []models.SearchMatch
	Total   int
	TookMS  int64
}

// BackendStats describes the state of a backend's index.
type BackendStats struct {
	Documents int
	Terms     int
}

// Backend evaluates parsed queries against an index. Implementations must
// be safe for concurrent use; a query in flight observes a consistent view
// of the index even while entries are added or removed.
type Backend interface {
	// Name identifies the backend in statistics and logs.
	Name() string
	// Index adds or replaces one entry. Failures are reported as *IndexError.
	Index(ctx context.Context, entry *models.Entry) error
	// IndexBatch adds or replaces entries, continuing past per-entry
	// failures. The report lists how many succeeded and which keys failed.
	IndexBatch(ctx context.Context, entries []*models.Entry) (*index.Report, error)
	// Reindex rebuilds the index from entries. The rebuild happens off to
	// the side and replaces the live index in one step, so concurrent
	// queries never observe a half-built index.
	Reindex(ctx context.Context, entries []*models.Entry) (*index.Report, error)
	// Query evaluates a parsed query and returns the matching keys.
	Query(ctx context.Context, q query.Query, opts Options) (*Result, error)
	// Delete removes an entry from the index. Removing an unknown key is
	// not an error; the return value reports whether anything was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Clear removes every entry from the index.
	Clear(ctx context.Context) error
	// RankingContext returns collection statistics covering the given
	// terms for use by the ranking algorithms.
	RankingContext(ctx context.Context, terms []string) (*ranking.Context, error)
	// Stats reports index size counters.
	Stats() BackendStats

	Close() error
}

// Suggester is implemented by backends that can complete term prefixes.
type Suggester interface {
	Suggest(ctx context.Context, prefix, field string, limit int) ([]string, error)
}
