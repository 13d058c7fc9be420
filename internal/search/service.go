package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunken/internal/index"
	"github.com/hyperjump/bunken/internal/storage"
)

// Service keeps the search index synchronized with the entry repository:
// bulk reindexing, incremental updates driven by entry events, and
// statistics. The repository stays the source of truth; the index is
// rebuilt from it at any time.
type Service struct {
	repo    storage.EntryRepository
	backend Backend
	engine  *Engine
	logger  *zap.Logger // optional; when set, logs index events
}

// NewService creates a service over the given repository, backend, and
// engine. logger may be nil.
func NewService(repo storage.EntryRepository, backend Backend, engine *Engine, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		backend: backend,
		engine:  engine,
		logger:  logger,
	}
}

// Engine returns the search engine for running queries.
func (s *Service) Engine() *Engine { return s.engine }

// IndexAll rebuilds the search index from every entry in the repository.
// Entries that fail to index are reported by key and do not abort the
// rebuild.
func (s *Service) IndexAll(ctx context.Context) (*index.Report, error) {
	startTime := time.Now()
	entries, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}

	report, err := s.backend.Reindex(ctx, entries)
	if err != nil {
		return report, fmt.Errorf("reindex failed: %w", err)
	}

	s.engine.InvalidateCache()
	if err := s.engine.RefreshDictionary(); err != nil && s.logger != nil {
		s.logger.Warn("failed to refresh suggestion dictionary", zap.Error(err))
	}

	if s.logger != nil {
		s.logger.Info("index rebuilt",
			zap.Int("entries", len(entries)),
			zap.Int("indexed", report.Processed),
			zap.Int("failed", len(report.Failed)),
			zap.Int64("took_ms", time.Since(startTime).Milliseconds()))
		for _, key := range report.FailedKeys() {
			s.logger.Warn("entry not indexed", zap.String("key", key), zap.Error(report.Failed[key]))
		}
	}
	return report, nil
}

// OnEntryChanged reindexes one entry after it was added or updated in the
// repository. When the entry no longer exists it is removed from the index
// instead.
func (s *Service) OnEntryChanged(ctx context.Context, key string) error {
	entry, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.OnEntryDeleted(ctx, key)
		}
		return fmt.Errorf("failed to load entry %q: %w", key, err)
	}

	if err := s.backend.Index(ctx, entry); err != nil {
		return err
	}
	s.engine.InvalidateCache()
	if s.logger != nil {
		s.logger.Debug("entry reindexed", zap.String("key", key))
	}
	return nil
}

// OnEntryDeleted removes one entry from the index.
func (s *Service) OnEntryDeleted(ctx context.Context, key string) error {
	removed, err := s.backend.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to remove entry %q from index: %w", key, err)
	}
	s.engine.InvalidateCache()
	if s.logger != nil {
		s.logger.Debug("entry removed from index", zap.String("key", key), zap.Bool("was_indexed", removed))
	}
	return nil
}

// ServiceStats combines repository and index counters.
type ServiceStats struct {
	Entries      int64  `json:"entries"`
	IndexedDocs  int    `json:"indexed_docs"`
	IndexedTerms int    `json:"indexed_terms"`
	Backend      string `json:"backend"`
	LastQueryMS  int64  `json:"last_query_ms"`
}

// Stats reports the current repository and index state.
func (s *Service) Stats(ctx context.Context) (ServiceStats, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return ServiceStats{}, fmt.Errorf("failed to count entries: %w", err)
	}
	engineStats := s.engine.Statistics()
	return ServiceStats{
		Entries:      count,
		IndexedDocs:  engineStats.IndexSize,
		IndexedTerms: engineStats.IndexedTerms,
		Backend:      engineStats.Backend,
		LastQueryMS:  engineStats.LastQueryMS,
	}, nil
}

// LogStatsPeriodically logs service statistics at the given interval until
// the context is cancelled. Intended to run in its own goroutine alongside
// a watcher.
func (s *Service) LogStatsPeriodically(ctx context.Context, interval time.Duration) {
	if s.logger == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Stats(ctx)
			if err != nil {
				s.logger.Warn("failed to collect stats", zap.Error(err))
				continue
			}
			s.logger.Info("search service stats",
				zap.Int64("entries", stats.Entries),
				zap.Int("indexed_docs", stats.IndexedDocs),
				zap.Int("indexed_terms", stats.IndexedTerms),
				zap.Int64("last_query_ms", stats.LastQueryMS))
		}
	}
}
