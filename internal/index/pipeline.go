package index

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bunken/internal/models"
)

// Report summarizes one pipeline run: how many entries were indexed and
// which keys failed, with the per-entry error.
type Report struct {
	Processed int
	Failed    map[string]error
}

// FailedKeys returns the keys of the entries that failed, sorted.
func (r *Report) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pipeline converts entries into documents in parallel and applies them to
// an index. Analysis runs on bounded workers; index writes serialize on the
// index's own lock.
type Pipeline struct {
	indexer   *EntryIndexer
	batchSize int
	workers   int
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchSize sets how many entries one worker takes at a time.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithWorkers bounds the number of concurrent analysis workers.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets a logger for per-entry failures and run summaries.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline around indexer. A nil indexer uses the
// defaults.
func NewPipeline(indexer *EntryIndexer, opts ...PipelineOption) *Pipeline {
	if indexer == nil {
		indexer = NewEntryIndexer(nil, nil)
	}
	p := &Pipeline{indexer: indexer, batchSize: 100, workers: 4}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexAll indexes entries into idx. Entries that fail do not abort the
// run; their keys and errors come back in the report. Context cancellation
// aborts the remaining work and returns the context error alongside the
// partial report.
func (p *Pipeline) IndexAll(ctx context.Context, idx *MemoryIndex, entries []*models.Entry) (*Report, error) {
	report := &Report{Failed: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for start := 0; start < len(entries); start += p.batchSize {
		end := start + p.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]
		g.Go(func() error {
			return p.indexBatch(gctx, idx, batch, report, &mu)
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if p.logger != nil {
		p.logger.Info("reindex complete",
			zap.Int("processed", report.Processed),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}

func (p *Pipeline) indexBatch(ctx context.Context, idx *MemoryIndex, batch []*models.Entry, report *Report, mu *sync.Mutex) error {
	for _, entry := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		doc, err := p.indexer.Index(entry)
		if err == nil {
			err = p.indexer.Validate(doc)
		}
		if err != nil {
			var key string
			if entry != nil {
				key = entry.Key
			}
			mu.Lock()
			report.Failed[key] = err
			mu.Unlock()
			if p.logger != nil {
				p.logger.Warn("entry failed to index", zap.String("key", key), zap.Error(err))
			}
			continue
		}

		idx.Add(doc)
		mu.Lock()
		report.Processed++
		mu.Unlock()
	}
	return nil
}
