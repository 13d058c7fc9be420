package index

import (
	"sort"
	"sync"

	"github.com/hyperjump/bunken/internal/ranking"
)

// MemoryIndex is an inverted index over documents, held entirely in memory.
// Writes take the exclusive lock; searches borrow a read-locked Snapshot so
// one search always sees a consistent index. A full reindex builds a fresh
// MemoryIndex aside and swaps it in at the owner.
type MemoryIndex struct {
	mu sync.RWMutex

	docs map[string]*Document
	// term → field → entry key → term frequency
	postings map[string]map[string]map[string]int
	// term → entry keys containing it, the doc-frequency source
	termDocs map[string]map[string]struct{}

	fieldTokens map[string]int
	fieldDocs   map[string]int
	totalTokens int
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:        make(map[string]*Document),
		postings:    make(map[string]map[string]map[string]int),
		termDocs:    make(map[string]map[string]struct{}),
		fieldTokens: make(map[string]int),
		fieldDocs:   make(map[string]int),
	}
}

// Add indexes a document, replacing any document with the same key.
func (i *MemoryIndex) Add(doc *Document) {
	if doc == nil || doc.Key == "" {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if old, ok := i.docs[doc.Key]; ok {
		i.removeLocked(old)
	}
	i.docs[doc.Key] = doc

	for field, tokens := range doc.Tokens {
		if len(tokens) == 0 {
			continue
		}
		i.fieldTokens[field] += len(tokens)
		i.fieldDocs[field]++
		i.totalTokens += len(tokens)

		for _, term := range tokens {
			byField := i.postings[term]
			if byField == nil {
				byField = make(map[string]map[string]int)
				i.postings[term] = byField
			}
			posting := byField[field]
			if posting == nil {
				posting = make(map[string]int)
				byField[field] = posting
			}
			posting[doc.Key]++

			docs := i.termDocs[term]
			if docs == nil {
				docs = make(map[string]struct{})
				i.termDocs[term] = docs
			}
			docs[doc.Key] = struct{}{}
		}
	}
}

// Remove deletes a document by key and reports whether it was present.
func (i *MemoryIndex) Remove(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	doc, ok := i.docs[key]
	if !ok {
		return false
	}
	i.removeLocked(doc)
	delete(i.docs, key)
	return true
}

func (i *MemoryIndex) removeLocked(doc *Document) {
	seen := make(map[string]struct{})
	for field, tokens := range doc.Tokens {
		if len(tokens) == 0 {
			continue
		}
		i.fieldTokens[field] -= len(tokens)
		if i.fieldTokens[field] <= 0 {
			delete(i.fieldTokens, field)
		}
		i.fieldDocs[field]--
		if i.fieldDocs[field] <= 0 {
			delete(i.fieldDocs, field)
		}
		i.totalTokens -= len(tokens)

		for _, term := range tokens {
			seen[term] = struct{}{}
			byField := i.postings[term]
			if byField == nil {
				continue
			}
			if posting := byField[field]; posting != nil {
				posting[doc.Key]--
				if posting[doc.Key] <= 0 {
					delete(posting, doc.Key)
				}
				if len(posting) == 0 {
					delete(byField, field)
				}
			}
			if len(byField) == 0 {
				delete(i.postings, term)
			}
		}
	}
	for term := range seen {
		if i.docHasTermLocked(term, doc.Key) {
			continue
		}
		if docs := i.termDocs[term]; docs != nil {
			delete(docs, doc.Key)
			if len(docs) == 0 {
				delete(i.termDocs, term)
			}
		}
	}
}

func (i *MemoryIndex) docHasTermLocked(term, key string) bool {
	for _, posting := range i.postings[term] {
		if _, ok := posting[key]; ok {
			return true
		}
	}
	return false
}

// Clear drops every document.
func (i *MemoryIndex) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.docs = make(map[string]*Document)
	i.postings = make(map[string]map[string]map[string]int)
	i.termDocs = make(map[string]map[string]struct{})
	i.fieldTokens = make(map[string]int)
	i.fieldDocs = make(map[string]int)
	i.totalTokens = 0
}

// Len returns the number of indexed documents.
func (i *MemoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Snapshot borrows a read-locked view of the index. The caller must call
// Release exactly once when done; writers block until every borrowed
// snapshot is released.
func (i *MemoryIndex) Snapshot() *Snapshot {
	i.mu.RLock()
	return &Snapshot{idx: i}
}

// Snapshot is a consistent read-only view of a MemoryIndex, valid until
// Release.
type Snapshot struct {
	idx *MemoryIndex
}

// Release returns the snapshot's read lock.
func (s *Snapshot) Release() {
	s.idx.mu.RUnlock()
}

// Doc returns the indexed document for a key.
func (s *Snapshot) Doc(key string) (*Document, bool) {
	doc, ok := s.idx.docs[key]
	return doc, ok
}

// Count returns the number of indexed documents.
func (s *Snapshot) Count() int {
	return len(s.idx.docs)
}

// Postings returns key → term frequency for a term in one field. The map is
// shared with the index and must not be modified.
func (s *Snapshot) Postings(term, field string) map[string]int {
	return s.idx.postings[term][field]
}

// DocsWithTerm returns the keys of documents containing the term in any
// field. The map is shared with the index and must not be modified.
func (s *Snapshot) DocsWithTerm(term string) map[string]struct{} {
	return s.idx.termDocs[term]
}

// DocFrequency returns the number of documents containing the term.
func (s *Snapshot) DocFrequency(term string) int {
	return len(s.idx.termDocs[term])
}

// Terms returns the sorted term dictionary.
func (s *Snapshot) Terms() []string {
	terms := make([]string, 0, len(s.idx.termDocs))
	for term := range s.idx.termDocs {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Each calls fn for every document until fn returns false.
func (s *Snapshot) Each(fn func(*Document) bool) {
	for _, doc := range s.idx.docs {
		if !fn(doc) {
			return
		}
	}
}

// Stats builds the ranking context for the snapshot: document count, average
// lengths, and a copy of the per-term document frequencies.
func (s *Snapshot) Stats() *ranking.Context {
	ctx := ranking.NewContext()
	ctx.TotalDocs = len(s.idx.docs)
	if ctx.TotalDocs > 0 {
		ctx.AvgDocLength = float64(s.idx.totalTokens) / float64(ctx.TotalDocs)
	}
	for term, docs := range s.idx.termDocs {
		ctx.DocFrequencies[term] = len(docs)
	}
	for field, tokens := range s.idx.fieldTokens {
		if docs := s.idx.fieldDocs[field]; docs > 0 {
			ctx.FieldLengths[field] = float64(tokens) / float64(docs)
		}
	}
	return ctx
}
