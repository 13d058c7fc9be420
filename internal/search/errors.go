package search

import (
	"fmt"

	"github.com/hyperjump/bunken/internal/index"
	"github.com/hyperjump/bunken/internal/query"
)

// QueryError reports a malformed query string. Parser errors travel through
// the engine unmodified so callers can show the offending query.
type QueryError = query.Error

// IndexError reports a failure to index a single entry. Batch indexing
// collects these per key instead of aborting the whole batch.
type IndexError = index.Error

// Error is the catch-all for failures inside the search pipeline itself.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("search: %s failed", e.Op)
	}
	return fmt.Sprintf("search: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
