// Package attach locates attachment files referenced by bibliography
// entries: pattern search over linked paths, orphan detection under the
// attachment directories, and file statistics.
package attach

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/bunken/internal/models"
	"github.com/hyperjump/bunken/internal/storage"
)

// FileMatch is one located attachment.
type FileMatch struct {
	EntryKey  string `json:"entry_key"`
	Path      string `json:"path"`
	Exists    bool   `json:"exists"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Basename returns the file name portion of the path.
func (m FileMatch) Basename() string { return filepath.Base(m.Path) }

// Extension returns the lowercased file extension including the dot.
func (m FileMatch) Extension() string { return strings.ToLower(filepath.Ext(m.Path)) }

// Result holds the matches of one locate run.
type Result struct {
	Query        string      `json:"query"`
	Matches      []FileMatch `json:"matches"`
	TotalFound   int         `json:"total_found"`
	MissingCount int         `json:"missing_count"`
}

// Existing returns only the matches present on disk.
func (r *Result) Existing() []FileMatch {
	var out []FileMatch
	for _, m := range r.Matches {
		if m.Exists {
			out = append(out, m)
		}
	}
	return out
}

// Missing returns only the matches absent from disk.
func (r *Result) Missing() []FileMatch {
	var out []FileMatch
	for _, m := range r.Matches {
		if !m.Exists {
			out = append(out, m)
		}
	}
	return out
}

// Statistics summarizes the attachments linked from a set of entries.
type Statistics struct {
	TotalFiles     int            `json:"total_files"`
	ExistingFiles  int            `json:"existing_files"`
	MissingFiles   int            `json:"missing_files"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	BaseDirBytes   int64          `json:"base_dir_bytes"`
	Extensions     map[string]int `json:"extensions"`
}

// AverageSizeBytes returns the mean size of the existing attachments.
func (s Statistics) AverageSizeBytes() float64 {
	if s.ExistingFiles == 0 {
		return 0
	}
	return float64(s.TotalSizeBytes) / float64(s.ExistingFiles)
}

// MissingRate returns the percentage of linked attachments absent from disk.
func (s Statistics) MissingRate() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.MissingFiles) / float64(s.TotalFiles) * 100
}

// Options controls a locate run.
type Options struct {
	// Regex treats the pattern as a case-insensitive regular expression
	// instead of a glob.
	Regex bool
	// Extensions restricts matches to these file extensions (".pdf", ".ps").
	Extensions []string
	// SkipExistenceCheck reports matches without touching the filesystem.
	SkipExistenceCheck bool
}

// Locator finds attachment files for entries. Existence checks are cached
// for the lifetime of the locator.
type Locator struct {
	basePaths []string

	mu     sync.Mutex
	exists map[string]bool
}

// NewLocator creates a locator searching the given base directories for
// orphans. Directories that do not exist are dropped.
func NewLocator(basePaths []string) *Locator {
	var kept []string
	for _, p := range basePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			kept = append(kept, p)
		}
	}
	return &Locator{
		basePaths: kept,
		exists:    make(map[string]bool),
	}
}

// BasePaths returns the directories searched for orphaned files.
func (l *Locator) BasePaths() []string {
	return append([]string(nil), l.basePaths...)
}

// Locate returns the entries whose attachment path matches pattern. Globs
// match against the full path and the basename; an invalid regex is an
// error.
func (l *Locator) Locate(pattern string, entries []*models.Entry, opts Options) (*Result, error) {
	match, err := compileMatcher(pattern, opts.Regex)
	if err != nil {
		return nil, err
	}

	extensions := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}

	result := &Result{Query: pattern}
	for _, entry := range entries {
		path := entry.AttachmentPath()
		if path == "" {
			continue
		}
		if len(extensions) > 0 {
			if _, ok := extensions[strings.ToLower(filepath.Ext(path))]; !ok {
				continue
			}
		}
		if !match(path) && !match(filepath.Base(path)) {
			continue
		}
		result.Matches = append(result.Matches, l.matchFor(entry.Key, path, !opts.SkipExistenceCheck))
	}

	result.TotalFound = len(result.Matches)
	for _, m := range result.Matches {
		if !m.Exists {
			result.MissingCount++
		}
	}
	return result, nil
}

// FindByKey returns the attachment of one entry.
func (l *Locator) FindByKey(key string, entries []*models.Entry) (*FileMatch, bool) {
	for _, entry := range entries {
		if entry.Key != key {
			continue
		}
		path := entry.AttachmentPath()
		if path == "" {
			return nil, false
		}
		m := l.matchFor(key, path, true)
		return &m, true
	}
	return nil, false
}

// FindByBasename returns the entries whose attachment has exactly this
// file name.
func (l *Locator) FindByBasename(basename string, entries []*models.Entry) *Result {
	result := &Result{Query: basename}
	for _, entry := range entries {
		path := entry.AttachmentPath()
		if path == "" || filepath.Base(path) != basename {
			continue
		}
		result.Matches = append(result.Matches, l.matchFor(entry.Key, path, true))
	}
	result.TotalFound = len(result.Matches)
	for _, m := range result.Matches {
		if !m.Exists {
			result.MissingCount++
		}
	}
	return result
}

// Orphaned returns the PDF files under the base directories that no entry
// links to, sorted by path.
func (l *Locator) Orphaned(entries []*models.Entry) ([]string, error) {
	linked := make(map[string]struct{})
	for _, entry := range entries {
		if path := entry.AttachmentPath(); path != "" {
			linked[filepath.Clean(path)] = struct{}{}
		}
	}

	var orphans []string
	for _, base := range l.basePaths {
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return nil
			}
			if _, ok := linked[filepath.Clean(path)]; !ok {
				orphans = append(orphans, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", base, err)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

// Verify splits the linked attachments into those present on disk and
// those missing.
func (l *Locator) Verify(entries []*models.Entry) (existing, missing []FileMatch) {
	for _, entry := range entries {
		path := entry.AttachmentPath()
		if path == "" {
			continue
		}
		m := l.matchFor(entry.Key, path, true)
		if m.Exists {
			existing = append(existing, m)
		} else {
			missing = append(missing, m)
		}
	}
	return existing, missing
}

// Statistics reports attachment counts, sizes, and extension breakdown for
// entries, plus the total disk usage of the base directories.
func (l *Locator) Statistics(entries []*models.Entry) Statistics {
	stats := Statistics{Extensions: make(map[string]int)}
	for _, entry := range entries {
		path := entry.AttachmentPath()
		if path == "" {
			continue
		}
		stats.TotalFiles++
		m := l.matchFor(entry.Key, path, true)
		if !m.Exists {
			stats.MissingFiles++
			continue
		}
		stats.ExistingFiles++
		stats.TotalSizeBytes += m.SizeBytes
		stats.Extensions[m.Extension()]++
	}
	if usage, err := storage.DiskUsageBytes(l.basePaths...); err == nil {
		stats.BaseDirBytes = usage
	}
	return stats
}

func (l *Locator) matchFor(key, path string, check bool) FileMatch {
	m := FileMatch{EntryKey: key, Path: path}
	if !check {
		return m
	}
	m.Exists = l.checkExists(path)
	if m.Exists {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			m.SizeBytes = info.Size()
		}
	}
	return m
}

func (l *Locator) checkExists(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exists, ok := l.exists[path]; ok {
		return exists
	}
	_, err := os.Stat(path)
	exists := err == nil
	l.exists[path] = exists
	return exists
}

// compileMatcher returns the pattern predicate. Globs translate into an
// anchored regexp where * also crosses path separators, matching the whole
// string.
func compileMatcher(pattern string, isRegex bool) (func(string) bool, error) {
	if isRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		return re.MatchString, nil
	}

	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString, nil
}
