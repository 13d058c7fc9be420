// Package watcher keeps the search index in step with the library. It
// watches the bibliography database file and the attachment directories
// with fsnotify and fires debounced callbacks when either changes.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// defaultExtensions are the attachment types worth re-extracting.
var defaultExtensions = []string{".pdf", ".docx", ".xlsx", ".txt", ".md"}

// Watcher watches the library database and attachment directories.
type Watcher struct {
	libraryPath string
	attachDirs  []string
	extensions  []string
	onLibrary   func()
	onChanged   func(path string)
	onRemoved   func(path string)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	timers      map[string]*time.Timer
	dirPaths    map[string][]string // attach dir -> watched subdirectories
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger // optional; when set, logs debug events
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the settle delay before a change callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions overrides which attachment files trigger callbacks.
func WithExtensions(exts []string) Option {
	return func(w *Watcher) { w.extensions = exts }
}

// NewWatcher creates a watcher. libraryPath is the database file whose
// changes fire onLibrary (empty to disable); attachDirs are watched
// recursively and fire onChanged/onRemoved per file.
func NewWatcher(libraryPath string, attachDirs []string, onLibrary func(), onChanged, onRemoved func(path string), opts ...Option) *Watcher {
	if libraryPath != "" {
		libraryPath = filepath.Clean(libraryPath)
	}
	w := &Watcher{
		libraryPath: libraryPath,
		attachDirs:  attachDirs,
		extensions:  defaultExtensions,
		onLibrary:   onLibrary,
		onChanged:   onChanged,
		onRemoved:   onRemoved,
		debounce:    defaultDebounce,
		timers:      make(map[string]*time.Timer),
		dirPaths:    make(map[string][]string),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting",
			zap.String("library", w.libraryPath),
			zap.Strings("attachment_dirs", w.attachDirs),
			zap.Strings("extensions", w.extensions))
	}
	if w.libraryPath != "" {
		// The database file is often replaced atomically, so watch its
		// directory rather than the file itself.
		if err := watcher.Add(filepath.Dir(w.libraryPath)); err != nil {
			w.closeLocked()
			w.mu.Unlock()
			return err
		}
	}
	for _, dir := range w.attachDirs {
		if err := w.addDirLocked(dir); err != nil {
			w.closeLocked()
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) closeLocked() {
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if w.isLibraryFile(path) {
		if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename) {
			if w.logger != nil {
				w.logger.Debug("library changed", zap.String("op", ev.Op.String()), zap.String("path", path))
			}
			w.debounceFunc(w.libraryPath, w.onLibrary)
		}
		return
	}

	if !w.underAttachDir(path) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("attachment event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			callback := w.onChanged
			w.debounceFunc(path, func() {
				if callback != nil {
					callback(path)
				}
			})
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.matchExtension(path) && w.onRemoved != nil {
			w.onRemoved(path)
		}
	}
}

// isLibraryFile matches the database file and its SQLite WAL/journal
// siblings, whose writes also mean the library changed.
func (w *Watcher) isLibraryFile(path string) bool {
	if w.libraryPath == "" {
		return false
	}
	clean := filepath.Clean(path)
	if clean == w.libraryPath {
		return true
	}
	for _, suffix := range []string{"-wal", "-journal"} {
		if strings.TrimSuffix(clean, suffix) == w.libraryPath {
			return true
		}
	}
	return false
}

// handleNewDirectory watches a directory that appeared under an attachment
// root and reports the files inside it.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil && w.logger != nil {
				w.logger.Debug("failed to watch new directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.syncDirectory(dirPath)
}

func (w *Watcher) underAttachDir(path string) bool {
	w.mu.Lock()
	dirs := append([]string(nil), w.attachDirs...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, dir := range dirs {
		dirClean := filepath.Clean(dir)
		if dirClean == clean || inDir(dirClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	for _, e := range extensions {
		eNorm := strings.TrimPrefix(strings.ToLower(e), ".")
		extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
		if eNorm == extNorm {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceFunc(key string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	w.timers[key] = t
}

func (w *Watcher) cancelDebounce(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
		delete(w.timers, key)
	}
}

// AddAttachmentDir watches another attachment directory and optionally
// reports the files already in it.
func (w *Watcher) AddAttachmentDir(dir string, syncExisting bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	for _, d := range w.attachDirs {
		if filepath.Clean(d) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := w.addDirLocked(abs); err != nil {
		return err
	}
	w.attachDirs = append(w.attachDirs, abs)
	if w.logger != nil {
		w.logger.Debug("attachment directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	}
	if syncExisting && w.onChanged != nil {
		go w.syncDirectory(abs)
	}
	return nil
}

func (w *Watcher) addDirLocked(dir string) error {
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.dirPaths[dir] = paths
	return nil
}

func (w *Watcher) syncDirectory(dir string) {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	onChanged := w.onChanged
	logger := w.logger
	w.mu.Unlock()
	if logger != nil {
		logger.Debug("syncing attachment directory", zap.String("dir", dir))
	}
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if matchExtension(path, exts) && onChanged != nil {
			onChanged(path)
		}
		return nil
	})
}

// RemoveAttachmentDir stops watching a directory. Indexed content is kept.
func (w *Watcher) RemoveAttachmentDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	idx := -1
	for i, d := range w.attachDirs {
		if filepath.Clean(d) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range w.dirPaths[abs] {
		_ = w.watcher.Remove(p)
	}
	delete(w.dirPaths, abs)
	w.attachDirs = append(w.attachDirs[:idx], w.attachDirs[idx+1:]...)
	if w.logger != nil {
		w.logger.Debug("attachment directory removed", zap.String("path", abs))
	}
	return nil
}

// AttachmentDirs returns a copy of the watched attachment directories.
func (w *Watcher) AttachmentDirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.attachDirs...)
}

// SyncExisting reports every matching file already present under the
// watched directories. Call after Start to pick up pre-existing
// attachments.
func (w *Watcher) SyncExisting() {
	w.mu.Lock()
	dirs := append([]string(nil), w.attachDirs...)
	w.mu.Unlock()
	for _, dir := range dirs {
		w.syncDirectory(dir)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
