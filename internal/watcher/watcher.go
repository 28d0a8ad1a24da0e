// Package watcher resyncs the content directory when member documents
// change on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/randalmurphal/famplan/internal/fsutil"
	"github.com/randalmurphal/famplan/internal/lock"
	"github.com/randalmurphal/famplan/internal/markdown"
	"github.com/randalmurphal/famplan/internal/reconcile"
)

// syncKey is the single debounce key: every change leads to one full pass.
const syncKey = "sync"

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// Syncer reconciles the content directory.
type Syncer interface {
	SyncDir(ctx context.Context) (*reconcile.Summary, error)
}

// Config configures a Watcher.
type Config struct {
	// Dir is the content directory.
	Dir string
	// Pattern selects documents relative to Dir (default "*.md").
	Pattern  string
	Syncer   Syncer
	Logger   *slog.Logger
	Debounce time.Duration
	// OnSync, if set, is called after every pass.
	OnSync func(*reconcile.Summary, error)
}

// Watcher watches a content directory and triggers a sync after changes
// settle.
type Watcher struct {
	dir     string
	pattern string
	syncer  Syncer
	logger  *slog.Logger
	onSync  func(*reconcile.Summary, error)

	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer

	// checksums of the last seen content per document, to skip no-op writes
	hashes   map[string]string
	hashesMu sync.Mutex

	ctx    context.Context
	syncMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher. Start begins watching.
func New(cfg *Config) (*Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("content dir is required")
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = markdown.DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid content pattern %q", pattern)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:       filepath.Clean(cfg.Dir),
		pattern:   pattern,
		syncer:    cfg.Syncer,
		logger:    logger,
		onSync:    cfg.OnSync,
		fsWatcher: fsWatcher,
		hashes:    make(map[string]string),
		ctx:       context.Background(),
		done:      make(chan struct{}),
	}
	w.debouncer = NewDebouncer(debounce, w.handleDebounced)
	return w, nil
}

// Start runs an initial sync, then watches until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	if err := w.addWatchRecursive(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.seedHashes()

	w.logger.Info("file watcher started", "dir", w.dir, "pattern", w.pattern)
	w.runSync()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopping", "reason", "context cancelled")
			_ = w.Stop()
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// Stop stops watching and cancels pending syncs.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.debouncer.Stop()
		if cerr := w.fsWatcher.Close(); cerr != nil {
			err = fmt.Errorf("close fsnotify watcher: %w", cerr)
		}
		w.logger.Info("file watcher stopped")
	})
	return err
}

// Done returns a channel closed when the watcher stops.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) addWatchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip paths with errors
		}
		if d.IsDir() {
			if err := w.fsWatcher.Add(path); err != nil {
				w.logger.Debug("failed to watch directory", "path", path, "error", err)
				return nil
			}
			w.logger.Debug("watching directory", "path", path)
		}
		return nil
	})
}

func (w *Watcher) seedHashes() {
	matches, err := markdown.Match(os.DirFS(w.dir), w.pattern)
	if err != nil {
		return
	}
	for _, rel := range matches {
		_, _ = w.hasContentChanged(filepath.Join(w.dir, filepath.FromSlash(rel)))
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.logger.Debug("new directory detected, adding watch", "path", path)
			if err := w.addWatchRecursive(path); err != nil {
				w.logger.Debug("failed to watch new directory", "path", path, "error", err)
			}
			// Files may have landed before the watch was added.
			w.debouncer.Trigger(syncKey, path)
			return
		}
	}

	if !w.isDocument(path) {
		return
	}

	w.logger.Debug("document fs event", "op", event.Op.String(), "path", path)

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.removeHash(path)
		w.debouncer.TriggerDelete(syncKey, path)
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
		w.debouncer.CancelDelete(path)
		changed, err := w.hasContentChanged(path)
		if err != nil {
			w.logger.Debug("failed to hash document", "path", path, "error", err)
			return
		}
		if !changed {
			return
		}
		w.debouncer.Trigger(syncKey, path)
	}
}

// isDocument reports whether path is inside the content dir and matches
// the pattern. The lock file and temp files never match.
func (w *Watcher) isDocument(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	base := filepath.Base(rel)
	if base == lock.LockFileName || strings.HasPrefix(base, fsutil.TempPrefix) ||
		strings.HasPrefix(base, ".#") || strings.HasSuffix(base, "~") {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

func (w *Watcher) handleDebounced(_, path string) {
	w.logger.Debug("changes settled, syncing", "trigger", path)
	w.runSync()
}

// runSync runs one pass. Passes never overlap.
func (w *Watcher) runSync() {
	select {
	case <-w.done:
		return
	default:
	}

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	summary, err := w.syncer.SyncDir(w.ctx)
	if err != nil {
		w.logger.Error("sync failed", "dir", w.dir, "error", err)
	} else {
		w.logger.Info(summary.Message(), "removed", summary.TasksRemoved)
	}
	if w.onSync != nil {
		w.onSync(summary, err)
	}
}

// hasContentChanged reports whether path's checksum differs from the last
// one seen and records the new checksum.
func (w *Watcher) hasContentChanged(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	sum := markdown.Checksum(data)

	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	old, exists := w.hashes[path]
	w.hashes[path] = sum
	return !exists || old != sum, nil
}

func (w *Watcher) removeHash(path string) {
	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	delete(w.hashes, path)
}
