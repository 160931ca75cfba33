package fingerprint

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeintel/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cached fingerprints as files change on disk between
// explicit Sync calls, so a stale hash can never be served as current. It
// does not chunk or embed anything itself; a caller still drives Sync. Once
// the debounce interval has passed, an invalidated file has no stored
// fingerprint, so the next GetChangedFiles call reports it as Added whatever
// its mtime. NeedsSync depends only on the last sync time and is unaffected.
type Watcher struct {
	mu          sync.Mutex
	store       *Store
	watcher     *fsnotify.Watcher
	extensions  map[string]bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher builds a Watcher over store's repository root, restricted to
// the given file extensions (e.g. []string{".go", ".py"}).
func NewWatcher(store *Store, extensions []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[strings.ToLower(e)] = true
	}

	return &Watcher{
		store:       store,
		watcher:     fw,
		extensions:  extSet,
		debounceMap: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start recursively adds the repository tree to the watch list and begins
// the event loop in a goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirs(w.store.repoRoot); err != nil {
		logging.Get(logging.CategoryFingerprint).Warn("watcher: failed to add initial dirs: %v", err)
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Stop halts the event loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-ticker.C:
			w.flushDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	ext := strings.ToLower(filepath.Ext(event.Name))
	if !w.extensions[ext] {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushDebounced() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		rel, err := filepath.Rel(w.store.repoRoot, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		w.store.Forget(rel)
		logging.FingerprintDebug("watcher: invalidated fingerprint for %s", rel)
	}
}
