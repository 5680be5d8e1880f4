package graph

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"ontoforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is invoked once a changed artifact has settled on disk.
type ReloadFunc func(ctx context.Context, path string)

// ArtifactWatcher watches a run's outcome directory for changes to the
// compiled ontology (.mg) and the entities index (.json) and triggers a
// reload after edits settle. It lets a long-lived retrieval session pick
// up a re-run build without restarting.
type ArtifactWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	reload      ReloadFunc
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for debugging.
type WatcherStats struct {
	FilesCreated  int
	FilesModified int
	FilesRemoved  int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// NewArtifactWatcher creates a watcher over dir. The reload callback runs
// on the watcher goroutine; keep it quick or hand off.
func NewArtifactWatcher(dir string, reload ReloadFunc) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ArtifactWatcher{
		watcher:     watcher,
		dir:         dir,
		reload:      reload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled in a goroutine.
func (w *ArtifactWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		logging.GraphWarn("artifact watcher: create dir %s: %v", w.dir, err)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		logging.GraphWarn("artifact watcher: watch %s failed: %v", w.dir, err)
	} else {
		logging.Graph("artifact watcher: watching %s", w.dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *ArtifactWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.GraphError("artifact watcher: close: %v", err)
	}
	logging.Graph("artifact watcher: stopped")
}

// IsWatching reports whether the watcher is currently running.
func (w *ArtifactWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns the current watcher statistics.
func (w *ArtifactWatcher) GetStats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *ArtifactWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

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

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.GraphError("artifact watcher: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *ArtifactWatcher) handleEvent(event fsnotify.Event) {
	if !isArtifact(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name

	switch {
	case event.Op&fsnotify.Create != 0:
		w.stats.FilesCreated++
	case event.Op&fsnotify.Write != 0:
		w.stats.FilesModified++
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.stats.FilesRemoved++
		delete(w.debounceMap, event.Name)
		return
	default:
		return
	}

	logging.GraphDebug("artifact watcher: change on %s", event.Name)
	w.debounceMap[event.Name] = time.Now()
}

func (w *ArtifactWatcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		logging.Graph("artifact watcher: reloading %s", path)
		w.mu.Lock()
		w.stats.Reloads++
		w.mu.Unlock()
		w.reload(ctx, path)
	}
}

func isArtifact(path string) bool {
	return strings.HasSuffix(path, ".mg") || strings.HasSuffix(path, ".json")
}
