package context

import (
	"context"
	"sync"
	"time"

	"contextforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// BackgroundCompactor periodically runs compaction on a Manager's store and,
// when a project root is configured, watches it for filesystem changes so
// the cached file tree stays current without a full poll-based refresh.
type BackgroundCompactor struct {
	manager  *Manager
	interval time.Duration

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBackgroundCompactor builds a compactor for manager that runs every interval.
func NewBackgroundCompactor(manager *Manager, interval time.Duration) *BackgroundCompactor {
	return &BackgroundCompactor{
		manager:  manager,
		interval: interval,
	}
}

// Start begins the compaction ticker (and, if a project root is set, the
// file-tree watcher) in a background goroutine. Non-blocking.
func (b *BackgroundCompactor) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	if root, ok := b.manager.ProjectRoot(); ok {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logging.Get(logging.CategoryContext).Warn("background compactor: fsnotify unavailable: %v (file tree is not refreshed automatically)", err)
		} else if err := watcher.Add(root); err != nil {
			logging.Get(logging.CategoryContext).Warn("background compactor: failed to watch project root %s: %v", root, err)
			watcher.Close()
		} else {
			b.watcher = watcher
			logging.Context("background compactor: watching project root %s for tree invalidation", root)
		}
	}

	go b.run(ctx)
	return nil
}

// Stop halts the compaction ticker and file-tree watcher, blocking until the
// background goroutine exits.
func (b *BackgroundCompactor) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	stopCh := b.stopCh
	doneCh := b.doneCh
	b.mu.Unlock()

	close(stopCh)
	<-doneCh

	if b.watcher != nil {
		b.watcher.Close()
	}
}

func (b *BackgroundCompactor) run(ctx context.Context) {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errors <-chan error
	if b.watcher != nil {
		events = b.watcher.Events
		errors = b.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			if err := b.manager.Compact(); err != nil {
				logging.Get(logging.CategoryContext).Warn("background compaction failed: %v", err)
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.Get(logging.CategoryContext).Debug("project root changed (%s), refreshing file tree", event.Name)
			if err := b.manager.RefreshFileTree(); err != nil {
				logging.Get(logging.CategoryContext).Warn("file tree refresh failed: %v", err)
			}
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			logging.Get(logging.CategoryContext).Warn("file tree watcher error: %v", err)
		}
	}
}

// IsRunning reports whether the compactor's background goroutine is active.
func (b *BackgroundCompactor) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
