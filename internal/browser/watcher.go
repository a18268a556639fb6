package browser

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"caaasearch/internal/logging"
)

// cookieWatcher marks the cookie jar stale when the external refresh flow
// rewrites it. The directory is watched rather than the file because the
// refresh flow replaces the file, which would orphan a file-level watch.
type cookieWatcher struct {
	watcher *fsnotify.Watcher
	file    string

	mu    sync.Mutex
	stale bool

	stopCh chan struct{}
	doneCh chan struct{}
}

func newCookieWatcher(cookieFile string) (*cookieWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(cookieFile)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &cookieWatcher{
		watcher: w,
		file:    filepath.Base(cookieFile),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking.
func (cw *cookieWatcher) Start(ctx context.Context) {
	go cw.run(ctx)
}

func (cw *cookieWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.BrowserWarn("Cookie watcher error: %v", err)
		}
	}
}

func (cw *cookieWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != cw.file {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	logging.Browser("Cookie jar changed on disk (%s), will reload before the next search", event.Op)
	cw.mu.Lock()
	cw.stale = true
	cw.mu.Unlock()
}

// Stale reports whether the jar changed since the last markFresh.
func (cw *cookieWatcher) Stale() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.stale
}

func (cw *cookieWatcher) markFresh() {
	cw.mu.Lock()
	cw.stale = false
	cw.mu.Unlock()
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (cw *cookieWatcher) Stop() {
	close(cw.stopCh)
	<-cw.doneCh
	if err := cw.watcher.Close(); err != nil {
		logging.BrowserWarn("Error closing cookie watcher: %v", err)
	}
}
