// Package watch tells the scheduler that the source tree changed so the next
// cycle can start before the interval is over. It never touches the replica.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	rawEventBufferSize     = 64
	defaultDebounceTimeout = 250 * time.Millisecond
)

// FilterCallback returns true for paths whose events should be dropped.
type FilterCallback func(path string) bool

type SourceWatcher struct {
	watchDir  string
	rawEvents chan notify.EventInfo
	changes   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup

	debounceMu      sync.Mutex
	debounceTimer   *time.Timer
	debounceTimeout time.Duration

	filter   FilterCallback
	filterMu sync.RWMutex

	stopOnce sync.Once
}

func NewSourceWatcher(watchDir string) *SourceWatcher {
	return &SourceWatcher{
		watchDir:        watchDir,
		changes:         make(chan struct{}, 1),
		done:            make(chan struct{}),
		debounceTimeout: defaultDebounceTimeout,
	}
}

// SetDebounceTimeout sets how long the tree must be quiet before a change is
// reported.
func (w *SourceWatcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounceTimeout = timeout
}

func (w *SourceWatcher) FilterPaths(callback FilterCallback) {
	w.filterMu.Lock()
	defer w.filterMu.Unlock()
	w.filter = callback
}

// Changes receives at most one pending notification no matter how many
// events arrived while nobody was listening.
func (w *SourceWatcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *SourceWatcher) Start(ctx context.Context) error {
	slog.Info("source watcher start", "dir", w.watchDir)

	w.rawEvents = make(chan notify.EventInfo, rawEventBufferSize)
	recursivePath := filepath.Join(w.watchDir, "...")
	if err := notify.Watch(recursivePath, w.rawEvents, notify.All); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.handleEvents(ctx)

	return nil
}

func (w *SourceWatcher) Stop() {
	w.stopOnce.Do(func() {
		slog.Info("source watcher stopping")
		close(w.done)

		if w.rawEvents != nil {
			notify.Stop(w.rawEvents)
		}
		w.wg.Wait()

		w.debounceMu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.debounceMu.Unlock()

		slog.Info("source watcher stopped")
	})
}

func (w *SourceWatcher) handleEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.filtered(event.Path()) {
				continue
			}
			slog.Debug("source watcher", "event", event.Event(), "path", event.Path())
			w.debounce()
		}
	}
}

func (w *SourceWatcher) filtered(path string) bool {
	w.filterMu.RLock()
	defer w.filterMu.RUnlock()
	return w.filter != nil && w.filter(path)
}

// debounce restarts the quiet period. Bursts of writes to one file produce a
// single notification.
func (w *SourceWatcher) debounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTimeout, w.emit)
}

func (w *SourceWatcher) emit() {
	select {
	case w.changes <- struct{}{}:
	default:
		// already pending
	}
}
