package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-runs the pipeline when an input file changes. It watches the
// parent directories of the inputs (editors replace files rather than
// write in place, so watching the files themselves misses saves),
// debounces rapid write bursts, and never overlaps runs: a change landing
// mid-run coalesces into one follow-up run.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	inputs      map[string]struct{}
	debounceMap map[string]time.Time
	debounceDur time.Duration
	trigger     chan struct{}
	stopCh      chan struct{}
	watchDone   chan struct{}
	runDone     chan struct{}
	running     bool
	onChange    func(ctx context.Context)
	logger      *zap.Logger

	stats WatchStats
}

// WatchStats tracks watcher activity.
type WatchStats struct {
	EventsSeen    int
	RunsTriggered int
	LastEventTime time.Time
	LastEventPath string
}

// NewWatcher creates a watcher over the given input files. onChange runs
// in the watcher's runner goroutine whenever a settled change is seen.
func NewWatcher(inputs []string, onChange func(ctx context.Context), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:     fsw,
		inputs:      make(map[string]struct{}, len(inputs)),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		trigger:     make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		watchDone:   make(chan struct{}),
		runDone:     make(chan struct{}),
		onChange:    onChange,
		logger:      logger,
	}

	dirs := make(map[string]struct{})
	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		w.inputs[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
		logger.Debug("watching directory", zap.String("dir", dir))
	}

	return w, nil
}

// Start begins watching. Non-blocking; the watch and runner goroutines run
// until Stop or context cancel.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.watchLoop(ctx)
	go w.runLoop(ctx)
}

// Stop stops the watcher and waits for both goroutines. Safe to call on a
// watcher that never started; the underlying file watcher is released
// either way.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.watchDone
		<-w.runDone
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing file watcher", zap.Error(err))
	}
}

// Stats returns a copy of the current counters.
func (w *Watcher) Stats() WatchStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.watchDone)

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

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-ticker.C:
			if w.collectSettled() {
				select {
				case w.trigger <- struct{}{}:
				default:
					// A run is already queued; the change coalesces.
				}
			}
		}
	}
}

func (w *Watcher) runLoop(ctx context.Context) {
	defer close(w.runDone)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.trigger:
			w.mu.Lock()
			w.stats.RunsTriggered++
			w.mu.Unlock()
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	if event.Op&relevant == 0 {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	if _, watched := w.inputs[abs]; !watched {
		return
	}

	w.logger.Debug("input changed",
		zap.String("path", abs),
		zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.stats.EventsSeen++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = abs
	w.debounceMap[abs] = time.Now()
	w.mu.Unlock()
}

// collectSettled reports whether any recorded change has been quiet for
// the debounce window, clearing those entries.
func (w *Watcher) collectSettled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	settled := false
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled = true
		}
	}
	return settled
}
