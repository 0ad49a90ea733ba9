// Package watcher keeps a load running: it watches the source tree and
// triggers a fresh pass whenever qualifying files change. Rapid event
// bursts (bulk copies, editors writing temp files) are coalesced into a
// single trigger so the pipeline is not thrashed.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuietWindow is how long the tree must be quiet after the last
// event before a pass is triggered.
const DefaultQuietWindow = 2 * time.Second

// Watcher observes a source tree and emits one trigger per quiet burst
// of changes.
type Watcher struct {
	root   string
	window time.Duration
	logger *slog.Logger

	fsw      *fsnotify.Watcher
	triggers chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher over root. Subdirectories present at start are
// watched; directories created later are added as they appear.
func New(root string, window time.Duration, logger *slog.Logger) (*Watcher, error) {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		window:   window,
		logger:   logger,
		fsw:      fsw,
		triggers: make(chan struct{}, 1),
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("watch_walk_error",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				w.logger.Warn("watch_add_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

// Triggers delivers at most one pending trigger; consumers drain it and
// run a pass.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New directories must be added before files land in them.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addTree(event.Name)
			return
		}
	}

	if !relevant(event) {
		return
	}
	w.logger.Debug("watch_event",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()))
	w.scheduleTrigger()
}

// relevant filters to events that could change pass results: writes,
// creates and renames of .xml files.
func relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext == ".xml"
}

func (w *Watcher) scheduleTrigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		select {
		case w.triggers <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Close stops watching. Run returns after Close.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
