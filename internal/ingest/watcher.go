package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher imports analysis files as they are created or rewritten.
type Watcher struct {
	importer *Importer
	dir      string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	// Changes collected between flushes.
	pendingMu sync.Mutex
	pending   map[string]struct{}

	results chan FileResult
	done    chan struct{}
}

// NewWatcher creates a watcher over dir. A zero debounce means 200ms.
func NewWatcher(im *Importer, dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{
		importer: im,
		dir:      dir,
		debounce: debounce,
		fsw:      fsw,
		logger:   im.logger,
		pending:  make(map[string]struct{}),
		results:  make(chan FileResult, 64),
		done:     make(chan struct{}),
	}, nil
}

// Results returns the channel of import outcomes. It is closed when the
// watcher stops.
func (w *Watcher) Results() <-chan FileResult {
	return w.results
}

// Start adds watches under the directory and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.dir); err != nil {
		w.fsw.Close()
		return err
	}
	go w.processEvents(ctx)
	w.logger.Info("Ingest watcher started", "dir", w.dir, "pattern", w.importer.pattern)
	return nil
}

// Wait blocks until the watcher has stopped.
func (w *Watcher) Wait() {
	<-w.done
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer func() {
		ticker.Stop()
		w.fsw.Close()
		close(w.results)
		close(w.done)
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainEvents()
			w.flushPending(context.WithoutCancel(ctx))
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && !strings.HasPrefix(filepath.Base(event.Name), ".") {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || !w.importer.Match(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = struct{}{}
	w.pendingMu.Unlock()
}

// drainEvents records events fsnotify has already queued.
func (w *Watcher) drainEvents() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		default:
			return
		}
	}
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	for _, path := range paths {
		res := FileResult{Path: path}
		plan, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			res.Err = err
			w.logger.Warn("Analysis import failed", "path", path, "error", err)
		} else {
			res.PlanID = plan.ID
			res.Tasks = len(plan.Tasks)
		}

		select {
		case w.results <- res:
		default:
			w.logger.Warn("Dropping ingest result, channel full", "path", path)
		}
	}
}
