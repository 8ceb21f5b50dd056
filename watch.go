package flowsim

// watch.go holds WatchedDiagram, a GraphSource backed by a diagram file that
// is read again whenever the file changes, so an instructor can edit the
// diagram while a simulation plays it.  The engine reads its source at the
// start of every tick, so an edit takes effect at the next tick.

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// WatchedDiagram serves the last successfully loaded version of a diagram file
type WatchedDiagram struct {
	filename string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.RWMutex
	dgm     *Diagram
	reloads int
	onLoad  []func(*Diagram)
}

// CreateWatchedDiagram reads the diagram file and begins watching it.  The file
// must load and validate; later versions that do not are logged and ignored
func CreateWatchedDiagram(filename string, logger *slog.Logger) (*WatchedDiagram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", filename, err)
	}
	wd := &WatchedDiagram{filename: absPath, logger: logger.With("diagram", absPath)}
	if err := wd.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	// watch the directory, editors often replace a file rather than write it
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}
	wd.watcher = watcher
	return wd, nil
}

// Reload reads the file now.  The served diagram is replaced only if the new
// version reads and validates
func (wd *WatchedDiagram) Reload() error {
	dgm, err := ReadDiagram(wd.filename, UseYAML(wd.filename), []byte{})
	if err != nil {
		return fmt.Errorf("loading diagram: %w", err)
	}
	if err := dgm.Validate(); err != nil {
		return fmt.Errorf("loading diagram %s: %w", wd.filename, err)
	}

	wd.mu.Lock()
	wd.dgm = dgm
	wd.reloads += 1
	onLoad := append([]func(*Diagram){}, wd.onLoad...)
	wd.mu.Unlock()

	for _, fn := range onLoad {
		fn(dgm.Clone())
	}
	return nil
}

// OnLoad registers a function called with each version of the diagram loaded after this call
func (wd *WatchedDiagram) OnLoad(fn func(*Diagram)) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	wd.onLoad = append(wd.onLoad, fn)
}

// Diagram returns a copy of the diagram being served
func (wd *WatchedDiagram) Diagram() *Diagram {
	wd.mu.RLock()
	defer wd.mu.RUnlock()
	return wd.dgm.Clone()
}

// Reloads is the number of versions of the file loaded, the first included
func (wd *WatchedDiagram) Reloads() int {
	wd.mu.RLock()
	defer wd.mu.RUnlock()
	return wd.reloads
}

// CurrentNodes returns the nodes of the diagram being served
func (wd *WatchedDiagram) CurrentNodes() []Node {
	wd.mu.RLock()
	defer wd.mu.RUnlock()
	return wd.dgm.CurrentNodes()
}

// CurrentEdges returns the edges of the diagram being served
func (wd *WatchedDiagram) CurrentEdges() []Edge {
	wd.mu.RLock()
	defer wd.mu.RUnlock()
	return wd.dgm.CurrentEdges()
}

// Run handles file change events until ctx is cancelled, then closes the watcher
func (wd *WatchedDiagram) Run(ctx context.Context) error {
	defer wd.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-wd.watcher.Events:
			if !ok {
				return nil
			}
			wd.handleWatchEvent(event)

		case err, ok := <-wd.watcher.Errors:
			if !ok {
				return nil
			}
			wd.logger.Warn("file watcher error", "error", err)
		}
	}
}

// handleWatchEvent reloads on any event that may have changed the file's contents
func (wd *WatchedDiagram) handleWatchEvent(event fsnotify.Event) {
	absPath, _ := filepath.Abs(event.Name)
	if absPath != wd.filename {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if err := wd.Reload(); err != nil {
		wd.logger.Warn("diagram change ignored", "error", err)
		return
	}
	wd.logger.Info("diagram reloaded", "version", wd.Reloads())
}

// Close stops watching without waiting for Run
func (wd *WatchedDiagram) Close() error {
	return wd.watcher.Close()
}
