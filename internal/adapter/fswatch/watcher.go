// Package fswatch registers personas dropped into the persona directory
// while the node runs.
package fswatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ascension-labs/govcore/internal/domain/persona"
)

const defaultDebounce = 250 * time.Millisecond

// Registrar accepts a loaded persona.
type Registrar interface {
	Register(p *persona.Persona) error
}

// Watcher loads persona YAML files as they are created or written.
// Removing a file does not unregister its persona.
type Watcher struct {
	dir      string
	reg      Registrar
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher on dir, creating the directory if needed.
func New(dir string, reg Registrar, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create persona dir %s: %w", dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		reg:      reg,
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.close()
	slog.Info("persona watcher started", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !persona.IsPersonaFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("persona watcher error", "error", err)
		}
	}
}

// schedule loads path once writes to it have been quiet for the debounce.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.load(path)
	})
}

func (w *Watcher) load(path string) {
	p, err := persona.LoadFromFile(path)
	if err != nil {
		slog.Warn("persona file rejected", "path", path, "error", err)
		return
	}
	if err := w.reg.Register(p); err != nil {
		slog.Warn("persona registration failed", "key", p.Key, "error", err)
		return
	}
	slog.Info("persona loaded from file", "key", p.Key, "path", path)
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	_ = w.fsw.Close()
}
