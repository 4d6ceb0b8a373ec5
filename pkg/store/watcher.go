package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/record"
)

// Watcher observes the record tree and republishes external file changes
// (a git pull, a manual edit) as store.record.changed events, so reactive
// handlers see mutations the engine did not make itself.
type Watcher struct {
	fsw    *fsnotify.Watcher
	bus    *eventbus.Bus
	logger *slog.Logger
}

// NewWatcher starts watching every record kind directory under root.
func NewWatcher(root string, bus *eventbus.Bus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "create fs watcher")
	}
	for _, dir := range []string{
		DirActors, DirAgents, DirTasks, DirCycles, DirFeedback, DirExecutions, DirChangelogs,
	} {
		if err := fsw.Add(filepath.Join(root, dir)); err != nil {
			_ = fsw.Close()
			return nil, record.Wrap(record.CodeIOError, err, "watch %s", dir)
		}
	}
	return &Watcher{
		fsw:    fsw,
		bus:    bus,
		logger: slog.Default().With("component", "store_watcher"),
	}, nil
}

// Run consumes filesystem events until ctx is done or the watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return
	}
	kind, ok := kindForDir(filepath.Dir(ev.Name))
	if !ok {
		return
	}
	id := strings.TrimSuffix(name, ".json")
	if kind == record.KindActor || kind == record.KindAgent {
		id = strings.ReplaceAll(id, "_", ":")
	}

	var op string
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = "create"
	case ev.Op.Has(fsnotify.Write):
		op = "write"
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		op = "remove"
	default:
		return
	}

	w.bus.Publish(eventbus.NewEvent(eventbus.TypeRecordChanged, "store_watcher", map[string]any{
		"kind": string(kind),
		"id":   id,
		"op":   op,
		"path": ev.Name,
	}))
}
