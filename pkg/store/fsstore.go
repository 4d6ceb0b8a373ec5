package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// Directory names per record kind under the .gitgov root.
const (
	DirActors     = "actors"
	DirAgents     = "agents"
	DirTasks      = "tasks"
	DirCycles     = "cycles"
	DirFeedback   = "feedback"
	DirExecutions = "executions"
	DirChangelogs = "changelogs"
)

// SafeID maps a record id to its filename stem (':' → '_').
func SafeID(id string) string {
	return strings.ReplaceAll(id, ":", "_")
}

// FileStore persists one record kind as individual JSON files in a
// directory. Writes are atomic (temp file + rename).
type FileStore[T any] struct {
	dir       string
	load      Loader[T]
	mapColons bool // actor-style ids carry ':' which maps to '_' on disk
}

// NewFileStore creates the directory if needed and returns the store.
// mapColons must be true for kinds whose ids contain ':' (actors, agents).
func NewFileStore[T any](dir string, load Loader[T], mapColons bool) (*FileStore[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "create store dir %s", dir)
	}
	return &FileStore[T]{dir: dir, load: load, mapColons: mapColons}, nil
}

func (s *FileStore[T]) path(id string) string {
	return filepath.Join(s.dir, SafeID(id)+".json")
}

// Get reads and validates one record; (nil, nil) when the file is absent.
func (s *FileStore[T]) Get(_ context.Context, id string) (*record.Record[T], error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "read record %s", id)
	}
	return s.load(data)
}

// Put serializes rec with 2-space indentation and writes it atomically.
func (s *FileStore[T]) Put(_ context.Context, id string, rec *record.Record[T]) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return record.Wrap(record.CodeInvalidData, err, "marshal record %s", id)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+SafeID(id)+".*")
	if err != nil {
		return record.Wrap(record.CodeIOError, err, "create temp for %s", id)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return record.Wrap(record.CodeIOError, err, "write record %s", id)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return record.Wrap(record.CodeIOError, err, "close temp for %s", id)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		_ = os.Remove(tmpName)
		return record.Wrap(record.CodeIOError, err, "rename record %s", id)
	}
	return nil
}

// Delete removes the record file; deleting a missing id is a no-op.
func (s *FileStore[T]) Delete(_ context.Context, id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return record.Wrap(record.CodeIOError, err, "delete record %s", id)
	}
	return nil
}

// List enumerates record ids (filename stems, '_' mapped back to ':' for
// colon-bearing kinds), sorted for determinism.
func (s *FileStore[T]) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "list %s", s.dir)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if s.mapColons {
			id = strings.ReplaceAll(id, "_", ":")
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether a record file exists for id.
func (s *FileStore[T]) Exists(_ context.Context, id string) (bool, error) {
	_, err := os.Stat(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, record.Wrap(record.CodeIOError, err, "stat record %s", id)
	}
	return true, nil
}

// NewFileStores wires the full per-kind store set under root (the .gitgov
// directory).
func NewFileStores(root string) (*Stores, error) {
	actors, err := NewFileStore(filepath.Join(root, DirActors), record.LoadActor, true)
	if err != nil {
		return nil, err
	}
	agents, err := NewFileStore(filepath.Join(root, DirAgents), record.LoadAgent, true)
	if err != nil {
		return nil, err
	}
	tasks, err := NewFileStore(filepath.Join(root, DirTasks), record.LoadTask, false)
	if err != nil {
		return nil, err
	}
	cycles, err := NewFileStore(filepath.Join(root, DirCycles), record.LoadCycle, false)
	if err != nil {
		return nil, err
	}
	feedback, err := NewFileStore(filepath.Join(root, DirFeedback), record.LoadFeedback, false)
	if err != nil {
		return nil, err
	}
	executions, err := NewFileStore(filepath.Join(root, DirExecutions), record.LoadExecution, false)
	if err != nil {
		return nil, err
	}
	changelogs, err := NewFileStore(filepath.Join(root, DirChangelogs), record.LoadChangelog, false)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Actors:     actors,
		Agents:     agents,
		Tasks:      tasks,
		Cycles:     cycles,
		Feedback:   feedback,
		Executions: executions,
		Changelogs: changelogs,
	}, nil
}

var _ Store[record.TaskPayload] = (*FileStore[record.TaskPayload])(nil)

// Root returns the directory this store writes into.
func (s *FileStore[T]) Root() string { return s.dir }

// Kind directory helper used by the watcher to map paths back to kinds.
func kindForDir(dir string) (record.Kind, bool) {
	switch filepath.Base(dir) {
	case DirActors:
		return record.KindActor, true
	case DirAgents:
		return record.KindAgent, true
	case DirTasks:
		return record.KindTask, true
	case DirCycles:
		return record.KindCycle, true
	case DirFeedback:
		return record.KindFeedback, true
	case DirExecutions:
		return record.KindExecution, true
	case DirChangelogs:
		return record.KindChangelog, true
	}
	return "", false
}
