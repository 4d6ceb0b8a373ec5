package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// MemoryStore is an in-process Store used by tests and by the runtime
// when no working directory is configured. Records are deep-copied via
// JSON on the way in and out so callers cannot alias store state.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string][]byte
	load    Loader[T]
}

// NewMemoryStore creates an empty in-memory store. load may be nil, in
// which case plain JSON decoding is used on reads.
func NewMemoryStore[T any](load Loader[T]) *MemoryStore[T] {
	return &MemoryStore[T]{records: make(map[string][]byte), load: load}
}

// Get returns a copy of the stored record, or (nil, nil) when absent.
func (s *MemoryStore[T]) Get(_ context.Context, id string) (*record.Record[T], error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.load != nil {
		return s.load(data)
	}
	var r record.Record[T]
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "decode record %s", id)
	}
	return &r, nil
}

// Put stores a serialized copy of rec. Last writer wins.
func (s *MemoryStore[T]) Put(_ context.Context, id string, rec *record.Record[T]) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return record.Wrap(record.CodeInvalidData, err, "encode record %s", id)
	}
	s.mu.Lock()
	s.records[id] = data
	s.mu.Unlock()
	return nil
}

// Delete removes the record; missing ids are a no-op.
func (s *MemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

// List returns all ids, sorted.
func (s *MemoryStore[T]) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether id is present.
func (s *MemoryStore[T]) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.records[id]
	s.mu.RUnlock()
	return ok, nil
}

var _ Store[record.TaskPayload] = (*MemoryStore[record.TaskPayload])(nil)

// NewMemoryStores wires a full in-memory store set (validating loaders,
// same contract as the filesystem set).
func NewMemoryStores() *Stores {
	return &Stores{
		Actors:     NewMemoryStore(record.LoadActor),
		Agents:     NewMemoryStore(record.LoadAgent),
		Tasks:      NewMemoryStore(record.LoadTask),
		Cycles:     NewMemoryStore(record.LoadCycle),
		Feedback:   NewMemoryStore(record.LoadFeedback),
		Executions: NewMemoryStore(record.LoadExecution),
		Changelogs: NewMemoryStore(record.LoadChangelog),
	}
}
