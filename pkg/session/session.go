// Package session tracks per-actor session state, most importantly which
// actor the current process is acting as. State lives in
// .gitgov/.session.json and is never read by adapters directly; they go
// through the Manager interface.
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// State is one actor's opaque session payload.
type State map[string]any

// Session is the whole session document.
type Session struct {
	ActorID string           `json:"actorId,omitempty"` // acting actor for this workspace
	Actors  map[string]State `json:"actorState"`
}

// Manager is the session collaborator the engine consumes.
type Manager interface {
	LoadSession(ctx context.Context) (*Session, error)
	GetActorState(ctx context.Context, actorID string) (State, error)
	UpdateActorState(ctx context.Context, actorID string, state State) error
	RemoveActorState(ctx context.Context, actorID string) error
	SetCurrentActor(ctx context.Context, actorID string) error
	CurrentActorID(ctx context.Context) (string, error)
}

// FileName is the session file under the .gitgov root.
const FileName = ".session.json"

// FileManager persists the session document as JSON.
type FileManager struct {
	mu   sync.Mutex
	path string
}

// NewFileManager manages the session file under root (the .gitgov dir).
func NewFileManager(root string) *FileManager {
	return &FileManager{path: filepath.Join(root, FileName)}
}

// LoadSession reads the session document; a missing file is an empty
// session, not an error.
func (m *FileManager) LoadSession(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

// GetActorState returns the actor's state, nil when none recorded.
func (m *FileManager) GetActorState(_ context.Context, actorID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.read()
	if err != nil {
		return nil, err
	}
	return s.Actors[actorID], nil
}

// UpdateActorState replaces the actor's state.
func (m *FileManager) UpdateActorState(_ context.Context, actorID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.read()
	if err != nil {
		return err
	}
	s.Actors[actorID] = state
	return m.write(s)
}

// RemoveActorState drops the actor's state, e.g. after key rotation.
func (m *FileManager) RemoveActorState(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.read()
	if err != nil {
		return err
	}
	delete(s.Actors, actorID)
	if s.ActorID == actorID {
		s.ActorID = ""
	}
	return m.write(s)
}

// SetCurrentActor records which actor this workspace acts as.
func (m *FileManager) SetCurrentActor(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.read()
	if err != nil {
		return err
	}
	s.ActorID = actorID
	return m.write(s)
}

// CurrentActorID returns the acting actor id, "" when unset.
func (m *FileManager) CurrentActorID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.read()
	if err != nil {
		return "", err
	}
	return s.ActorID, nil
}

func (m *FileManager) read() (*Session, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return &Session{Actors: make(map[string]State)}, nil
	}
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "read session")
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "parse session")
	}
	if s.Actors == nil {
		s.Actors = make(map[string]State)
	}
	return &s, nil
}

func (m *FileManager) write(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return record.Wrap(record.CodeInvalidData, err, "encode session")
	}
	if err := os.WriteFile(m.path, append(data, '\n'), 0o644); err != nil {
		return record.Wrap(record.CodeIOError, err, "write session")
	}
	return nil
}

// MemoryManager is an in-process Manager for tests.
type MemoryManager struct {
	mu      sync.Mutex
	session Session
}

// NewMemoryManager creates an empty in-memory session.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{session: Session{Actors: make(map[string]State)}}
}

// LoadSession returns a copy of the in-memory session.
func (m *MemoryManager) LoadSession(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := Session{ActorID: m.session.ActorID, Actors: make(map[string]State, len(m.session.Actors))}
	for k, v := range m.session.Actors {
		cp.Actors[k] = v
	}
	return &cp, nil
}

// GetActorState returns the actor's state, nil when none recorded.
func (m *MemoryManager) GetActorState(_ context.Context, actorID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Actors[actorID], nil
}

// UpdateActorState replaces the actor's state.
func (m *MemoryManager) UpdateActorState(_ context.Context, actorID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Actors[actorID] = state
	return nil
}

// RemoveActorState drops the actor's state.
func (m *MemoryManager) RemoveActorState(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.session.Actors, actorID)
	if m.session.ActorID == actorID {
		m.session.ActorID = ""
	}
	return nil
}

// SetCurrentActor records the acting actor.
func (m *MemoryManager) SetCurrentActor(_ context.Context, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.ActorID = actorID
	return nil
}

// CurrentActorID returns the acting actor id, "" when unset.
func (m *MemoryManager) CurrentActorID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.ActorID, nil
}

var (
	_ Manager = (*FileManager)(nil)
	_ Manager = (*MemoryManager)(nil)
)
