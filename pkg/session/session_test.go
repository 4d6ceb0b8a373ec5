package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runManagerContract(t *testing.T, m Manager) {
	t.Helper()
	ctx := context.Background()

	// empty session
	id, err := m.CurrentActorID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
	state, err := m.GetActorState(ctx, "human:ada")
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, m.SetCurrentActor(ctx, "human:ada"))
	id, err = m.CurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "human:ada", id)

	require.NoError(t, m.UpdateActorState(ctx, "human:ada", State{"lastSeen": "today"}))
	state, err = m.GetActorState(ctx, "human:ada")
	require.NoError(t, err)
	assert.Equal(t, "today", state["lastSeen"])

	// removing the acting actor's state also clears the pointer
	require.NoError(t, m.RemoveActorState(ctx, "human:ada"))
	state, err = m.GetActorState(ctx, "human:ada")
	require.NoError(t, err)
	assert.Nil(t, state)
	id, err = m.CurrentActorID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFileManagerContract(t *testing.T) {
	runManagerContract(t, NewFileManager(t.TempDir()))
}

func TestMemoryManagerContract(t *testing.T) {
	runManagerContract(t, NewMemoryManager())
}

func TestFileManagerPersistsAcrossInstances(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first := NewFileManager(root)
	require.NoError(t, first.SetCurrentActor(ctx, "human:ada"))
	require.NoError(t, first.UpdateActorState(ctx, "human:ada", State{"theme": "dark"}))

	second := NewFileManager(root)
	id, err := second.CurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "human:ada", id)
	state, err := second.GetActorState(ctx, "human:ada")
	require.NoError(t, err)
	assert.Equal(t, "dark", state["theme"])
}

func TestFileManagerMissingFileIsEmptySession(t *testing.T) {
	m := NewFileManager(t.TempDir())
	s, err := m.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.ActorID)
	assert.NotNil(t, s.Actors)
}

func TestFileManagerRejectsCorruptFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("{broken"), 0o644))

	m := NewFileManager(root)
	_, err := m.LoadSession(context.Background())
	assert.Error(t, err)
}

func TestMemoryManagerLoadSessionReturnsCopy(t *testing.T) {
	m := NewMemoryManager()
	ctx := context.Background()
	require.NoError(t, m.SetCurrentActor(ctx, "human:ada"))

	s, err := m.LoadSession(ctx)
	require.NoError(t, err)
	s.ActorID = "human:eve"

	id, err := m.CurrentActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "human:ada", id)
}
