package context

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"contextforge/internal/chunk"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSessionIDNew(t *testing.T) {
	id1 := NewSessionID()
	id2 := NewSessionID()
	require.NotEqual(t, id1, id2)
}

func TestSessionIDFromUUID(t *testing.T) {
	u := uuid.New()
	id := SessionIDFromUUID(u)
	require.Equal(t, u, id.id)
}

func TestSessionIDParseRoundTrip(t *testing.T) {
	id := NewSessionID()
	parsed, err := ParseSessionID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestSessionIDParseInvalid(t *testing.T) {
	_, err := ParseSessionID("not-a-uuid")
	require.Error(t, err)
}

func TestManagerNewSession(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)
	require.NotEmpty(t, mgr.SessionID().String())
}

func TestManagerResumeSession(t *testing.T) {
	dir := t.TempDir()
	sessionID := NewSessionID()

	mgr1, err := NewManager(dir, sessionID)
	require.NoError(t, err)
	_, err = mgr1.StoreMessage("user", "Hello", nil)
	require.NoError(t, err)
	require.NoError(t, mgr1.Close())

	mgr2, err := ResumeSessionManager(dir, sessionID)
	require.NoError(t, err)
	require.Equal(t, sessionID, mgr2.SessionID())
}

func TestManagerStoreMessage(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	id, err := mgr.StoreMessage("user", "Hello, world!", nil)
	require.NoError(t, err)

	c, err := mgr.GetChunk(id)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, chunk.TypeMessage, c.Type)
}

func TestManagerStoreToolCall(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	id, err := mgr.StoreToolCall("file_read", map[string]any{"path": "/test.txt"}, "File contents", false, nil)
	require.NoError(t, err)

	c, err := mgr.GetChunk(id)
	require.NoError(t, err)
	require.Equal(t, chunk.TypeToolCall, c.Type)
}

func TestManagerStoreSummary(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	msgID, err := mgr.StoreMessage("user", "Hello", nil)
	require.NoError(t, err)
	summaryID, err := mgr.StoreSummary("User said hello", []uuid.UUID{msgID}, nil)
	require.NoError(t, err)

	c, err := mgr.GetChunk(summaryID)
	require.NoError(t, err)
	require.Equal(t, chunk.TypeSummary, c.Type)
}

func TestManagerGetAllChunks(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.StoreMessage("user", "First", nil)
	require.NoError(t, err)
	_, err = mgr.StoreMessage("assistant", "Second", nil)
	require.NoError(t, err)
	_, err = mgr.StoreMessage("user", "Third", nil)
	require.NoError(t, err)

	chunks, err := mgr.GetAllChunks()
	require.NoError(t, err)
	require.Len(t, chunks, 3)
}

func TestManagerGetRecentChunks(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := mgr.StoreMessage("user", fmt.Sprintf("Message %d", i), nil)
		require.NoError(t, err)
	}

	recent, err := mgr.GetRecentChunks(5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
}

func TestManagerGetChunksByType(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.StoreMessage("user", "Hello", nil)
	require.NoError(t, err)
	_, err = mgr.StoreToolCall("test", map[string]any{}, "output", false, nil)
	require.NoError(t, err)
	_, err = mgr.StoreMessage("assistant", "Hi", nil)
	require.NoError(t, err)

	messages, err := mgr.GetChunksByType(chunk.TypeMessage)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	toolCalls, err := mgr.GetChunksByType(chunk.TypeToolCall)
	require.NoError(t, err)
	require.Len(t, toolCalls, 1)
}

func TestManagerClear(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.StoreMessage("user", "Hello", nil)
	require.NoError(t, err)
	_, err = mgr.StoreMessage("assistant", "Hi", nil)
	require.NoError(t, err)

	before, err := mgr.GetAllChunks()
	require.NoError(t, err)
	require.Len(t, before, 2)

	require.NoError(t, mgr.Clear())

	after, err := mgr.GetAllChunks()
	require.NoError(t, err)
	require.Empty(t, after)
}

func TestManagerStats(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	_, err = mgr.StoreMessage("user", "Hello", nil)
	require.NoError(t, err)
	_, err = mgr.StoreMessage("assistant", "Hi", nil)
	require.NoError(t, err)

	stats, err := mgr.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.HotChunks)
	require.Greater(t, stats.TotalTokens, uint32(0))
}

func TestManagerCompact(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := mgr.StoreMessage("user", fmt.Sprintf("Message %d", i), nil)
		require.NoError(t, err)
	}

	require.NoError(t, mgr.Compact())
}

func TestManagerGetNonexistentChunk(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	c, err := mgr.GetChunk(uuid.New())
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestManagerProjectRootInitiallyUnset(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	_, ok := mgr.ProjectRoot()
	require.False(t, ok)
}

func TestManagerSetProjectRootWithoutTree(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)
	projectDir := t.TempDir()

	require.NoError(t, mgr.SetProjectRoot(projectDir, false))

	root, ok := mgr.ProjectRoot()
	require.True(t, ok)
	require.Equal(t, projectDir, root)
	require.False(t, mgr.HasFileTree())
}

func TestManagerHasFileTreeFalseInitially(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)
	require.False(t, mgr.HasFileTree())
}

func TestManagerFileTreeContextNoneInitially(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)
	_, ok := mgr.FileTreeContext()
	require.False(t, ok)
}

func TestManagerSetProjectRootWithTree(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "src", "lib.go"), []byte("package src"), 0644))

	require.NoError(t, mgr.SetProjectRoot(projectDir, true))

	require.True(t, mgr.HasFileTree())
	ctxStr, ok := mgr.FileTreeContext()
	require.True(t, ok)
	require.NotEmpty(t, ctxStr)
}

func TestManagerRefreshFileTree(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "test.go"), []byte("package test"), 0644))

	require.NoError(t, mgr.SetProjectRoot(projectDir, false))
	require.False(t, mgr.HasFileTree())

	require.NoError(t, mgr.RefreshFileTree())
	require.True(t, mgr.HasFileTree())
}

func TestManagerRefreshFileTreeNoProjectRoot(t *testing.T) {
	mgr, err := NewSessionManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, mgr.RefreshFileTree())
	require.False(t, mgr.HasFileTree())
}
