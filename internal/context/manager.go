// Package context implements the tiered conversation-context storage system:
// a write-ahead-logged hot tier, a warm per-chunk-file tier, and a
// (optionally zstd-compressed) cold tier, fronted by a Manager that
// assigns sequence numbers, tracks the project file tree, and drives
// background compaction.
package context

import (
	"fmt"
	"path/filepath"
	"sync"

	"contextforge/internal/chunk"
	"contextforge/internal/contextstore"
	"contextforge/internal/logging"

	"github.com/google/uuid"
)

// SessionID identifies a single conversation session's context storage.
type SessionID struct {
	id uuid.UUID
}

// NewSessionID creates a new random session ID.
func NewSessionID() SessionID {
	return SessionID{id: uuid.New()}
}

// SessionIDFromUUID wraps an existing UUID as a SessionID.
func SessionIDFromUUID(id uuid.UUID) SessionID {
	return SessionID{id: id}
}

// ParseSessionID parses a session ID from its string form.
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return SessionID{id: id}, nil
}

// String returns the session ID's canonical UUID string.
func (s SessionID) String() string { return s.id.String() }

// Stats reports on a context manager's underlying storage.
type Stats = contextstore.Stats

// Manager is the main entry point for context operations: session
// lifecycle, chunk storage across tiers, the cached project file tree, and
// manual/background compaction.
type Manager struct {
	sessionID   SessionID
	storagePath string

	store *contextstore.Store

	mu       sync.RWMutex
	fileTree *FileTree

	fileTreeConfig FileTreeConfig

	projectRootMu sync.RWMutex
	projectRoot   string
}

// NewManager opens (or creates) context storage for the given session under
// storagePath/<sessionID>, using the context store's and file tree's own
// package defaults.
func NewManager(storagePath string, sessionID SessionID) (*Manager, error) {
	return NewManagerWithConfig(storagePath, sessionID, contextstore.DefaultConfig(), DefaultFileTreeConfig())
}

// NewManagerWithConfig opens (or creates) context storage for the given
// session under storagePath/<sessionID>, using storeConfig for tiering
// policy and fileTreeConfig for project file-tree snapshots.
func NewManagerWithConfig(storagePath string, sessionID SessionID, storeConfig contextstore.Config, fileTreeConfig FileTreeConfig) (*Manager, error) {
	sessionPath := filepath.Join(storagePath, sessionID.String())
	store, err := contextstore.OpenWithConfig(sessionPath, storeConfig)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}

	return &Manager{
		sessionID:      sessionID,
		storagePath:    storagePath,
		store:          store,
		fileTreeConfig: fileTreeConfig,
	}, nil
}

// NewSessionManager creates a context manager for a brand-new session.
func NewSessionManager(storagePath string) (*Manager, error) {
	return NewManager(storagePath, NewSessionID())
}

// ResumeSessionManager re-opens context storage for an existing session,
// recovering any hot-tier state from its WAL.
func ResumeSessionManager(storagePath string, sessionID SessionID) (*Manager, error) {
	return NewManager(storagePath, sessionID)
}

// SetProjectRoot records the project root and, if generateTree is true,
// immediately builds and stores the file tree as a core memory chunk.
func (m *Manager) SetProjectRoot(root string, generateTree bool) error {
	m.projectRootMu.Lock()
	m.projectRoot = root
	m.projectRootMu.Unlock()

	if generateTree {
		return m.RefreshFileTree()
	}
	return nil
}

// ProjectRoot returns the currently configured project root, if any.
func (m *Manager) ProjectRoot() (string, bool) {
	m.projectRootMu.RLock()
	defer m.projectRootMu.RUnlock()
	return m.projectRoot, m.projectRoot != ""
}

// RefreshFileTree regenerates the project file tree and stores it as a core
// memory chunk (file-tree chunks are Critical priority and never compacted
// away). A no-op if no project root is configured.
func (m *Manager) RefreshFileTree() error {
	root, ok := m.ProjectRoot()
	if !ok {
		return nil
	}

	fileTreeConfig := m.fileTreeConfig
	if fileTreeConfig.MaxDepth == 0 && fileTreeConfig.MaxFiles == 0 {
		fileTreeConfig = DefaultFileTreeConfig()
	}
	tree, err := GenerateFileTree(root, fileTreeConfig)
	if err != nil {
		return fmt.Errorf("generate file tree: %w", err)
	}

	if _, err := m.storeFileTree(tree); err != nil {
		return err
	}

	m.mu.Lock()
	m.fileTree = tree
	m.mu.Unlock()
	return nil
}

// FileTreeContext returns the cached file tree rendered for inclusion in an
// LLM prompt, or false if no tree has been generated yet.
func (m *Manager) FileTreeContext() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fileTree == nil {
		return "", false
	}
	return m.fileTree.ToContextString(), true
}

// HasFileTree reports whether a file tree has been generated.
func (m *Manager) HasFileTree() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fileTree != nil
}

// SessionID returns the manager's session ID.
func (m *Manager) SessionID() SessionID { return m.sessionID }

// StoreChunk writes a pre-built chunk to storage, assigning it a sequence
// number if it doesn't already have one.
func (m *Manager) StoreChunk(c *chunk.Chunk) (uuid.UUID, error) {
	return m.store.Append(c)
}

// StoreMessage creates and stores a message chunk.
func (m *Manager) StoreMessage(role, content string, parentID *uuid.UUID) (uuid.UUID, error) {
	return m.StoreChunk(chunk.NewMessage(role, content, parentID, 0))
}

// StoreToolCall creates and stores a tool-call chunk.
func (m *Manager) StoreToolCall(toolName string, input map[string]any, output string, isError bool, parentID *uuid.UUID) (uuid.UUID, error) {
	return m.StoreChunk(chunk.NewToolCall(toolName, input, output, isError, parentID, 0))
}

// StoreSummary creates and stores a summary chunk over a set of summarized chunks.
func (m *Manager) StoreSummary(summary string, summarizedChunks []uuid.UUID, parentID *uuid.UUID) (uuid.UUID, error) {
	return m.StoreChunk(chunk.NewSummary(summary, summarizedChunks, parentID, 0))
}

// storeFileTree stores a file tree snapshot as a core memory chunk.
func (m *Manager) storeFileTree(tree *FileTree) (uuid.UUID, error) {
	return m.StoreChunk(chunk.NewFileTree(
		tree.RootName(), tree.AsString(), tree.FileCount(), tree.DirCount(), tree.IsTruncated(), 0,
	))
}

// GetChunk retrieves a single chunk by ID.
func (m *Manager) GetChunk(id uuid.UUID) (*chunk.Chunk, error) {
	return m.store.Get(id)
}

// GetAllChunks returns every stored chunk in sequence order.
func (m *Manager) GetAllChunks() ([]*chunk.Chunk, error) {
	return m.store.GetAll()
}

// GetRecentChunks returns up to limit of the most recent chunks.
func (m *Manager) GetRecentChunks(limit int) ([]*chunk.Chunk, error) {
	return m.store.GetRecent(limit)
}

// GetChunksByType returns every chunk of the given type.
func (m *Manager) GetChunksByType(t chunk.Type) ([]*chunk.Chunk, error) {
	return m.store.GetByType(t)
}

// Compact triggers a manual compaction pass (hot->warm, warm->cold, WAL rotation).
func (m *Manager) Compact() error {
	timer := logging.StartTimer(logging.CategoryContext, "manager.Compact")
	defer timer.Stop()
	return m.store.Compact()
}

// Clear empties all context storage for this session.
func (m *Manager) Clear() error {
	return m.store.Clear()
}

// Stats reports on the underlying store's chunk counts and sizes.
func (m *Manager) Stats() (Stats, error) {
	return m.store.Stats()
}

// Close flushes and closes the underlying storage.
func (m *Manager) Close() error {
	return m.store.Close()
}
