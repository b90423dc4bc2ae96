// Package warmstore implements the warm storage tier: each chunk lives as
// its own pretty-printed JSON file on disk, keyed by chunk ID.
package warmstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"contextforge/internal/chunk"
	"contextforge/internal/logging"
)

// Stats summarizes a storage tier's contents.
type Stats struct {
	ChunkCount   int
	TotalTokens  uint32
	StorageBytes uint64
}

// Store is a one-JSON-file-per-chunk backend.
type Store struct {
	mu   sync.RWMutex
	base string
}

// New returns a Store rooted at base. The directory is created lazily on
// first write.
func New(base string) *Store {
	return &Store{base: base}
}

func (s *Store) chunkPath(key string) string {
	return filepath.Join(s.base, key+".json")
}

// Write stores a chunk under key, overwriting any existing file.
func (s *Store) Write(key string, c *chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.base, 0755); err != nil {
		return fmt.Errorf("create warm store directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize chunk %s: %w", key, err)
	}

	if err := os.WriteFile(s.chunkPath(key), data, 0644); err != nil {
		return fmt.Errorf("write chunk %s: %w", key, err)
	}
	return nil
}

// Read loads the chunk stored under key, returning (nil, nil) if absent.
func (s *Store) Read(key string) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.chunkPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}

	var c chunk.Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("deserialize chunk %s: %w", key, err)
	}
	return &c, nil
}

// Delete removes the chunk stored under key. Deleting a missing key is not
// an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.chunkPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete chunk %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a chunk is stored under key.
func (s *Store) Exists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.chunkPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ListAll loads every chunk in the store, skipping (with a warning) any
// file that fails to read or parse.
func (s *Store) ListAll() ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list warm store directory: %w", err)
	}

	var chunks []*chunk.Chunk
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.base, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to read chunk file %s: %v", path, err)
			continue
		}
		var c chunk.Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to parse chunk file %s: %v", path, err)
			continue
		}
		chunks = append(chunks, &c)
	}
	return chunks, nil
}

// Clear removes every chunk file in the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list warm store directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(s.base, e.Name())); err != nil {
			return fmt.Errorf("remove chunk file %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Stats reports chunk count, total tokens, and bytes used by this tier.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("list warm store directory: %w", err)
	}

	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err == nil {
			stats.StorageBytes += uint64(info.Size())
		}

		path := filepath.Join(s.base, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to read chunk file %s: %v", path, err)
			continue
		}
		var c chunk.Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to parse chunk file %s: %v", path, err)
			continue
		}
		stats.ChunkCount++
		stats.TotalTokens += c.TokenCount
	}
	return stats, nil
}
