// Package coldstore implements the cold storage tier: the oldest chunks,
// optionally zstd-compressed, written as one file per chunk keyed by UUID.
package coldstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"contextforge/internal/chunk"
	"contextforge/internal/logging"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// compressionLevel balances speed against ratio for cold-tier chunks.
const compressionLevel = zstd.SpeedDefault

// Stats summarizes cold storage's contents.
type Stats struct {
	TotalFiles        int
	TotalBytes        uint64
	CompressedBytes   uint64
	UncompressedBytes uint64
	TotalTokens       uint32
}

// Store is the zstd-or-plain cold storage backend.
type Store struct {
	mu          sync.RWMutex
	dir         string
	compression bool
}

// New returns a Store rooted at dir. When compression is true, new chunks
// are written as "<id>.json.zst"; otherwise as "<id>.json". Reads always
// sniff the file extension actually present on disk, so toggling
// compression after chunks already exist doesn't strand them.
func New(dir string, compression bool) *Store {
	return &Store{dir: dir, compression: compression}
}

func (s *Store) chunkPath(id uuid.UUID) string {
	ext := "json"
	if s.compression {
		ext = "json.zst"
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s", id, ext))
}

func (s *Store) alternatePath(id uuid.UUID) string {
	ext := "json.zst"
	if s.compression {
		ext = "json"
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s", id, ext))
}

// Put stores a chunk in cold storage.
func (s *Store) Put(c *chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create cold store directory: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("serialize chunk %s: %w", c.ID, err)
	}

	if s.compression {
		data, err = compress(data)
		if err != nil {
			return fmt.Errorf("compress chunk %s: %w", c.ID, err)
		}
	}

	if err := os.WriteFile(s.chunkPath(c.ID), data, 0644); err != nil {
		return fmt.Errorf("write chunk %s: %w", c.ID, err)
	}
	return nil
}

// Get retrieves and decompresses (if needed) a chunk, trying both the
// compressed and plain extension regardless of the store's own
// configuration, since a chunk may have been written under a different
// setting than the one currently in effect.
func (s *Store) Get(id uuid.UUID) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.chunkPath(id)
	compressed := s.compression
	if _, err := os.Stat(path); err != nil {
		altPath := s.alternatePath(id)
		if _, altErr := os.Stat(altPath); altErr != nil {
			return nil, nil
		}
		path = altPath
		compressed = !s.compression
	}
	return s.readChunk(path, compressed)
}

func (s *Store) readChunk(path string, compressed bool) (*chunk.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk file %s: %w", path, err)
	}

	if compressed {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompress chunk file %s: %w", path, err)
		}
	}

	var c chunk.Chunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("deserialize chunk file %s: %w", path, err)
	}
	return &c, nil
}

// Delete removes a chunk from cold storage. Deleting a missing chunk is not
// an error.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.chunkPath(id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	return nil
}

// ListAll loads every chunk in cold storage.
func (s *Store) ListAll() ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cold store directory: %w", err)
	}

	var chunks []*chunk.Chunk
	for _, e := range entries {
		id, compressed, ok := parseColdFilename(e.Name())
		if !ok {
			continue
		}
		c, err := s.readChunk(filepath.Join(s.dir, e.Name()), compressed)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to read cold chunk %s (%s): %v", id, e.Name(), err)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// Clear removes every file in cold storage.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list cold store directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove cold file %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Stats returns fast storage statistics (file count and byte totals) without
// reading or parsing chunk content.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return stats
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.TotalFiles++
		size := uint64(info.Size())
		stats.TotalBytes += size
		if strings.HasSuffix(e.Name(), ".zst") {
			stats.CompressedBytes += size
		} else {
			stats.UncompressedBytes += size
		}
	}
	return stats
}

// StatsFull returns full storage statistics, including total tokens, which
// requires reading and parsing every chunk.
func (s *Store) StatsFull() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return stats
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		size := uint64(info.Size())
		stats.TotalBytes += size
		if strings.HasSuffix(e.Name(), ".zst") {
			stats.CompressedBytes += size
		} else {
			stats.UncompressedBytes += size
		}

		_, compressed, ok := parseColdFilename(e.Name())
		if !ok {
			continue
		}
		c, err := s.readChunk(filepath.Join(s.dir, e.Name()), compressed)
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalTokens += c.TokenCount
	}
	return stats
}

// parseColdFilename extracts the UUID and compression flag from a cold
// storage filename, e.g. "<uuid>.json.zst" or "<uuid>.json".
func parseColdFilename(name string) (uuid.UUID, bool, bool) {
	var idStr string
	var compressed bool
	switch {
	case strings.HasSuffix(name, ".json.zst"):
		idStr = strings.TrimSuffix(name, ".json.zst")
		compressed = true
	case strings.HasSuffix(name, ".json"):
		idStr = strings.TrimSuffix(name, ".json")
		compressed = false
	default:
		return uuid.UUID{}, false, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, false, false
	}
	return id, compressed, true
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(compressionLevel))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finish zstd compression: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
