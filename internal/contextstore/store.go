// Package contextstore coordinates a single session's chunks across the
// hot (in-memory + WAL), warm (one JSON file per chunk), and cold
// (optionally zstd-compressed) storage tiers, and implements the
// migration/compaction policy that moves chunks between them.
package contextstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"contextforge/internal/chunk"
	"contextforge/internal/coldstore"
	"contextforge/internal/logging"
	"contextforge/internal/wal"
	"contextforge/internal/warmstore"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store manages all chunk storage for a single session.
type Store struct {
	mu sync.RWMutex

	basePath string
	hotCache map[uuid.UUID]*chunk.Chunk

	walWriter   *wal.Writer
	warmBackend *warmstore.Store
	coldStorage *coldstore.Store

	config       Config
	nextSequence uint64
}

// Open opens or creates a context store at basePath using DefaultConfig.
func Open(basePath string) (*Store, error) {
	return OpenWithConfig(basePath, DefaultConfig())
}

// OpenWithConfig opens or creates a context store at basePath, recovering
// hot-tier state from the WAL.
func OpenWithConfig(basePath string, config Config) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "contextstore.Open")
	defer timer.Stop()

	walPath := filepath.Join(basePath, chunk.TierHot.DirName())
	chunksPath := filepath.Join(basePath, chunk.TierWarm.DirName())
	coldPath := filepath.Join(basePath, chunk.TierCold.DirName())

	for _, dir := range []string{walPath, chunksPath, coldPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}

	walWriter, err := wal.NewWriter(walPath)
	if err != nil {
		return nil, fmt.Errorf("open wal writer: %w", err)
	}

	hotCache, nextSequence, err := recoverFromWAL(walPath)
	if err != nil {
		return nil, fmt.Errorf("recover from wal: %w", err)
	}

	logging.Store("opened context store at %s: recovered %d hot chunks, next_sequence=%d", basePath, len(hotCache), nextSequence)

	return &Store{
		basePath:     basePath,
		hotCache:     hotCache,
		walWriter:    walWriter,
		warmBackend:  warmstore.New(chunksPath),
		coldStorage:  coldstore.New(coldPath, config.EnableCompression),
		config:       config,
		nextSequence: nextSequence,
	}, nil
}

func recoverFromWAL(walPath string) (map[uuid.UUID]*chunk.Chunk, uint64, error) {
	reader := wal.NewReader(walPath)
	chunks, err := reader.ReadAll()
	if err != nil {
		return nil, 0, err
	}

	cache := make(map[uuid.UUID]*chunk.Chunk, len(chunks))
	var maxSequence uint64
	for i := range chunks {
		c := chunks[i]
		if c.Sequence > maxSequence {
			maxSequence = c.Sequence
		}
		cache[c.ID] = &c
	}
	return cache, maxSequence + 1, nil
}

// NextSequence returns the sequence number the next appended chunk will
// receive if it doesn't already carry one.
func (s *Store) NextSequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSequence
}

// Append writes a chunk to the WAL, then adds it to the hot cache,
// assigning it the next sequence number if it doesn't already have one.
// It may trigger an incremental hot-to-warm compaction pass.
func (s *Store) Append(c *chunk.Chunk) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Sequence == 0 {
		c.Sequence = s.nextSequence
		s.nextSequence++
	} else if c.Sequence+1 > s.nextSequence {
		s.nextSequence = c.Sequence + 1
	}

	if err := s.walWriter.Append(*c); err != nil {
		return uuid.UUID{}, fmt.Errorf("append to wal: %w", err)
	}

	s.hotCache[c.ID] = c

	if len(s.hotCache) > s.config.MaxWarmChunks/2 {
		if err := s.maybeCompactHotLocked(); err != nil {
			return uuid.UUID{}, err
		}
	}

	return c.ID, nil
}

// Get looks up a chunk by ID, checking hot, then warm, then cold storage.
func (s *Store) Get(id uuid.UUID) (*chunk.Chunk, error) {
	s.mu.RLock()
	if c, ok := s.hotCache[id]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	if c, err := s.warmBackend.Read(id.String()); err != nil {
		return nil, err
	} else if c != nil {
		return c, nil
	}

	return s.coldStorage.Get(id)
}

// GetAll returns every chunk across all tiers, sorted by sequence.
func (s *Store) GetAll() ([]*chunk.Chunk, error) {
	s.mu.RLock()
	hot := make([]*chunk.Chunk, 0, len(s.hotCache))
	for _, c := range s.hotCache {
		hot = append(hot, c)
	}
	s.mu.RUnlock()

	var warm, cold []*chunk.Chunk
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		warm, err = s.warmBackend.ListAll()
		return err
	})
	g.Go(func() error {
		var err error
		cold, err = s.coldStorage.ListAll()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]*chunk.Chunk, 0, len(hot)+len(warm)+len(cold))
	all = append(all, hot...)
	all = append(all, warm...)
	all = append(all, cold...)
	sort.Slice(all, func(i, j int) bool { return all[i].Sequence < all[j].Sequence })
	return all, nil
}

// GetRecent returns up to limit chunks from hot (and warm, if needed),
// ordered oldest-to-newest.
func (s *Store) GetRecent(limit int) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	chunks := make([]*chunk.Chunk, 0, len(s.hotCache))
	for _, c := range s.hotCache {
		chunks = append(chunks, c)
	}
	s.mu.RUnlock()

	if len(chunks) < limit {
		warm, err := s.warmBackend.ListAll()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, warm...)
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Sequence > chunks[j].Sequence })
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Sequence < chunks[j].Sequence })
	return chunks, nil
}

// GetByType returns every chunk of the given type, across all tiers.
func (s *Store) GetByType(t chunk.Type) ([]*chunk.Chunk, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*chunk.Chunk, 0, len(all))
	for _, c := range all {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out, nil
}

// maybeCompactHotLocked demotes the oldest half of compactable hot chunks
// to warm storage, once the hot cache exceeds MaxWarmChunks/4. Callers must
// hold s.mu for writing.
func (s *Store) maybeCompactHotLocked() error {
	threshold := s.config.MaxWarmChunks / 4
	if len(s.hotCache) <= threshold {
		return nil
	}

	var candidates []*chunk.Chunk
	for _, c := range s.hotCache {
		if c.CanCompact() {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Sequence < candidates[j].Sequence })

	toDemote := candidates[:len(candidates)/2]
	for _, c := range toDemote {
		c.Demote()
		if err := s.warmBackend.Write(c.ID.String(), c); err != nil {
			return fmt.Errorf("demote chunk %s to warm: %w", c.ID, err)
		}
		delete(s.hotCache, c.ID)
	}

	if len(toDemote) > 0 {
		logging.StoreDebug("compacted %d chunks from hot to warm", len(toDemote))
	}
	return nil
}

// Compact runs a full hot->warm, warm->cold compaction pass, then rotates
// the WAL file.
func (s *Store) Compact() error {
	s.mu.Lock()
	if err := s.maybeCompactHotLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.compactWarmToCold(); err != nil {
		return err
	}

	return s.walWriter.Rotate()
}

// compactWarmToCold moves warm chunks older than ColdThresholdSecs (and
// eligible for compaction) into cold storage.
func (s *Store) compactWarmToCold() error {
	warmChunks, err := s.warmBackend.ListAll()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	threshold := time.Duration(s.config.ColdThresholdSecs) * time.Second

	var moved int
	for _, c := range warmChunks {
		age := now.Sub(c.AccessedAt)
		if age > threshold && c.CanCompact() {
			c.Demote()
			if err := s.coldStorage.Put(c); err != nil {
				return fmt.Errorf("move chunk %s to cold: %w", c.ID, err)
			}
			if err := s.warmBackend.Delete(c.ID.String()); err != nil {
				return fmt.Errorf("remove chunk %s from warm: %w", c.ID, err)
			}
			moved++
		}
	}
	if moved > 0 {
		logging.StoreDebug("compacted %d chunks from warm to cold", moved)
	}
	return nil
}

// Clear empties every tier and resets the sequence counter.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hotCache = make(map[uuid.UUID]*chunk.Chunk)

	if err := s.walWriter.Clear(); err != nil {
		return fmt.Errorf("clear wal: %w", err)
	}
	if err := s.warmBackend.Clear(); err != nil {
		return fmt.Errorf("clear warm storage: %w", err)
	}
	if err := s.coldStorage.Clear(); err != nil {
		return fmt.Errorf("clear cold storage: %w", err)
	}

	s.nextSequence = 0
	return nil
}

// Stats reports chunk counts, token totals, and storage bytes across all tiers.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	hotChunks := len(s.hotCache)
	var hotTokens uint32
	for _, c := range s.hotCache {
		hotTokens += c.TokenCount
	}
	s.mu.RUnlock()

	warmStats, err := s.warmBackend.Stats()
	if err != nil {
		return Stats{}, err
	}
	coldStats := s.coldStorage.StatsFull()

	return Stats{
		SessionID:    filepath.Base(s.basePath),
		TotalChunks:  hotChunks + warmStats.ChunkCount + coldStats.TotalFiles,
		HotChunks:    hotChunks,
		WarmChunks:   warmStats.ChunkCount,
		ColdChunks:   coldStats.TotalFiles,
		TotalTokens:  hotTokens + warmStats.TotalTokens + coldStats.TotalTokens,
		StorageBytes: warmStats.StorageBytes + coldStats.TotalBytes,
	}, nil
}

// GetChunksForFile returns every chunk (across all tiers) that references path.
func (s *Store) GetChunksForFile(path string) ([]*chunk.Chunk, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*chunk.Chunk, 0)
	for _, c := range all {
		if c.ReferencesFile(path) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetByPriority returns up to limit chunks across all tiers, ordered by
// descending effective priority.
func (s *Store) GetByPriority(limit int) ([]*chunk.Chunk, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EffectivePriority() > all[j].EffectivePriority() })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// UpdateChunkScores averages fileScores across each hot chunk's referenced
// files and sets the result as its retention score.
func (s *Store) UpdateChunkScores(fileScores map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.hotCache {
		if len(c.ReferencedFiles) == 0 {
			continue
		}
		var total float64
		var count int
		for _, path := range c.ReferencedFiles {
			if score, ok := fileScores[path]; ok {
				total += score
				count++
			}
		}
		if count > 0 {
			c.SetRetentionScore(total / float64(count))
		}
	}
}

// GetReferencedFiles returns the set of file paths referenced by any hot chunk.
func (s *Store) GetReferencedFiles() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make(map[string]struct{})
	for _, c := range s.hotCache {
		for _, f := range c.ReferencedFiles {
			files[f] = struct{}{}
		}
	}
	return files
}

// TouchChunk marks a chunk as accessed, promoting it from warm back to hot
// if it wasn't already there. Returns false if the chunk isn't found in
// hot or warm.
func (s *Store) TouchChunk(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.hotCache[id]; ok {
		c.Touch()
		return true, nil
	}

	c, err := s.warmBackend.Read(id.String())
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}

	c.Touch()
	c.Promote()
	s.hotCache[id] = c
	if err := s.warmBackend.Delete(id.String()); err != nil {
		return false, fmt.Errorf("remove chunk %s from warm after promotion: %w", id, err)
	}
	return true, nil
}

// MutateHot applies fn to a hot-tier chunk under the store's write lock,
// returning false if id isn't currently hot.
func (s *Store) MutateHot(id uuid.UUID, fn func(*chunk.Chunk)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hotCache[id]
	if !ok {
		return false
	}
	fn(c)
	return true
}

// Close flushes and closes the underlying WAL writer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walWriter.Close()
}
