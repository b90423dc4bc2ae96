// Package memory persists conversation summaries across sessions in a
// local SQLite database, so a future session can recall what a past one
// did: what was discussed, which files changed, and under what tags.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	"contextforge/internal/embedding"
	"contextforge/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ConversationMemory is a single stored record of a past conversation: a
// summary, the files it touched, free-form tags, the full content it was
// derived from, and an embedding of the summary for semantic recall.
type ConversationMemory struct {
	ID           uuid.UUID
	Timestamp    time.Time
	Summary      string
	FilesChanged []string
	Tags         []string
	Content      string
	Embedding    []float32
}

// SearchResult is one match from a semantic Search, with the similarity
// score and a compact rendering of the underlying memory.
type SearchResult struct {
	Content  string
	Score    float64
	Metadata map[string]interface{}
}

// Store is a SQLite-backed conversation memory table.
type Store struct {
	db              *sql.DB
	embeddingEngine embedding.Engine
	vecEnabled      bool
	vecTableName    string
}

// Open creates (or opens) the conversation-memory database at path, using
// engine to embed summaries for semantic search.
func Open(path string, engine embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.MemoryDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.MemoryDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.MemoryDebug("failed to set synchronous=NORMAL: %v", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	store := &Store{
		db:              db,
		embeddingEngine: engine,
		vecTableName:    fmt.Sprintf("memory_vec_%08x", crc32.ChecksumIEEE([]byte(absPath))),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Memory("Opened conversation memory store at %s", path)
	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS conversation_memory (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		summary TEXT NOT NULL,
		files_changed TEXT NOT NULL,
		tags TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON conversation_memory(timestamp);
	`)
	if err != nil {
		return err
	}
	s.detectVecExtension()
	return nil
}

// detectVecExtension probes for a usable vec0 virtual table module
// (registered in vec_compat.go, or a real sqlite-vec extension on a cgo
// build) and creates the memory_vec mirror table when one is available.
// Search and Store fall back to the always-available linear cosine scan
// when this probe fails, so absence of vec0 never breaks semantic search.
func (s *Store) detectVecExtension() {
	// The virtual table name is derived from this store's own database
	// path so distinct Store instances (e.g. one per test, or the cgo
	// sqlite-vec module and vec_compat.go's registry in the same process)
	// never share the module's backing rows.
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding BLOB, content TEXT, metadata TEXT)`, s.vecTableName)
	if _, err := s.db.Exec(stmt); err != nil {
		logging.MemoryDebug("vec0 extension unavailable, semantic search will use the linear scan: %v", err)
		s.vecEnabled = false
		return
	}
	s.vecEnabled = true
	logging.Memory("memory_vec ANN mirror enabled as %s", s.vecTableName)

	// The vec0 rows may live only in process memory, so repopulate the
	// mirror from conversation_memory on every Open.
	all, err := s.loadAll()
	if err != nil {
		logging.MemoryDebug("memory_vec rebuild skipped: %v", err)
		return
	}
	for _, mem := range all {
		s.mirrorVec(mem)
	}
}

// Store persists a conversation memory record. A record with an existing
// ID replaces the prior row (INSERT OR REPLACE), so re-storing the same
// conversation ID is an update, not a duplicate.
func (s *Store) Store(mem ConversationMemory) error {
	timer := logging.StartTimer(logging.CategoryMemory, "Store")
	defer timer.Stop()

	filesJSON, err := json.Marshal(mem.FilesChanged)
	if err != nil {
		return fmt.Errorf("failed to marshal files_changed: %w", err)
	}
	tagsJSON, err := json.Marshal(mem.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	embeddingJSON, err := json.Marshal(mem.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO conversation_memory
			(id, timestamp, summary, files_changed, tags, content, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mem.ID.String(),
		mem.Timestamp.UTC().Format(time.RFC3339),
		mem.Summary,
		string(filesJSON),
		string(tagsJSON),
		mem.Content,
		string(embeddingJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store conversation memory: %w", err)
	}

	if s.vecEnabled {
		s.mirrorVec(mem)
	}

	logging.MemoryDebug("stored conversation memory %s", mem.ID)
	return nil
}

// mirrorVec upserts mem's embedding into the memory_vec ANN mirror, keyed
// by the conversation_memory row's own SQLite rowid so the two tables
// stay joined without a separate id<->rowid mapping table. Failures here
// are logged, not propagated: memory_vec is purely an acceleration
// structure and the conversation_memory write above already succeeded.
func (s *Store) mirrorVec(mem ConversationMemory) {
	var rowid int64
	if err := s.db.QueryRow(`SELECT rowid FROM conversation_memory WHERE id = ?`, mem.ID.String()).Scan(&rowid); err != nil {
		logging.MemoryDebug("mirrorVec: failed to resolve rowid for %s: %v", mem.ID, err)
		return
	}
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s(rowid, embedding, content, metadata) VALUES (?, ?, ?, ?)`, s.vecTableName)
	_, err := s.db.Exec(stmt, rowid, encodeVecBlob(mem.Embedding), mem.ID.String(), "")
	if err != nil {
		logging.MemoryDebug("mirrorVec: failed to upsert memory_vec row for %s: %v", mem.ID, err)
	}
}

// Get retrieves a single conversation memory by ID, or nil if not found.
func (s *Store) Get(id uuid.UUID) (*ConversationMemory, error) {
	row := s.db.QueryRow(
		`SELECT id, timestamp, summary, files_changed, tags, content, embedding
		 FROM conversation_memory WHERE id = ?`,
		id.String(),
	)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return mem, nil
}

// Delete removes a conversation memory by ID. Deleting a nonexistent ID
// succeeds silently.
func (s *Store) Delete(id uuid.UUID) error {
	if s.vecEnabled {
		var rowid int64
		if err := s.db.QueryRow(`SELECT rowid FROM conversation_memory WHERE id = ?`, id.String()).Scan(&rowid); err == nil {
			stmt := fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, s.vecTableName)
			if _, err := s.db.Exec(stmt, rowid); err != nil {
				logging.MemoryDebug("failed to delete memory_vec row for %s: %v", id, err)
			}
		}
	}

	_, err := s.db.Exec(`DELETE FROM conversation_memory WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete conversation memory: %w", err)
	}
	return nil
}

// Count returns the number of stored conversation memories.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM conversation_memory`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversation memories: %w", err)
	}
	return count, nil
}

// ClearAll deletes every stored conversation memory and returns the number
// of rows removed.
func (s *Store) ClearAll() (int, error) {
	count, err := s.Count()
	if err != nil {
		return 0, err
	}
	if _, err := s.db.Exec(`DELETE FROM conversation_memory`); err != nil {
		return 0, fmt.Errorf("failed to clear conversation memories: %w", err)
	}
	logging.Memory("cleared %d conversation memories", count)
	return count, nil
}

// GetRecent returns up to limit of the most recently stored memories,
// newest first.
func (s *Store) GetRecent(limit int) ([]ConversationMemory, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, summary, files_changed, tags, content, embedding
		 FROM conversation_memory ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent conversation memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchKeywords returns memories whose summary or content contains
// keywords, newest first, up to limit results.
func (s *Store) SearchKeywords(keywords string, limit int) ([]ConversationMemory, error) {
	pattern := "%" + keywords + "%"
	rows, err := s.db.Query(
		`SELECT id, timestamp, summary, files_changed, tags, content, embedding
		 FROM conversation_memory
		 WHERE summary LIKE ? OR content LIKE ?
		 ORDER BY timestamp DESC LIMIT ?`,
		pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search conversation memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Search embeds query and returns the topK most semantically similar
// stored memories, ranked by cosine similarity against each memory's
// stored embedding.
func (s *Store) Search(query string, topK int) ([]SearchResult, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Search")
	defer timer.Stop()

	if s.embeddingEngine == nil {
		return nil, fmt.Errorf("no embedding engine configured for semantic search")
	}

	queryEmbedding, err := s.embeddingEngine.Embed(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if s.vecEnabled {
		results, total, err := s.searchVec(queryEmbedding, topK)
		if err == nil {
			logging.MemoryDebug("Search %q returned %d of %d stored memories (ANN)", query, len(results), total)
			return results, nil
		}
		logging.MemoryDebug("ANN search failed, falling back to linear scan: %v", err)
	}

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	type scored struct {
		mem   ConversationMemory
		score float64
	}
	scoredMems := make([]scored, 0, len(all))
	for _, mem := range all {
		score := embedding.CosineSimilarity(queryEmbedding, mem.Embedding)
		scoredMems = append(scoredMems, scored{mem: mem, score: score})
	}

	sort.Slice(scoredMems, func(i, j int) bool {
		return scoredMems[i].score > scoredMems[j].score
	})

	if topK > 0 && len(scoredMems) > topK {
		scoredMems = scoredMems[:topK]
	}

	results := make([]SearchResult, 0, len(scoredMems))
	for _, sm := range scoredMems {
		results = append(results, toSearchResult(sm.mem, sm.score))
	}

	logging.MemoryDebug("Search %q returned %d of %d stored memories (scan)", query, len(results), len(all))
	return results, nil
}

// searchVec ranks memories through the memory_vec ANN mirror: a nearest-
// neighbor query by vector_distance_cos, joined back to conversation_memory
// by rowid. Score is recovered as 1-distance, matching the cosine
// similarity the linear scan would have produced for the same pair.
func (s *Store) searchVec(queryEmbedding []float32, topK int) ([]SearchResult, int, error) {
	limit := topK
	if limit <= 0 {
		limit = -1
	}
	query := fmt.Sprintf(
		`SELECT cm.id, cm.timestamp, cm.summary, cm.files_changed, cm.tags, cm.content, cm.embedding,
		        vector_distance_cos(mv.embedding, ?) AS dist
		 FROM %s mv
		 JOIN conversation_memory cm ON cm.rowid = mv.rowid
		 ORDER BY dist ASC
		 LIMIT ?`, s.vecTableName,
	)
	rows, err := s.db.Query(query, encodeVecBlob(queryEmbedding), limit)
	if err != nil {
		return nil, 0, fmt.Errorf("ANN query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	total := 0
	for rows.Next() {
		var (
			idStr, timestampStr, summary, filesJSON, tagsJSON, content, embeddingJSON string
			dist                                                                      float64
		)
		if err := rows.Scan(&idStr, &timestampStr, &summary, &filesJSON, &tagsJSON, &content, &embeddingJSON, &dist); err != nil {
			return nil, 0, fmt.Errorf("ANN scan: %w", err)
		}
		total++

		id, err := parseUUIDFromDB(idStr, "id")
		if err != nil {
			return nil, 0, err
		}
		timestamp, err := parseDatetimeFromDB(timestampStr, "timestamp")
		if err != nil {
			return nil, 0, err
		}
		var files, tags []string
		if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
			return nil, 0, fmt.Errorf("failed to decode files_changed: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, 0, fmt.Errorf("failed to decode tags: %w", err)
		}

		mem := ConversationMemory{
			ID: id, Timestamp: timestamp, Summary: summary,
			FilesChanged: files, Tags: tags, Content: content,
		}
		results = append(results, toSearchResult(mem, 1-dist))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func toSearchResult(mem ConversationMemory, score float64) SearchResult {
	return SearchResult{
		Content: formatMemoryContent(mem),
		Score:   score,
		Metadata: map[string]interface{}{
			"id":            mem.ID.String(),
			"timestamp":     mem.Timestamp.UTC().Format(time.RFC3339),
			"files_changed": mem.FilesChanged,
			"tags":          mem.Tags,
			"full_content":  mem.Content,
		},
	}
}

func formatMemoryContent(mem ConversationMemory) string {
	return fmt.Sprintf("[%s] %s\nFiles: %s\nTags: %s",
		mem.Timestamp.UTC().Format(time.RFC3339),
		mem.Summary,
		joinOrNone(mem.FilesChanged),
		joinOrNone(mem.Tags),
	)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	out := items[0]
	for _, item := range items[1:] {
		out += ", " + item
	}
	return out
}

func (s *Store) loadAll() ([]ConversationMemory, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, summary, files_changed, tags, content, embedding
		 FROM conversation_memory`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*ConversationMemory, error) {
	var (
		idStr, timestampStr, summary, filesJSON, tagsJSON, content, embeddingJSON string
	)
	if err := row.Scan(&idStr, &timestampStr, &summary, &filesJSON, &tagsJSON, &content, &embeddingJSON); err != nil {
		return nil, err
	}

	id, err := parseUUIDFromDB(idStr, "id")
	if err != nil {
		return nil, err
	}
	timestamp, err := parseDatetimeFromDB(timestampStr, "timestamp")
	if err != nil {
		return nil, err
	}

	var files, tags []string
	if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
		return nil, fmt.Errorf("failed to decode files_changed: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	var emb []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &emb); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}

	return &ConversationMemory{
		ID:           id,
		Timestamp:    timestamp,
		Summary:      summary,
		FilesChanged: files,
		Tags:         tags,
		Content:      content,
		Embedding:    emb,
	}, nil
}

func scanMemories(rows *sql.Rows) ([]ConversationMemory, error) {
	var memories []ConversationMemory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *mem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

func parseUUIDFromDB(value, column string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid %s in database: %w", column, err)
	}
	return id, nil
}

func parseDatetimeFromDB(value, column string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s in database: %w", column, err)
	}
	return t.UTC(), nil
}
