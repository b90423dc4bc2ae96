package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"contextforge/internal/embedding"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	engine := embedding.NewBundledEngine(embedding.ModelMiniLM)
	store, err := Open(filepath.Join(t.TempDir(), "memory.db"), engine)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleMemory() ConversationMemory {
	return ConversationMemory{
		ID:           uuid.New(),
		Timestamp:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Summary:      "Fixed the authentication bug",
		FilesChanged: []string{"auth.go", "auth_test.go"},
		Tags:         []string{"bugfix", "auth"},
		Content:      "Full conversation content about fixing auth",
		Embedding:    []float32{0.1, 0.2, 0.3},
	}
}

func TestStoreAndGet(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()

	require.NoError(t, store.Store(mem))

	got, err := store.Get(mem.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, mem.ID, got.ID)
	require.Equal(t, mem.Summary, got.Summary)
	require.Equal(t, mem.FilesChanged, got.FilesChanged)
	require.Equal(t, mem.Tags, got.Tags)
	require.Equal(t, mem.Content, got.Content)
	require.Equal(t, mem.Timestamp.Unix(), got.Timestamp.Unix())
}

func TestGetNonexistent(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Get(uuid.New())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCount(t *testing.T) {
	store := openTestStore(t)
	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)

	require.NoError(t, store.Store(sampleMemory()))
	require.NoError(t, store.Store(sampleMemory()))

	count, err = store.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	require.NoError(t, store.Store(mem))

	require.NoError(t, store.Delete(mem.ID))

	got, err := store.Get(mem.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteNonexistentSucceeds(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Delete(uuid.New()))
}

func TestStoreSameIDReplaces(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	require.NoError(t, store.Store(mem))

	mem.Summary = "Updated summary"
	require.NoError(t, store.Store(mem))

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := store.Get(mem.ID)
	require.NoError(t, err)
	require.Equal(t, "Updated summary", got.Summary)
}

func TestGetRecentOrdering(t *testing.T) {
	store := openTestStore(t)

	older := sampleMemory()
	older.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleMemory()
	newer.Timestamp = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Store(older))
	require.NoError(t, store.Store(newer))

	recent, err := store.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, newer.ID, recent[0].ID)
	require.Equal(t, older.ID, recent[1].ID)
}

func TestGetRecentRespectsLimit(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Store(sampleMemory()))
	}

	recent, err := store.GetRecent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestGetRecentEmpty(t *testing.T) {
	store := openTestStore(t)
	recent, err := store.GetRecent(10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestSearchKeywordsMatchesSummary(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	mem.Summary = "Refactored the payment pipeline"
	mem.Content = "unrelated content"
	require.NoError(t, store.Store(mem))

	results, err := store.SearchKeywords("payment", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchKeywordsMatchesContent(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	mem.Summary = "unrelated summary"
	mem.Content = "deep dive into the payment pipeline internals"
	require.NoError(t, store.Store(mem))

	results, err := store.SearchKeywords("payment", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchKeywordsNoMatch(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Store(sampleMemory()))

	results, err := store.SearchKeywords("nonexistent-keyword-xyz", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchKeywordsRespectsLimit(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		mem := sampleMemory()
		mem.ID = uuid.New()
		require.NoError(t, store.Store(mem))
	}

	results, err := store.SearchKeywords("auth", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestClearAllReturnsDeletedCount(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Store(sampleMemory()))
	require.NoError(t, store.Store(sampleMemory()))

	deleted, err := store.ClearAll()
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	count, err := store.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestUnicodeContentRoundTrip(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	mem.Summary = "Fixed emoji rendering \U0001F600 and 中文 support"
	mem.Content = "unicode content: éèê \U0001F389"
	require.NoError(t, store.Store(mem))

	got, err := store.Get(mem.ID)
	require.NoError(t, err)
	require.Equal(t, mem.Summary, got.Summary)
	require.Equal(t, mem.Content, got.Content)
}

func TestSQLSpecialCharacters(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	mem.Summary = `It's a "test" with 100% coverage and snake_case names`
	require.NoError(t, store.Store(mem))

	got, err := store.Get(mem.ID)
	require.NoError(t, err)
	require.Equal(t, mem.Summary, got.Summary)
}

func TestTimestampRoundTripNormalizesToUTC(t *testing.T) {
	store := openTestStore(t)
	loc := time.FixedZone("UTC+9", 9*60*60)
	mem := sampleMemory()
	mem.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, loc)
	require.NoError(t, store.Store(mem))

	got, err := store.Get(mem.ID)
	require.NoError(t, err)
	require.Equal(t, mem.Timestamp.UTC(), got.Timestamp)
	require.Equal(t, time.UTC, got.Timestamp.Location())
}

// storeWithEmbedding embeds mem's summary with engine and persists it,
// mirroring what StoreConversation does for freshly-authored memories.
func storeWithEmbedding(t *testing.T, store *Store, engine embedding.Engine, mem *ConversationMemory) {
	t.Helper()
	vec, err := engine.Embed(context.Background(), mem.Summary)
	require.NoError(t, err)
	mem.Embedding = vec
	require.NoError(t, store.Store(*mem))
}

func TestSearchRanksBySimilarity(t *testing.T) {
	store := openTestStore(t)
	engine := embedding.NewBundledEngine(embedding.ModelMiniLM)

	relevant := sampleMemory()
	relevant.ID = uuid.New()
	relevant.Summary = "the cat sits on the mat"
	storeWithEmbedding(t, store, engine, &relevant)

	irrelevant := sampleMemory()
	irrelevant.ID = uuid.New()
	irrelevant.Summary = "quantum mechanics is fascinating"
	storeWithEmbedding(t, store, engine, &irrelevant)

	results, err := store.Search("a feline rests on the carpet", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Content, "cat sits on the mat")
}

func TestSearchEmptyStore(t *testing.T) {
	store := openTestStore(t)
	results, err := store.Search("anything", 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchMetadataFields(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	engine := embedding.NewBundledEngine(embedding.ModelMiniLM)
	storeWithEmbedding(t, store, engine, &mem)

	results, err := store.Search(mem.Summary, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	require.Equal(t, mem.ID.String(), meta["id"])
	require.Equal(t, mem.FilesChanged, meta["files_changed"])
	require.Equal(t, mem.Tags, meta["tags"])
	require.Equal(t, mem.Content, meta["full_content"])
}

func TestVecMirrorEnabledByDefault(t *testing.T) {
	store := openTestStore(t)
	require.True(t, store.vecEnabled)
	require.NotEmpty(t, store.vecTableName)
}

func TestSearchUsesVecMirrorResults(t *testing.T) {
	store := openTestStore(t)
	engine := embedding.NewBundledEngine(embedding.ModelMiniLM)

	mem := sampleMemory()
	mem.Summary = "deploying the payments service to staging"
	storeWithEmbedding(t, store, engine, &mem)

	var rowCount int
	query := "SELECT COUNT(*) FROM " + store.vecTableName
	require.NoError(t, store.db.QueryRow(query).Scan(&rowCount))
	require.Equal(t, 1, rowCount)

	results, err := store.Search(mem.Summary, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Score, 0.0001)
}

func TestDeleteRemovesVecMirrorRow(t *testing.T) {
	store := openTestStore(t)
	mem := sampleMemory()
	require.NoError(t, store.Store(mem))

	require.NoError(t, store.Delete(mem.ID))

	var rowCount int
	query := "SELECT COUNT(*) FROM " + store.vecTableName
	require.NoError(t, store.db.QueryRow(query).Scan(&rowCount))
	require.Equal(t, 0, rowCount)
}

func TestTwoStoresDoNotShareVecMirrorRows(t *testing.T) {
	engine := embedding.NewBundledEngine(embedding.ModelMiniLM)

	storeA, err := Open(filepath.Join(t.TempDir(), "a.db"), engine)
	require.NoError(t, err)
	t.Cleanup(func() { storeA.Close() })

	storeB, err := Open(filepath.Join(t.TempDir(), "b.db"), engine)
	require.NoError(t, err)
	t.Cleanup(func() { storeB.Close() })

	require.NotEqual(t, storeA.vecTableName, storeB.vecTableName)

	memA := sampleMemory()
	storeWithEmbedding(t, storeA, engine, &memA)

	resultsB, err := storeB.Search(memA.Summary, 5)
	require.NoError(t, err)
	require.Empty(t, resultsB)
}
