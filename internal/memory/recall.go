package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contextforge/internal/embedding"
	"contextforge/internal/logging"

	"github.com/google/uuid"
)

// relevanceFloor is the minimum similarity score a search result needs to
// be surfaced in recalled context; lower-scoring matches are dropped as
// noise. The boundary is inclusive: a score of exactly 0.5 is kept.
const relevanceFloor = 0.5

// snippetChars is how much of a result's full content is quoted in
// recalled context, measured in runes rather than bytes so multi-byte
// characters aren't split mid-sequence.
const snippetChars = 200

// RecallRelevantContext searches store for memories relevant to query and,
// if any score at or above the relevance floor, returns a formatted block
// suitable for inclusion in an LLM prompt. Returns ("", false) if nothing
// relevant was found.
func RecallRelevantContext(store *Store, query string, maxResults int) (string, bool, error) {
	results, err := store.Search(query, maxResults)
	if err != nil {
		return "", false, fmt.Errorf("failed to search conversation memory: %w", err)
	}
	if len(results) == 0 {
		return "", false, nil
	}

	var sb strings.Builder
	sb.WriteString("\n\n## Relevant Past Conversations\n\n")
	sb.WriteString("You previously worked on related tasks. Here's what you did:\n\n")

	included := 0
	for _, result := range results {
		if result.Score < relevanceFloor {
			continue
		}
		included++

		fmt.Fprintf(&sb, "%d. %s\n", included, result.Content)
		if fullContent, ok := result.Metadata["full_content"].(string); ok {
			sb.WriteString("   Context: ")
			sb.WriteString(truncateRunes(fullContent, snippetChars))
			sb.WriteString("...\n")
		}
		sb.WriteString("\n")
	}

	if included == 0 {
		return "", false, nil
	}

	logging.MemoryDebug("recall: %d of %d results met the relevance floor for %q", included, len(results), query)
	return sb.String(), true, nil
}

// truncateRunes returns the first n runes of s (not bytes), so multi-byte
// UTF-8 sequences are never split.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// StoreConversation embeds summary and persists a new conversation memory
// record, returning its assigned ID.
func StoreConversation(store *Store, summary string, filesChanged, tags []string, fullContent string, engine embedding.Engine) (uuid.UUID, error) {
	vec, err := engine.Embed(context.Background(), summary)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to embed conversation summary: %w", err)
	}

	mem := ConversationMemory{
		ID:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		Summary:      summary,
		FilesChanged: filesChanged,
		Tags:         tags,
		Content:      fullContent,
		Embedding:    vec,
	}
	if err := store.Store(mem); err != nil {
		return uuid.UUID{}, err
	}
	return mem.ID, nil
}
