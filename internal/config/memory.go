package config

// MemoryConfig configures the durable conversation-memory store.
type MemoryConfig struct {
	// DatabasePath is the sqlite file backing the memories table.
	DatabasePath string `yaml:"database_path"`

	// RecallTopK bounds how many memories semantic recall returns.
	RecallTopK int `yaml:"recall_top_k"`

	// RecallScoreFloor records the recall cosine-score floor. It is not
	// read by memory.RecallRelevantContext, which applies a fixed 0.5 floor.
	RecallScoreFloor float64 `yaml:"recall_score_floor"`

	// SnippetChars records the recall content-preview length. It is not
	// read by memory.RecallRelevantContext, which uses a fixed 200 runes.
	SnippetChars int `yaml:"snippet_chars"`
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DatabasePath:     "data/memory.db",
		RecallTopK:       5,
		RecallScoreFloor: 0.5,
		SnippetChars:     200,
	}
}

// EmbeddingConfig configures the embedding generator.
type EmbeddingConfig struct {
	// Provider is "bundled" (local, in-process model) or "remote" (HTTP).
	Provider string `yaml:"provider"`

	// Bundled configuration.
	BundledModel    string `yaml:"bundled_model"`     // "minilm", "bge-small", "nomic"
	BundledCacheDir string `yaml:"bundled_cache_dir"` // where the model is cached

	// Remote configuration.
	RemoteEndpoint string `yaml:"remote_endpoint"`
	RemoteModel    string `yaml:"remote_model"`
}

// DefaultEmbeddingConfig returns sensible defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:        "bundled",
		BundledModel:    "minilm",
		BundledCacheDir: ".contextforge/models",
		RemoteEndpoint:  "http://localhost:11434",
		RemoteModel:     "embeddinggemma",
	}
}
