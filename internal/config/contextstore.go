package config

// ContextStoreConfig configures the tiered chunk store.
type ContextStoreConfig struct {
	// MaxWarmChunks is the hot-tier soft ceiling; on append, hot->warm
	// demotion triggers once the hot map exceeds MaxWarmChunks/2 entries,
	// and a demotion pass moves half of the compactable hot chunks to warm
	// when the hot map holds more than MaxWarmChunks/4 entries.
	MaxWarmChunks int `yaml:"max_warm_chunks"`

	// ColdThresholdSecs is how long (in seconds) a chunk must sit
	// unaccessed in warm before it becomes eligible for Cold.
	ColdThresholdSecs int64 `yaml:"cold_threshold_secs"`

	// EnableCompression turns zstd compression on for the cold tier.
	EnableCompression bool `yaml:"enable_compression"`

	// CompactionIntervalSecs is the background compaction tick period.
	CompactionIntervalSecs int64 `yaml:"compaction_interval_secs"`
}

// DefaultContextStoreConfig returns sensible defaults.
func DefaultContextStoreConfig() ContextStoreConfig {
	return ContextStoreConfig{
		MaxWarmChunks:          100,
		ColdThresholdSecs:      3600,
		EnableCompression:      true,
		CompactionIntervalSecs: 300,
	}
}

// FileTreeConfig configures the project file-tree snapshot.
type FileTreeConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxFiles          int      `yaml:"max_files"`
	IgnoreDirs        []string `yaml:"ignore_dirs"`
	IncludeExtensions []string `yaml:"include_extensions"`
}

// DefaultFileTreeConfig returns sensible defaults.
func DefaultFileTreeConfig() FileTreeConfig {
	return FileTreeConfig{
		MaxDepth: 5,
		MaxFiles: 500,
		IgnoreDirs: []string{
			"target", "node_modules", ".git", "__pycache__", ".venv",
			"dist", "build", ".next", ".cache", "coverage",
			".pytest_cache", ".mypy_cache", "vendor", "Pods",
		},
		IncludeExtensions: nil,
	}
}

// BeadConfig configures the append-only task log.
type BeadConfig struct {
	LogPath string `yaml:"log_path"`
}

// DefaultBeadConfig returns sensible defaults.
func DefaultBeadConfig() BeadConfig {
	return BeadConfig{LogPath: ".beads/beads.jsonl"}
}
