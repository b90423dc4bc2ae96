package contextstore

// Config tunes how a Store manages chunks across tiers.
type Config struct {
	// MaxWarmChunks is the hot-tier soft ceiling: once the hot cache grows
	// past MaxWarmChunks/2 on Append, an incremental demotion pass runs; if
	// the hot cache then holds more than MaxWarmChunks/4 chunks, half of its
	// compactable chunks move to warm, oldest first.
	MaxWarmChunks int

	// ColdThresholdSecs is how long a warm chunk must sit unaccessed before
	// it becomes eligible for cold storage.
	ColdThresholdSecs int64

	// EnableCompression turns zstd compression on for the cold tier.
	EnableCompression bool
}

// DefaultConfig returns the store defaults: 100 warm chunks, one hour
// in warm before cold eligibility, compression on.
func DefaultConfig() Config {
	return Config{
		MaxWarmChunks:     100,
		ColdThresholdSecs: 3600,
		EnableCompression: true,
	}
}
