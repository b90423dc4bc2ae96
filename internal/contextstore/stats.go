package contextstore

// Stats reports on a store's contents across all three tiers.
type Stats struct {
	SessionID    string
	TotalChunks  int
	HotChunks    int
	WarmChunks   int
	ColdChunks   int
	TotalTokens  uint32
	StorageBytes uint64
}
