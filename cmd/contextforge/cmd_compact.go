package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contextforge/internal/contextstore"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run one compaction cycle (hot->warm, warm->cold, WAL rotation)",
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	store, err := contextstore.OpenWithConfig(sessionPath, contextStoreConfig())
	if err != nil {
		return fmt.Errorf("open context store: %w", err)
	}
	defer store.Close()

	before, err := store.Stats()
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	if err := store.Compact(); err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	after, err := store.Stats()
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	fmt.Printf("hot:  %d -> %d\n", before.HotChunks, after.HotChunks)
	fmt.Printf("warm: %d -> %d\n", before.WarmChunks, after.WarmChunks)
	fmt.Printf("cold: %d -> %d\n", before.ColdChunks, after.ColdChunks)
	return nil
}
