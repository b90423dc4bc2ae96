package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contextforge/internal/contextstore"
)

var recentLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk counts and token totals across all tiers",
	RunE:  runStats,
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recently appended chunks",
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 20, "Number of chunks to show")
}

// contextStoreConfig maps the loaded YAML configuration's context_store
// section onto contextstore.Config, falling back to contextstore's own
// defaults when no config has been loaded yet (e.g. in tests that call
// these run functions directly).
func contextStoreConfig() contextstore.Config {
	if appConfig == nil {
		return contextstore.DefaultConfig()
	}
	return contextstore.Config{
		MaxWarmChunks:     appConfig.ContextStore.MaxWarmChunks,
		ColdThresholdSecs: appConfig.ContextStore.ColdThresholdSecs,
		EnableCompression: appConfig.ContextStore.EnableCompression,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := contextstore.OpenWithConfig(sessionPath, contextStoreConfig())
	if err != nil {
		return fmt.Errorf("open context store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	fmt.Printf("Session:       %s\n", stats.SessionID)
	fmt.Printf("Total chunks:  %d (hot=%d warm=%d cold=%d)\n", stats.TotalChunks, stats.HotChunks, stats.WarmChunks, stats.ColdChunks)
	fmt.Printf("Total tokens:  %d\n", stats.TotalTokens)
	fmt.Printf("Storage bytes: %d\n", stats.StorageBytes)
	return nil
}

func runRecent(cmd *cobra.Command, args []string) error {
	store, err := contextstore.OpenWithConfig(sessionPath, contextStoreConfig())
	if err != nil {
		return fmt.Errorf("open context store: %w", err)
	}
	defer store.Close()

	chunks, err := store.GetRecent(recentLimit)
	if err != nil {
		return fmt.Errorf("get recent chunks: %w", err)
	}

	for _, c := range chunks {
		fmt.Printf("[%d] %s %s (%s, %d tok)\n", c.Sequence, c.ID, c.Type, c.Tier, c.TokenCount)
	}
	return nil
}
