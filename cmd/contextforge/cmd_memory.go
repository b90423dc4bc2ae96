package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"contextforge/internal/config"
	"contextforge/internal/embedding"
	"contextforge/internal/memory"
)

var memoryTopK int

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Query the durable conversation-memory archive",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantically search past conversation summaries",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemorySearch,
}

var memoryRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently stored conversation memories",
	RunE:  runMemoryRecent,
}

func init() {
	memorySearchCmd.Flags().IntVarP(&memoryTopK, "top", "k", 5, "Number of results to return")
	memoryCmd.AddCommand(memorySearchCmd, memoryRecentCmd)
}

// embeddingConfig maps the loaded YAML configuration's embedding section
// onto embedding.Config, resolving a relative bundled cache dir against
// sessionPath so it lands alongside the rest of the session's storage.
func embeddingConfig() embedding.Config {
	if appConfig == nil {
		return embedding.DefaultConfig()
	}
	cacheDir := appConfig.Embedding.BundledCacheDir
	if cacheDir != "" && !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(sessionPath, cacheDir)
	}
	return embedding.Config{
		Provider:        appConfig.Embedding.Provider,
		RemoteEndpoint:  appConfig.Embedding.RemoteEndpoint,
		RemoteModel:     appConfig.Embedding.RemoteModel,
		BundledModel:    appConfig.Embedding.BundledModel,
		BundledCacheDir: cacheDir,
	}
}

// memoryDBPath resolves the configured memory database path against
// sessionPath, falling back to the config package's own default when no
// config has been loaded yet.
func memoryDBPath() string {
	dbPath := config.DefaultMemoryConfig().DatabasePath
	if appConfig != nil {
		dbPath = appConfig.Memory.DatabasePath
	}
	if filepath.IsAbs(dbPath) {
		return dbPath
	}
	return filepath.Join(sessionPath, dbPath)
}

func openMemoryStore() (*memory.Store, error) {
	engine, err := embedding.NewEngine(embeddingConfig())
	if err != nil {
		return nil, fmt.Errorf("create embedding engine: %w", err)
	}
	return memory.Open(memoryDBPath(), engine)
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	store, err := openMemoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	topK := memoryTopK
	if !cmd.Flags().Changed("top") && appConfig != nil {
		topK = appConfig.Memory.RecallTopK
	}

	results, err := store.Search(args[0], topK)
	if err != nil {
		return fmt.Errorf("search conversation memory: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matches found.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. (score=%.3f) %s\n", i+1, r.Score, r.Content)
	}
	return nil
}

func runMemoryRecent(cmd *cobra.Command, args []string) error {
	store, err := openMemoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mems, err := store.GetRecent(20)
	if err != nil {
		return fmt.Errorf("get recent memories: %w", err)
	}
	for _, m := range mems {
		fmt.Printf("%s  %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.Summary)
	}
	return nil
}
