// Package main implements the contextforge CLI: a small operator surface
// over a session's tiered chunk store, conversation memory, and bead log.
//
// # File Index
//
//   - main.go      - entry point, rootCmd, global flags, init()
//   - cmd_stats.go - statsCmd, recentCmd
//   - cmd_compact.go - compactCmd
//   - cmd_memory.go  - memoryCmd, memorySearchCmd, memoryRecentCmd
//   - cmd_bead.go    - beadCmd and its subcommands
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"contextforge/internal/config"
	"contextforge/internal/logging"
)

var (
	verbose     bool
	sessionPath string
	configPath  string
	logger      *zap.Logger
	appConfig   *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "contextforge",
	Short: "Operator CLI for a contextforge session's tiered storage",
	Long: `contextforge inspects and maintains a session's on-disk storage:
the hot/warm/cold chunk store, the durable conversation-memory archive,
and the append-only bead log.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if sessionPath == "" {
			sessionPath, _ = os.Getwd()
		}
		if err := logging.Initialize(sessionPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}

		effectiveConfigPath := configPath
		if effectiveConfigPath == "" {
			effectiveConfigPath = filepath.Join(sessionPath, "contextforge.yaml")
		}
		cfg, err := config.Load(effectiveConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&sessionPath, "session", "s", "", "Session storage directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: <session>/contextforge.yaml)")

	rootCmd.AddCommand(
		statsCmd,
		recentCmd,
		compactCmd,
		memoryCmd,
		beadCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
