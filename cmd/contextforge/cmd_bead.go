package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"contextforge/internal/bead"
	"contextforge/internal/config"
)

var (
	beadPriorityFlag string
	beadTagsFlag     []string
	beadDependsFlag  []string
)

var beadCmd = &cobra.Command{
	Use:   "bead",
	Short: "Manage the append-only task log",
}

var beadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all beads",
	RunE:  runBeadList,
}

var beadActionableCmd = &cobra.Command{
	Use:   "actionable",
	Short: "List beads ready to start (Pending with satisfied dependencies)",
	RunE:  runBeadActionable,
}

var beadCreateCmd = &cobra.Command{
	Use:   "create [id] [title] [description]",
	Short: "Create a new bead",
	Args:  cobra.ExactArgs(3),
	RunE:  runBeadCreate,
}

var beadDoneCmd = &cobra.Command{
	Use:   "done [id]",
	Short: "Mark a bead as Done",
	Args:  cobra.ExactArgs(1),
	RunE:  runBeadDone,
}

var beadStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show bead completion statistics",
	RunE:  runBeadStats,
}

var beadCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the bead log to its current state",
	RunE:  runBeadCompact,
}

var beadNoteAuthor string

var beadNoteCmd = &cobra.Command{
	Use:   "note [id] [text]",
	Short: "Append a note to a bead without changing its status",
	Args:  cobra.ExactArgs(2),
	RunE:  runBeadNote,
}

func init() {
	beadCreateCmd.Flags().StringVar(&beadPriorityFlag, "priority", "medium", "Priority: low, medium, high, critical")
	beadCreateCmd.Flags().StringSliceVar(&beadTagsFlag, "tags", nil, "Tags")
	beadCreateCmd.Flags().StringSliceVar(&beadDependsFlag, "depends-on", nil, "Dependency bead IDs")

	beadNoteCmd.Flags().StringVar(&beadNoteAuthor, "author", "", "Note author")

	beadCmd.AddCommand(beadListCmd, beadActionableCmd, beadCreateCmd, beadDoneCmd, beadStatsCmd, beadCompactCmd, beadNoteCmd)
}

func beadLogPath() string {
	logPath := config.DefaultBeadConfig().LogPath
	if appConfig != nil {
		logPath = appConfig.Bead.LogPath
	}
	if filepath.IsAbs(logPath) {
		return logPath
	}
	return filepath.Join(sessionPath, logPath)
}

func openBeadStore() (*bead.Store, error) {
	return bead.Open(beadLogPath())
}

func parsePriority(s string) bead.Priority {
	switch s {
	case "low":
		return bead.PriorityLow
	case "high":
		return bead.PriorityHigh
	case "critical":
		return bead.PriorityCritical
	default:
		return bead.PriorityMedium
	}
}

func printBead(b bead.Bead) {
	fmt.Printf("%-8s [%-11s] %-8s %s\n", b.ID, b.Status.Kind, b.Priority, b.Title)
}

func runBeadList(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}
	for _, b := range store.All() {
		printBead(b)
	}
	return nil
}

func runBeadActionable(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}
	for _, b := range store.GetActionable() {
		printBead(b)
	}
	return nil
}

func runBeadCreate(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}

	b := bead.New(args[0], args[1], args[2]).
		WithPriority(parsePriority(beadPriorityFlag)).
		WithTags(beadTagsFlag).
		WithDependsOn(beadDependsFlag)

	if err := store.Create(b); err != nil {
		return fmt.Errorf("create bead: %w", err)
	}
	fmt.Printf("created bead %s\n", b.ID)
	return nil
}

func runBeadDone(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}

	b, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("bead %q not found", args[0])
	}
	b.SetStatus(bead.Done())
	if err := store.Update(b); err != nil {
		return fmt.Errorf("update bead: %w", err)
	}
	fmt.Printf("bead %s marked done\n", b.ID)
	return nil
}

func runBeadStats(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}

	stats := store.Stats()
	fmt.Printf("total:       %d\n", stats.Total)
	fmt.Printf("pending:     %d\n", stats.Pending)
	fmt.Printf("ready:       %d\n", stats.Ready)
	fmt.Printf("in progress: %d\n", stats.InProgress)
	fmt.Printf("blocked:     %d\n", stats.Blocked)
	fmt.Printf("done:        %d\n", stats.Done)
	fmt.Printf("cancelled:   %d\n", stats.Cancelled)
	fmt.Printf("complete:    %.1f%%\n", stats.CompletionPercentage())
	return nil
}

func runBeadNote(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}
	if err := store.NotesAppend(args[0], args[1], beadNoteAuthor); err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	fmt.Printf("note appended to bead %s\n", args[0])
	return nil
}

func runBeadCompact(cmd *cobra.Command, args []string) error {
	store, err := openBeadStore()
	if err != nil {
		return fmt.Errorf("open bead store: %w", err)
	}
	if err := store.Compact(); err != nil {
		return fmt.Errorf("compact bead log: %w", err)
	}
	fmt.Println("bead log compacted")
	return nil
}
