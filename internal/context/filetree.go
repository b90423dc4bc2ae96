package context

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileTreeConfig tunes how a FileTree is generated.
type FileTreeConfig struct {
	MaxDepth          int
	MaxFiles          int
	IgnoreDirs        map[string]struct{}
	IncludeExtensions map[string]struct{}
}

var defaultIgnoreDirs = []string{
	"target", "node_modules", ".git", "__pycache__", ".venv",
	"dist", "build", ".next", ".cache", "coverage", ".pytest_cache",
	".mypy_cache", "vendor", "Pods",
}

// DefaultFileTreeConfig mirrors the conventional ignore set used across the
// rest of the toolchain: depth 5, 500 files, common build/VCS directories skipped.
func DefaultFileTreeConfig() FileTreeConfig {
	ignore := make(map[string]struct{}, len(defaultIgnoreDirs))
	for _, d := range defaultIgnoreDirs {
		ignore[d] = struct{}{}
	}
	return FileTreeConfig{
		MaxDepth:          5,
		MaxFiles:          500,
		IgnoreDirs:        ignore,
		IncludeExtensions: map[string]struct{}{},
	}
}

// FileTree is a cached, pre-rendered snapshot of a directory structure.
type FileTree struct {
	root       string
	treeString string
	fileCount  int
	dirCount   int
	truncated  bool
}

var errTruncated = fmt.Errorf("tree truncated")

// GenerateFileTree walks root and renders a tree-style string representation,
// honoring config's depth, file-count, ignore, and extension-filter limits.
func GenerateFileTree(root string, config FileTreeConfig) (*FileTree, error) {
	var sb strings.Builder
	var fileCount, dirCount int

	err := buildTree(root, "", 0, config, &sb, &fileCount, &dirCount)
	truncated := err != nil || fileCount >= config.MaxFiles

	treeString := sb.String()
	if truncated {
		treeString += "\n... (truncated)\n"
	}

	return &FileTree{
		root:       root,
		treeString: treeString,
		fileCount:  fileCount,
		dirCount:   dirCount,
		truncated:  truncated,
	}, nil
}

func buildTree(current, prefix string, depth int, config FileTreeConfig, output *strings.Builder, fileCount, dirCount *int) error {
	if depth > config.MaxDepth || *fileCount >= config.MaxFiles {
		return errTruncated
	}

	entries, err := os.ReadDir(current)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", current, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		iDir, jDir := entries[i].IsDir(), entries[j].IsDir()
		if iDir != jDir {
			return iDir
		}
		return entries[i].Name() < entries[j].Name()
	})

	for i, entry := range entries {
		if *fileCount >= config.MaxFiles {
			return errTruncated
		}

		isLast := i == len(entries)-1
		connector, childPrefix := "├── ", "│   "
		if isLast {
			connector, childPrefix = "└── ", "    "
		}

		name := entry.Name()
		isDir := entry.IsDir()

		if isDir {
			if _, ignored := config.IgnoreDirs[name]; ignored {
				continue
			}
		}

		if !isDir && len(config.IncludeExtensions) > 0 {
			ext := strings.TrimPrefix(filepath.Ext(name), ".")
			if _, ok := config.IncludeExtensions[ext]; !ok {
				continue
			}
		}

		output.WriteString(prefix)
		output.WriteString(connector)
		output.WriteString(name)
		if isDir {
			output.WriteString("/")
			*dirCount++
		} else {
			*fileCount++
		}
		output.WriteString("\n")

		if isDir {
			if err := buildTree(filepath.Join(current, name), prefix+childPrefix, depth+1, config, output, fileCount, dirCount); err != nil {
				return err
			}
		}
	}

	return nil
}

// AsString returns the pre-rendered tree text.
func (f *FileTree) AsString() string { return f.treeString }

// RootName returns the root directory's base name, for display.
func (f *FileTree) RootName() string {
	name := filepath.Base(f.root)
	if name == "" {
		return "."
	}
	return name
}

// ToContextString formats the tree with a header and, when untruncated, a
// trailing file/directory count suitable for inclusion in a context chunk.
func (f *FileTree) ToContextString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project structure (%s):\n", f.RootName())
	sb.WriteString(f.treeString)
	if !f.truncated {
		fmt.Fprintf(&sb, "\n(%d files, %d directories)\n", f.fileCount, f.dirCount)
	}
	return sb.String()
}

// FileCount returns the number of files included in the tree.
func (f *FileTree) FileCount() int { return f.fileCount }

// DirCount returns the number of directories included in the tree.
func (f *FileTree) DirCount() int { return f.dirCount }

// IsTruncated reports whether the walk hit a depth, file-count, or read error limit.
func (f *FileTree) IsTruncated() bool { return f.truncated }

// Refresh regenerates the tree in place, picking up filesystem changes since
// the last generation.
func (f *FileTree) Refresh(config FileTreeConfig) error {
	fresh, err := GenerateFileTree(f.root, config)
	if err != nil {
		return err
	}
	*f = *fresh
	return nil
}
