package context

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func createTestStructure(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "utils"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tests"), 0755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "utils", "helpers.go"), []byte("package utils"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tests", "main_test.go"), []byte("package tests"), 0644))

	return root
}

func TestGenerateTree(t *testing.T) {
	root := createTestStructure(t)
	tree, err := GenerateFileTree(root, DefaultFileTreeConfig())
	require.NoError(t, err)

	require.Greater(t, tree.FileCount(), 0)
	require.Greater(t, tree.DirCount(), 0)
	require.Contains(t, tree.AsString(), "src/")
	require.Contains(t, tree.AsString(), "main.go")
}

func TestIgnoreDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "test.js"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.js"), nil, 0644))

	tree, err := GenerateFileTree(root, DefaultFileTreeConfig())
	require.NoError(t, err)

	require.NotContains(t, tree.AsString(), "node_modules")
	require.Contains(t, tree.AsString(), "index.js")
}

func TestMaxDepth(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c", "d", "e", "f", "g", "h")
	require.NoError(t, os.MkdirAll(deep, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "deep.txt"), nil, 0644))

	config := DefaultFileTreeConfig()
	config.MaxDepth = 3

	tree, err := GenerateFileTree(root, config)
	require.NoError(t, err)

	require.True(t, tree.IsTruncated() || !strings.Contains(tree.AsString(), "deep.txt"))
}

func TestMaxFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "file"+string(rune('a'+i))+".txt"), nil, 0644))
	}

	config := DefaultFileTreeConfig()
	config.MaxFiles = 5

	tree, err := GenerateFileTree(root, config)
	require.NoError(t, err)

	require.True(t, tree.IsTruncated())
	require.LessOrEqual(t, tree.FileCount(), 5)
}

func TestExtensionFilter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.go"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), nil, 0644))

	config := DefaultFileTreeConfig()
	config.IncludeExtensions = map[string]struct{}{"go": {}}

	tree, err := GenerateFileTree(root, config)
	require.NoError(t, err)

	require.Contains(t, tree.AsString(), "main.go")
	require.Contains(t, tree.AsString(), "lib.go")
	require.NotContains(t, tree.AsString(), "README.md")
	require.NotContains(t, tree.AsString(), "data.json")
}

func TestToContextString(t *testing.T) {
	root := createTestStructure(t)
	tree, err := GenerateFileTree(root, DefaultFileTreeConfig())
	require.NoError(t, err)

	out := tree.ToContextString()
	require.True(t, strings.HasPrefix(out, "Project structure"))
	require.Contains(t, out, "files")
	require.Contains(t, out, "directories")
}

func TestRefresh(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "original.txt"), nil, 0644))

	config := DefaultFileTreeConfig()
	tree, err := GenerateFileTree(root, config)
	require.NoError(t, err)

	require.Contains(t, tree.AsString(), "original.txt")
	require.NotContains(t, tree.AsString(), "new_file.txt")

	require.NoError(t, os.WriteFile(filepath.Join(root, "new_file.txt"), nil, 0644))
	require.NoError(t, tree.Refresh(config))

	require.Contains(t, tree.AsString(), "new_file.txt")
}

func TestEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	tree, err := GenerateFileTree(root, DefaultFileTreeConfig())
	require.NoError(t, err)

	require.Equal(t, 0, tree.FileCount())
	require.Equal(t, 0, tree.DirCount())
}

func TestSorting(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "zebra"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alpha"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "middle.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "aardvark.txt"), nil, 0644))

	tree, err := GenerateFileTree(root, DefaultFileTreeConfig())
	require.NoError(t, err)
	out := tree.AsString()

	alphaPos := strings.Index(out, "alpha/")
	zebraPos := strings.Index(out, "zebra/")
	aardvarkPos := strings.Index(out, "aardvark.txt")

	require.Less(t, alphaPos, zebraPos)
	require.Less(t, zebraPos, aardvarkPos)
}

func TestFileTreeConfigDefault(t *testing.T) {
	config := DefaultFileTreeConfig()

	require.Equal(t, 5, config.MaxDepth)
	require.Equal(t, 500, config.MaxFiles)
	_, hasNodeModules := config.IgnoreDirs["node_modules"]
	require.True(t, hasNodeModules)
	_, hasGit := config.IgnoreDirs[".git"]
	require.True(t, hasGit)
	require.Empty(t, config.IncludeExtensions)
}
