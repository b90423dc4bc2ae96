package chunk

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// fileReferencingTools is the set of tool names whose input we inspect for
// file paths when extracting referenced files from a tool-call chunk.
var fileReferencingTools = map[string]bool{
	"file_read":  true,
	"file_edit":  true,
	"file_write": true,
	"glob":       true,
	"grep":       true,
}

// Content is the tagged-union payload a Chunk carries. Each concrete type
// below implements one variant.
type Content interface {
	// Kind identifies which Type this content belongs to.
	Kind() Type

	// EstimateTokens returns a rough token count for this content, using the
	// ~4-characters-per-token heuristic.
	EstimateTokens() uint32

	// Text returns the content rendered as plain text, for display/search.
	Text() string

	// ExtractFilePaths returns any file paths implied by this content.
	ExtractFilePaths() []string
}

// MessageContent is a single conversation message.
type MessageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m MessageContent) Kind() Type                { return TypeMessage }
func (m MessageContent) EstimateTokens() uint32     { return uint32(len(m.Content) / 4) }
func (m MessageContent) Text() string               { return m.Content }
func (m MessageContent) ExtractFilePaths() []string { return nil }

// ToolCallContent is a tool invocation and its result.
type ToolCallContent struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input"`
	Output   string         `json:"output"`
	IsError  bool           `json:"is_error"`
}

func (t ToolCallContent) Kind() Type { return TypeToolCall }

func (t ToolCallContent) EstimateTokens() uint32 {
	inputJSON, _ := json.Marshal(t.Input)
	return uint32((len(inputJSON) + len(t.Output)) / 4)
}

func (t ToolCallContent) Text() string {
	return fmt.Sprintf("Tool: %s\nOutput: %s", t.ToolName, t.Output)
}

// ExtractFilePaths pulls "path" and "pattern" arguments out of tool input
// for the handful of tools that reference files on disk.
func (t ToolCallContent) ExtractFilePaths() []string {
	if !fileReferencingTools[t.ToolName] {
		return nil
	}
	var paths []string
	if p, ok := t.Input["path"].(string); ok && p != "" {
		paths = append(paths, p)
	}
	if p, ok := t.Input["pattern"].(string); ok && p != "" {
		paths = append(paths, p)
	}
	return paths
}

// SummaryContent is a condensed summary of prior chunks.
type SummaryContent struct {
	SummaryText      string      `json:"text"`
	SummarizedChunks []uuid.UUID `json:"summarized_chunks"`
}

func (s SummaryContent) Kind() Type                { return TypeSummary }
func (s SummaryContent) EstimateTokens() uint32     { return uint32(len(s.SummaryText) / 4) }
func (s SummaryContent) Text() string               { return s.SummaryText }
func (s SummaryContent) ExtractFilePaths() []string { return nil }

// SystemContent is system-level context: project info, capabilities, etc.
type SystemContent struct {
	Content string `json:"content"`
}

func (s SystemContent) Kind() Type                { return TypeSystem }
func (s SystemContent) EstimateTokens() uint32     { return uint32(len(s.Content) / 4) }
func (s SystemContent) Text() string               { return s.Content }
func (s SystemContent) ExtractFilePaths() []string { return nil }

// FileContentContent holds the content of a file that was read.
type FileContentContent struct {
	Path     string  `json:"path"`
	Content  string  `json:"content"`
	Language *string `json:"language,omitempty"`
}

func (f FileContentContent) Kind() Type            { return TypeFileContent }
func (f FileContentContent) EstimateTokens() uint32 { return uint32(len(f.Content) / 4) }
func (f FileContentContent) Text() string {
	return fmt.Sprintf("File: %s\n%s", f.Path, f.Content)
}
func (f FileContentContent) ExtractFilePaths() []string { return []string{f.Path} }

// MetadataContent is a single session metadata key/value pair.
type MetadataContent struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (m MetadataContent) Kind() Type { return TypeMetadata }

func (m MetadataContent) EstimateTokens() uint32 {
	valueJSON, _ := json.Marshal(m.Value)
	return uint32(len(valueJSON) / 4)
}

func (m MetadataContent) Text() string {
	valueJSON, _ := json.Marshal(m.Value)
	return fmt.Sprintf("%s: %s", m.Key, valueJSON)
}

func (m MetadataContent) ExtractFilePaths() []string { return nil }

// FileTreeContent is a project file-tree snapshot. File trees are core
// memory: Type.DefaultPriority makes them Critical so they are never
// compacted away.
type FileTreeContent struct {
	RootName  string `json:"root_name"`
	Tree      string `json:"tree"`
	FileCount int    `json:"file_count"`
	DirCount  int    `json:"dir_count"`
	Truncated bool   `json:"truncated"`
}

func (f FileTreeContent) Kind() Type { return TypeFileTree }

func (f FileTreeContent) EstimateTokens() uint32 {
	return uint32((len(f.Tree) + len(f.RootName) + 50) / 4)
}

func (f FileTreeContent) Text() string {
	result := fmt.Sprintf("Project structure (%s):\n%s", f.RootName, f.Tree)
	if !f.Truncated {
		result += fmt.Sprintf("\n(%d files, %d directories)", f.FileCount, f.DirCount)
	}
	return result
}

func (f FileTreeContent) ExtractFilePaths() []string { return nil }
