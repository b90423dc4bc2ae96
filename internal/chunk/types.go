// Package chunk defines the fundamental unit of context storage: a single
// piece of conversation context (message, tool call, summary, file tree, ...)
// along with the metadata the tiered store needs to rank, migrate, and
// eventually evict it.
package chunk

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies what kind of content a Chunk carries.
type Type int32

const (
	TypeMessage Type = iota
	TypeToolCall
	TypeSummary
	TypeSystem
	TypeFileContent
	TypeMetadata
	TypeFileTree
)

func (t Type) String() string {
	switch t {
	case TypeMessage:
		return "message"
	case TypeToolCall:
		return "tool_call"
	case TypeSummary:
		return "summary"
	case TypeSystem:
		return "system"
	case TypeFileContent:
		return "file_content"
	case TypeMetadata:
		return "metadata"
	case TypeFileTree:
		return "file_tree"
	default:
		return "unknown"
	}
}

// DefaultPriority returns the priority newly created chunks of this type
// receive absent an explicit override.
func (t Type) DefaultPriority() Priority {
	switch t {
	case TypeMessage:
		return PriorityHigh
	case TypeToolCall:
		return PriorityNormal
	case TypeSummary:
		return PriorityHigh
	case TypeSystem:
		return PriorityCritical
	case TypeFileContent:
		return PriorityLow
	case TypeMetadata:
		return PriorityNormal
	case TypeFileTree:
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Priority ranks a chunk's importance for retention during compaction.
// Lower numeric value means higher importance; order matters for sorting.
type Priority int32

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// weight returns the static component of EffectivePriority's blend.
func (p Priority) weight() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.75
	case PriorityNormal:
		return 0.5
	case PriorityLow:
		return 0.25
	default:
		return 0.5
	}
}

// Tier is the storage tier a chunk currently resides in.
type Tier int32

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// DirName returns the on-disk directory segment associated with a tier.
func (t Tier) DirName() string {
	switch t {
	case TierHot:
		return "wal"
	case TierWarm:
		return "chunks"
	case TierCold:
		return "cold"
	default:
		return "unknown"
	}
}

// Chunk is a single unit of conversation context tracked by the tiered
// store. It carries enough metadata (priority, tier, token count, retention
// score) for the store to decide when and where to migrate it without
// touching Content itself.
type Chunk struct {
	ID      uuid.UUID `json:"id"`
	Type    Type      `json:"chunk_type"`
	Content Content   `json:"content"`

	ParentID *uuid.UUID  `json:"parent_id,omitempty"`
	Children []uuid.UUID `json:"children"`

	TokenCount uint32   `json:"token_count"`
	Priority   Priority `json:"priority"`
	Sequence   uint64   `json:"sequence"`
	Tier       Tier     `json:"storage_tier"`

	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`

	ReferencedFiles []string    `json:"referenced_files,omitempty"`
	RelatedChunks   []uuid.UUID `json:"related_chunks,omitempty"`
	RetentionScore  float64     `json:"retention_score"`
}

// New builds a chunk from the given content, deriving token count, default
// priority, and any file references the content implies.
func New(typ Type, content Content, parentID *uuid.UUID, sequence uint64) *Chunk {
	now := time.Now().UTC()
	return &Chunk{
		ID:              uuid.New(),
		Type:            typ,
		Content:         content,
		ParentID:        parentID,
		Children:        nil,
		TokenCount:      content.EstimateTokens(),
		Priority:        typ.DefaultPriority(),
		Sequence:        sequence,
		Tier:            TierHot,
		CreatedAt:       now,
		AccessedAt:      now,
		ReferencedFiles: content.ExtractFilePaths(),
		RelatedChunks:   nil,
		RetentionScore:  0,
	}
}

// NewMessage creates a new message chunk.
func NewMessage(role, content string, parentID *uuid.UUID, sequence uint64) *Chunk {
	return New(TypeMessage, MessageContent{Role: role, Content: content}, parentID, sequence)
}

// NewToolCall creates a new tool-call chunk.
func NewToolCall(toolName string, input map[string]any, output string, isError bool, parentID *uuid.UUID, sequence uint64) *Chunk {
	return New(TypeToolCall, ToolCallContent{
		ToolName: toolName,
		Input:    input,
		Output:   output,
		IsError:  isError,
	}, parentID, sequence)
}

// NewSummary creates a new summary chunk over a set of summarized chunks.
func NewSummary(summary string, summarizedChunks []uuid.UUID, parentID *uuid.UUID, sequence uint64) *Chunk {
	return New(TypeSummary, SummaryContent{
		SummaryText:      summary,
		SummarizedChunks: summarizedChunks,
	}, parentID, sequence)
}

// NewSystem creates a new system-context chunk. System chunks have no parent.
func NewSystem(content string, sequence uint64) *Chunk {
	return New(TypeSystem, SystemContent{Content: content}, nil, sequence)
}

// NewFileContent creates a chunk holding the contents of a file that was read.
func NewFileContent(path, content string, language *string, parentID *uuid.UUID, sequence uint64) *Chunk {
	return New(TypeFileContent, FileContentContent{
		Path:     path,
		Content:  content,
		Language: language,
	}, parentID, sequence)
}

// NewMetadata creates a chunk holding a single session metadata key/value.
func NewMetadata(key string, value any, parentID *uuid.UUID, sequence uint64) *Chunk {
	return New(TypeMetadata, MetadataContent{Key: key, Value: value}, parentID, sequence)
}

// NewFileTree creates a file-tree snapshot chunk. File trees are core memory
// and are never demoted out of Hot, nor compacted away.
func NewFileTree(rootName, tree string, fileCount, dirCount int, truncated bool, sequence uint64) *Chunk {
	return New(TypeFileTree, FileTreeContent{
		RootName:  rootName,
		Tree:      tree,
		FileCount: fileCount,
		DirCount:  dirCount,
		Truncated: truncated,
	}, nil, sequence)
}

// Touch marks the chunk as accessed now.
func (c *Chunk) Touch() {
	c.AccessedAt = time.Now().UTC()
}

// Demote moves the chunk to the next-lower storage tier. Cold is a fixed
// point: chunks never demote past Cold.
func (c *Chunk) Demote() {
	switch c.Tier {
	case TierHot:
		c.Tier = TierWarm
	case TierWarm:
		c.Tier = TierCold
	}
}

// Promote moves the chunk to the next-higher storage tier. Hot is a fixed
// point: chunks never promote past Hot.
func (c *Chunk) Promote() {
	switch c.Tier {
	case TierCold:
		c.Tier = TierWarm
	case TierWarm:
		c.Tier = TierHot
	}
}

// CanCompact reports whether this chunk is eligible for compaction given its
// priority and current tier. Critical chunks are never eligible; High
// chunks only become eligible once they have reached Cold.
func (c *Chunk) CanCompact() bool {
	switch c.Priority {
	case PriorityCritical:
		return false
	case PriorityHigh:
		return c.Tier == TierCold
	default:
		return true
	}
}

// AddRelated records an associative link to another chunk, deduplicated.
func (c *Chunk) AddRelated(id uuid.UUID) {
	for _, existing := range c.RelatedChunks {
		if existing == id {
			return
		}
	}
	c.RelatedChunks = append(c.RelatedChunks, id)
}

// AddFileReference records a file path this chunk references, deduplicated.
func (c *Chunk) AddFileReference(path string) {
	for _, existing := range c.ReferencedFiles {
		if existing == path {
			return
		}
	}
	c.ReferencedFiles = append(c.ReferencedFiles, path)
}

// SetRetentionScore updates the dynamic retention score assigned by the
// indexer/recall subsystem.
func (c *Chunk) SetRetentionScore(score float64) {
	c.RetentionScore = score
}

// EffectivePriority blends the chunk's static priority weight with its
// dynamic retention score: 70% static, 30% dynamic.
func (c *Chunk) EffectivePriority() float64 {
	return c.Priority.weight()*0.7 + c.RetentionScore*0.3
}

// ReferencesFile reports whether this chunk references the given path.
func (c *Chunk) ReferencesFile(path string) bool {
	for _, p := range c.ReferencedFiles {
		if p == path {
			return true
		}
	}
	return false
}
