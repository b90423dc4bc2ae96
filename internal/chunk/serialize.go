package chunk

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON flattens Content into the envelope alongside the chunk's
// other fields, so the wire format matches a plain struct rather than
// nesting content under its own key twice.
func (c Chunk) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID              interface{}     `json:"id"`
		Type            Type            `json:"chunk_type"`
		Content         json.RawMessage `json:"content"`
		ParentID        interface{}     `json:"parent_id,omitempty"`
		Children        interface{}     `json:"children"`
		TokenCount      uint32          `json:"token_count"`
		Priority        Priority        `json:"priority"`
		Sequence        uint64          `json:"sequence"`
		Tier            Tier            `json:"storage_tier"`
		CreatedAt       interface{}     `json:"created_at"`
		AccessedAt      interface{}     `json:"accessed_at"`
		ReferencedFiles interface{}     `json:"referenced_files,omitempty"`
		RelatedChunks   interface{}     `json:"related_chunks,omitempty"`
		RetentionScore  float64         `json:"retention_score"`
	}

	contentJSON, err := json.Marshal(c.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk content: %w", err)
	}

	return json.Marshal(alias{
		ID:              c.ID,
		Type:            c.Type,
		Content:         contentJSON,
		ParentID:        c.ParentID,
		Children:        c.Children,
		TokenCount:      c.TokenCount,
		Priority:        c.Priority,
		Sequence:        c.Sequence,
		Tier:            c.Tier,
		CreatedAt:       c.CreatedAt,
		AccessedAt:      c.AccessedAt,
		ReferencedFiles: c.ReferencedFiles,
		RelatedChunks:   c.RelatedChunks,
		RetentionScore:  c.RetentionScore,
	})
}

// UnmarshalJSON decodes the envelope, then dispatches Content to the
// concrete variant named by chunk_type.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID              json.RawMessage `json:"id"`
		Type            Type            `json:"chunk_type"`
		Content         json.RawMessage `json:"content"`
		ParentID        json.RawMessage `json:"parent_id,omitempty"`
		Children        json.RawMessage `json:"children"`
		TokenCount      uint32          `json:"token_count"`
		Priority        Priority        `json:"priority"`
		Sequence        uint64          `json:"sequence"`
		Tier            Tier            `json:"storage_tier"`
		CreatedAt       json.RawMessage `json:"created_at"`
		AccessedAt      json.RawMessage `json:"accessed_at"`
		ReferencedFiles json.RawMessage `json:"referenced_files,omitempty"`
		RelatedChunks   json.RawMessage `json:"related_chunks,omitempty"`
		RetentionScore  float64         `json:"retention_score"`
	}

	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("unmarshal chunk envelope: %w", err)
	}

	content, err := decodeContent(a.Type, a.Content)
	if err != nil {
		return err
	}

	*c = Chunk{
		Type:            a.Type,
		Content:         content,
		TokenCount:      a.TokenCount,
		Priority:        a.Priority,
		Sequence:        a.Sequence,
		Tier:            a.Tier,
		RetentionScore:  a.RetentionScore,
	}

	if len(a.ID) > 0 {
		if err := json.Unmarshal(a.ID, &c.ID); err != nil {
			return fmt.Errorf("unmarshal chunk id: %w", err)
		}
	}
	if len(a.ParentID) > 0 && string(a.ParentID) != "null" {
		if err := json.Unmarshal(a.ParentID, &c.ParentID); err != nil {
			return fmt.Errorf("unmarshal chunk parent_id: %w", err)
		}
	}
	if len(a.Children) > 0 {
		if err := json.Unmarshal(a.Children, &c.Children); err != nil {
			return fmt.Errorf("unmarshal chunk children: %w", err)
		}
	}
	if len(a.CreatedAt) > 0 {
		if err := json.Unmarshal(a.CreatedAt, &c.CreatedAt); err != nil {
			return fmt.Errorf("unmarshal chunk created_at: %w", err)
		}
	}
	if len(a.AccessedAt) > 0 {
		if err := json.Unmarshal(a.AccessedAt, &c.AccessedAt); err != nil {
			return fmt.Errorf("unmarshal chunk accessed_at: %w", err)
		}
	}
	if len(a.ReferencedFiles) > 0 {
		if err := json.Unmarshal(a.ReferencedFiles, &c.ReferencedFiles); err != nil {
			return fmt.Errorf("unmarshal chunk referenced_files: %w", err)
		}
	}
	if len(a.RelatedChunks) > 0 {
		if err := json.Unmarshal(a.RelatedChunks, &c.RelatedChunks); err != nil {
			return fmt.Errorf("unmarshal chunk related_chunks: %w", err)
		}
	}

	return nil
}

// decodeContent dispatches a raw content payload to its concrete Content
// implementation based on the chunk's declared type.
func decodeContent(typ Type, raw json.RawMessage) (Content, error) {
	var err error
	switch typ {
	case TypeMessage:
		var v MessageContent
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeToolCall:
		var v ToolCallContent
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeSummary:
		var v SummaryContent
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeSystem:
		var v SystemContent
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeFileContent:
		var v FileContentContent
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeMetadata:
		var v MetadataContent
		err = json.Unmarshal(raw, &v)
		return v, err
	case TypeFileTree:
		var v FileTreeContent
		err = json.Unmarshal(raw, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown chunk content type: %d", typ)
	}
}
