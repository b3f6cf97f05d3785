package rag

import "encoding/json"

// RecordMetadata 向量记录的结构化元数据
// 字段名与存储中的 JSON 键一致，过滤条件按这些键做 json_extract 匹配。
// ChunkWordCount 为 0 表示元数据里没有该字段（会话级记录或旧数据）
type RecordMetadata struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Title          string   `json:"title,omitempty"`
	AISource       string   `json:"ai_source,omitempty"`
	Type           string   `json:"type,omitempty"`
	ChunkIndex     int      `json:"chunk_index,omitempty"`
	TotalChunks    int      `json:"total_chunks,omitempty"`
	MessageIDs     []string `json:"message_ids,omitempty"`
	ChunkWordCount int      `json:"chunk_word_count,omitempty"`

	// Extra 保留未识别的键，旧数据携带的自定义元数据不会在读写间丢失
	Extra map[string]any `json:"-"`
}

var knownMetadataKeys = []string{
	"conversation_id", "title", "ai_source", "type",
	"chunk_index", "total_chunks", "message_ids", "chunk_word_count",
}

// MarshalJSON 按记录类型写出元数据 JSON。
// 块级记录始终写全部块字段：首块的 chunk_index 为 0，省略会让
// json_extract 精确匹配永远打不中首块。其余记录类型只写非零字段。
// Extra 里的键平铺到同一层，已知键优先
func (m RecordMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}

	if m.ConversationID != "" {
		out["conversation_id"] = m.ConversationID
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.AISource != "" {
		out["ai_source"] = m.AISource
	}
	if m.Type != "" {
		out["type"] = m.Type
	}

	if m.Type == RecordTypeChunk {
		out["title"] = m.Title
		out["ai_source"] = m.AISource
		out["chunk_index"] = m.ChunkIndex
		out["total_chunks"] = m.TotalChunks
		ids := m.MessageIDs
		if ids == nil {
			ids = []string{}
		}
		out["message_ids"] = ids
		out["chunk_word_count"] = m.ChunkWordCount
	} else {
		if m.ChunkIndex != 0 {
			out["chunk_index"] = m.ChunkIndex
		}
		if m.TotalChunks != 0 {
			out["total_chunks"] = m.TotalChunks
		}
		if len(m.MessageIDs) > 0 {
			out["message_ids"] = m.MessageIDs
		}
		if m.ChunkWordCount != 0 {
			out["chunk_word_count"] = m.ChunkWordCount
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON 解析已知键，剩余键收进 Extra
func (m *RecordMetadata) UnmarshalJSON(data []byte) error {
	type plain RecordMetadata
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownMetadataKeys {
		delete(raw, k)
	}

	*m = RecordMetadata(p)
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
