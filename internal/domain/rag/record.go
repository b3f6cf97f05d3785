package rag

// 记录类型常量
const (
	RecordTypeChunk        = "chunk"
	RecordTypeConversation = "conversation"
)

// VectorRecord 向量存储中的一条记录
type VectorRecord struct {
	ID       int64           `json:"id"`
	Content  string          `json:"content"`
	Vector   []float32       `json:"-"`
	Metadata *RecordMetadata `json:"metadata,omitempty"`
	FileID   string          `json:"file_id,omitempty"`
}

// ScoredRecord 带相似度得分的记录
type ScoredRecord struct {
	VectorRecord
	Similarity float64 `json:"similarity"`
}

// StoreStats 向量存储统计
type StoreStats struct {
	TotalVectors  int `json:"total_vectors"`
	UniqueFileIDs int `json:"unique_file_ids"`
}

// SearchSource 检索结果的溯源信息
type SearchSource struct {
	VectorRowID    int64    `json:"vector_row_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	MessageIDs     []string `json:"message_ids,omitempty"`
	ChunkIndex     int      `json:"chunk_index"`
}

// SearchResult 单条检索结果
// Content 仅在请求要求携带原文时填充，FileID 仅在调试模式下填充
type SearchResult struct {
	Similarity float64         `json:"similarity"`
	Content    string          `json:"content,omitempty"`
	FileID     string          `json:"file_id,omitempty"`
	Source     SearchSource    `json:"source"`
	Metadata   *RecordMetadata `json:"metadata,omitempty"`
}

// PhraseResults 一个检索短语对应的结果组
type PhraseResults struct {
	Phrase  string          `json:"phrase"`
	Results []*SearchResult `json:"results"`
}
