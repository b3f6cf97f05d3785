package rag

import "strings"

// Chunk 会话切片
// 一段连续消息拼接成的 "role: content" 文本，是向量化与检索的最小单位。
// 同一会话的全部切片按顺序拼接恰好还原消息顺序，
// 唯一例外是超长单条消息会被拆成多个携带同一 message_id 的切片
type Chunk struct {
	Content     string   // 切片文本
	MessageIDs  []string // 覆盖的消息 ID（保持原始顺序）
	ChunkIndex  int      // 在会话中的索引（0 起）
	TotalChunks int      // 会话切片总数（切分完成后回填）
}

// WordCount 返回切片词数
func (c *Chunk) WordCount() int {
	return len(strings.Fields(c.Content))
}
