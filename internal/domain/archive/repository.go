package archive

// Repository 归档仓库接口
// 由 infrastructure/storage 的 SQLite 实现提供，索引与检索只读使用
type Repository interface {
	// ListConversations 按创建时间排序返回会话
	// conversationIDs 为空表示全部
	ListConversations(conversationIDs []string) ([]*Conversation, error)

	// GetMessages 返回指定会话的消息
	// 按 create_time 升序，其次按插入 id 升序，保证确定性顺序
	GetMessages(conversationID string) ([]*Message, error)
}
