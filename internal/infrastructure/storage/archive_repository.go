package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lodehq/backend/internal/domain/archive"
)

// 确保 ArchiveRepositoryImpl 实现了 archive.Repository 接口
var _ archive.Repository = (*ArchiveRepositoryImpl)(nil)

// ArchiveRepositoryImpl 归档仓库实现
type ArchiveRepositoryImpl struct {
	db *sql.DB
}

// NewArchiveRepository 创建归档仓库实例
func NewArchiveRepository(db *sql.DB) archive.Repository {
	return &ArchiveRepositoryImpl{db: db}
}

// ListConversations 按创建时间排序返回会话
func (r *ArchiveRepositoryImpl) ListConversations(conversationIDs []string) ([]*archive.Conversation, error) {
	query := `
		SELECT conversation_id, title, ai_source, create_time
		FROM conversations`
	var params []any

	if len(conversationIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(conversationIDs)), ",")
		query += fmt.Sprintf(" WHERE conversation_id IN (%s)", placeholders)
		for _, id := range conversationIDs {
			params = append(params, id)
		}
	}
	query += " ORDER BY create_time"

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*archive.Conversation
	for rows.Next() {
		conv := &archive.Conversation{}
		var title, aiSource sql.NullString
		var createTime sql.NullInt64
		if err := rows.Scan(&conv.ConversationID, &title, &aiSource, &createTime); err != nil {
			return nil, err
		}
		conv.Title = title.String
		conv.AISource = aiSource.String
		if conv.AISource == "" {
			conv.AISource = "gpt"
		}
		conv.CreateTime = createTime.Int64
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// GetMessages 返回指定会话的消息
// 先按 create_time 再按插入 id 排序，保证导入顺序可复现
func (r *ArchiveRepositoryImpl) GetMessages(conversationID string) ([]*archive.Message, error) {
	query := `
		SELECT message_id, role, content, create_time
		FROM messages
		WHERE conversation_id = ?
		ORDER BY create_time ASC, id ASC`

	rows, err := r.db.Query(query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*archive.Message
	for rows.Next() {
		msg := &archive.Message{}
		var content sql.NullString
		var createTime sql.NullInt64
		if err := rows.Scan(&msg.MessageID, &msg.Role, &content, &createTime); err != nil {
			return nil, err
		}
		msg.Content = content.String
		msg.CreateTime = createTime.Int64
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
