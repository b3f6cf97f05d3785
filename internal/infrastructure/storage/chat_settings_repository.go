package storage

import (
	"database/sql"
	"time"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

// 确保 ChatSettingsRepositoryImpl 实现了接口
var _ domainRAG.ChatSettingsRepository = (*ChatSettingsRepositoryImpl)(nil)

// chat_settings 键常量
const (
	settingLastProvider = "last_used_provider"
	settingLastModel    = "last_used_model"
)

// ChatSettingsRepositoryImpl 聊天设置仓库实现
type ChatSettingsRepositoryImpl struct {
	db *sql.DB
}

// NewChatSettingsRepository 创建聊天设置仓库实例
func NewChatSettingsRepository(db *sql.DB) domainRAG.ChatSettingsRepository {
	return &ChatSettingsRepositoryImpl{db: db}
}

// SetLastUsed 记录上次使用的 provider/model
func (r *ChatSettingsRepositoryImpl) SetLastUsed(provider, model string) error {
	now := time.Now().Unix()

	query := `
		INSERT INTO chat_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := r.db.Exec(query, settingLastProvider, provider, now); err != nil {
		return err
	}
	_, err := r.db.Exec(query, settingLastModel, model, now)
	return err
}

// GetLastUsed 读取上次使用的 provider/model，未设置时返回 nil
func (r *ChatSettingsRepositoryImpl) GetLastUsed() (*domainRAG.LastUsedModel, error) {
	query := `SELECT key, value FROM chat_settings WHERE key IN (?, ?)`

	rows, err := r.db.Query(query, settingLastProvider, settingLastModel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &domainRAG.LastUsedModel{}
	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		found = true
		switch key {
		case settingLastProvider:
			result.Provider = value
		case settingLastModel:
			result.Model = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return result, nil
}
