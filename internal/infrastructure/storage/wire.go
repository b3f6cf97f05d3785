package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/wire"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/config"
)

// NewArchiveDB 打开归档数据库并初始化表结构
func NewArchiveDB(cfg *config.Config) (*sql.DB, error) {
	db, err := OpenDB(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := InitArchiveDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init archive database: %w", err)
	}
	return db, nil
}

// NewVectorStoreFromConfig 打开向量存储
// 进程内单实例，并发读安全（写入只发生在后台索引任务中）
func NewVectorStoreFromConfig(cfg *config.Config) (*SQLiteVectorStore, error) {
	return NewVectorStore(cfg.VectorDBPath())
}

// ProvideVectorStore 以接口形式暴露向量存储
func ProvideVectorStore(store *SQLiteVectorStore) domainRAG.VectorStore {
	return store
}

// ProviderSet 存储层 ProviderSet
var ProviderSet = wire.NewSet(
	NewArchiveDB,
	NewVectorStoreFromConfig,
	ProvideVectorStore,
	NewArchiveRepository,
	NewJobRepository,
	NewChatSettingsRepository,
)
