package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenDB 打开 SQLite 数据库连接
// 统一设置 WAL 与性能参数：读操作看到一致快照，不阻塞写入
func OpenDB(dbPath string) (*sql.DB, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	return db, nil
}

// InitArchiveDatabase 初始化归档数据库表结构
// conversations/messages 由导入器写入，jobs/chat_settings 由本服务维护
func InitArchiveDatabase(db *sql.DB) error {
	createConversationsSQL := `
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		title TEXT,
		ai_source TEXT,
		create_time INTEGER
	);`

	if _, err := db.Exec(createConversationsSQL); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	createMessagesSQL := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT,
		create_time INTEGER
	);`

	if _, err := db.Exec(createMessagesSQL); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	createMessagesIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, create_time, id);`

	if _, err := db.Exec(createMessagesIndexSQL); err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}

	createJobsSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER DEFAULT 0,
		message TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		cancelled_at INTEGER,
		result_json TEXT,
		error_text TEXT
	);`

	if _, err := db.Exec(createJobsSQL); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	createChatSettingsSQL := `
	CREATE TABLE IF NOT EXISTS chat_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`

	if _, err := db.Exec(createChatSettingsSQL); err != nil {
		return fmt.Errorf("failed to create chat_settings table: %w", err)
	}

	return nil
}
