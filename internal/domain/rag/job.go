package rag

import "time"

// 任务状态常量
// running 之后只能进入 completed / failed / cancelled，终态不可变
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// 任务类型常量
const (
	JobTypeReindex = "reindex"
)

// IndexJob 后台索引任务
type IndexJob struct {
	ID          string         `json:"id"`
	JobType     string         `json:"job_type"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"` // 0-100
	Message     string         `json:"message,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
}

// IsTerminal 判断任务是否处于终态
func (j *IndexJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IndexStats 一次索引运行的统计
// Cancelled=true 表示协作取消，已写入的部分结果有效且不回滚
type IndexStats struct {
	TotalConversations   int  `json:"total_conversations"`
	IndexedConversations int  `json:"indexed_conversations"`
	TotalChunks          int  `json:"total_chunks"`
	TotalVectors         int  `json:"total_vectors"`
	Cancelled            bool `json:"cancelled"`
}
