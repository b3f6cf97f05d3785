package rag

// BatchItem 向量批量写入项
type BatchItem struct {
	Content  string
	Vector   []float32
	Metadata *RecordMetadata
	FileID   string // 空字符串表示无 upsert 键
}

// SearchFilters 精确匹配过滤条件（对元数据字段取合取）
type SearchFilters map[string]any

// VectorStore 向量存储接口
// 实现方独占记录存储与 ID 分配；非空 file_id 唯一，重复写入按 file_id 覆盖
type VectorStore interface {
	// Upsert 写入单条记录，返回存储分配的 ID
	Upsert(item *BatchItem) (int64, error)

	// InsertBatch 批量写入（内部按事务分片，限制写锁持有时间）
	InsertBatch(items []*BatchItem) ([]int64, error)

	// Search 暴力扫描余弦检索
	// 过滤在打分前进行；损坏行跳过不中断；空库返回空结果
	Search(queryVector []float32, topN int, filters SearchFilters) ([]*ScoredRecord, error)

	// Stats 返回存储统计
	Stats() (*StoreStats, error)
}

// JobRepository 索引任务仓库接口
type JobRepository interface {
	CreateJob(job *IndexJob) error
	GetJob(id string) (*IndexJob, error)
	UpdateJob(id string, update *JobUpdate) error
	ListJobs(limit int) ([]*IndexJob, error)
}

// JobUpdate 任务更新（nil 字段不更新）
type JobUpdate struct {
	Status   *string
	Progress *int
	Message  *string
	Result   map[string]any
	Error    *string
}

// ChatSettingsRepository 聊天设置仓库接口
type ChatSettingsRepository interface {
	SetLastUsed(provider, model string) error
	GetLastUsed() (*LastUsedModel, error)
}
