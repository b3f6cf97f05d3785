package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"log/slog"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/log"
)

// 确保 SQLiteVectorStore 实现了 domainRAG.VectorStore 接口
var _ domainRAG.VectorStore = (*SQLiteVectorStore)(nil)

// insertBatchSize 单个事务的写入上限，限制写锁持有时间
const insertBatchSize = 100

// normEpsilon 归一化除零保护
const normEpsilon = 1e-12

// filterKeyPattern 过滤键白名单（元数据键直接拼入 json_extract 路径）
var filterKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SQLiteVectorStore 基于 SQLite 的向量存储
// 向量按 JSON 数组存储，检索为全量扫描 + 余弦打分，规模由语料大小约束。
// 查询与存量向量在打分前都会防御性重新归一化，不依赖调用方预归一化
type SQLiteVectorStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewVectorStore 打开（必要时创建）向量存储
func NewVectorStore(dbPath string) (*SQLiteVectorStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteVectorStore{
		db:     db,
		path:   dbPath,
		logger: log.NewModuleLogger("storage", "vector_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize 建表与索引
func (s *SQLiteVectorStore) initialize() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS vectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		vector TEXT NOT NULL,
		metadata TEXT,
		file_id TEXT UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create vectors table: %w", err)
	}

	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_vectors_file_id ON vectors(file_id);
	CREATE INDEX IF NOT EXISTS idx_vectors_created_at ON vectors(created_at);`

	if _, err := s.db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create vectors indexes: %w", err)
	}

	return nil
}

// Close 关闭底层连接
func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// Path 返回存储文件路径
func (s *SQLiteVectorStore) Path() string {
	return s.path
}

// upsertSQL 写入语句
// file_id 非空时按 file_id 覆盖旧记录（保留原 id），NULL file_id 永不冲突
const upsertSQL = `
	INSERT INTO vectors (content, vector, metadata, file_id)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(file_id) DO UPDATE SET
		content = excluded.content,
		vector = excluded.vector,
		metadata = excluded.metadata
	RETURNING id`

// Upsert 写入单条记录，返回存储分配的 ID
func (s *SQLiteVectorStore) Upsert(item *domainRAG.BatchItem) (int64, error) {
	vectorJSON, metadataJSON, fileID, err := encodeItem(item)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRow(upsertSQL, item.Content, vectorJSON, metadataJSON, fileID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert vector: %w", err)
	}
	return id, nil
}

// InsertBatch 批量写入
// 按 insertBatchSize 分事务提交，避免一次大导入长期持有写锁
func (s *SQLiteVectorStore) InsertBatch(items []*domainRAG.BatchItem) ([]int64, error) {
	ids := make([]int64, 0, len(items))

	for start := 0; start < len(items); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(items) {
			end = len(items)
		}

		batchIDs, err := s.insertBatchTx(items[start:end])
		if err != nil {
			return ids, fmt.Errorf("failed to insert batch at offset %d: %w", start, err)
		}
		ids = append(ids, batchIDs...)
	}

	return ids, nil
}

// insertBatchTx 单事务写入一个分片
func (s *SQLiteVectorStore) insertBatchTx(items []*domainRAG.BatchItem) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		vectorJSON, metadataJSON, fileID, err := encodeItem(item)
		if err != nil {
			return nil, err
		}

		var id int64
		if err := stmt.QueryRow(item.Content, vectorJSON, metadataJSON, fileID).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Search 暴力扫描余弦检索
// 过滤条件在打分前以 json_extract 精确匹配求值；
// 向量 JSON 损坏的行按行跳过并记录日志，不中断整次扫描
func (s *SQLiteVectorStore) Search(queryVector []float32, topN int, filters domainRAG.SearchFilters) ([]*domainRAG.ScoredRecord, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	query := normalize(queryVector)

	where, params, err := buildFilterClause(filters)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT id, content, vector, metadata, file_id FROM vectors "+where, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer rows.Close()

	var results []*domainRAG.ScoredRecord
	for rows.Next() {
		var (
			id           int64
			content      string
			vectorJSON   string
			metadataJSON sql.NullString
			fileID       sql.NullString
		)
		if err := rows.Scan(&id, &content, &vectorJSON, &metadataJSON, &fileID); err != nil {
			return nil, err
		}

		var stored []float32
		if err := json.Unmarshal([]byte(vectorJSON), &stored); err != nil {
			// 行级损坏，跳过不中断
			s.logger.Warn("Skipping corrupt vector row", "row_id", id, "error", err)
			continue
		}
		if len(stored) == 0 {
			s.logger.Warn("Skipping empty vector row", "row_id", id)
			continue
		}

		var metadata *domainRAG.RecordMetadata
		if metadataJSON.Valid && metadataJSON.String != "" {
			metadata = &domainRAG.RecordMetadata{}
			if err := json.Unmarshal([]byte(metadataJSON.String), metadata); err != nil {
				s.logger.Warn("Skipping row with corrupt metadata", "row_id", id, "error", err)
				continue
			}
		}

		results = append(results, &domainRAG.ScoredRecord{
			VectorRecord: domainRAG.VectorRecord{
				ID:       id,
				Content:  content,
				Vector:   stored,
				Metadata: metadata,
				FileID:   fileID.String,
			},
			Similarity: dot(query, normalize(stored)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topN < 0 {
		topN = 0
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// Stats 返回存储统计
func (s *SQLiteVectorStore) Stats() (*domainRAG.StoreStats, error) {
	stats := &domainRAG.StoreStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&stats.TotalVectors); err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(DISTINCT file_id) FROM vectors WHERE file_id IS NOT NULL").Scan(&stats.UniqueFileIDs); err != nil {
		return nil, fmt.Errorf("failed to count file ids: %w", err)
	}

	return stats, nil
}

// encodeItem 序列化写入项
// 空 FileID 写入 NULL，绕开 UNIQUE 约束
func encodeItem(item *domainRAG.BatchItem) (string, any, any, error) {
	vectorJSON, err := json.Marshal(item.Vector)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to marshal vector: %w", err)
	}

	var metadataJSON any
	if item.Metadata != nil {
		data, err := json.Marshal(item.Metadata)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	var fileID any
	if item.FileID != "" {
		fileID = item.FileID
	}

	return string(vectorJSON), metadataJSON, fileID, nil
}

// buildFilterClause 构建元数据过滤 WHERE 子句（合取）
func buildFilterClause(filters domainRAG.SearchFilters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	// 固定顺序保证语句可复用 prepared cache
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	params := make([]any, 0, len(keys))
	for _, k := range keys {
		if !filterKeyPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter key: %q", k)
		}
		conditions = append(conditions, fmt.Sprintf("json_extract(metadata, '$.%s') = ?", k))
		params = append(params, filters[k])
	}

	return "WHERE " + strings.Join(conditions, " AND "), params, nil
}

// normalize L2 归一化（防御性，带除零保护）
func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		f := float64(x)
		out[i] = f
		sum += f * f
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i := range out {
		out[i] /= norm
	}
	return out
}

// dot 点积（两侧已归一化时即余弦相似度）
func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
