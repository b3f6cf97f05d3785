package storage

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

// 确保 JobRepositoryImpl 实现了 domainRAG.JobRepository 接口
var _ domainRAG.JobRepository = (*JobRepositoryImpl)(nil)

// JobRepositoryImpl 索引任务仓库实现
type JobRepositoryImpl struct {
	db *sql.DB
}

// NewJobRepository 创建任务仓库实例
func NewJobRepository(db *sql.DB) domainRAG.JobRepository {
	return &JobRepositoryImpl{db: db}
}

// CreateJob 创建任务
func (r *JobRepositoryImpl) CreateJob(job *domainRAG.IndexJob) error {
	query := `
		INSERT INTO jobs (id, job_type, status, progress, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Exec(query, job.ID, job.JobType, job.Status, job.Progress, job.Message, createdAt.Unix())
	return err
}

// GetJob 获取任务
func (r *JobRepositoryImpl) GetJob(id string) (*domainRAG.IndexJob, error) {
	query := `
		SELECT id, job_type, status, progress, message,
		       created_at, started_at, completed_at, cancelled_at,
		       result_json, error_text
		FROM jobs
		WHERE id = ?`

	return r.scanJob(r.db.QueryRow(query, id))
}

// UpdateJob 更新任务
// 状态迁移时自动写入对应时间戳；终态任务不再接受更新
func (r *JobRepositoryImpl) UpdateJob(id string, update *domainRAG.JobUpdate) error {
	var sets []string
	var params []any

	now := time.Now().Unix()

	if update.Status != nil {
		sets = append(sets, "status = ?")
		params = append(params, *update.Status)
		switch *update.Status {
		case domainRAG.JobStatusRunning:
			sets = append(sets, "started_at = ?")
			params = append(params, now)
		case domainRAG.JobStatusCompleted, domainRAG.JobStatusFailed:
			sets = append(sets, "completed_at = ?")
			params = append(params, now)
		case domainRAG.JobStatusCancelled:
			sets = append(sets, "cancelled_at = ?")
			params = append(params, now)
		}
	}
	if update.Progress != nil {
		sets = append(sets, "progress = ?")
		params = append(params, *update.Progress)
	}
	if update.Message != nil {
		sets = append(sets, "message = ?")
		params = append(params, *update.Message)
	}
	if update.Result != nil {
		resultJSON, err := json.Marshal(update.Result)
		if err != nil {
			return err
		}
		sets = append(sets, "result_json = ?")
		params = append(params, string(resultJSON))
	}
	if update.Error != nil {
		sets = append(sets, "error_text = ?")
		params = append(params, *update.Error)
	}

	if len(sets) == 0 {
		return nil
	}

	// 终态不可变
	query := "UPDATE jobs SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND status NOT IN ('completed', 'failed', 'cancelled')"
	params = append(params, id)

	_, err := r.db.Exec(query, params...)
	return err
}

// ListJobs 返回最近的任务
func (r *JobRepositoryImpl) ListJobs(limit int) ([]*domainRAG.IndexJob, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, job_type, status, progress, message,
		       created_at, started_at, completed_at, cancelled_at,
		       result_json, error_text
		FROM jobs
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domainRAG.IndexJob
	for rows.Next() {
		job, err := r.scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepositoryImpl) scanJob(row *sql.Row) (*domainRAG.IndexJob, error) {
	job, err := r.scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (r *JobRepositoryImpl) scanJobRow(row rowScanner) (*domainRAG.IndexJob, error) {
	job := &domainRAG.IndexJob{}
	var (
		message     sql.NullString
		createdAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		cancelledAt sql.NullInt64
		resultJSON  sql.NullString
		errorText   sql.NullString
	)

	err := row.Scan(&job.ID, &job.JobType, &job.Status, &job.Progress, &message,
		&createdAt, &startedAt, &completedAt, &cancelledAt, &resultJSON, &errorText)
	if err != nil {
		return nil, err
	}

	job.Message = message.String
	job.Error = errorText.String
	job.CreatedAt = time.Unix(createdAt, 0)
	job.StartedAt = unixPtr(startedAt)
	job.CompletedAt = unixPtr(completedAt)
	job.CancelledAt = unixPtr(cancelledAt)

	if resultJSON.Valid && resultJSON.String != "" {
		_ = json.Unmarshal([]byte(resultJSON.String), &job.Result)
	}

	return job, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
