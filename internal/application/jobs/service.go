package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lodehq/backend/internal/application/rag"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/infrastructure/watcher"
)

var (
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished 任务已处于终态，不可取消
	ErrJobFinished = errors.New("job already finished")
	// ErrReindexRunning 已有重建任务在运行
	ErrReindexRunning = errors.New("a reindex job is already running")
)

// IndexRunner 索引执行入口（由 rag.Indexer 实现）
type IndexRunner interface {
	Index(ctx context.Context, conversationIDs []string, progress rag.ProgressFunc) (*domainRAG.IndexStats, error)
}

// Broadcaster 任务进度推送（由 websocket.Hub 实现）
type Broadcaster interface {
	BroadcastJobProgress(jobID string, data interface{}) error
}

// ProgressEvent 推送给订阅方的进度事件
type ProgressEvent struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Service 后台索引任务服务
// 同一时刻最多运行一个重建任务；取消是协作式的，
// 已写入的向量不回滚，终态一旦写入不再变更
type Service struct {
	jobRepo     domainRAG.JobRepository
	runner      IndexRunner
	broadcaster Broadcaster
	watcher     *watcher.ArchiveWatcher // 可为 nil
	logger      *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService 创建任务服务
func NewService(
	jobRepo domainRAG.JobRepository,
	runner IndexRunner,
	broadcaster Broadcaster,
	archiveWatcher *watcher.ArchiveWatcher,
) *Service {
	return &Service{
		jobRepo:     jobRepo,
		runner:      runner,
		broadcaster: broadcaster,
		watcher:     archiveWatcher,
		logger:      log.NewModuleLogger("jobs", "service"),
		cancels:     map[string]context.CancelFunc{},
	}
}

// SubmitReindex 提交一个重建索引任务并立即返回
// conversationIDs 为空表示全量重建
func (s *Service) SubmitReindex(conversationIDs []string) (*domainRAG.IndexJob, error) {
	s.mu.Lock()
	if len(s.cancels) > 0 {
		s.mu.Unlock()
		return nil, ErrReindexRunning
	}

	job := &domainRAG.IndexJob{
		ID:      uuid.New().String(),
		JobType: domainRAG.JobTypeReindex,
		Status:  domainRAG.JobStatusPending,
	}
	if err := s.jobRepo.CreateJob(job); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	go s.run(ctx, job.ID, conversationIDs)

	s.logger.Info("reindex job submitted", "job_id", job.ID, "conversations", len(conversationIDs))
	return job, nil
}

// GetJob 查询任务
func (s *Service) GetJob(id string) (*domainRAG.IndexJob, error) {
	job, err := s.jobRepo.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs 按创建时间倒序列出最近任务
func (s *Service) ListJobs(limit int) ([]*domainRAG.IndexJob, error) {
	return s.jobRepo.ListJobs(limit)
}

// Cancel 请求取消任务
// 运行中的任务触发协作取消，最终状态由运行协程写入；
// 终态任务返回 ErrJobFinished
func (s *Service) Cancel(id string) error {
	job, err := s.jobRepo.GetJob(id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.IsTerminal() {
		return ErrJobFinished
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info("job cancel requested", "job_id", id)
		return nil
	}

	// 没有对应的运行协程（如进程重启后遗留的 pending 任务），直接落终态
	s.setTerminal(id, domainRAG.JobStatusCancelled, "cancelled before start", nil, "")
	return nil
}

// Shutdown 取消所有运行中的任务（进程退出前调用）
func (s *Service) Shutdown() {
	s.mu.Lock()
	for id, cancel := range s.cancels {
		s.logger.Info("cancelling job on shutdown", "job_id", id)
		cancel()
	}
	s.mu.Unlock()
}

// run 在后台执行索引并维护任务状态
func (s *Service) run(ctx context.Context, jobID string, conversationIDs []string) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	s.updateJob(jobID, &domainRAG.JobUpdate{
		Status:  strPtr(domainRAG.JobStatusRunning),
		Message: strPtr("Starting reindex..."),
	})
	s.broadcast(jobID, domainRAG.JobStatusRunning, 0, "Starting reindex...", "")

	stats, err := s.runner.Index(ctx, conversationIDs, func(progress int, message string) {
		s.updateJob(jobID, &domainRAG.JobUpdate{
			Progress: intPtr(progress),
			Message:  strPtr(message),
		})
		s.broadcast(jobID, domainRAG.JobStatusRunning, progress, message, "")
	})

	switch {
	case err != nil:
		s.logger.Error("reindex job failed", "job_id", jobID, "error", err)
		s.setTerminal(jobID, domainRAG.JobStatusFailed, "", nil, err.Error())
		s.broadcast(jobID, domainRAG.JobStatusFailed, 0, "", err.Error())

	case stats.Cancelled:
		s.logger.Info("reindex job cancelled",
			"job_id", jobID,
			"indexed", stats.IndexedConversations,
			"total", stats.TotalConversations)
		s.setTerminal(jobID, domainRAG.JobStatusCancelled, "reindex cancelled", statsResult(stats), "")
		s.broadcast(jobID, domainRAG.JobStatusCancelled, 0, "reindex cancelled", "")

	default:
		s.logger.Info("reindex job completed",
			"job_id", jobID,
			"conversations", stats.IndexedConversations,
			"chunks", stats.TotalChunks)
		s.setTerminal(jobID, domainRAG.JobStatusCompleted, "reindex completed", statsResult(stats), "")
		s.broadcast(jobID, domainRAG.JobStatusCompleted, 100, "reindex completed", "")
		if s.watcher != nil {
			s.watcher.MarkIndexed()
		}
	}
}

func (s *Service) setTerminal(jobID, status, message string, result map[string]any, errText string) {
	update := &domainRAG.JobUpdate{
		Status: strPtr(status),
		Result: result,
	}
	if message != "" {
		update.Message = strPtr(message)
	}
	if errText != "" {
		update.Error = strPtr(errText)
	}
	if status == domainRAG.JobStatusCompleted {
		update.Progress = intPtr(100)
	}
	s.updateJob(jobID, update)
}

func (s *Service) updateJob(jobID string, update *domainRAG.JobUpdate) {
	if err := s.jobRepo.UpdateJob(jobID, update); err != nil {
		s.logger.Error("failed to update job", "job_id", jobID, "error", err)
	}
}

func (s *Service) broadcast(jobID, status string, progress int, message, errText string) {
	if s.broadcaster == nil {
		return
	}
	event := &ProgressEvent{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Message:  message,
		Error:    errText,
	}
	if err := s.broadcaster.BroadcastJobProgress(jobID, event); err != nil {
		s.logger.Warn("failed to broadcast job progress", "job_id", jobID, "error", err)
	}
}

func statsResult(stats *domainRAG.IndexStats) map[string]any {
	return map[string]any{
		"total_conversations":   stats.TotalConversations,
		"indexed_conversations": stats.IndexedConversations,
		"total_chunks":          stats.TotalChunks,
		"total_vectors":         stats.TotalVectors,
		"cancelled":             stats.Cancelled,
	}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
