package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodehq/backend/internal/application/rag"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domainRAG.IndexJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*domainRAG.IndexJob{}}
}

func (r *fakeJobRepo) CreateJob(job *domainRAG.IndexJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	copied.CreatedAt = time.Now()
	r.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetJob(id string) (*domainRAG.IndexJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) UpdateJob(id string, update *domainRAG.JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return errors.New("no such job")
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.Message != nil {
		job.Message = *update.Message
	}
	if update.Result != nil {
		job.Result = update.Result
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	return nil
}

func (r *fakeJobRepo) ListJobs(limit int) ([]*domainRAG.IndexJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domainRAG.IndexJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		copied := *job
		out = append(out, &copied)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeJobRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ""
	}
	return job.Status
}

// fakeRunner 可配置的索引执行桩
type fakeRunner struct {
	stats   *domainRAG.IndexStats
	err     error
	block   chan struct{} // 非 nil 时阻塞直到关闭或 ctx 取消
	reports []int
}

func (f *fakeRunner) Index(ctx context.Context, _ []string, progress rag.ProgressFunc) (*domainRAG.IndexStats, error) {
	for _, p := range f.reports {
		progress(p, "indexing")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return &domainRAG.IndexStats{Cancelled: true, IndexedConversations: 1}, nil
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &domainRAG.IndexStats{}, nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*ProgressEvent
}

func (b *fakeBroadcaster) BroadcastJobProgress(_ string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if event, ok := data.(*ProgressEvent); ok {
		b.events = append(b.events, event)
	}
	return nil
}

func (b *fakeBroadcaster) statuses() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Status)
	}
	return out
}

func waitTerminal(t *testing.T, repo *fakeJobRepo, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		switch repo.status(id) {
		case domainRAG.JobStatusCompleted, domainRAG.JobStatusFailed, domainRAG.JobStatusCancelled:
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubmitReindex_RunsToCompletion(t *testing.T) {
	repo := newFakeJobRepo()
	broadcaster := &fakeBroadcaster{}
	runner := &fakeRunner{
		reports: []int{40, 100},
		stats: &domainRAG.IndexStats{
			TotalConversations:   3,
			IndexedConversations: 3,
			TotalChunks:          7,
			TotalVectors:         10,
		},
	}
	svc := NewService(repo, runner, broadcaster, nil)

	job, err := svc.SubmitReindex(nil)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	waitTerminal(t, repo, job.ID)

	stored, err := svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domainRAG.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, 7, stored.Result["total_chunks"])

	statuses := broadcaster.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, domainRAG.JobStatusRunning, statuses[0])
	assert.Equal(t, domainRAG.JobStatusCompleted, statuses[len(statuses)-1])
}

func TestSubmitReindex_RejectsConcurrentRun(t *testing.T) {
	repo := newFakeJobRepo()
	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	svc := NewService(repo, runner, &fakeBroadcaster{}, nil)

	first, err := svc.SubmitReindex(nil)
	require.NoError(t, err)

	_, err = svc.SubmitReindex(nil)
	assert.ErrorIs(t, err, ErrReindexRunning)

	close(block)
	waitTerminal(t, repo, first.ID)

	// 上一个任务结束后可以再次提交
	second, err := svc.SubmitReindex(nil)
	require.NoError(t, err)
	waitTerminal(t, repo, second.ID)
}

func TestSubmitReindex_RunnerErrorMarksFailed(t *testing.T) {
	repo := newFakeJobRepo()
	runner := &fakeRunner{err: errors.New("embedding service unreachable")}
	svc := NewService(repo, runner, &fakeBroadcaster{}, nil)

	job, err := svc.SubmitReindex(nil)
	require.NoError(t, err)
	waitTerminal(t, repo, job.ID)

	stored, err := svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domainRAG.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "embedding service unreachable")
}

func TestCancel_RunningJobGoesCancelled(t *testing.T) {
	repo := newFakeJobRepo()
	runner := &fakeRunner{block: make(chan struct{})}
	svc := NewService(repo, runner, &fakeBroadcaster{}, nil)

	job, err := svc.SubmitReindex(nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return repo.status(job.ID) == domainRAG.JobStatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Cancel(job.ID))
	waitTerminal(t, repo, job.ID)

	stored, err := svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domainRAG.JobStatusCancelled, stored.Status)
	// 协作取消保留已写入的部分结果
	assert.Equal(t, 1, stored.Result["indexed_conversations"])
}

func TestCancel_FinishedJobRejected(t *testing.T) {
	repo := newFakeJobRepo()
	runner := &fakeRunner{stats: &domainRAG.IndexStats{}}
	svc := NewService(repo, runner, &fakeBroadcaster{}, nil)

	job, err := svc.SubmitReindex(nil)
	require.NoError(t, err)
	waitTerminal(t, repo, job.ID)

	assert.ErrorIs(t, svc.Cancel(job.ID), ErrJobFinished)
}

func TestCancel_UnknownJob(t *testing.T) {
	svc := NewService(newFakeJobRepo(), &fakeRunner{}, &fakeBroadcaster{}, nil)
	assert.ErrorIs(t, svc.Cancel("missing"), ErrJobNotFound)
}

func TestGetJob_Unknown(t *testing.T) {
	svc := NewService(newFakeJobRepo(), &fakeRunner{}, &fakeBroadcaster{}, nil)
	_, err := svc.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
