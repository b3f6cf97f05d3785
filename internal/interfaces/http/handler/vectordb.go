package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appJobs "github.com/lodehq/backend/internal/application/jobs"
	appRAG "github.com/lodehq/backend/internal/application/rag"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/infrastructure/storage"
	"github.com/lodehq/backend/internal/infrastructure/watcher"
	"github.com/lodehq/backend/internal/interfaces/http/response"
)

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 50
)

// VectorDBHandler 向量库处理器
type VectorDBHandler struct {
	searchService *appRAG.SearchService
	store         *storage.SQLiteVectorStore
	jobService    *appJobs.Service
	watcher       *watcher.ArchiveWatcher
	logger        *slog.Logger
}

// NewVectorDBHandler 创建向量库处理器
func NewVectorDBHandler(
	searchService *appRAG.SearchService,
	store *storage.SQLiteVectorStore,
	jobService *appJobs.Service,
	archiveWatcher *watcher.ArchiveWatcher,
) *VectorDBHandler {
	return &VectorDBHandler{
		searchService: searchService,
		store:         store,
		jobService:    jobService,
		watcher:       archiveWatcher,
		logger:        log.NewModuleLogger("http", "vectordb"),
	}
}

// SearchRequest 多短语检索请求
type SearchRequest struct {
	Phrases        []string       `json:"phrases" binding:"required"`
	TopK           int            `json:"top_k"`
	MinSimilarity  *float64       `json:"min_similarity"`
	Filters        map[string]any `json:"filters"`
	IncludeContent bool           `json:"include_content"`
	IncludeDebug   bool           `json:"include_debug"`
}

// Search 多短语语义检索
// @Summary 语义检索
// @Tags 向量库
// @Accept json
// @Produce json
// @Param body body SearchRequest true "检索参数"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /vectordb/search [post]
func (h *VectorDBHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 300001, "invalid request body")
		return
	}

	phrases := make([]string, 0, len(req.Phrases))
	for _, p := range req.Phrases {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			phrases = append(phrases, trimmed)
		}
	}
	if len(phrases) == 0 {
		response.Error(c, http.StatusBadRequest, 300002, "at least one non-empty phrase is required")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}

	groups, err := h.searchService.Search(c.Request.Context(), phrases, appRAG.SearchOptions{
		TopK:           topK,
		MinSimilarity:  req.MinSimilarity,
		Filters:        domainRAG.SearchFilters(req.Filters),
		IncludeContent: req.IncludeContent,
		IncludeDebug:   req.IncludeDebug,
	})
	if err != nil {
		h.logger.Error("search failed", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 300003, "search failed", err.Error())
		return
	}

	response.Success(c, gin.H{"results_by_phrase": groups})
}

// StatusResponse 向量库状态
type StatusResponse struct {
	Exists        bool   `json:"exists"`
	Path          string `json:"path"`
	TotalVectors  int    `json:"total_vectors"`
	UniqueFileIDs int    `json:"unique_file_ids"`
	Stale         bool   `json:"stale"`
	LastChange    string `json:"last_change,omitempty"`
}

// Status 返回向量库状态
// @Summary 向量库状态
// @Tags 向量库
// @Produce json
// @Success 200 {object} response.Response
// @Router /vectordb/status [get]
func (h *VectorDBHandler) Status(c *gin.Context) {
	status := &StatusResponse{Path: h.store.Path()}

	if _, err := os.Stat(h.store.Path()); err == nil {
		status.Exists = true
	}

	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("failed to read store stats", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 300004, "failed to read store stats", err.Error())
		return
	}
	status.TotalVectors = stats.TotalVectors
	status.UniqueFileIDs = stats.UniqueFileIDs

	if h.watcher != nil {
		status.Stale = h.watcher.Stale()
		if t := h.watcher.LastChange(); !t.IsZero() {
			status.LastChange = t.Format(time.RFC3339)
		}
	}

	response.Success(c, status)
}

// IndexRequest 重建索引请求
type IndexRequest struct {
	ConversationIDs []string `json:"conversation_ids,omitempty"` // 为空表示全量
}

// Index 提交后台重建索引任务
// @Summary 重建索引
// @Tags 向量库
// @Accept json
// @Produce json
// @Param body body IndexRequest true "索引参数"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse
// @Router /vectordb/index [post]
func (h *VectorDBHandler) Index(c *gin.Context) {
	var req IndexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, 300005, "invalid request body")
			return
		}
	}

	job, err := h.jobService.SubmitReindex(req.ConversationIDs)
	if err != nil {
		if errors.Is(err, appJobs.ErrReindexRunning) {
			response.Error(c, http.StatusConflict, 300006, "a reindex job is already running")
			return
		}
		h.logger.Error("failed to submit reindex job", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 300007, "failed to submit job", err.Error())
		return
	}

	response.Success(c, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}
