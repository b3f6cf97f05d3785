package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"

	appJobs "github.com/lodehq/backend/internal/application/jobs"
	"github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/infrastructure/websocket"
	"github.com/lodehq/backend/internal/interfaces/http/response"
)

const defaultJobListLimit = 20

// JobsHandler 任务处理器
type JobsHandler struct {
	jobService *appJobs.Service
	hub        *websocket.Hub
	upgrader   gorillaWS.Upgrader
	logger     *slog.Logger
}

// NewJobsHandler 创建任务处理器
func NewJobsHandler(jobService *appJobs.Service, hub *websocket.Hub) *JobsHandler {
	return &JobsHandler{
		jobService: jobService,
		hub:        hub,
		upgrader: gorillaWS.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 本机服务，允许所有来源
			},
		},
		logger: log.NewModuleLogger("http", "jobs"),
	}
}

// Get 查询任务
// @Summary 查询任务
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /jobs/{id} [get]
func (h *JobsHandler) Get(c *gin.Context) {
	job, err := h.jobService.GetJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, appJobs.ErrJobNotFound) {
			response.Error(c, http.StatusNotFound, 320001, "job not found")
			return
		}
		h.logger.Error("failed to load job", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 320002, "failed to load job", err.Error())
		return
	}
	response.Success(c, job)
}

// List 列出最近任务
// @Summary 任务列表
// @Tags 任务
// @Produce json
// @Param limit query int false "返回条数"
// @Success 200 {object} response.Response
// @Router /jobs [get]
func (h *JobsHandler) List(c *gin.Context) {
	limit := defaultJobListLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.jobService.ListJobs(limit)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 320003, "failed to list jobs", err.Error())
		return
	}
	response.Success(c, gin.H{"jobs": jobs})
}

// Cancel 取消任务
// @Summary 取消任务
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /jobs/{id}/cancel [post]
func (h *JobsHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobService.Cancel(id); err != nil {
		switch {
		case errors.Is(err, appJobs.ErrJobNotFound):
			response.Error(c, http.StatusNotFound, 320004, "job not found")
		case errors.Is(err, appJobs.ErrJobFinished):
			response.Error(c, http.StatusConflict, 320005, "job already finished")
		default:
			h.logger.Error("failed to cancel job", "job_id", id, "error", err)
			response.ErrorWithDetail(c, http.StatusInternalServerError, 320006, "failed to cancel job", err.Error())
		}
		return
	}
	response.Success(c, gin.H{"job_id": id, "cancelling": true})
}

// Progress 任务进度 WebSocket
// 连接后按 job_id 订阅进度推送；job_id 为空表示订阅全部任务
// @Summary 任务进度推送
// @Tags 任务
// @Param job_id query string false "任务 ID"
// @Router /jobs/ws [get]
func (h *JobsHandler) Progress(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	wsConn := &websocket.Connection{
		JobID: c.Query("job_id"),
		Send:  make(chan []byte, 64),
	}
	h.hub.Register(wsConn)

	// 写协程：把 Hub 投递的进度推给客户端
	go func() {
		defer conn.Close()
		for data := range wsConn.Send {
			if err := conn.WriteMessage(gorillaWS.TextMessage, data); err != nil {
				return
			}
		}
	}()

	// 读循环只用于感知断开
	go func() {
		defer h.hub.Unregister(wsConn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
