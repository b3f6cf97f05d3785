package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	appRAG "github.com/lodehq/backend/internal/application/rag"
	"github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/interfaces/http/response"
)

// ChatHandler RAG 对话处理器
type ChatHandler struct {
	orchestrator *appRAG.ChatOrchestrator
	logger       *slog.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(orchestrator *appRAG.ChatOrchestrator) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		logger:       log.NewModuleLogger("http", "chat"),
	}
}

// Completion RAG 补全（非流式）
// @Summary RAG 补全
// @Tags 对话
// @Accept json
// @Produce json
// @Param body body appRAG.CompletionRequest true "补全参数"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /chat/completion [post]
func (h *ChatHandler) Completion(c *gin.Context) {
	var req appRAG.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 310001, "invalid request body")
		return
	}

	result, err := h.orchestrator.Complete(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("completion failed", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 310002, "completion failed", err.Error())
		return
	}

	response.Success(c, result)
}

// CompletionStream RAG 补全（SSE 流式）
// 事件顺序：meta → delta* → (done | error)；每个事件一帧 data: JSON
// @Summary RAG 流式补全
// @Tags 对话
// @Accept json
// @Produce text/event-stream
// @Param body body appRAG.CompletionRequest true "补全参数"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} response.ErrorResponse
// @Router /chat/completion-stream [post]
func (h *ChatHandler) CompletionStream(c *gin.Context) {
	var req appRAG.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 310003, "invalid request body")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.logger.Error("streaming unsupported by response writer")
		return
	}

	events := h.orchestrator.CompleteStream(c.Request.Context(), &req)
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to marshal stream event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			// 客户端断开，靠请求 ctx 终止上游
			h.logger.Debug("stream write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}
