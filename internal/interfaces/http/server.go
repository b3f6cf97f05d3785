package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/interfaces/http/handler"
	"github.com/lodehq/backend/internal/interfaces/http/middleware"
	"github.com/lodehq/backend/internal/interfaces/mcp"

	_ "github.com/lodehq/backend/docs" // Swagger docs
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverCfg *config.ServerConfig,
	vectorDBHandler *handler.VectorDBHandler,
	chatHandler *handler.ChatHandler,
	jobsHandler *handler.JobsHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.EnsureUTF8Body())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 向量库相关路由
		vectordb := api.Group("/vectordb")
		{
			vectordb.POST("/search", vectorDBHandler.Search)
			vectordb.GET("/status", vectorDBHandler.Status)
			vectordb.POST("/index", vectorDBHandler.Index)
		}

		// 对话相关路由
		chat := api.Group("/chat")
		{
			chat.POST("/completion", chatHandler.Completion)
			chat.POST("/completion-stream", chatHandler.CompletionStream)
		}

		// 任务相关路由
		jobs := api.Group("/jobs")
		{
			jobs.GET("", jobsHandler.List)
			jobs.GET("/ws", jobsHandler.Progress)
			jobs.GET("/:id", jobsHandler.Get)
			jobs.POST("/:id/cancel", jobsHandler.Cancel)
		}
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: serverCfg.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
