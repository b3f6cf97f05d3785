package wire

import (
	"database/sql"

	"log/slog"

	appJobs "github.com/lodehq/backend/internal/application/jobs"
	applog "github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/infrastructure/storage"
	"github.com/lodehq/backend/internal/infrastructure/watcher"
	"github.com/lodehq/backend/internal/infrastructure/websocket"
	"github.com/lodehq/backend/internal/interfaces"
)

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	wsHub      *websocket.Hub
	jobService *appJobs.Service
	watcher    *watcher.ArchiveWatcher
	store      *storage.SQLiteVectorStore
	db         *sql.DB
	logger     *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	jobService *appJobs.Service,
	archiveWatcher *watcher.ArchiveWatcher,
	store *storage.SQLiteVectorStore,
	db *sql.DB,
) *App {
	return &App{
		HTTPServer: httpServer,
		MCPServer:  mcpServer,
		wsHub:      wsHub,
		jobService: jobService,
		watcher:    archiveWatcher,
		store:      store,
		db:         db,
		logger:     applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting backend application")

	// 启动 WebSocket Hub
	a.wsHub.Start()

	// 启动归档文件监听（失败不阻止启动，staleness 信息会缺失）
	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.logger.Error("Failed to start archive watcher",
				"error", err,
			)
		}
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	a.logger.Info("Backend application started successfully")

	// MCP 服务器通过 HTTP Handler 提供服务，不需要单独启动
	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping backend application")

	// 先取消后台索引任务，避免关库后继续写入
	if a.jobService != nil {
		a.jobService.Shutdown()
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		return err
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close vector store",
				"error", err,
			)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close archive database",
				"error", err,
			)
			return err
		}
	}

	a.logger.Info("Backend application stopped successfully")
	return nil
}
