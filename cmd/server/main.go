// @title Lode Backend API
// @version 1.0
// @description 会话归档语义检索与 RAG 对话服务
// @host localhost:18760
// @BasePath /api/v1
// @schemes http
package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lodehq/backend/internal/infrastructure/config"
	applog "github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/infrastructure/singleton"
	"github.com/lodehq/backend/internal/wire"
)

func main() {
	// 初始化日志系统
	applog.Init(nil)

	// 加载配置获取端口
	cfg := config.NewConfig()
	port := cfg.Server.HTTPPort

	// 单实例锁：抢占端口，已有健康实例时静默退出
	listener, err := singleton.Acquire(port)
	if errors.Is(err, singleton.ErrAlreadyRunning) {
		log.Println("another instance is already running, exiting")
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("singleton check failed: %v", err)
	}
	// 关闭临时 listener，实际监听由 HTTP 服务器负责
	_ = listener.Close()

	// Wire 自动生成的初始化函数
	app, err := wire.InitializeAll()
	if err != nil {
		applog.GetLogger().Error("Failed to initialize application",
			"error", err,
		)
		os.Exit(1)
	}

	// 启动所有服务
	if err := app.Start(); err != nil {
		applog.GetLogger().Error("Failed to start application",
			"error", err,
		)
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	applog.GetLogger().Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		applog.GetLogger().Error("Error during application shutdown",
			"error", err,
		)
	}
	applog.GetLogger().Info("Application stopped")
}
