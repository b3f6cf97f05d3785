package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/log"
)

// WatchConfig ArchiveWatcher 配置
type WatchConfig struct {
	// ArchiveDBPath 归档数据库文件路径
	ArchiveDBPath string
	// DebounceDelay 防抖延迟
	DebounceDelay time.Duration
}

// DefaultWatchConfig 返回默认配置
func DefaultWatchConfig(cfg *config.Config) WatchConfig {
	return WatchConfig{
		ArchiveDBPath: cfg.DatabasePath(),
		DebounceDelay: 500 * time.Millisecond,
	}
}

// ArchiveWatcher 监听归档数据库文件变更
// 归档在向量索引之后被写入时，状态接口需要上报 stale，
// 提示用户重新索引
type ArchiveWatcher struct {
	config  WatchConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// 防抖相关
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	// 状态
	mu          sync.RWMutex
	lastChange  time.Time
	lastIndexed time.Time

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewArchiveWatcher 创建归档监听器
func NewArchiveWatcher(config WatchConfig) (*ArchiveWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	aw := &ArchiveWatcher{
		config:  config,
		watcher: watcher,
		logger:  log.NewModuleLogger("watcher", "archive_watcher"),
		stopCh:  make(chan struct{}),
	}

	// 以文件当前修改时间作为初始变更时间
	if info, err := os.Stat(config.ArchiveDBPath); err == nil {
		aw.lastChange = info.ModTime()
	}

	return aw, nil
}

// Start 启动监听
// 监听数据库所在目录而非文件本身，SQLite 写入可能落在 -wal 文件上
func (aw *ArchiveWatcher) Start() error {
	dir := filepath.Dir(aw.config.ArchiveDBPath)

	aw.logger.Info("Starting archive watcher",
		"archive_db", aw.config.ArchiveDBPath,
	)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := aw.watcher.Add(dir); err != nil {
		return err
	}

	aw.wg.Add(1)
	go aw.watchLoop()

	return nil
}

// Stop 停止监听
func (aw *ArchiveWatcher) Stop() {
	aw.logger.Info("Stopping archive watcher")

	close(aw.stopCh)
	aw.watcher.Close()
	aw.wg.Wait()

	aw.debounceMu.Lock()
	if aw.debounceTimer != nil {
		aw.debounceTimer.Stop()
	}
	aw.debounceMu.Unlock()

	aw.logger.Info("Archive watcher stopped")
}

// MarkIndexed 记录索引完成时间
func (aw *ArchiveWatcher) MarkIndexed() {
	aw.mu.Lock()
	aw.lastIndexed = time.Now()
	aw.mu.Unlock()
}

// Stale 归档在上次索引之后是否发生过写入
func (aw *ArchiveWatcher) Stale() bool {
	aw.mu.RLock()
	defer aw.mu.RUnlock()

	if aw.lastIndexed.IsZero() {
		return false
	}
	return aw.lastChange.After(aw.lastIndexed)
}

// LastChange 最近一次归档变更时间
func (aw *ArchiveWatcher) LastChange() time.Time {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	return aw.lastChange
}

// watchLoop 事件监听循环
func (aw *ArchiveWatcher) watchLoop() {
	defer aw.wg.Done()

	for {
		select {
		case <-aw.stopCh:
			return

		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			aw.handleFsEvent(event)

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件（带防抖）
func (aw *ArchiveWatcher) handleFsEvent(event fsnotify.Event) {
	if !aw.isArchiveFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	aw.debounceMu.Lock()
	defer aw.debounceMu.Unlock()

	if aw.debounceTimer != nil {
		aw.debounceTimer.Stop()
	}

	aw.debounceTimer = time.AfterFunc(aw.config.DebounceDelay, func() {
		aw.mu.Lock()
		aw.lastChange = time.Now()
		aw.mu.Unlock()

		aw.logger.Debug("Archive database changed", "path", event.Name)
	})
}

// isArchiveFile 判断事件是否落在数据库文件或其 WAL/SHM 伴生文件上
func (aw *ArchiveWatcher) isArchiveFile(path string) bool {
	base := aw.config.ArchiveDBPath
	return path == base || strings.HasPrefix(path, base+"-")
}
