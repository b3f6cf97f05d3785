package watcher

import (
	"github.com/google/wire"

	"github.com/lodehq/backend/internal/infrastructure/config"
)

// NewArchiveWatcherFromConfig 以默认监听配置创建归档监听器
func NewArchiveWatcherFromConfig(cfg *config.Config) (*ArchiveWatcher, error) {
	return NewArchiveWatcher(DefaultWatchConfig(cfg))
}

// ProviderSet 文件监听 ProviderSet
var ProviderSet = wire.NewSet(
	NewArchiveWatcherFromConfig,
)
