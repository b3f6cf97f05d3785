package jobs

import (
	"github.com/google/wire"

	"github.com/lodehq/backend/internal/application/rag"
	"github.com/lodehq/backend/internal/infrastructure/websocket"
)

// ProvideIndexRunner 把索引器绑定为 IndexRunner 接口
func ProvideIndexRunner(indexer *rag.Indexer) IndexRunner {
	return indexer
}

// ProvideBroadcaster 把 WebSocket Hub 绑定为 Broadcaster 接口
func ProvideBroadcaster(hub *websocket.Hub) Broadcaster {
	return hub
}

// ProviderSet 任务应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideIndexRunner,
	ProvideBroadcaster,
	NewService,
)
