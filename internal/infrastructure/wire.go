package infrastructure

import (
	"github.com/google/wire"

	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/embedding"
	"github.com/lodehq/backend/internal/infrastructure/llm"
	"github.com/lodehq/backend/internal/infrastructure/storage"
	"github.com/lodehq/backend/internal/infrastructure/watcher"
	"github.com/lodehq/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	embedding.ProviderSet,
	llm.ProviderSet,
	watcher.ProviderSet,
	websocket.ProviderSet,
)
