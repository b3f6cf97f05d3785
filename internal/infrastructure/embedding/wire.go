package embedding

import "github.com/google/wire"

// ProviderSet Embedding 客户端 ProviderSet
var ProviderSet = wire.NewSet(
	NewClientFromConfig,
)
