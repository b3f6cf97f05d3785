package rag

import (
	"github.com/google/wire"

	"github.com/lodehq/backend/internal/infrastructure/embedding"
	"github.com/lodehq/backend/internal/infrastructure/llm"
)

// ProvideEmbedder 把 HTTP embedding 客户端绑定为 Embedder 接口
func ProvideEmbedder(client *embedding.Client) Embedder {
	return client
}

// ProvideLLMClient 把 HTTP chat 客户端绑定为 LLMClient 接口
func ProvideLLMClient(client *llm.Client) LLMClient {
	return client
}

// ProviderSet RAG 应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideEmbedder,
	ProvideLLMClient,
	NewIndexer,
	NewSearchService,
	NewQueryRewriter,
	NewChatOrchestrator,
)
