package rag

import (
	"context"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/llm"
)

// Embedder 文本向量化接口
// 实现方保证同一文本得到确定性的 L2 归一化向量
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// LLMClient chat 补全接口
type LLMClient interface {
	Complete(ctx context.Context, messages []domainRAG.ChatTurn, opts llm.CompletionOptions) (string, error)
	CompleteStream(ctx context.Context, messages []domainRAG.ChatTurn, opts llm.CompletionOptions) (<-chan llm.StreamDelta, error)
	Model() string
}
