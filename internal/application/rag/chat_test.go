package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/llm"
)

// newTestOrchestrator 组装带真实向量存储和假 LLM 的编排器
func newTestOrchestrator(t *testing.T, store domainRAG.VectorStore, client *fakeLLM, settings *fakeSettingsRepo) *ChatOrchestrator {
	t.Helper()
	search := NewSearchService(&fakeEmbedder{}, store,
		&config.IndexConfig{MinWords: 300, MaxWords: 800, MinChunkWords: 30})
	return NewChatOrchestrator(NewQueryRewriter(client), search, client, settings)
}

func TestComplete_RAGMode(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "We use blue-green deploys.", 100)

	client := &fakeLLM{responses: []string{"deployment strategy", "You use blue-green deploys."}}
	settings := &fakeSettingsRepo{}
	orch := newTestOrchestrator(t, store, client, settings)

	resp, err := orch.Complete(context.Background(), &CompletionRequest{
		Query: "how do we deploy?",
		Model: "openai/gpt-4o",
	})
	require.NoError(t, err)

	assert.Equal(t, "You use blue-green deploys.", resp.Response)
	assert.Equal(t, "deployment strategy", resp.ImprovedQuery)
	assert.Equal(t, 1, resp.ContextChunksUsed)
	require.Len(t, resp.SimilarityScores, 1)
	assert.InDelta(t, 0.9, resp.SimilarityScores[0], 1e-4)

	// 第二次 LLM 调用是补全本身：首条为 RAG 系统提示，末条携带上下文
	require.Len(t, client.calls, 2)
	chatMessages := client.calls[1]
	assert.Equal(t, "system", chatMessages[0].Role)
	assert.Contains(t, chatMessages[0].Content, "based on the provided context")
	last := chatMessages[len(chatMessages)-1]
	assert.Contains(t, last.Content, "We use blue-green deploys.")
	assert.Contains(t, last.Content, "how do we deploy?")

	// 补全参数固定
	assert.InDelta(t, 0.7, client.callOpts[1].Temperature, 1e-9)
	assert.Equal(t, 2048, client.callOpts[1].MaxTokens)

	// 成功后记录最近使用的模型
	assert.Equal(t, "openai", settings.provider)
	assert.Equal(t, "gpt-4o", settings.model)
}

func TestComplete_GeneralKnowledgeModeWhenNoChunks(t *testing.T) {
	store := newTestVectorStore(t)

	client := &fakeLLM{responses: []string{"improved", "General answer."}}
	orch := newTestOrchestrator(t, store, client, &fakeSettingsRepo{})

	resp, err := orch.Complete(context.Background(), &CompletionRequest{
		Query: "what is Go?",
		Model: "gpt-4o",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.ContextChunksUsed)
	assert.Empty(t, resp.SimilarityScores)

	chatMessages := client.calls[1]
	assert.Contains(t, chatMessages[0].Content, "based on your knowledge")
	// 无上下文时直接发送原始问题
	assert.Equal(t, "what is Go?", chatMessages[len(chatMessages)-1].Content)
}

func TestComplete_LowSimilarityChunksExcluded(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.2, "weak match", 100)

	client := &fakeLLM{responses: []string{"improved", "answer"}}
	orch := newTestOrchestrator(t, store, client, &fakeSettingsRepo{})

	resp, err := orch.Complete(context.Background(), &CompletionRequest{
		Query:         "query",
		MinSimilarity: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ContextChunksUsed)
}

func TestComplete_RewriteFailureStillCompletes(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "relevant chunk", 100)

	// 第一次调用（改写）失败，第二次（补全）成功
	client := &rewriteFailingLLM{completeResponse: "final answer"}
	search := NewSearchService(&fakeEmbedder{}, store,
		&config.IndexConfig{MinWords: 300, MaxWords: 800, MinChunkWords: 30})
	orch := NewChatOrchestrator(NewQueryRewriter(client), search, client, &fakeSettingsRepo{})

	resp, err := orch.Complete(context.Background(), &CompletionRequest{Query: "my query"})
	require.NoError(t, err)

	assert.Equal(t, "final answer", resp.Response)
	// 改写失败回退为原始查询
	assert.Equal(t, "my query", resp.ImprovedQuery)
}

func TestComplete_DebugFields(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "chunk body", 100)

	client := &fakeLLM{responses: []string{"improved", "answer"}}
	orch := newTestOrchestrator(t, store, client, &fakeSettingsRepo{})

	resp, err := orch.Complete(context.Background(), &CompletionRequest{
		Query:        "query",
		IncludeDebug: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ContextPreview)
	require.Len(t, resp.SourcesPreview, 1)
	assert.Equal(t, "conv1 title", resp.SourcesPreview[0].Title)
}

func TestCompleteStream_EventOrder(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "stream chunk", 100)

	client := &fakeLLM{
		responses:    []string{"improved"},
		streamDeltas: []string{"Hello", ", ", "world"},
	}
	settings := &fakeSettingsRepo{}
	orch := newTestOrchestrator(t, store, client, settings)

	var events []StreamEvent
	for ev := range orch.CompleteStream(context.Background(), &CompletionRequest{
		Query: "query",
		Model: "openai/gpt-4o",
	}) {
		events = append(events, ev)
	}

	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, StreamEventMeta, events[0].Type)
	assert.Equal(t, "improved", events[0].ImprovedQuery)
	assert.Equal(t, 1, events[0].ContextChunksUsed)

	var got strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, StreamEventDelta, ev.Type)
		got.WriteString(ev.Content)
	}
	assert.Equal(t, "Hello, world", got.String())

	final := events[len(events)-1]
	assert.Equal(t, StreamEventDone, final.Type)
	assert.Equal(t, "Hello, world", final.Response)

	assert.Equal(t, "openai", settings.provider)
}

func TestCompleteStream_MidStreamError(t *testing.T) {
	store := newTestVectorStore(t)

	client := &fakeLLM{
		responses:    []string{"improved"},
		streamDeltas: []string{"partial"},
		streamErr:    errors.New("connection reset"),
	}
	orch := newTestOrchestrator(t, store, client, &fakeSettingsRepo{})

	var events []StreamEvent
	for ev := range orch.CompleteStream(context.Background(), &CompletionRequest{Query: "query"}) {
		events = append(events, ev)
	}

	final := events[len(events)-1]
	assert.Equal(t, StreamEventError, final.Type)
	assert.Contains(t, final.Error, "connection reset")
}

// rewriteFailingLLM 第一次 Complete 失败，之后成功
type rewriteFailingLLM struct {
	completeResponse string
	callCount        int
}

func (f *rewriteFailingLLM) Complete(_ context.Context, _ []domainRAG.ChatTurn, _ llm.CompletionOptions) (string, error) {
	f.callCount++
	if f.callCount == 1 {
		return "", errors.New("rewrite provider down")
	}
	return f.completeResponse, nil
}

func (f *rewriteFailingLLM) CompleteStream(_ context.Context, _ []domainRAG.ChatTurn, _ llm.CompletionOptions) (<-chan llm.StreamDelta, error) {
	return nil, errors.New("not used")
}

func (f *rewriteFailingLLM) Model() string { return "fake" }
