package rag

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lodehq/backend/internal/domain/archive"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/llm"
	"github.com/lodehq/backend/internal/infrastructure/storage"
)

// fakeEmbedder 测试用向量化器，未注册的文本返回固定单位向量
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, []float32{1, 0})
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// fakeLLM 测试用补全客户端，按调用顺序返回预置响应
type fakeLLM struct {
	responses    []string
	err          error
	streamDeltas []string
	streamErr    error

	calls     [][]domainRAG.ChatTurn
	callOpts  []llm.CompletionOptions
	callCount int
}

func (f *fakeLLM) Complete(_ context.Context, messages []domainRAG.ChatTurn, opts llm.CompletionOptions) (string, error) {
	f.calls = append(f.calls, messages)
	f.callOpts = append(f.callOpts, opts)
	f.callCount++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no responses configured")
	}
	idx := f.callCount - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeLLM) CompleteStream(_ context.Context, messages []domainRAG.ChatTurn, opts llm.CompletionOptions) (<-chan llm.StreamDelta, error) {
	f.calls = append(f.calls, messages)
	f.callOpts = append(f.callOpts, opts)
	f.callCount++
	if f.err != nil {
		return nil, f.err
	}

	out := make(chan llm.StreamDelta, len(f.streamDeltas)+1)
	for _, d := range f.streamDeltas {
		out <- llm.StreamDelta{Content: d}
	}
	if f.streamErr != nil {
		out <- llm.StreamDelta{Err: f.streamErr}
	}
	close(out)
	return out, nil
}

func (f *fakeLLM) Model() string {
	return "fake-model"
}

// fakeArchiveRepo 测试用归档仓库
type fakeArchiveRepo struct {
	conversations []*archive.Conversation
	messages      map[string][]*archive.Message
}

func (f *fakeArchiveRepo) ListConversations(conversationIDs []string) ([]*archive.Conversation, error) {
	if len(conversationIDs) == 0 {
		return f.conversations, nil
	}
	wanted := make(map[string]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = true
	}
	out := make([]*archive.Conversation, 0, len(conversationIDs))
	for _, c := range f.conversations {
		if wanted[c.ConversationID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeArchiveRepo) GetMessages(conversationID string) ([]*archive.Message, error) {
	return f.messages[conversationID], nil
}

// fakeSettingsRepo 测试用聊天设置仓库
type fakeSettingsRepo struct {
	provider string
	model    string
	err      error
}

func (f *fakeSettingsRepo) SetLastUsed(provider, model string) error {
	if f.err != nil {
		return f.err
	}
	f.provider = provider
	f.model = model
	return nil
}

func (f *fakeSettingsRepo) GetLastUsed() (*domainRAG.LastUsedModel, error) {
	if f.provider == "" {
		return nil, nil
	}
	return &domainRAG.LastUsedModel{Provider: f.provider, Model: f.model}, nil
}

// newTestVectorStore 基于临时文件的真实向量存储
func newTestVectorStore(t *testing.T) domainRAG.VectorStore {
	t.Helper()
	store, err := storage.NewVectorStore(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// similarityVector 构造与 [1,0] 查询向量余弦相似度为 s 的单位向量
func similarityVector(s float64) []float32 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	y := 1 - s*s
	if y < 0 {
		y = 0
	}
	return []float32{float32(s), float32(math.Sqrt(y))}
}
