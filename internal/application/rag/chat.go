package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/llm"
	"github.com/lodehq/backend/internal/infrastructure/log"
	"github.com/lodehq/backend/internal/infrastructure/tokenizer"
)

// 对话补全的固定参数
const (
	chatTemperature = 0.7
	chatMaxTokens   = 2048

	// rewriteHistoryBudget 查询改写阶段的历史窗口上限
	rewriteHistoryBudget = 800

	// debugPreviewChars 调试预览的截断长度
	debugPreviewChars = 6000
)

// ragSystemPrompt 有检索上下文时的系统提示
const ragSystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
	"Use the context information to provide accurate and relevant answers. " +
	"If the context doesn't contain relevant information, say so clearly. " +
	"Cite sources when referencing specific information from the context."

// generalSystemPrompt 无检索上下文时的系统提示
const generalSystemPrompt = "You are a helpful assistant that answers questions. " +
	"Provide accurate and helpful information based on your knowledge."

// CompletionRequest 对话补全请求
type CompletionRequest struct {
	Query             string               `json:"query" binding:"required"`
	Model             string               `json:"model"`
	Provider          string               `json:"provider"`
	ModelName         string               `json:"model_name"`
	History           []domainRAG.ChatTurn `json:"history"`
	ContextWindowSize int                  `json:"context_window_size"`
	MinSimilarity     float64              `json:"min_similarity"`
	MaxContextChunks  int                  `json:"max_context_chunks"`
	IncludeDebug      bool                 `json:"include_debug"`
}

// applyDefaults 填充缺省参数
func (r *CompletionRequest) applyDefaults() {
	if r.ContextWindowSize <= 0 {
		r.ContextWindowSize = 4000
	}
	if r.MinSimilarity == 0 {
		r.MinSimilarity = 0.5
	}
	if r.MaxContextChunks <= 0 {
		r.MaxContextChunks = 5
	}
}

// CompletionResponse 对话补全响应
type CompletionResponse struct {
	Response          string          `json:"response"`
	ImprovedQuery     string          `json:"improved_query"`
	ContextChunksUsed int             `json:"context_chunks_used"`
	SimilarityScores  []float64       `json:"similarity_scores"`
	ContextPreview    string          `json:"context_preview,omitempty"`
	SourcesPreview    []SourcePreview `json:"sources_preview,omitempty"`
}

// SourcePreview 调试用的来源摘要
type SourcePreview struct {
	Title      string  `json:"title"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// StreamEvent 流式补全事件
// 事件顺序：meta → delta* → (done | error)，之后通道关闭
type StreamEvent struct {
	Type              string    `json:"type"`
	Content           string    `json:"content,omitempty"`
	Response          string    `json:"response,omitempty"`
	Error             string    `json:"error,omitempty"`
	ImprovedQuery     string    `json:"improved_query,omitempty"`
	ContextChunksUsed int       `json:"context_chunks_used,omitempty"`
	SimilarityScores  []float64 `json:"similarity_scores,omitempty"`
	ContextPreview    string    `json:"context_preview,omitempty"`
}

// 流式事件类型
const (
	StreamEventMeta  = "meta"
	StreamEventDelta = "delta"
	StreamEventDone  = "done"
	StreamEventError = "error"
)

// ChatOrchestrator RAG 对话编排器
// 每次请求：改写查询 → 检索 → 质量过滤 → 拼装上下文 →
// 窗口化历史 → 构造提示词 → 调用 LLM → 记录最近使用的模型
type ChatOrchestrator struct {
	rewriter     *QueryRewriter
	search       *SearchService
	llm          LLMClient
	settingsRepo domainRAG.ChatSettingsRepository
	estimator    TokenEstimator
	logger       *slog.Logger
}

// NewChatOrchestrator 创建对话编排器
func NewChatOrchestrator(
	rewriter *QueryRewriter,
	search *SearchService,
	llmClient LLMClient,
	settingsRepo domainRAG.ChatSettingsRepository,
) *ChatOrchestrator {
	return &ChatOrchestrator{
		rewriter:     rewriter,
		search:       search,
		llm:          llmClient,
		settingsRepo: settingsRepo,
		estimator:    tokenizer.EstimateFunc(),
		logger:       log.NewModuleLogger("rag", "chat"),
	}
}

// preparedChat 一次补全的中间产物
type preparedChat struct {
	improvedQuery string
	filtered      []*domainRAG.SearchResult
	contextText   string
	messages      []domainRAG.ChatTurn
}

// prepare 执行 LLM 调用之前的全部阶段
func (c *ChatOrchestrator) prepare(ctx context.Context, req *CompletionRequest) (*preparedChat, error) {
	// 1. 改写查询（改写用的历史窗口较小，保持相关且有界）
	rewriteBudget := rewriteHistoryBudget
	if req.ContextWindowSize < rewriteBudget {
		rewriteBudget = req.ContextWindowSize
	}
	historyForRewrite := ApplySlidingWindow(req.History, rewriteBudget, c.estimator)

	rewrite := c.rewriter.Rewrite(ctx, req.Query, req.Model, historyForRewrite)
	if rewrite.Fallback {
		c.logger.Debug("Query rewrite fell back to original", "query", req.Query)
	}

	// 2. 检索：改写后 + 原始查询双路召回，跨短语归并
	grouped, err := c.search.Search(ctx, []string{rewrite.Query, req.Query}, SearchOptions{
		TopK:           req.MaxContextChunks * 3,
		Filters:        domainRAG.SearchFilters{"type": domainRAG.RecordTypeChunk},
		IncludeContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	merged := MergeByBestScore(grouped)

	// 3. 质量过滤
	filtered := FilterResultsByQuality(merged, req.MinSimilarity, req.MaxContextChunks)

	// 4. 拼装上下文，预算随用户选择的历史窗口缩放
	ragBudget := clampInt(req.ContextWindowSize*4, 6000, 24000)
	perChunk := clampInt(ragBudget/maxInt(1, req.MaxContextChunks), 800, 2400)
	contextText := FormatContextForLLM(filtered, ragBudget, perChunk)

	// 5. 窗口化历史
	windowed := ApplySlidingWindow(req.History, req.ContextWindowSize, c.estimator)

	// 6. 构造提示词，零命中时切换为通用知识模式
	systemPrompt := generalSystemPrompt
	userMessage := req.Query
	if len(filtered) > 0 {
		systemPrompt = ragSystemPrompt
		userMessage = fmt.Sprintf("Context information:\n\n%s\n\n---\n\nUser question: %s\n\nPlease provide a helpful answer based on the context above.",
			contextText, req.Query)
	}

	if len(windowed) == 0 || windowed[0].Role != "system" {
		windowed = append([]domainRAG.ChatTurn{{Role: "system", Content: systemPrompt}}, windowed...)
	} else {
		windowed[0].Content = systemPrompt
	}

	messages := append(windowed, domainRAG.ChatTurn{Role: "user", Content: userMessage})

	return &preparedChat{
		improvedQuery: rewrite.Query,
		filtered:      filtered,
		contextText:   contextText,
		messages:      messages,
	}, nil
}

// Complete 阻塞式对话补全
func (c *ChatOrchestrator) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	req.applyDefaults()

	prep, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	response, err := c.llm.Complete(ctx, prep.messages, llm.CompletionOptions{
		Model:       req.Model,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	c.persistLastUsed(req)

	resp := &CompletionResponse{
		Response:          response,
		ImprovedQuery:     prep.improvedQuery,
		ContextChunksUsed: len(prep.filtered),
		SimilarityScores:  similarityScores(prep.filtered),
	}
	if req.IncludeDebug {
		resp.ContextPreview = truncate(prep.contextText, debugPreviewChars)
		resp.SourcesPreview = sourcesPreview(prep.filtered)
	}
	return resp, nil
}

// CompleteStream 流式对话补全
// 返回的通道依次发送 meta、若干 delta、最后 done 或 error，
// 之后关闭；调用方取消 ctx 即可终止
func (c *ChatOrchestrator) CompleteStream(ctx context.Context, req *CompletionRequest) <-chan StreamEvent {
	req.applyDefaults()

	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		emit := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		prep, err := c.prepare(ctx, req)
		if err != nil {
			emit(StreamEvent{Type: StreamEventError, Error: err.Error()})
			return
		}

		meta := StreamEvent{
			Type:              StreamEventMeta,
			ImprovedQuery:     prep.improvedQuery,
			ContextChunksUsed: len(prep.filtered),
			SimilarityScores:  similarityScores(prep.filtered),
		}
		if req.IncludeDebug {
			meta.ContextPreview = truncate(prep.contextText, debugPreviewChars)
		}
		if !emit(meta) {
			return
		}

		deltas, err := c.llm.CompleteStream(ctx, prep.messages, llm.CompletionOptions{
			Model:       req.Model,
			Temperature: chatTemperature,
			MaxTokens:   chatMaxTokens,
		})
		if err != nil {
			emit(StreamEvent{Type: StreamEventError, Error: err.Error()})
			return
		}

		var full strings.Builder
		for delta := range deltas {
			if delta.Err != nil {
				emit(StreamEvent{Type: StreamEventError, Error: delta.Err.Error()})
				return
			}
			full.WriteString(delta.Content)
			if !emit(StreamEvent{Type: StreamEventDelta, Content: delta.Content}) {
				return
			}
		}

		c.persistLastUsed(req)

		emit(StreamEvent{Type: StreamEventDone, Response: full.String()})
	}()

	return events
}

// persistLastUsed 记录最近使用的 provider/model，失败不影响补全结果
func (c *ChatOrchestrator) persistLastUsed(req *CompletionRequest) {
	if c.settingsRepo == nil {
		return
	}

	provider := req.Provider
	modelName := req.ModelName
	if provider == "" || modelName == "" {
		// 从 "provider/model" 形式的模型串回退解析
		if idx := strings.Index(req.Model, "/"); idx >= 0 {
			provider = req.Model[:idx]
			modelName = req.Model[idx+1:]
		} else {
			provider = "custom"
			modelName = req.Model
		}
	}

	if err := c.settingsRepo.SetLastUsed(provider, modelName); err != nil {
		c.logger.Warn("Failed to persist last-used model",
			"provider", provider,
			"model", modelName,
			"error", err,
		)
	}
}

// similarityScores 提取相似度分数列表
func similarityScores(results []*domainRAG.SearchResult) []float64 {
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		scores = append(scores, r.Similarity)
	}
	return scores
}

// sourcesPreview 提取来源摘要，最多 5 条
func sourcesPreview(results []*domainRAG.SearchResult) []SourcePreview {
	limit := len(results)
	if limit > 5 {
		limit = 5
	}

	out := make([]SourcePreview, 0, limit)
	for _, r := range results[:limit] {
		p := SourcePreview{Similarity: r.Similarity}
		if r.Metadata != nil {
			p.Title = r.Metadata.Title
			p.ChunkIndex = r.Metadata.ChunkIndex
		}
		out = append(out, p)
	}
	return out
}

// truncate 按字节上限截断，回退到符文边界，不产生残缺的多字节字符
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// clampInt 把 v 限制在 [lo, hi]
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maxInt 返回较大值
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
