package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/llm"
	"github.com/lodehq/backend/internal/infrastructure/log"
)

// rewriteSystemPrompt 查询改写的固定系统指令
const rewriteSystemPrompt = `You are a query improvement assistant. Your job is to transform user queries into concise, search-optimized queries for semantic search.

Focus on:
- Key concepts and entities
- Core intent
- Searchable terms

Remove:
- Conversational filler
- Pronouns that need context
- Vague references

If the query is already clear and concise, return it as-is. Keep it short (under 20 words).`

// rewriteMaxExchanges 改写时携带的历史轮次上限
const rewriteMaxExchanges = 3

// RewriteResult 查询改写结果
// Fallback 为 true 表示改写失败，Query 是原始查询
type RewriteResult struct {
	Query    string
	Fallback bool
}

// QueryRewriter 查询改写器
// 通过 LLM 把用户查询改写为更适合语义检索的短语；
// 任何失败都回退到原始查询，不向调用方抛错
type QueryRewriter struct {
	llm    LLMClient
	logger *slog.Logger
}

// NewQueryRewriter 创建查询改写器
func NewQueryRewriter(llmClient LLMClient) *QueryRewriter {
	return &QueryRewriter{
		llm:    llmClient,
		logger: log.NewModuleLogger("rag", "rewriter"),
	}
}

// Rewrite 改写查询
// model 为空时使用客户端默认模型；history 取最近 3 轮作为上下文
func (qr *QueryRewriter) Rewrite(ctx context.Context, query, model string, history []domainRAG.ChatTurn) RewriteResult {
	prompt := fmt.Sprintf("User query: %s", query)
	if recent := formatHistory(history, rewriteMaxExchanges); recent != "" {
		prompt += fmt.Sprintf("\n\nRecent conversation:\n%s", recent)
	}
	prompt += "\n\nProvide an improved search query:"

	messages := []domainRAG.ChatTurn{
		{Role: "system", Content: rewriteSystemPrompt},
		{Role: "user", Content: prompt},
	}

	improved, err := qr.llm.Complete(ctx, messages, llm.CompletionOptions{
		Model:       model,
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		qr.logger.Warn("Query rewrite failed, using original query", "error", err)
		return RewriteResult{Query: query, Fallback: true}
	}

	improved = strings.TrimSpace(improved)
	if improved == "" || strings.HasPrefix(improved, "Error") {
		return RewriteResult{Query: query, Fallback: true}
	}

	return RewriteResult{Query: improved}
}

// formatHistory 把最近 maxExchanges 轮历史格式化为文本
func formatHistory(history []domainRAG.ChatTurn, maxExchanges int) string {
	if len(history) == 0 {
		return ""
	}

	recent := history
	if len(history) > maxExchanges*2 {
		recent = history[len(history)-maxExchanges*2:]
	}

	parts := make([]string, 0, len(recent))
	for _, msg := range recent {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(parts, "\n")
}
