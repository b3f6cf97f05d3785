package rag

import (
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

// TokenEstimator 文本 Token 数量估算函数
type TokenEstimator func(text string) int

// EstimateTokens 粗略 Token 估算（1 token ≈ 4 字符）
// 作为滑动窗口的默认估算器足够精确
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ApplySlidingWindow 对会话历史应用 Token 预算滑动窗口
// 首条 system 消息始终保留且不计入预算；其余消息从最新向最旧
// 累计，放不下的整条丢弃。保留消息的相对顺序不变
func ApplySlidingWindow(messages []domainRAG.ChatTurn, maxTokens int, estimator TokenEstimator) []domainRAG.ChatTurn {
	if len(messages) == 0 {
		return []domainRAG.ChatTurn{}
	}

	if estimator == nil {
		estimator = EstimateTokens
	}

	// system 消息单独摘出，最后放回首位
	var systemMsg *domainRAG.ChatTurn
	rest := messages
	if messages[0].Role == "system" {
		systemMsg = &messages[0]
		rest = messages[1:]
	}

	var window []domainRAG.ChatTurn
	totalTokens := 0

	for i := len(rest) - 1; i >= 0; i-- {
		tokens := estimator(rest[i].Content)
		if totalTokens+tokens > maxTokens {
			break
		}
		window = append([]domainRAG.ChatTurn{rest[i]}, window...)
		totalTokens += tokens
	}

	if systemMsg != nil {
		window = append([]domainRAG.ChatTurn{*systemMsg}, window...)
	}

	return window
}
