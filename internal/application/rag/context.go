package rag

import (
	"fmt"
	"sort"
	"strings"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

// NoContextSentinel 无可用上下文时的固定返回值
const NoContextSentinel = "No relevant context found."

// separatorReserve 条目之间空行分隔的预留长度
const separatorReserve = 2

// ellipsisSuffix 截断标记
const ellipsisSuffix = "..."

// minViableChunkChars 低于该长度的截断不再追加省略号
const minViableChunkChars = 20

// FilterResultsByQuality 按相似度过滤并限制结果数量
// 返回按相似度降序的前 maxResults 条
func FilterResultsByQuality(results []*domainRAG.SearchResult, minSimilarity float64, maxResults int) []*domainRAG.SearchResult {
	if len(results) == 0 {
		return []*domainRAG.SearchResult{}
	}

	filtered := make([]*domainRAG.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity >= minSimilarity {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})

	if maxResults > 0 && len(filtered) > maxResults {
		filtered = filtered[:maxResults]
	}
	return filtered
}

// FormatContextForLLM 把检索结果拼装为字符预算内的上下文块
// 结果按给定顺序（相似度降序）逐条放入：
//   - 剩余预算放不下条目头部时停止
//   - 每条内容受 maxChunkChars 与剩余预算双重约束
//   - 截断且空间允许时以省略号收尾
//
// 预算耗尽不是错误，退化为更短的上下文或固定的无上下文语句
func FormatContextForLLM(results []*domainRAG.SearchResult, maxContextLength, maxChunkChars int) string {
	if len(results) == 0 {
		return NoContextSentinel
	}

	var parts []string
	remaining := maxContextLength

	for i, r := range results {
		title := "Unknown"
		chunkIndex := 0
		if r.Metadata != nil {
			if r.Metadata.Title != "" {
				title = r.Metadata.Title
			}
			chunkIndex = r.Metadata.ChunkIndex
		}

		header := fmt.Sprintf("[Context %d - Similarity: %.2f]\nSource: %s (Chunk %d)\n",
			i+1, r.Similarity, title, chunkIndex)

		if remaining < len(header)+separatorReserve {
			break
		}

		contentCap := maxChunkChars
		if budgetCap := remaining - len(header) - separatorReserve; budgetCap < contentCap {
			contentCap = budgetCap
		}

		content := r.Content
		if len(content) > contentCap {
			if contentCap > minViableChunkChars {
				content = truncate(content, contentCap-len(ellipsisSuffix)) + ellipsisSuffix
			} else {
				content = truncate(content, contentCap)
			}
		}

		parts = append(parts, header+content)
		remaining -= len(header) + len(content) + separatorReserve
	}

	if len(parts) == 0 {
		return NoContextSentinel
	}
	return strings.Join(parts, "\n\n")
}
