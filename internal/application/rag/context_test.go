package rag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

func resultWith(title string, sim float64, content string) *domainRAG.SearchResult {
	return &domainRAG.SearchResult{
		Similarity: sim,
		Content:    content,
		Metadata: &domainRAG.RecordMetadata{
			ConversationID: "conv",
			Title:          title,
			Type:           domainRAG.RecordTypeChunk,
		},
	}
}

func TestFormatContextForLLM_Empty(t *testing.T) {
	assert.Equal(t, "No relevant context found.", FormatContextForLLM(nil, 4000, 1200))
}

func TestFormatContextForLLM_SingleResult(t *testing.T) {
	results := []*domainRAG.SearchResult{
		resultWith("Deploy notes", 0.87, "We deployed with blue-green strategy."),
	}

	out := FormatContextForLLM(results, 4000, 1200)

	assert.Contains(t, out, "[Context 1 - Similarity: 0.87]")
	assert.Contains(t, out, "Source: Deploy notes (Chunk 0)")
	assert.Contains(t, out, "We deployed with blue-green strategy.")
}

func TestFormatContextForLLM_PerChunkCap(t *testing.T) {
	long := strings.Repeat("word ", 500)
	results := []*domainRAG.SearchResult{
		resultWith("Long one", 0.9, long),
	}

	out := FormatContextForLLM(results, 4000, 100)

	// 内容被限制在 100 字符并以省略号收尾
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Less(t, len(out), 250)
}

func TestFormatContextForLLM_BudgetBound(t *testing.T) {
	var results []*domainRAG.SearchResult
	for i := 0; i < 20; i++ {
		results = append(results, resultWith(fmt.Sprintf("Title %d", i), 0.9, strings.Repeat("x", 500)))
	}

	budget := 1500
	out := FormatContextForLLM(results, budget, 1200)

	// 总长不超过预算加一个头部的固定开销
	assert.LessOrEqual(t, len(out), budget+60)
	assert.NotEqual(t, "No relevant context found.", out)
}

func TestFormatContextForLLM_BudgetTooSmallForHeader(t *testing.T) {
	results := []*domainRAG.SearchResult{
		resultWith("Title", 0.9, "content"),
	}

	out := FormatContextForLLM(results, 10, 1200)
	assert.Equal(t, "No relevant context found.", out)
}

func TestFormatContextForLLM_MissingMetadata(t *testing.T) {
	results := []*domainRAG.SearchResult{
		{Similarity: 0.5, Content: "orphan content"},
	}

	out := FormatContextForLLM(results, 4000, 1200)
	assert.Contains(t, out, "Source: Unknown (Chunk 0)")
	assert.Contains(t, out, "orphan content")
}

func TestFormatContextForLLM_TruncatesOnRuneBoundary(t *testing.T) {
	// 多字节内容超出单条上限时，截断点不得落在字符中间
	results := []*domainRAG.SearchResult{
		resultWith("中文会话", 0.9, strings.Repeat("数据库迁移讨论", 100)),
	}

	out := FormatContextForLLM(results, 4000, 100)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "...")
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// "中" 占 3 字节，上限落在字符中间时回退到边界
	assert.Equal(t, "中", truncate("中文", 4))
	assert.Equal(t, "中文", truncate("中文", 6))
	assert.Equal(t, "", truncate("中文", 2))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "short", truncate("short", 100))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("会话预览", 500), 1000)))
}

func TestFilterResultsByQuality(t *testing.T) {
	results := []*domainRAG.SearchResult{
		resultWith("a", 0.4, "a"),
		resultWith("b", 0.9, "b"),
		resultWith("c", 0.7, "c"),
		resultWith("d", 0.6, "d"),
	}

	filtered := FilterResultsByQuality(results, 0.5, 2)
	require.Len(t, filtered, 2)
	assert.InDelta(t, 0.9, filtered[0].Similarity, 1e-9)
	assert.InDelta(t, 0.7, filtered[1].Similarity, 1e-9)
}

func TestFilterResultsByQuality_Empty(t *testing.T) {
	assert.Empty(t, FilterResultsByQuality(nil, 0.5, 5))
}
