package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appRAG "github.com/lodehq/backend/internal/application/rag"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

const (
	defaultToolLimit = 5
	maxToolLimit     = 50
)

// SearchArchiveInput 归档检索工具输入
type SearchArchiveInput struct {
	Phrases        []string `json:"phrases" jsonschema:"Search phrases (required, at least one)"`
	Limit          int      `json:"limit,omitempty" jsonschema:"Maximum results per phrase, 1-50, defaults to 5"`
	MinSimilarity  *float64 `json:"min_similarity,omitempty" jsonschema:"Minimum cosine similarity threshold (0-1)"`
	IncludeContent *bool    `json:"include_content,omitempty" jsonschema:"Include matched chunk text, defaults to true"`
}

// ArchiveSearchResult 归档检索工具的单条结果
type ArchiveSearchResult struct {
	Similarity     float64  `json:"similarity" jsonschema:"Cosine similarity score"`
	ConversationID string   `json:"conversation_id,omitempty" jsonschema:"Source conversation ID"`
	Title          string   `json:"title,omitempty" jsonschema:"Conversation title"`
	ChunkIndex     int      `json:"chunk_index" jsonschema:"Chunk position within the conversation"`
	MessageIDs     []string `json:"message_ids,omitempty" jsonschema:"IDs of the messages the chunk was built from"`
	Content        string   `json:"content,omitempty" jsonschema:"Matched chunk text"`
}

// SearchArchiveOutput 归档检索工具输出
type SearchArchiveOutput struct {
	Results    []*ArchiveSearchResult `json:"results" jsonschema:"Merged results ranked by similarity"`
	TotalCount int                    `json:"total_count" jsonschema:"Number of results returned"`
}

// searchArchiveTool 归档语义检索工具实现
func (s *MCPServer) searchArchiveTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchArchiveInput,
) (*mcp.CallToolResult, SearchArchiveOutput, error) {
	output := SearchArchiveOutput{Results: []*ArchiveSearchResult{}}

	if len(input.Phrases) == 0 {
		return nil, output, fmt.Errorf("phrases is required - provide at least one search phrase")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultToolLimit
	}
	if limit > maxToolLimit {
		limit = maxToolLimit
	}

	includeContent := true
	if input.IncludeContent != nil {
		includeContent = *input.IncludeContent
	}

	groups, err := s.searchService.Search(ctx, input.Phrases, appRAG.SearchOptions{
		TopK:           limit,
		MinSimilarity:  input.MinSimilarity,
		Filters:        domainRAG.SearchFilters{"type": domainRAG.RecordTypeChunk},
		IncludeContent: includeContent,
	})
	if err != nil {
		return nil, output, fmt.Errorf("search failed: %w", err)
	}

	for _, r := range appRAG.MergeByBestScore(groups) {
		result := &ArchiveSearchResult{
			Similarity:     r.Similarity,
			ConversationID: r.Source.ConversationID,
			ChunkIndex:     r.Source.ChunkIndex,
			MessageIDs:     r.Source.MessageIDs,
			Content:        r.Content,
		}
		if r.Metadata != nil {
			result.Title = r.Metadata.Title
		}
		output.Results = append(output.Results, result)
	}
	output.TotalCount = len(output.Results)

	return nil, output, nil
}

// VectorDBStatusInput 向量库状态工具输入（空输入）
type VectorDBStatusInput struct{}

// VectorDBStatusOutput 向量库状态工具输出
type VectorDBStatusOutput struct {
	Exists        bool   `json:"exists" jsonschema:"Whether the vector index file exists"`
	Path          string `json:"path" jsonschema:"Vector index file path"`
	TotalVectors  int    `json:"total_vectors" jsonschema:"Total stored vectors"`
	UniqueFileIDs int    `json:"unique_file_ids" jsonschema:"Distinct upsert keys (indexed records)"`
	Stale         bool   `json:"stale" jsonschema:"Whether the archive changed after the last indexing run"`
}

// vectorDBStatusTool 向量库状态工具实现
func (s *MCPServer) vectorDBStatusTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input VectorDBStatusInput,
) (*mcp.CallToolResult, VectorDBStatusOutput, error) {
	output := VectorDBStatusOutput{Path: s.store.Path()}

	if _, err := os.Stat(s.store.Path()); err == nil {
		output.Exists = true
	}

	stats, err := s.store.Stats()
	if err != nil {
		return nil, output, fmt.Errorf("failed to read store stats: %w", err)
	}
	output.TotalVectors = stats.TotalVectors
	output.UniqueFileIDs = stats.UniqueFileIDs

	if s.watcher != nil {
		output.Stale = s.watcher.Stale()
	}

	return nil, output, nil
}
