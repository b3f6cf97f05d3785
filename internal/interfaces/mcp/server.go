package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	appRAG "github.com/lodehq/backend/internal/application/rag"
	"github.com/lodehq/backend/internal/infrastructure/storage"
	"github.com/lodehq/backend/internal/infrastructure/watcher"
)

// MCPServer MCP 服务器
// 通过 SSE Handler 挂载在 HTTP 服务器上，向 AI 客户端暴露归档检索工具
type MCPServer struct {
	server        *mcp.Server
	handler       http.Handler
	searchService *appRAG.SearchService
	store         *storage.SQLiteVectorStore
	watcher       *watcher.ArchiveWatcher
}

// NewServer 创建 MCP 服务器
func NewServer(
	searchService *appRAG.SearchService,
	store *storage.SQLiteVectorStore,
	archiveWatcher *watcher.ArchiveWatcher,
) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "lode-backend",
			Version: "0.1.0",
		},
		nil,
	)

	mcpServer := &MCPServer{
		server:        server,
		searchService: searchService,
		store:         store,
		watcher:       archiveWatcher,
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_archive",
		Description: `Semantically search the archived AI conversation history.

Use this tool to find past conversations relevant to a topic, problem, or question.
Results are the single best-matching chunk per conversation, ranked by cosine similarity.

Parameters:
- phrases (array of strings, required): One or more search phrases. Multiple phrasings of the same question improve recall; results are merged by best score.
- limit (int, optional): Maximum results per phrase (1-50, default 5)
- min_similarity (float, optional): Drop results scoring below this threshold (0-1)
- include_content (bool, optional): Include the matched chunk text in results, defaults to true

Returns: Merged result list with similarity scores, conversation IDs, and chunk provenance.`,
	}, mcpServer.searchArchiveTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_vectordb_status",
		Description: `Get the status of the conversation vector index.

Returns: whether the index exists, its file path, total vector count, distinct indexed conversation count, and whether the archive has changed since the last indexing run. No parameters required.`,
	}, mcpServer.vectorDBStatusTool)

	mcpServer.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			return server
		},
		nil,
	)

	return mcpServer
}

// GetHandler 获取 HTTP Handler（挂载到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
