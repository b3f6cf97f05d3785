package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/lodehq/backend/internal/domain/archive"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/log"
)

// conversationPreviewChars 会话级记录的内容截断长度，全文可通过切片找回
const conversationPreviewChars = 1000

// ProgressFunc 索引进度回调（进度百分比 0-100 + 描述）
type ProgressFunc func(progress int, message string)

// Indexer 会话索引器
// 每个会话：切片 → 批量向量化 → 按 file_id 幂等写入，
// 并额外写入一条切片向量均值的会话级记录
type Indexer struct {
	archiveRepo archive.Repository
	embedder    Embedder
	store       domainRAG.VectorStore
	cfg         *config.IndexConfig
	logger      *slog.Logger
}

// NewIndexer 创建索引器
func NewIndexer(
	archiveRepo archive.Repository,
	embedder Embedder,
	store domainRAG.VectorStore,
	cfg *config.IndexConfig,
) *Indexer {
	return &Indexer{
		archiveRepo: archiveRepo,
		embedder:    embedder,
		store:       store,
		cfg:         cfg,
		logger:      log.NewModuleLogger("rag", "indexer"),
	}
}

// Index 索引指定会话（conversationIDs 为空时索引全部）
// 取消通过 ctx 传递，在每个会话边界检查一次；取消不是错误，
// 返回 Cancelled=true 和已累计的统计，已写入的切片不回滚。
// 单个会话的错误记录日志后跳过，不中断整个运行
func (ix *Indexer) Index(ctx context.Context, conversationIDs []string, progress ProgressFunc) (*domainRAG.IndexStats, error) {
	conversations, err := ix.archiveRepo.ListConversations(conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	stats := &domainRAG.IndexStats{
		TotalConversations: len(conversations),
	}

	ix.reportProgress(progress, 0,
		fmt.Sprintf("Starting indexing of %d conversations...", stats.TotalConversations))

	for idx, conv := range conversations {
		// 会话边界的取消检查，取消延迟以单个会话的处理时间为界
		select {
		case <-ctx.Done():
			stats.Cancelled = true
			stats.IndexedConversations = idx
			ix.reportProgress(progress, percentOf(idx+1, stats.TotalConversations),
				fmt.Sprintf("Indexing cancelled: %d/%d conversations (%d chunks, %d vectors)",
					idx, stats.TotalConversations, stats.TotalChunks, stats.TotalVectors))
			ix.logger.Info("Indexing cancelled",
				"indexed", idx,
				"total", stats.TotalConversations,
			)
			return stats, nil
		default:
		}

		if err := ix.indexConversation(ctx, conv, stats); err != nil {
			// 记录并跳过，统计只反映成功索引的会话
			ix.logger.Error("Failed to index conversation",
				"conversation_id", conv.ConversationID,
				"error", err,
			)
			ix.reportProgress(progress, percentOf(idx+1, stats.TotalConversations),
				fmt.Sprintf("Indexed %d/%d (error on %s)",
					idx+1, stats.TotalConversations, shortID(conv.ConversationID)))
			continue
		}

		stats.IndexedConversations = idx + 1

		// 每 3 个会话推一次进度，避免界面长时间停滞
		if (idx+1)%3 == 0 || idx == stats.TotalConversations-1 {
			ix.reportProgress(progress, percentOf(idx+1, stats.TotalConversations),
				fmt.Sprintf("Indexed %d/%d conversations (%d chunks, %d vectors)",
					idx+1, stats.TotalConversations, stats.TotalChunks, stats.TotalVectors))
		}
	}

	ix.reportProgress(progress, 100,
		fmt.Sprintf("Indexed %d/%d conversations (%d chunks, %d vectors) - Complete!",
			stats.TotalConversations, stats.TotalConversations, stats.TotalChunks, stats.TotalVectors))

	ix.logger.Info("Indexing complete",
		"conversations", stats.TotalConversations,
		"chunks", stats.TotalChunks,
		"vectors", stats.TotalVectors,
	)

	return stats, nil
}

// indexConversation 索引单个会话
func (ix *Indexer) indexConversation(ctx context.Context, conv *archive.Conversation, stats *domainRAG.IndexStats) error {
	messages, err := ix.archiveRepo.GetMessages(conv.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	chunks := ChunkMessages(messages, ix.cfg.MinWords, ix.cfg.MaxWords)
	if len(chunks) == 0 {
		return nil
	}

	chunks = ix.filterTinyChunks(chunks)
	stats.TotalChunks += len(chunks)

	// 一次调用批量向量化所有切片，内部分批由 embedder 决定
	chunkTexts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		chunkTexts = append(chunkTexts, c.Content)
	}

	vectors, err := ix.embedder.EmbedTexts(ctx, chunkTexts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	items := make([]*domainRAG.BatchItem, 0, len(chunks))
	for i, chunk := range chunks {
		items = append(items, &domainRAG.BatchItem{
			Content: chunk.Content,
			Vector:  vectors[i],
			Metadata: &domainRAG.RecordMetadata{
				ConversationID: conv.ConversationID,
				Title:          conv.Title,
				AISource:       conv.AISource,
				Type:           domainRAG.RecordTypeChunk,
				ChunkIndex:     chunk.ChunkIndex,
				TotalChunks:    chunk.TotalChunks,
				MessageIDs:     chunk.MessageIDs,
				ChunkWordCount: chunk.WordCount(),
			},
			FileID: fmt.Sprintf("%s_chunk_%d", conv.ConversationID, chunk.ChunkIndex),
		})
	}

	if _, err := ix.store.InsertBatch(items); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	stats.TotalVectors += len(items)

	// 会话级向量：切片向量的均值，L2 归一化
	convVector := meanVector(vectors)
	if convVector != nil {
		convText := truncate(formatChunk(messages), conversationPreviewChars)

		_, err := ix.store.Upsert(&domainRAG.BatchItem{
			Content: convText,
			Vector:  convVector,
			Metadata: &domainRAG.RecordMetadata{
				ConversationID: conv.ConversationID,
				Title:          conv.Title,
				AISource:       conv.AISource,
				Type:           domainRAG.RecordTypeConversation,
			},
			FileID: fmt.Sprintf("%s_conversation", conv.ConversationID),
		})
		if err != nil {
			return fmt.Errorf("failed to upsert conversation vector: %w", err)
		}
		stats.TotalVectors++
	}

	return nil
}

// filterTinyChunks 过滤词数过小的切片（"hello" 这类噪声匹配源）
// 全部过小时保留最大的一个；MinChunkWords 为 0 时关闭过滤
func (ix *Indexer) filterTinyChunks(chunks []*domainRAG.Chunk) []*domainRAG.Chunk {
	if ix.cfg.MinChunkWords <= 0 || len(chunks) == 0 {
		return chunks
	}

	kept := make([]*domainRAG.Chunk, 0, len(chunks))
	largest := chunks[0]
	for _, c := range chunks {
		if c.WordCount() >= ix.cfg.MinChunkWords {
			kept = append(kept, c)
		}
		if c.WordCount() > largest.WordCount() {
			largest = c
		}
	}

	if len(kept) == 0 {
		kept = append(kept, largest)
	}
	return kept
}

// meanVector 向量均值 + L2 归一化，空输入返回 nil
func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			if i < dim {
				sum[i] += float64(x)
			}
		}
	}

	var norm float64
	for i := range sum {
		sum[i] /= float64(len(vectors))
		norm += sum[i] * sum[i]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	for i := range sum {
		if norm > 0 {
			out[i] = float32(sum[i] / norm)
		} else {
			out[i] = float32(sum[i])
		}
	}
	return out
}

// reportProgress 调用进度回调，回调缺省时为空操作
func (ix *Indexer) reportProgress(progress ProgressFunc, percent int, message string) {
	if progress == nil {
		return
	}
	progress(percent, message)
}

// percentOf 完成百分比
func percentOf(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(done) / float64(total) * 100)
}

// shortID 截断会话 ID 用于日志
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
