package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/log"
)

// overFetchFactor / overFetchCap 候选过采样参数
// 最佳匹配归并会丢弃大量候选，需要超额拉取避免结果饥饿
const (
	overFetchFactor = 20
	overFetchCap    = 500
)

// SearchOptions 搜索参数
type SearchOptions struct {
	// TopK 每个短语返回的结果数
	TopK int
	// MinSimilarity 相似度下限，nil 表示不过滤
	MinSimilarity *float64
	// Filters 元数据精确匹配过滤
	Filters domainRAG.SearchFilters
	// IncludeContent 是否在结果中携带切片文本
	IncludeContent bool
	// IncludeDebug 是否携带 file_id 等调试字段
	IncludeDebug bool
}

// SearchService 语义搜索服务
type SearchService struct {
	embedder Embedder
	store    domainRAG.VectorStore
	cfg      *config.IndexConfig
	logger   *slog.Logger
}

// NewSearchService 创建搜索服务
func NewSearchService(embedder Embedder, store domainRAG.VectorStore, cfg *config.IndexConfig) *SearchService {
	return &SearchService{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   log.NewModuleLogger("rag", "search"),
	}
}

// Search 对每个短语执行语义搜索，按短语分组返回
// 短语去重后一次批量向量化；每个短语超额拉取候选，
// 归并为每个会话保留相似度最高的一条
func (s *SearchService) Search(ctx context.Context, phrases []string, opts SearchOptions) ([]*domainRAG.PhraseResults, error) {
	phrases = dedupePhrases(phrases)
	if len(phrases) == 0 {
		return []*domainRAG.PhraseResults{}, nil
	}

	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	s.logger.Info("Starting search",
		"phrases", len(phrases),
		"top_k", opts.TopK,
	)

	vectors, err := s.embedder.EmbedTexts(ctx, phrases)
	if err != nil {
		s.logger.Error("Failed to embed phrases", "error", err)
		return nil, fmt.Errorf("failed to embed phrases: %w", err)
	}
	if len(vectors) != len(phrases) {
		return nil, fmt.Errorf("embedding count mismatch: %d phrases, %d vectors", len(phrases), len(vectors))
	}

	out := make([]*domainRAG.PhraseResults, 0, len(phrases))
	for i, phrase := range phrases {
		results, err := s.searchPhrase(vectors[i], opts)
		if err != nil {
			return nil, fmt.Errorf("search failed for phrase %q: %w", phrase, err)
		}
		out = append(out, &domainRAG.PhraseResults{
			Phrase:  phrase,
			Results: results,
		})
	}

	return out, nil
}

// searchPhrase 单短语检索 + 归并
func (s *SearchService) searchPhrase(vector []float32, opts SearchOptions) ([]*domainRAG.SearchResult, error) {
	candidateK := opts.TopK * overFetchFactor
	if candidateK < opts.TopK {
		candidateK = opts.TopK
	}
	if candidateK > overFetchCap {
		candidateK = overFetchCap
	}

	rows, err := s.store.Search(vector, candidateK, opts.Filters)
	if err != nil {
		return nil, err
	}

	// 每个会话只保留相似度最高的候选，避免单个会话刷屏
	bestByConv := make(map[string]*domainRAG.ScoredRecord)
	for _, r := range rows {
		convID := conversationKey(r)

		// 有 chunk_word_count 元数据时跳过过小的切片
		if s.cfg.MinChunkWords > 0 && r.Metadata != nil {
			if wc := r.Metadata.ChunkWordCount; wc > 0 && wc < s.cfg.MinChunkWords {
				continue
			}
		}

		prev, ok := bestByConv[convID]
		if !ok || r.Similarity > prev.Similarity {
			bestByConv[convID] = r
		}
	}

	picked := make([]*domainRAG.ScoredRecord, 0, len(bestByConv))
	for _, r := range bestByConv {
		picked = append(picked, r)
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].Similarity > picked[j].Similarity
	})
	if len(picked) > opts.TopK {
		picked = picked[:opts.TopK]
	}

	results := make([]*domainRAG.SearchResult, 0, len(picked))
	seen := make(map[dedupeKey]bool)
	for _, r := range picked {
		if opts.MinSimilarity != nil && r.Similarity < *opts.MinSimilarity {
			continue
		}

		key := resultDedupeKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true

		result := &domainRAG.SearchResult{
			Similarity: r.Similarity,
			Source:     buildSource(r),
			Metadata:   r.Metadata,
		}
		if opts.IncludeContent {
			result.Content = r.Content
		}
		if opts.IncludeDebug {
			result.FileID = r.FileID
		}
		results = append(results, result)
	}

	return results, nil
}

// MergeByBestScore 跨短语归并结果
// 相同 (conversation_id, chunk_index, type, content) 只保留相似度最高的一条，
// 归并后按相似度降序
func MergeByBestScore(groups []*domainRAG.PhraseResults) []*domainRAG.SearchResult {
	best := make(map[dedupeKey]*domainRAG.SearchResult)
	for _, group := range groups {
		for _, r := range group.Results {
			key := searchResultKey(r)
			prev, ok := best[key]
			if !ok || r.Similarity > prev.Similarity {
				best[key] = r
			}
		}
	}

	merged := make([]*domainRAG.SearchResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	return merged
}

// dedupeKey 结果去重键
type dedupeKey struct {
	ConversationID string
	ChunkIndex     int
	Type           string
	Content        string
}

// conversationKey 候选的会话分组键，元数据缺失时退化为 file_id
func conversationKey(r *domainRAG.ScoredRecord) string {
	if r.Metadata != nil && r.Metadata.ConversationID != "" {
		return r.Metadata.ConversationID
	}
	return r.FileID
}

// resultDedupeKey 从存量记录构建去重键
func resultDedupeKey(r *domainRAG.ScoredRecord) dedupeKey {
	key := dedupeKey{Content: r.Content}
	if r.Metadata != nil {
		key.ConversationID = r.Metadata.ConversationID
		key.ChunkIndex = r.Metadata.ChunkIndex
		key.Type = r.Metadata.Type
	}
	return key
}

// searchResultKey 从搜索结果构建去重键
func searchResultKey(r *domainRAG.SearchResult) dedupeKey {
	key := dedupeKey{Content: r.Content}
	if r.Metadata != nil {
		key.ConversationID = r.Metadata.ConversationID
		key.ChunkIndex = r.Metadata.ChunkIndex
		key.Type = r.Metadata.Type
	}
	if key.ConversationID == "" {
		key.ConversationID = r.Source.ConversationID
	}
	return key
}

// buildSource 构建结果来源信息
func buildSource(r *domainRAG.ScoredRecord) domainRAG.SearchSource {
	source := domainRAG.SearchSource{
		VectorRowID: r.ID,
	}
	if r.Metadata != nil {
		source.ConversationID = r.Metadata.ConversationID
		source.MessageIDs = r.Metadata.MessageIDs
		source.ChunkIndex = r.Metadata.ChunkIndex
	}
	return source
}

// dedupePhrases 去除空白与重复短语，保持出现顺序
func dedupePhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	seen := make(map[string]bool)
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
