package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/config"
)

func newTestSearchService(t *testing.T, store domainRAG.VectorStore) *SearchService {
	t.Helper()
	return NewSearchService(
		&fakeEmbedder{},
		store,
		&config.IndexConfig{MinWords: 300, MaxWords: 800, MinChunkWords: 30},
	)
}

func storeChunk(t *testing.T, store domainRAG.VectorStore, convID string, chunkIndex int, sim float64, content string, wordCount int) {
	t.Helper()
	_, err := store.Upsert(&domainRAG.BatchItem{
		Content: content,
		Vector:  similarityVector(sim),
		Metadata: &domainRAG.RecordMetadata{
			ConversationID: convID,
			Title:          convID + " title",
			Type:           domainRAG.RecordTypeChunk,
			ChunkIndex:     chunkIndex,
			TotalChunks:    chunkIndex + 1,
			ChunkWordCount: wordCount,
		},
	})
	require.NoError(t, err)
}

func TestSearch_BestPerConversation(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "first conv1 chunk", 100)
	storeChunk(t, store, "conv2", 0, 0.8, "conv2 chunk", 100)
	storeChunk(t, store, "conv1", 1, 0.95, "second conv1 chunk", 100)

	svc := newTestSearchService(t, store)
	groups, err := svc.Search(context.Background(), []string{"x"}, SearchOptions{
		TopK:           5,
		IncludeContent: true,
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)

	results := groups[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, "conv1", results[0].Source.ConversationID)
	assert.InDelta(t, 0.95, results[0].Similarity, 1e-4)
	assert.Equal(t, "conv2", results[1].Source.ConversationID)
	assert.InDelta(t, 0.8, results[1].Similarity, 1e-4)
}

func TestSearch_TinyChunksSkippedWhenWordCountPresent(t *testing.T) {
	store := newTestVectorStore(t)
	// 带 chunk_word_count 且过小：跳过
	storeChunk(t, store, "conv1", 0, 0.99, "hello", 1)
	storeChunk(t, store, "conv2", 0, 0.5, "a real chunk", 100)

	// 无 chunk_word_count 元数据的记录不过滤
	_, err := store.Upsert(&domainRAG.BatchItem{
		Content: "legacy record",
		Vector:  similarityVector(0.7),
		Metadata: &domainRAG.RecordMetadata{
			ConversationID: "conv3",
			Type:           domainRAG.RecordTypeChunk,
		},
	})
	require.NoError(t, err)

	svc := newTestSearchService(t, store)
	groups, err := svc.Search(context.Background(), []string{"x"}, SearchOptions{TopK: 5, IncludeContent: true})
	require.NoError(t, err)

	results := groups[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, "conv3", results[0].Source.ConversationID)
	assert.Equal(t, "conv2", results[1].Source.ConversationID)
}

func TestSearch_MinSimilarity(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "good", 100)
	storeChunk(t, store, "conv2", 0, 0.3, "weak", 100)

	minSim := 0.5
	svc := newTestSearchService(t, store)
	groups, err := svc.Search(context.Background(), []string{"x"}, SearchOptions{
		TopK:          5,
		MinSimilarity: &minSim,
	})
	require.NoError(t, err)

	results := groups[0].Results
	require.Len(t, results, 1)
	assert.Equal(t, "conv1", results[0].Source.ConversationID)
}

func TestSearch_PhraseDedupe(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "chunk", 100)

	svc := newTestSearchService(t, store)
	groups, err := svc.Search(context.Background(), []string{" query ", "query", "", "other"}, SearchOptions{TopK: 5})
	require.NoError(t, err)

	require.Len(t, groups, 2)
	assert.Equal(t, "query", groups[0].Phrase)
	assert.Equal(t, "other", groups[1].Phrase)
}

func TestSearch_NoPhrases(t *testing.T) {
	svc := newTestSearchService(t, newTestVectorStore(t))

	groups, err := svc.Search(context.Background(), []string{"", "   "}, SearchOptions{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSearch_IncludeContentSwitch(t *testing.T) {
	store := newTestVectorStore(t)
	storeChunk(t, store, "conv1", 0, 0.9, "secret content", 100)

	svc := newTestSearchService(t, store)
	groups, err := svc.Search(context.Background(), []string{"x"}, SearchOptions{TopK: 5, IncludeContent: false})
	require.NoError(t, err)

	require.Len(t, groups[0].Results, 1)
	assert.Empty(t, groups[0].Results[0].Content)
	require.NotNil(t, groups[0].Results[0].Metadata)
	assert.Equal(t, "conv1", groups[0].Results[0].Metadata.ConversationID)
}

func TestMergeByBestScore(t *testing.T) {
	mkResult := func(conv string, chunkIndex int, sim float64, content string) *domainRAG.SearchResult {
		return &domainRAG.SearchResult{
			Similarity: sim,
			Source:     domainRAG.SearchSource{ConversationID: conv, ChunkIndex: chunkIndex},
			Content:    content,
			Metadata: &domainRAG.RecordMetadata{
				ConversationID: conv,
				Type:           domainRAG.RecordTypeChunk,
				ChunkIndex:     chunkIndex,
			},
		}
	}

	groups := []*domainRAG.PhraseResults{
		{
			Phrase: "improved",
			Results: []*domainRAG.SearchResult{
				mkResult("conv1", 0, 0.7, "shared chunk"),
				mkResult("conv2", 1, 0.6, "conv2 chunk"),
			},
		},
		{
			Phrase: "raw",
			Results: []*domainRAG.SearchResult{
				// 与 improved 相同来源，分数更高，应胜出
				mkResult("conv1", 0, 0.9, "shared chunk"),
				mkResult("conv3", 0, 0.5, "conv3 chunk"),
			},
		},
	}

	merged := MergeByBestScore(groups)
	require.Len(t, merged, 3)

	assert.Equal(t, "conv1", merged[0].Source.ConversationID)
	assert.InDelta(t, 0.9, merged[0].Similarity, 1e-9)
	assert.Equal(t, "conv2", merged[1].Source.ConversationID)
	assert.Equal(t, "conv3", merged[2].Source.ConversationID)
}
