package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodehq/backend/internal/domain/archive"
)

func makeMessage(id, role string, words int) *archive.Message {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return &archive.Message{
		MessageID: id,
		Role:      role,
		Content:   strings.Join(parts, " "),
	}
}

func TestChunkMessages_Empty(t *testing.T) {
	chunks := ChunkMessages(nil, 300, 800)
	assert.Empty(t, chunks)
}

func TestChunkMessages_SinglePair(t *testing.T) {
	messages := []*archive.Message{
		{MessageID: "m1", Role: archive.RoleUser, Content: "hi"},
		{MessageID: "m2", Role: archive.RoleAssistant, Content: "hello"},
	}

	chunks := ChunkMessages(messages, 1, 800)
	require.Len(t, chunks, 1)

	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[0].TotalChunks)
	assert.Equal(t, []string{"m1", "m2"}, chunks[0].MessageIDs)
	assert.Equal(t, "user: hi\n\nassistant: hello", chunks[0].Content)
}

func TestChunkMessages_PairStaysIntact(t *testing.T) {
	// 当前块已有内容时，加入整对会超出上界，应先落盘当前块
	messages := []*archive.Message{
		makeMessage("m1", archive.RoleAssistant, 500),
		makeMessage("m2", archive.RoleUser, 200),
		makeMessage("m3", archive.RoleAssistant, 200),
	}

	chunks := ChunkMessages(messages, 300, 800)
	require.Len(t, chunks, 2)

	assert.Equal(t, []string{"m1"}, chunks[0].MessageIDs)
	// 问答对不被拆开
	assert.Equal(t, []string{"m2", "m3"}, chunks[1].MessageIDs)
}

func TestChunkMessages_OversizedMessageSplit(t *testing.T) {
	messages := []*archive.Message{
		makeMessage("m1", archive.RoleAssistant, 50),
		makeMessage("m2", archive.RoleAssistant, 1700),
		makeMessage("m3", archive.RoleUser, 10),
	}

	chunks := ChunkMessages(messages, 300, 800)
	require.GreaterOrEqual(t, len(chunks), 4)

	// m1 先被落盘，随后 m2 按 800 词窗切为 3 块
	assert.Equal(t, []string{"m1"}, chunks[0].MessageIDs)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, []string{"m2"}, chunks[i].MessageIDs)
	}
	assert.Equal(t, 800, chunks[1].WordCount())
	assert.Equal(t, 800, chunks[2].WordCount())
	assert.Equal(t, 100, chunks[3].WordCount())
}

func TestChunkMessages_Coverage(t *testing.T) {
	// 消息 ID 多重集必须被块序列完整覆盖，超长消息允许跨块重复同一 ID
	messages := []*archive.Message{
		makeMessage("m1", archive.RoleUser, 100),
		makeMessage("m2", archive.RoleAssistant, 250),
		makeMessage("m3", archive.RoleUser, 40),
		makeMessage("m4", archive.RoleAssistant, 900),
		makeMessage("m5", archive.RoleUser, 5),
	}

	chunks := ChunkMessages(messages, 300, 800)

	seen := map[string]bool{}
	var ordered []string
	for _, c := range chunks {
		for _, id := range c.MessageIDs {
			if !seen[id] {
				seen[id] = true
				ordered = append(ordered, id)
			}
		}
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, ordered)
}

func TestChunkMessages_SizeBounds(t *testing.T) {
	var messages []*archive.Message
	for i := 0; i < 40; i++ {
		role := archive.RoleUser
		if i%2 == 1 {
			role = archive.RoleAssistant
		}
		messages = append(messages, makeMessage(fmt.Sprintf("m%d", i), role, 120))
	}

	chunks := ChunkMessages(messages, 300, 800)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		wc := c.WordCount()
		assert.LessOrEqual(t, wc, 800, "chunk %d exceeds max", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, wc, 300, "non-final chunk %d below min", i)
		}
	}
}

func TestChunkMessages_TotalChunksBackfilled(t *testing.T) {
	var messages []*archive.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, makeMessage(fmt.Sprintf("m%d", i), archive.RoleUser, 200))
	}

	chunks := ChunkMessages(messages, 300, 800)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, len(chunks), c.TotalChunks)
	}
}
