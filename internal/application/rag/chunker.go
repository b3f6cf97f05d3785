package rag

import (
	"fmt"
	"strings"

	"github.com/lodehq/backend/internal/domain/archive"
	domainRAG "github.com/lodehq/backend/internal/domain/rag"
)

// ChunkMessages 将一个会话的有序消息切分为词数受限的文本块
// 纯函数，确定性输出，保持消息原始顺序
//
// 切分策略：
//   - 优先在 user 提问 / assistant 回答对的边界切分，尽量保持问答完整
//   - 运行中的块词数达到 minWords 即关闭，上界为 maxWords
//   - 单条消息超过 maxWords 时按固定词窗独立切分，不参与配对
//   - 末尾残余块允许小于 minWords
func ChunkMessages(messages []*archive.Message, minWords, maxWords int) []*domainRAG.Chunk {
	if len(messages) == 0 {
		return []*domainRAG.Chunk{}
	}

	var chunks []*domainRAG.Chunk
	var current []*archive.Message
	currentWords := 0
	chunkIndex := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, &domainRAG.Chunk{
			Content:    formatChunk(current),
			MessageIDs: messageIDs(current),
			ChunkIndex: chunkIndex,
		})
		chunkIndex++
		current = nil
		currentWords = 0
	}

	i := 0
	for i < len(messages) {
		msg := messages[i]
		words := wordCount(msg.Content)

		// 单条消息超长：先落盘当前块，再按词窗切分该消息
		if words > maxWords {
			flush()

			wordList := strings.Fields(msg.Content)
			for j := 0; j < len(wordList); j += maxWords {
				end := j + maxWords
				if end > len(wordList) {
					end = len(wordList)
				}
				chunks = append(chunks, &domainRAG.Chunk{
					Content:    strings.Join(wordList[j:end], " "),
					MessageIDs: []string{msg.MessageID},
					ChunkIndex: chunkIndex,
				})
				chunkIndex++
			}
			i++
			continue
		}

		// 尝试整体吸收 user 提问 / 回答对
		if i+1 < len(messages) {
			next := messages[i+1]
			if msg.Role == archive.RoleUser &&
				(next.Role == archive.RoleAssistant || next.Role == archive.RoleSystem) {
				pairWords := words + wordCount(next.Content)

				// 加入后超出上界时，先落盘当前块再吸收整对
				if currentWords+pairWords > maxWords && len(current) > 0 {
					flush()
				}

				current = append(current, msg, next)
				currentWords += pairWords
				i += 2

				if currentWords >= minWords {
					flush()
				}
				continue
			}
		}

		// 单条消息（非配对）
		if currentWords+words > maxWords && len(current) > 0 {
			flush()
		}

		current = append(current, msg)
		currentWords += words

		if currentWords >= minWords {
			flush()
		}

		i++
	}

	// 末尾残余
	flush()

	// 回填总块数
	total := len(chunks)
	for _, c := range chunks {
		c.TotalChunks = total
	}

	return chunks
}

// formatChunk 将消息序列格式化为块文本
func formatChunk(messages []*archive.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(parts, "\n\n")
}

// messageIDs 拷贝消息 ID 序列
func messageIDs(messages []*archive.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.MessageID)
	}
	return ids
}

// wordCount 按空白分词计数
func wordCount(text string) int {
	return len(strings.Fields(text))
}
