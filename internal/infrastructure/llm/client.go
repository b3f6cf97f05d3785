package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/lodehq/backend/internal/domain/rag"
	"github.com/lodehq/backend/internal/infrastructure/config"
	"github.com/lodehq/backend/internal/infrastructure/log"
)

// Client LLM Chat 客户端（OpenAI 兼容）
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// CompletionOptions 单次补全的参数
type CompletionOptions struct {
	Model       string // 为空时使用客户端默认模型
	Temperature float64
	MaxTokens   int
}

// StreamDelta 流式补全的增量事件
// 流正常结束或出错后通道关闭；Err 仅出现在最后一个事件上
type StreamDelta struct {
	Content string
	Err     error
}

// ChatRequest Chat API 请求
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message Chat 消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse Chat API 响应
type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// streamChunk SSE 数据帧
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewClient 创建 LLM 客户端
func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: log.NewModuleLogger("llm", "client"),
	}
}

// NewClientFromConfig 从配置创建 LLM 客户端
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
}

// Model 返回默认模型名
func (c *Client) Model() string {
	return c.model
}

// resolveModel 解析本次请求使用的模型
func (c *Client) resolveModel(override string) string {
	if override != "" {
		return override
	}
	return c.model
}

// Complete 阻塞式补全，返回完整回复文本
func (c *Client) Complete(ctx context.Context, messages []rag.ChatTurn, opts CompletionOptions) (string, error) {
	model := c.resolveModel(opts.Model)

	resp, err := c.send(ctx, messages, model, opts, false)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode LLM response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("LLM API returned no choices")
	}

	c.logger.Info("LLM completion successful",
		"model", model,
		"tokens", chatResp.Usage.TotalTokens,
	)

	return chatResp.Choices[0].Message.Content, nil
}

// CompleteStream 流式补全
// 返回的通道按到达顺序发送增量，流结束后关闭；中途出错时
// 最后发送一个携带 Err 的事件再关闭
func (c *Client) CompleteStream(ctx context.Context, messages []rag.ChatTurn, opts CompletionOptions) (<-chan StreamDelta, error) {
	model := c.resolveModel(opts.Model)

	resp, err := c.send(ctx, messages, model, opts, true)
	if err != nil {
		return nil, err
	}

	deltas := make(chan StreamDelta)

	go func() {
		defer close(deltas)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			if payload == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				// 跳过无法解析的帧
				c.logger.Warn("Skipping malformed stream frame", "error", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				select {
				case deltas <- StreamDelta{Content: content}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case deltas <- StreamDelta{Err: fmt.Errorf("stream read failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return deltas, nil
}

// send 发送 chat/completions 请求
func (c *Client) send(ctx context.Context, messages []rag.ChatTurn, model string, opts CompletionOptions, stream bool) (*http.Response, error) {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}

	reqBody := ChatRequest{
		Messages:    msgs,
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	c.logger.Debug("Sending LLM request",
		"url", url,
		"model", model,
		"messages", len(msgs),
		"stream", stream,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("LLM API request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// TestConnection 测试 LLM API 连接
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.Complete(ctx, []rag.ChatTurn{
		{Role: "user", Content: "ping"},
	}, CompletionOptions{Temperature: 0, MaxTokens: 5})
	if err != nil {
		return fmt.Errorf("LLM connection test failed: %w", err)
	}

	c.logger.Info("LLM connection test successful",
		"model", c.model,
	)
	return nil
}
