package log

import (
	"context"
	"log/slog"
)

// 上下文键定义
const (
	// RequestContextID HTTP 请求 ID
	RequestContextID = "request_id"

	// ConversationContextID 会话 ID
	ConversationContextID = "conversation_id"

	// JobContextID 后台任务 ID
	JobContextID = "job_id"
)

// WithRequestID 在上下文中添加请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestContextID, requestID)
}

// WithConversationID 在上下文中添加会话 ID
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationContextID, conversationID)
}

// WithJobID 在上下文中添加任务 ID
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobContextID, jobID)
}

// FromContext 从上下文提取已知字段构建 logger
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = GetLogger()
	}
	for _, key := range []string{RequestContextID, ConversationContextID, JobContextID} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			base = base.With(slog.String(key, v))
		}
	}
	return base
}
