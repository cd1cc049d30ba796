package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey        contextKey = "trace_id"
	runIDKey          contextKey = "run_id"
	conversationIDKey contextKey = "conversation_id"
	participantKey    contextKey = "participant"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withString(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	return stringValue(ctx, traceIDKey)
}

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return withString(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	return stringValue(ctx, runIDKey)
}

// WithConversationID 设置对话记录 ID
func WithConversationID(ctx context.Context, id string) context.Context {
	return withString(ctx, conversationIDKey, id)
}

// ConversationID 获取对话记录 ID
func ConversationID(ctx context.Context) (string, bool) {
	return stringValue(ctx, conversationIDKey)
}

// WithParticipant 设置当前发言者
func WithParticipant(ctx context.Context, name string) context.Context {
	return withString(ctx, participantKey, name)
}

// Participant 获取当前发言者
func Participant(ctx context.Context) (string, bool) {
	return stringValue(ctx, participantKey)
}
