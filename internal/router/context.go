package router

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

// TraceIDKey: ключ сквозного ID запроса в контексте.
const TraceIDKey ctxKey = "trace_id"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// TraceID достаёт ID из контекста, генерируя новый, если его нет.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
