package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	userIDKey    ctxKey = "user_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID tags every log line emitted through FromCtx with the acting user.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// FromCtx returns the global logger enriched with request_id and user_id when present.
func FromCtx(ctx context.Context) *zap.Logger {
	l := L()
	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With(zap.String("request_id", reqID))
	}
	if userID, ok := ctx.Value(userIDKey).(uint); ok {
		l = l.With(zap.Uint("user_id", userID))
	}
	return l
}

// ForUser is FromCtx plus a user_id field, unless ctx already tags one.
func ForUser(ctx context.Context, userID uint) *zap.Logger {
	l := FromCtx(ctx)
	if _, ok := ctx.Value(userIDKey).(uint); ok {
		return l
	}
	return l.With(zap.Uint("user_id", userID))
}
