package logger

import (
	"context"

	"go.uber.org/zap"
)

type requestLoggerKey struct{}

// WithRequestLogger attaches a request-scoped logger (request id and route fields).
func WithRequestLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey{}, l)
}

// RequestLogger returns the request-scoped logger, or fallback when the
// request did not pass through the logging middleware.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(requestLoggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}
