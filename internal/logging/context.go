package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext retrieves the logger from context, falling back to the default
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context carrying the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceID returns the trace ID stored in ctx, if any
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a fresh trace ID to the context and returns a logger carrying it
func WithTraceContext(ctx context.Context, base zerolog.Logger) (context.Context, zerolog.Logger) {
	traceID := GenerateTraceID()
	l := base.With().Str("trace_id", traceID).Logger()
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = NewContext(newCtx, l)
	return newCtx, l
}

// PositionLogger creates a logger for work on one broker position
func PositionLogger(l zerolog.Logger, platform, ticket, symbol, side string) zerolog.Logger {
	return l.With().
		Str("platform", platform).
		Str("ticket", ticket).
		Str("symbol", symbol).
		Str("side", side).
		Logger()
}

// TradeLogger creates a logger for an order about to be placed
func TradeLogger(l zerolog.Logger, strategy, commodity, side string) zerolog.Logger {
	return l.With().
		Str("strategy", strategy).
		Str("commodity", commodity).
		Str("side", side).
		Logger()
}

// PlatformLogger creates a logger scoped to a broker platform
func PlatformLogger(l zerolog.Logger, platform string) zerolog.Logger {
	return l.With().Str("platform", platform).Logger()
}

// GinMiddleware logs each request with a trace ID and stores the logger in the request context
func GinMiddleware(base zerolog.Logger) gin.HandlerFunc {
	base = WithComponent(base, "http")
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := base.With().
			Str("trace_id", traceID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()

		ctx := context.WithValue(c.Request.Context(), traceIDKey, traceID)
		c.Request = c.Request.WithContext(NewContext(ctx, l))
		c.Header("X-Trace-ID", traceID)

		c.Next()

		l.Info().
			Int("status_code", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.ClientIP()).
			Msg("Request completed")
	}
}
