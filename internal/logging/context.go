package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// TraceHeader is the request header carrying the trace ID
const TraceHeader = "X-Trace-ID"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Default()
	}
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace ID stored in ctx, or ""
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// scoped tags l (or the default logger) with a component, the given fields
// and the trace ID carried by ctx
func scoped(ctx context.Context, l *Logger, component string, fields map[string]interface{}) *Logger {
	if l == nil {
		l = FromContext(ctx)
	}
	l = l.WithFields(fields)
	if id := TraceIDFromContext(ctx); id != "" && id != l.TraceID() {
		l = l.WithTraceID(id)
	}
	return l.WithComponent(component)
}

// ConfluenceContext creates a logger context for confluence analysis
func ConfluenceContext(ctx context.Context, l *Logger, symbol, timeframe string) *Logger {
	return scoped(ctx, l, "ConfluenceEngine", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
	})
}

// PatternContext creates a logger context for a single pattern detector
func PatternContext(ctx context.Context, l *Logger, symbol, timeframe, detector string) *Logger {
	return scoped(ctx, l, "ConfluenceEngine", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"detector":  detector,
	})
}

// SignalContext creates a logger context for trading signals
func SignalContext(ctx context.Context, l *Logger, symbol, timeframe string) *Logger {
	return scoped(ctx, l, "SignalSynthesizer", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
	})
}

// AnalyticsContext creates a logger context for integrated analytics runs
func AnalyticsContext(ctx context.Context, l *Logger, symbol, timeframe, mode string) *Logger {
	return scoped(ctx, l, "AnalyticsIntegrator", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"mode":      mode,
	})
}

// MarketDataContext creates a logger context for candle fetches
func MarketDataContext(ctx context.Context, l *Logger, symbol, interval string, limit int) *Logger {
	return scoped(ctx, l, "MarketData", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	})
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(ctx context.Context, l *Logger, operation, table string) *Logger {
	return scoped(ctx, l, "database", map[string]interface{}{
		"operation": operation,
		"table":     table,
	})
}

// GinMiddleware assigns a trace ID to every request, stores a request-scoped
// logger in the request context and logs request completion.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"remote_addr": c.ClientIP(),
		}).WithComponent("API")

		ctx := context.WithValue(c.Request.Context(), traceIDKey, traceID)
		ctx = NewContext(ctx, l)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, traceID)

		c.Next()

		l.WithDuration(time.Since(start)).Info("Request completed", "status_code", c.Writer.Status())
	}
}
