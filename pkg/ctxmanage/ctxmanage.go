// Package ctxmanage plumbs per-request values, currently just the trace id
// set by the logging middleware.
package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
)

type key string

const TraceIDKey key = "trace-id"

// WithTraceID returns a context carrying the given trace id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceIdOfRequest fetches the trace id stored on the request context by
// the middleware. Returns "unknown" when middleware did not run (tests).
func GetTraceIdOfRequest(c *gin.Context) string {
	traceID, ok := c.Request.Context().Value(TraceIDKey).(string)
	if !ok {
		return "unknown"
	}
	return traceID
}
