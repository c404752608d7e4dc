// Package tracing carries request correlation data through contexts and wraps
// the OpenTelemetry setup.
package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContextKey represents keys used for context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	StartTimeKey ContextKey = "start_time"
)

// RequestIDHeader is read from and echoed on HTTP requests
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// RequestInfo contains tracing information for a request
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns a new random request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// RequestIDOrNew keeps a caller supplied request ID when it is usable
func RequestIDOrNew(candidate string) string {
	if candidate == "" || len(candidate) > maxRequestIDLength {
		return GenerateRequestID()
	}
	for _, r := range candidate {
		if r < 0x21 || r > 0x7e {
			return GenerateRequestID()
		}
	}
	return candidate
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithStartTime adds a start time to the context
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, StartTimeKey, startTime)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetStartTime extracts the start time from context
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}

// GetRequestInfo extracts all tracing information from context
func GetRequestInfo(ctx context.Context) RequestInfo {
	return RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   OtelTraceID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// Duration returns the time elapsed since the start time in context
func Duration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
