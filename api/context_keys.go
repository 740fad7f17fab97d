package api

import (
	"context"
	"time"
)

// contextKey is a private type to prevent context key collisions across packages.
// Using a private type ensures only this package can create context keys.
//
// This addresses staticcheck SA1029: should not use built-in type string as key for value.
// See: https://staticcheck.io/docs/checks#SA1029
type contextKey string

const (
	// ContextKeyRequestID stores the unique request identifier (string)
	// used for log correlation across a request's lifetime.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyTraceStart stores the request start time (time.Time)
	// used for latency tracking.
	ContextKeyTraceStart contextKey = "trace_start"
)

// GetRequestID extracts the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	return requestID, ok
}

// GetRequestIDOrDefault extracts the request ID from the context or returns "unknown".
// This is a convenience function for logging where a default value is acceptable.
func GetRequestIDOrDefault(ctx context.Context) string {
	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		return requestID
	}
	return "unknown"
}

// WithRequestID creates a new context with the request ID value.
// This is a convenience wrapper for context.WithValue with type safety.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetTraceStart extracts the trace start time from the context.
// Returns the start time and true if found, zero time and false otherwise.
func GetTraceStart(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(ContextKeyTraceStart).(time.Time)
	return start, ok
}

// WithTraceStart creates a new context with the trace start time.
// This is a convenience wrapper for context.WithValue with type safety.
func WithTraceStart(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyTraceStart, start)
}
