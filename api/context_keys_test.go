package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContextKeyTypesSafety verifies that type-safe context keys round-trip their values
func TestContextKeyTypesSafety(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC)

	ctx = WithRequestID(ctx, "req-1234")
	ctx = WithTraceStart(ctx, start)

	requestID, ok := GetRequestID(ctx)
	require.True(t, ok, "Request ID should be present")
	assert.Equal(t, "req-1234", requestID)

	traceStart, ok := GetTraceStart(ctx)
	require.True(t, ok, "Trace start should be present")
	assert.Equal(t, start, traceStart)
}

// TestContextKeyCollisionPrevention verifies that string-based keys cannot override typed keys
func TestContextKeyCollisionPrevention(t *testing.T) {
	ctx := context.Background()

	// Set values using type-safe keys
	ctx = WithRequestID(ctx, "legitimate-id")

	// Attempt to pollute the context with a raw string key of the same name
	ctx = context.WithValue(ctx, "request_id", "spoofed-id")

	// Type-safe extraction still returns the legitimate value; the string key
	// lives in a different namespace
	requestID, ok := GetRequestID(ctx)
	require.True(t, ok, "Request ID should be present")
	assert.Equal(t, "legitimate-id", requestID, "Type-safe key should not be overridden by string key")
}

// TestContextKeyMissingValues verifies correct behavior when values are not set
func TestContextKeyMissingValues(t *testing.T) {
	ctx := context.Background()

	requestID, ok := GetRequestID(ctx)
	assert.False(t, ok, "Request ID should not be present")
	assert.Equal(t, "", requestID)

	traceStart, ok := GetTraceStart(ctx)
	assert.False(t, ok, "Trace start should not be present")
	assert.True(t, traceStart.IsZero())
}

// TestContextKeyWrongValueType verifies extraction rejects values of the wrong type
func TestContextKeyWrongValueType(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeyRequestID, 12345)

	requestID, ok := GetRequestID(ctx)
	assert.False(t, ok, "Non-string value should not extract as request ID")
	assert.Equal(t, "", requestID)
}
