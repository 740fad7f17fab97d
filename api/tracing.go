package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"plotvault/metrics"
)

// RequestTracingConfig holds configuration for request tracing behavior.
type RequestTracingConfig struct {
	// HeaderName is the HTTP header used for request IDs (default: X-Request-ID)
	HeaderName string
	// GenerateIfMissing controls whether to generate a new ID if not provided
	GenerateIfMissing bool
	// PropagateHeader controls whether to echo the request ID in the response
	PropagateHeader bool
	// LogRequests controls whether to log request start/end
	LogRequests bool
}

// DefaultTracingConfig returns the default tracing configuration.
func DefaultTracingConfig() RequestTracingConfig {
	return RequestTracingConfig{
		HeaderName:        "X-Request-ID",
		GenerateIfMissing: true,
		PropagateHeader:   true,
		LogRequests:       true,
	}
}

// requestIDMiddleware adds request ID tracking and timing to all requests.
//
// Behavior:
//   - If X-Request-ID header is present in request, use that value
//   - If not present, generate a new UUID v4
//   - Store the ID in the request context for downstream handlers
//   - Echo the ID in the response header for client correlation
//   - Record request duration and log start/completion
//
// The wrapped response writer captures the status code so the completion
// log and the request metrics reflect what was actually sent.
func (a *API) requestIDMiddleware(next http.Handler) http.Handler {
	cfg := DefaultTracingConfig()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(cfg.HeaderName)
		if requestID == "" && cfg.GenerateIfMissing {
			requestID = uuid.New().String()
		}
		requestID = sanitizeRequestID(requestID)

		if cfg.PropagateHeader && requestID != "" {
			w.Header().Set(cfg.HeaderName, requestID)
		}

		ctx := WithRequestID(r.Context(), requestID)
		ctx = WithTraceStart(ctx, start)

		if cfg.LogRequests {
			a.logger.Debugw("request_started",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks),
				"user_agent", r.UserAgent(),
			)
		}

		wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, sanitizePath(r.URL.Path), strconv.Itoa(wrapped.statusCode)).Inc()
		metrics.HTTPRequestDuration.Observe(duration.Seconds())

		if cfg.LogRequests {
			a.logger.Infow("request_completed",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"duration", duration.String(),
			)
		}
	})
}

// responseWriterWrapper captures the HTTP status code for logging and metrics.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code before delegating.
func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write marks the response as written (status defaults to 200 if WriteHeader
// was never called explicitly).
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Hijack exposes the underlying connection so WebSocket upgrades keep working
// behind this wrapper.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// sanitizeRequestID validates and sanitizes a request ID from an untrusted header.
// Limits length to 64 characters and strips anything outside [A-Za-z0-9_-] so
// hostile IDs cannot smuggle newlines into logs or response headers.
func sanitizeRequestID(id string) string {
	const maxLen = 64
	if len(id) > maxLen {
		id = id[:maxLen]
	}

	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}
