package api

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"time"

	"plotvault/metrics"
)

// securityHeadersMiddleware adds security response headers to every request
func (a *API) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		csp := "default-src 'self'; frame-ancestors 'none'; base-uri 'self'"

		// The swagger UI ships an inline bootstrap script, so its pages get a
		// relaxed policy
		if strings.HasPrefix(r.URL.Path, "/swagger/") {
			csp = "default-src 'self'; " +
				"script-src 'self' 'unsafe-inline'; " +
				"style-src 'self' 'unsafe-inline'; " +
				"img-src 'self' data:; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'"
		}

		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		// Add HSTS if TLS is enabled
		if a.config.Server.TLS {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// trustedHostMiddleware rejects requests whose Host header is not on the
// allowlist. Wildcard entries like *.example.com match subdomains only.
func (a *API) trustedHostMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if matchesTrustedHost(r.Host, a.config.API.TrustedHosts) {
			next.ServeHTTP(w, r)
			return
		}

		a.logger.Warnw("Rejected untrusted host header",
			"host", sanitizeLogMessage(r.Host),
			"client_ip", getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks))
		writeDetail(w, http.StatusBadRequest, "Invalid host header", a.logger)
	})
}

// matchesTrustedHost checks a Host header value against the allowlist.
// Ports are stripped before matching; comparison is case-insensitive.
func matchesTrustedHost(hostHeader string, allowed []string) bool {
	host := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}

	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if entry == "*" {
			return true
		}
		if suffix, ok := strings.CutPrefix(entry, "*."); ok {
			// Wildcards cover subdomains, not the apex host
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}

	return false
}

// csrfProtectionMiddleware enforces the double-submit contract on every
// state-changing request. Safe methods pass through inside Validate.
func (a *API) csrfProtectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := a.validator.Options()

		cookieToken := ""
		if c, err := r.Cookie(opts.CookieName); err == nil {
			cookieToken = c.Value
		}
		headerToken := r.Header.Get(opts.HeaderName)

		decision := a.validator.Validate(r.Context(), r.Method, cookieToken, headerToken, time.Now())
		if !decision.Allowed {
			a.logger.Warnw("CSRF validation failed",
				"reason", decision.Reason.String(),
				"method", r.Method,
				"path", sanitizePath(r.URL.Path),
				"client_ip", getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks))
			a.respondJSON(w, map[string]interface{}{
				"detail": decision.Reason.Message(),
				"reason": decision.Reason.String(),
			}, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// errorRecoveryMiddleware provides centralized panic recovery
func (a *API) errorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// Capture full stack trace for debugging
				stackBuf := make([]byte, 4096)
				stackLen := runtime.Stack(stackBuf, false)
				stackTrace := string(stackBuf[:stackLen])

				requestID := GetRequestIDOrDefault(r.Context())
				clientIP := getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks)
				method := r.Method
				path := sanitizePath(r.URL.Path)

				// Stack trace is logged server-side only, never sent to client
				a.logger.Errorw("PANIC RECOVERED",
					"error", sanitizeLogMessage(fmt.Sprintf("%v", err)),
					"request_id", requestID,
					"method", method,
					"path", path,
					"client_ip", clientIP,
					"stack_trace", stackTrace,
				)

				metrics.APIPanicsRecovered.WithLabelValues(method, path).Inc()

				writeError(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("panic: %v", err), a.logger)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// sanitizePath removes sensitive parts from URL paths for logging and metrics.
// Replaces IDs and tokens with placeholders to prevent high cardinality metrics.
func sanitizePath(path string) string {
	// Replace UUIDs (common for IDs in URLs)
	path = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`).ReplaceAllString(path, "{uuid}")

	// Replace numeric IDs
	path = regexp.MustCompile(`/\d+(/|$)`).ReplaceAllString(path, "/{id}$1")

	// Replace MongoDB ObjectIDs (24 hex chars)
	path = regexp.MustCompile(`[0-9a-fA-F]{24}`).ReplaceAllString(path, "{oid}")

	// Limit path length
	if len(path) > 100 {
		path = path[:97] + "..."
	}

	return path
}

// getRealIP extracts the real client IP from the request, considering proxy trust settings
func getRealIP(r *http.Request, trustProxy bool, trustedNetworks []string) string {
	if !trustProxy {
		// If not trusting proxies, just return the direct connection IP
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return ip
	}

	// Check if the direct connection is from a trusted proxy network
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	// If direct IP is in trusted networks, trust the forwarded headers
	if isTrustedProxy(directIP, trustedNetworks) {
		// X-Forwarded-For can contain multiple IPs, take the first one (original client)
		xff := r.Header.Get("X-Forwarded-For")
		if xff != "" {
			ips := strings.Split(xff, ",")
			if len(ips) > 0 {
				ip := strings.TrimSpace(ips[0])
				if ip != "" && net.ParseIP(ip) != nil {
					return ip
				}
			}
		}

		// Check X-Real-IP header (used by nginx)
		xri := r.Header.Get("X-Real-IP")
		if xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}

	// Fallback to direct connection IP
	return directIP
}

// isTrustedProxy checks if an IP address is in the list of trusted proxy networks
func isTrustedProxy(ip string, trustedNetworks []string) bool {
	if len(trustedNetworks) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, network := range trustedNetworks {
		if strings.Contains(network, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(network)
			if err == nil && ipNet.Contains(parsedIP) {
				return true
			}
		} else {
			// Exact IP match
			if network == ip {
				return true
			}
		}
	}

	return false
}
