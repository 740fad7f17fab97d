package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"plotvault/core"
	"plotvault/metrics"
)

// corsMiddleware adds CORS headers for the dashboard origins
func (a *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range a.config.API.AllowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
				w.Header().Set("Access-Control-Expose-Headers", "X-Total-Count")
				break
			}
		}
		// Responses differ per origin, so caches must key on it
		w.Header().Add("Vary", "Origin")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware enforces the per-IP request budget. With Redis enabled
// the window is shared across instances; any Redis failure falls back to the
// in-memory limiter rather than letting requests through unmetered.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks)

		if a.isRateLimitExempt(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		if a.config.API.RateLimit.UseRedis && a.redis != nil {
			allowed, retryAfter, err := a.allowSharedWindow(r, clientIP)
			if err == nil {
				if !allowed {
					a.rejectRateLimited(w, r, clientIP, retryAfter)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			a.logger.Warnw("Shared rate limit check failed, falling back to memory",
				"error", err, "client_ip", clientIP)
		}

		allowed, retryAfter := a.allowLocal(clientIP)
		if !allowed {
			a.rejectRateLimited(w, r, clientIP, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isRateLimitExempt reports whether the client IP bypasses rate limiting
func (a *API) isRateLimitExempt(clientIP string) bool {
	for _, exempt := range a.config.API.RateLimit.ExemptIPs {
		if strings.TrimSpace(exempt) == clientIP {
			return true
		}
	}
	return false
}

// allowLocal consults the per-IP token bucket
func (a *API) allowLocal(clientIP string) (bool, int) {
	cfg := a.config.API.RateLimit

	a.rateLimitersMu.Lock()
	entry, exists := a.rateLimiters[clientIP]
	if !exists {
		limit := rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds())
		entry = &rateLimiterEntry{
			limiter:  rate.NewLimiter(limit, cfg.Burst),
			lastSeen: time.Now(),
		}
		a.rateLimiters[clientIP] = entry
	} else {
		entry.lastSeen = time.Now()
	}
	// Capture limiter reference while holding lock to prevent race condition
	limiter := entry.limiter
	a.rateLimitersMu.Unlock()

	if limiter.Allow() {
		return true, 0
	}

	// Estimate the wait for the next token without consuming it
	rsv := limiter.Reserve()
	delay := rsv.Delay()
	rsv.Cancel()
	seconds := int(math.Ceil(delay.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return false, seconds
}

// allowSharedWindow consults the Redis fixed window shared by all instances
func (a *API) allowSharedWindow(r *http.Request, clientIP string) (bool, int, error) {
	cfg := a.config.API.RateLimit
	key := core.GetRateLimitCacheKey(clientIP)

	count, err := a.redis.Increment(r.Context(), key, cfg.Window)
	if err != nil {
		return false, 0, err
	}
	if count <= int64(cfg.Requests) {
		return true, 0, nil
	}

	retryAfter := int(math.Ceil(cfg.Window.Seconds()))
	if ttl, ttlErr := a.redis.GetTTL(r.Context(), key); ttlErr == nil && ttl > 0 {
		retryAfter = int(math.Ceil(ttl.Seconds()))
	}
	return false, retryAfter, nil
}

func (a *API) rejectRateLimited(w http.ResponseWriter, r *http.Request, clientIP string, retryAfter int) {
	metrics.RateLimitedRequests.Inc()
	a.logger.Warnw("Rate limit exceeded",
		"client_ip", clientIP,
		"method", r.Method,
		"path", sanitizePath(r.URL.Path))
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded", a.logger)
}

// cleanupRateLimiters periodically removes inactive rate limiters to prevent memory leaks
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.rateLimitersMu.Lock()
			for ip, entry := range a.rateLimiters {
				if time.Since(entry.lastSeen) > 1*time.Hour {
					delete(a.rateLimiters, ip)
				}
			}
			a.rateLimitersMu.Unlock()
		case <-a.stopCh:
			return
		}
	}
}
