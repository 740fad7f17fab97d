package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// respondJSON writes a JSON response with proper error handling
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
		// Response already started, can't send error to client
		// Error is logged for monitoring
	}
}

// handleRoot godoc
//
//	@Summary		Service information
//	@Description	Returns service name, version, and discovery links
//	@Tags			service
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}
//	@Router			/ [get]
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]interface{}{
		"message":      "PlotVault API",
		"version":      a.config.API.Version,
		"docs_url":     "/swagger/index.html",
		"health_check": "/health",
	}, http.StatusOK)
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Pings the backing store and reports service health
//	@Tags			service
//	@Produce		json
//	@Success		200	{object}	map[string]interface{}
//	@Failure		503	{object}	map[string]interface{}	"Database connection failed"
//	@Router			/health [get]
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.storage.HealthCheck(ctx); err != nil {
		a.logger.Errorw("Health check failed", "error", err)
		a.respondJSON(w, map[string]interface{}{
			"detail": "Database connection failed",
		}, http.StatusServiceUnavailable)
		return
	}

	a.respondJSON(w, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
	}, http.StatusOK)
}

// handleCSRFToken godoc
//
//	@Summary		Issue a CSRF token
//	@Description	Generates a fresh token, registers it, and sets it as a cookie readable by browser scripts
//	@Tags			csrf
//	@Produce		json
//	@Success		200	{object}	map[string]bool
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/csrf-token [get]
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := a.issuer.Issue(r.Context())
	if err != nil {
		a.logger.Errorw("Failed to issue CSRF token",
			"error", err,
			"client_ip", getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks))
		a.respondJSON(w, map[string]interface{}{
			"detail": "Failed to issue CSRF token",
		}, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, a.issuer.Cookie(token))
	a.respondJSON(w, map[string]bool{"success": true}, http.StatusOK)
}
