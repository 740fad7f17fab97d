// Package api PlotVault API
//
//	@title			PlotVault API
//	@version		1.0.0
//	@description	REST API for storing and serving Plotly chart documents and simple data records, protected by double-submit CSRF tokens
//
// @host		localhost:8000
// @BasePath	/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"plotvault/config"
	"plotvault/core"
	"plotvault/csrf"
	"plotvault/storage"
)

// rateLimiterEntry tracks a rate limiter and when it was last used
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API handles HTTP API endpoints
type API struct {
	router    *mux.Router
	server    *http.Server
	storage   storage.DatasetStorageInterface
	cache     *core.DatasetCache
	redis     *core.RedisCache // nil when Redis is disabled
	hub       *Hub
	issuer    *csrf.Issuer
	validator *csrf.Validator
	config    *config.Config
	logger    *zap.SugaredLogger

	// Per-IP rate limiting with automatic cleanup
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex

	stopCh chan struct{}
}

// NewAPI creates a new API instance
func NewAPI(store storage.DatasetStorageInterface, cache *core.DatasetCache, redisCache *core.RedisCache,
	issuer *csrf.Issuer, validator *csrf.Validator, hub *Hub,
	cfg *config.Config, logger *zap.SugaredLogger) *API {
	api := &API{
		router:       mux.NewRouter(),
		storage:      store,
		cache:        cache,
		redis:        redisCache,
		hub:          hub,
		issuer:       issuer,
		validator:    validator,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}

	api.setupRoutes()

	// Start cleanup goroutine for stale rate limiter entries
	go api.cleanupRateLimiters()

	return api
}

// setupRoutes configures API routes
func (a *API) setupRoutes() {
	// Middleware order matters: recovery wraps everything, tracing assigns
	// request IDs before any handler can log, host and origin checks run
	// before rate limiting so rejected requests stay cheap, and CSRF runs
	// last so its 403s carry security and CORS headers.
	a.router.Use(a.errorRecoveryMiddleware)
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.securityHeadersMiddleware)
	a.router.Use(a.trustedHostMiddleware)
	a.router.Use(a.corsMiddleware)
	a.router.Use(a.rateLimitMiddleware)
	a.router.Use(a.csrfProtectionMiddleware)

	// Service endpoints
	a.router.HandleFunc("/", a.handleRoot).Methods("GET")
	a.router.HandleFunc("/health", a.handleHealth).Methods("GET")
	a.router.HandleFunc("/csrf-token", a.handleCSRFToken).Methods("GET")

	// Simple data records
	a.router.HandleFunc("/data/", a.handleListRecords).Methods("GET")
	a.router.HandleFunc("/data/", a.handleCreateRecord).Methods("POST")
	a.router.HandleFunc("/data/{item_id}", a.handleGetRecord).Methods("GET")
	a.router.HandleFunc("/data/{item_id}", a.handleUpdateRecord).Methods("PUT")
	a.router.HandleFunc("/data/{item_id}", a.handleDeleteRecord).Methods("DELETE")

	// Plotly chart documents
	a.router.HandleFunc("/plotly/", a.handleListCharts).Methods("GET")
	a.router.HandleFunc("/plotly/", a.handleCreateChart).Methods("POST")
	a.router.HandleFunc("/plotly/{item_id}", a.handleGetChart).Methods("GET")
	a.router.HandleFunc("/plotly/{item_id}", a.handleUpdateChart).Methods("PUT")
	a.router.HandleFunc("/plotly/{item_id}", a.handleDeleteChart).Methods("DELETE")

	// Websocket change feed
	a.router.HandleFunc("/ws", a.handleWebSocket).Methods("GET")

	// Observability and docs
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	a.router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler).Methods("GET")

	// Preflight requests must match a route for the middleware chain to run;
	// corsMiddleware answers them before this handler is reached.
	a.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// Start starts the API server
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.logger.Infow("Starting API server", "addr", addr)
	return a.server.ListenAndServe()
}

// StartTLS starts the API server with TLS
func (a *API) StartTLS(addr, certFile, keyFile string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.logger.Infow("Starting API server with TLS", "addr", addr)
	return a.server.ListenAndServeTLS(certFile, keyFile)
}

// Stop gracefully stops the API server
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)

	if a.server == nil {
		return nil
	}

	a.logger.Info("Stopping API server")
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

// Router returns the configured router, primarily for tests
func (a *API) Router() *mux.Router {
	return a.router
}
