package api

// Shared test helper functions for API testing.
// Used across the handler, middleware, and security test files.

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"plotvault/config"
	"plotvault/core"
	"plotvault/csrf"
	"plotvault/storage"
)

// newTestConfig returns a configuration suitable for handler tests:
// permissive hosts, a known origin, and rate limits high enough that
// tests never trip them.
func newTestConfig() *config.Config {
	cfg := &config.Config{}

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000
	cfg.Server.TLS = false

	cfg.API.Version = "1.0.0"
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.API.TrustedHosts = []string{"*"}
	cfg.API.TrustProxy = false
	cfg.API.JSONBodyLimit = 1 << 20
	cfg.API.RateLimit.Requests = 100000
	cfg.API.RateLimit.Window = time.Minute
	cfg.API.RateLimit.Burst = 100000

	cfg.Cache.LRUSize = 64
	cfg.Redis.CacheTTL = time.Minute

	return cfg
}

// newTestAPI builds an API over the given storage with an in-memory CSRF
// registry, no Redis, and no WebSocket hub. The returned API is fully routed
// and ready for httptest traffic.
func newTestAPI(t *testing.T, store storage.DatasetStorageInterface) *API {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	cfg := newTestConfig()

	cache, err := core.NewDatasetCache(cfg.Cache.LRUSize)
	require.NoError(t, err, "Failed to create dataset cache")

	registry := csrf.NewMemoryRegistry()
	opts := csrf.DefaultOptions()
	issuer := csrf.NewIssuer(registry, opts, logger)
	validator := csrf.NewValidator(registry, opts, logger)

	api := NewAPI(store, cache, nil, issuer, validator, nil, cfg, logger)
	t.Cleanup(func() {
		_ = api.Stop(context.Background())
	})
	return api
}

// newTestAPIWithHub is newTestAPI plus a running WebSocket hub, for tests that
// exercise the /ws endpoint or event broadcasting.
func newTestAPIWithHub(t *testing.T, store storage.DatasetStorageInterface) *API {
	t.Helper()

	api := newTestAPI(t, store)
	hub := NewHub(api.logger, context.Background())
	go hub.Start()
	t.Cleanup(hub.Stop)
	api.hub = hub
	return api
}

// issueCSRFToken issues a token through the API's issuer and returns it.
func issueCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	token, err := api.issuer.Issue(context.Background())
	require.NoError(t, err, "Failed to issue CSRF token")
	return token
}

// addCSRFToken decorates a mutating request with a freshly issued token in
// both the cookie and the header, mirroring what a browser client does after
// calling /csrf-token.
func addCSRFToken(t *testing.T, api *API, req *http.Request) {
	t.Helper()
	token := issueCSRFToken(t, api)
	opts := api.validator.Options()
	req.AddCookie(&http.Cookie{Name: opts.CookieName, Value: token})
	req.Header.Set(opts.HeaderName, token)
}

// doRequest routes a request through the full middleware chain and returns the
// recorder. A non-nil body is JSON-encoded; withCSRF attaches a valid token
// pair so the request clears CSRF protection.
func doRequest(t *testing.T, api *API, method, target string, body interface{}, withCSRF bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err, "Failed to encode request body")
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withCSRF {
		addCSRFToken(t, api, req)
	}

	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	return rec
}

// decodeResponse unmarshals the recorder body into dst.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst),
		"Response body should be valid JSON: %s", rec.Body.String())
}
