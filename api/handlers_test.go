package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plotvault/storage"
)

func TestHandleRoot(t *testing.T) {
	api := newTestAPI(t, storage.NewMockDatasetStorage())

	rec := doRequest(t, api, "GET", "/", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	decodeResponse(t, rec, &body)
	assert.Equal(t, "PlotVault API", body["message"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.Equal(t, "/swagger/index.html", body["docs_url"])
	assert.Equal(t, "/health", body["health_check"])
}

func TestHandleHealth_Healthy(t *testing.T) {
	api := newTestAPI(t, storage.NewMockDatasetStorage())

	rec := doRequest(t, api, "GET", "/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decodeResponse(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.NotEmpty(t, body["timestamp"], "Health response should carry a timestamp")
}

func TestHandleHealth_DatabaseDown(t *testing.T) {
	store := storage.NewMockDatasetStorage()
	store.HealthCheckFunc = func(ctx context.Context) error {
		return errors.New("connection refused")
	}
	api := newTestAPI(t, store)

	rec := doRequest(t, api, "GET", "/health", nil, false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	decodeResponse(t, rec, &body)
	assert.Equal(t, "Database connection failed", body["detail"])
}
