package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plotvault/storage"
)

func TestHub_StartAndStop(t *testing.T) {
	logger := zap.NewNop().Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(logger, ctx)
	require.NotNil(t, hub)

	go hub.Start()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount(), "Should start with 0 clients")

	// Stop must return once the hub goroutine has cleaned up
	hub.Stop()
}

func TestHub_BroadcastDatasetEvent_NilHub(t *testing.T) {
	var hub *Hub

	// Handlers run with a nil hub when WebSocket support is disabled
	assert.NotPanics(t, func() {
		hub.BroadcastDatasetEvent(EventDatasetDeleted, 7)
	}, "Broadcasting on a nil hub must be a no-op")
}

func TestWebSocket_DeliversDatasetEvents(t *testing.T) {
	api := newTestAPIWithHub(t, storage.NewMockDatasetStorage())

	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Upgrade should succeed through the full middleware chain")
	defer conn.Close()

	require.Eventually(t, func() bool {
		return api.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond, "Dialed client should be registered")

	api.hub.BroadcastDatasetEvent(EventDatasetCreated, 42)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "Client should receive the broadcast")

	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, EventDatasetCreated, msg.Type)
	assert.Equal(t, 42, msg.ItemID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestWebSocket_DisconnectUnregistersClient(t *testing.T) {
	api := newTestAPIWithHub(t, storage.NewMockDatasetStorage())

	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return api.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return api.hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond, "Closed client should be unregistered")
}

func TestHandleWebSocket_DisabledWithoutHub(t *testing.T) {
	api := newTestAPI(t, storage.NewMockDatasetStorage())

	rec := doRequest(t, api, "GET", "/ws", nil, false)

	assert.Equal(t, 503, rec.Code)
	var body map[string]interface{}
	decodeResponse(t, rec, &body)
	assert.Equal(t, "WebSocket support is disabled", body["detail"])
}

func TestWebSocketMessage_Marshaling(t *testing.T) {
	msg := WebSocketMessage{
		Type:      EventDatasetUpdated,
		ItemID:    12,
		Timestamp: time.Now().UTC(),
	}

	jsonData, err := json.Marshal(msg)
	require.NoError(t, err, "Should marshal without error")

	assert.Contains(t, string(jsonData), `"type":"dataset:updated"`)
	assert.Contains(t, string(jsonData), `"item_id":12`)
	assert.Contains(t, string(jsonData), "timestamp")
	assert.NotContains(t, string(jsonData), `"data"`, "Empty data payload should be omitted")
}
