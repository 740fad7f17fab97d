package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"plotvault/metrics"
)

// WebSocket configuration constants
const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 512

	// Channel buffer sizes for non-blocking sends
	sendChannelSize = 256
)

// Dataset event types broadcast over the WebSocket endpoint.
const (
	EventDatasetCreated = "dataset:created"
	EventDatasetUpdated = "dataset:updated"
	EventDatasetDeleted = "dataset:deleted"
)

// WebSocketMessage represents a dataset change event sent to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	ItemID    int         `json:"item_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// client represents a single WebSocket client connection.
// Each client runs in its own goroutines for read/write operations.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	// Registered clients
	clients map[*client]bool

	// Outbound messages for all clients
	broadcast chan []byte

	// Register requests from clients
	register chan *client

	// Unregister requests from clients
	unregister chan *client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Logger for diagnostics
	logger *zap.SugaredLogger

	// Context for graceful shutdown
	ctx context.Context

	// Cancel function to trigger graceful shutdown
	cancel context.CancelFunc

	// Done channel signals hub shutdown completion
	done chan struct{}
}

// upgrader configures WebSocket connection upgrades.
// SECURITY: CORS check is disabled here because corsMiddleware already handles it.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin is already validated by corsMiddleware; checking again here
		// would duplicate the policy in two places.
		return true
	},
}

// NewHub creates a new WebSocket hub. The hub must be started with Start()
// before use; it creates its own cancellable context from the parent so
// Stop() works even when the parent never cancels.
func NewHub(logger *zap.SugaredLogger, ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start runs the WebSocket hub's main event loop.
// GOROUTINE SAFETY: Must be called exactly once per Hub instance.
func (h *Hub) Start() {
	defer close(h.done)

	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			// Graceful shutdown: close all client connections
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			h.logger.Debugw("WebSocket client registered",
				"total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				total := len(h.clients)
				h.mu.Unlock()
				metrics.WebSocketClients.Set(float64(total))
				h.logger.Debugw("WebSocket client unregistered",
					"total_clients", total)
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			// Broadcast message to all connected clients
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
					// Message queued successfully
				default:
					// Client's send buffer is full, disconnect it
					// so one slow client cannot block broadcasts.
					go func(disconnectClient *client) {
						select {
						case h.unregister <- disconnectClient:
						case <-h.ctx.Done():
						}
						disconnectClient.conn.Close()
					}(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastDatasetEvent sends a dataset change event to all connected clients.
// Safe to call on a nil hub (WebSocket support disabled), and non-blocking:
// a saturated broadcast channel drops the event rather than stalling the
// mutation that triggered it.
func (h *Hub) BroadcastDatasetEvent(eventType string, itemID int) {
	if h == nil {
		return
	}

	msg := WebSocketMessage{
		Type:      eventType,
		ItemID:    itemID,
		Timestamp: time.Now().UTC(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message",
			"type", eventType,
			"item_id", itemID,
			"error", err)
		return
	}

	select {
	case h.broadcast <- jsonData:
		h.logger.Debugw("WebSocket message broadcast",
			"type", eventType,
			"item_id", itemID,
			"clients", h.ClientCount())
	case <-time.After(1 * time.Second):
		h.logger.Warnw("WebSocket broadcast timeout",
			"type", eventType,
			"item_id", itemID)
	}
}

// ClientCount returns the number of connected WebSocket clients.
// Thread-safe for concurrent access.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop gracefully shuts down the hub and waits for cleanup to complete.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// readPump pumps messages from the WebSocket connection to the hub.
// GOROUTINE SAFETY: Runs in its own goroutine per client.
func (c *client) readPump() {
	defer func() {
		// The hub stops consuming unregister once shut down
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// We don't expect messages from clients, just read to detect disconnection
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket unexpected close", "error", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// GOROUTINE SAFETY: Runs in its own goroutine per client.
// Implements ping/pong heartbeat for connection health monitoring.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket godoc
// @Summary Subscribe to dataset change events
// @Description Upgrades the connection to a WebSocket that streams dataset created/updated/deleted events
// @Tags events
// @Router /ws [get]
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeDetail(w, http.StatusServiceUnavailable, "WebSocket support is disabled", a.logger)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Errorw("WebSocket upgrade failed",
			"error", err,
			"client_ip", getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks))
		return
	}

	client := &client{
		hub:  a.hub,
		conn: conn,
		send: make(chan []byte, sendChannelSize),
	}
	client.hub.register <- client

	// Both goroutines terminate when the connection closes.
	go client.writePump()
	go client.readPump()
}
