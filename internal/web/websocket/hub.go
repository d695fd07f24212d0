// Package websocket streams store changes of the fixture API to connected clients.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512

	// Outbound messages buffered per client before it is dropped
	sendBuffer = 64
)

// Change actions
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// Change describes one store mutation
type Change struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

// Hub maintains the set of connected clients and fans changes out to them
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and streams changes until the peer goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error status
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn)
	if !h.register(c) {
		c.close()
		return
	}
	h.logger.Debug("websocket client connected", zap.Int("clients", h.Len()))

	go c.writePump()
	c.readPump()

	h.unregister(c)
	h.logger.Debug("websocket client disconnected", zap.Int("clients", h.Len()))
}

// Publish sends change to every connected client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Publish(change Change) {
	data, err := json.Marshal(change)
	if err != nil {
		h.logger.Error("failed to encode change", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client")
		h.unregister(c)
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}
