// Package ws pushes alerts and annotated frames to browsers over
// WebSockets.
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// AlertsTopic carries every alert from every camera.
	AlertsTopic = "alerts"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

// FramesTopic is the topic carrying frames of one camera.
func FramesTopic(cameraID string) string {
	return "frames/" + cameraID
}

// client owns its connection's write side. Only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub manages WebSocket connections grouped by topic.
type Hub struct {
	// clients maps topic -> set of connections
	clients map[string]map[*client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger.With("component", "ws"),
	}
}

// register adds conn to topic and starts its writer.
func (h *Hub) register(topic string, conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*client]struct{})
	}
	h.clients[topic][c] = struct{}{}
	total := len(h.clients[topic])
	h.mu.Unlock()

	h.logger.Debug("client registered", "topic", topic, "total", total)
	go h.writePump(c)
	return c
}

// unregister removes c from topic and stops its writer.
func (h *Hub) unregister(topic string, c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[topic]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, topic)
		}
	}
	h.mu.Unlock()

	c.close()
	h.logger.Debug("client unregistered", "topic", topic)
}

// HasClients returns true if anyone is subscribed to topic.
func (h *Hub) HasClients(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic]) > 0
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// Broadcast queues message for every client of topic. A client whose
// queue is full misses the message rather than stalling the caller.
func (h *Hub) Broadcast(topic string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[topic] {
		select {
		case c.send <- message:
		default:
			h.logger.Debug("client lagging, message dropped", "topic", topic)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("write failed", "error", err)
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
