package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 256 * 1024, // 256KB for base64 encoded JPEG frames
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Serve upgrades the request and subscribes the connection to topic until
// the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	h.logger.Info("client connected", "topic", topic, "remote", r.RemoteAddr)
	c := h.register(topic, conn)
	go h.readPump(topic, c)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(topic string, c *client) {
	defer h.unregister(topic, c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", "topic", topic, "error", err)
			}
			return
		}
	}
}
