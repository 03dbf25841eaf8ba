package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 5 * time.Second
	sendBufferSize = 64
)

type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans flow transitions out to the websocket clients. A client that cannot
// keep up is dropped.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			// the API is served to a local UI only
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) Broadcast(kind string, data interface{}) {
	payload, err := json.Marshal(message{Type: kind, Data: data})
	if err != nil {
		log.WithError(err).Error("failed to marshal websocket message")

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Warn("websocket client too slow, dropping")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)
}

// ServeWS upgrades the connection and sends initial, if not nil, before any
// broadcast.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial interface{}) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")

		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	if initial != nil {
		payload, err := json.Marshal(message{Type: "flows", Data: initial})
		if err == nil {
			c.send <- payload
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.WithError(err).Debug("websocket write failed")
			h.remove(c)

			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump only watches for the client going away.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
