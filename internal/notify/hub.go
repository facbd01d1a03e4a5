package notify

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/obs"
)

const (
	registerPrefix = "register:"
	registerWait   = 10 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 16
)

// Hub maps buyer ids to live websocket connections. A client registers by
// sending "register:<buyerID>" as its first frame; pushes to unregistered
// buyers are dropped.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*client
}

type client struct {
	buyerID string
	conn    *websocket.Conn
	send    chan string
	done    chan struct{}
}

// NewHub creates a Hub with no connections.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Logger.Error("ws_upgrade_failed", "error", err)
		return
	}
	go h.serve(conn)
}

func (h *Hub) serve(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(registerWait))
	_, raw, err := conn.ReadMessage()
	if err != nil || !strings.HasPrefix(string(raw), registerPrefix) {
		obs.Logger.Warn("ws_registration_failed", "remote", conn.RemoteAddr().String())
		_ = conn.Close()
		return
	}
	buyerID := strings.TrimPrefix(string(raw), registerPrefix)
	if buyerID == "" {
		_ = conn.Close()
		return
	}

	c := &client{
		buyerID: buyerID,
		conn:    conn,
		send:    make(chan string, sendBuffer),
		done:    make(chan struct{}),
	}
	h.register(c)
	obs.Logger.Info("buyer_registered", "buyer_id", buyerID, "remote", conn.RemoteAddr().String())

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, []byte("registered"))

	go c.writePump()
	c.readPump(h)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	// A reconnect replaces the previous connection for the same buyer.
	if prev, ok := h.conns[c.buyerID]; ok {
		close(prev.done)
		_ = prev.conn.Close()
	}
	h.conns[c.buyerID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if cur, ok := h.conns[c.buyerID]; ok && cur == c {
		delete(h.conns, c.buyerID)
		close(c.done)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	obs.Logger.Info("buyer_unregistered", "buyer_id", c.buyerID)
}

// readPump discards inbound frames and tears the client down on read error.
func (c *client) readPump(h *Hub) {
	defer h.unregister(c)
	_ = c.conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case text := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				obs.Logger.Warn("ws_write_failed", "buyer_id", c.buyerID, "error", err)
				return
			}
		}
	}
}

// Send pushes text to the buyer's connection. Returns false when no live
// connection exists or the client's buffer is full; the message is dropped
// either way.
func (h *Hub) Send(buyerID, text string) bool {
	h.mu.RLock()
	c, ok := h.conns[buyerID]
	h.mu.RUnlock()
	if !ok {
		obs.Logger.Warn("notify_dropped_no_connection", "buyer_id", buyerID)
		return false
	}
	select {
	case c.send <- text:
		obs.Logger.Info("notify_sent", "buyer_id", buyerID, "text", text)
		return true
	default:
		obs.Logger.Warn("notify_dropped_backpressure", "buyer_id", buyerID)
		return false
	}
}

// Connected reports whether the buyer currently has a live connection.
func (h *Hub) Connected(buyerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[buyerID]
	return ok
}

// Close drops every live connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		close(c.done)
		_ = c.conn.Close()
		delete(h.conns, id)
	}
}
