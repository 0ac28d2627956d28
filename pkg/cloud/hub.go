// Package cloud provides the primary WebSocket transport for the relay.
package cloud

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-biotracker/pkg/relay"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Connection is one device connected over /ws.
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	hub *Hub
	mu  sync.Mutex
}

// Send writes one text frame. Writes are serialized per connection.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.hub.messagesSent.Add(1)
	return nil
}

// Hub accepts device WebSocket connections and feeds them to a relay engine.
type Hub struct {
	engine *relay.Engine
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	rejected         atomic.Uint64
}

// NewHub creates a hub in front of engine.
func NewHub(engine *relay.Engine, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		engine: engine,
		logger: logger.With("component", "cloud"),
		conns:  make(map[string]*Connection),
	}
}

// RegisterRoutes registers the WebSocket routes. A client may pick its own
// id with /ws/:id; plain /ws gets a generated one.
func (h *Hub) RegisterRoutes(app fiber.Router) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(h.handleDevice))
	app.Get("/ws/:id", websocket.New(h.handleDevice))
}

// handleDevice handles one device WebSocket connection
func (h *Hub) handleDevice(c *websocket.Conn) {
	conn := &Connection{
		Conn:      c,
		Connected: time.Now(),
		hub:       h,
	}

	id, err := h.engine.Attach(c.Params("id"), conn, relay.TransportWebSocket)
	if err != nil {
		h.rejected.Add(1)
		h.logger.Warn("rejecting connection", "id", c.Params("id"), "error", err)
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	conn.ID = id

	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()

	defer func() {
		h.engine.Disconnect(id)
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
	}()

	c.SetReadLimit(maxMessageSize)

	// Read loop
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", "id", id, "error", err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		h.messagesReceived.Add(1)
		h.engine.Handle(id, data)
	}
}

// Connection returns a live connection by id.
func (h *Hub) Connection(id string) *Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id]
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats contains transport statistics.
type Stats struct {
	Connections      int    `json:"connections"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns transport statistics.
func (h *Hub) GetStats() Stats {
	return Stats{
		Connections:      h.Count(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Rejected:         h.rejected.Load(),
	}
}

// RegisterAPIRoutes registers transport introspection routes.
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/ws/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
