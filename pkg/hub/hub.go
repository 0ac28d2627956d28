package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-biotracker/pkg/relay"
)

// ErrQueueFull is returned when the hub's emit queue is full.
var ErrQueueFull = errors.New("hub: emit queue full")

// Hub maintains the set of active clients and their rooms
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger
	engine *relay.Engine

	// Registered clients and the rooms they joined
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	// Outbound messages
	emit chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for counts (read-only access from outside)
	mu sync.RWMutex

	// Closed when Run returns
	done chan struct{}

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a new Hub feeding engine
func New(name string, engine *relay.Engine, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		engine:     engine,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		emit:       make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called in a goroutine
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.mu.Lock()
		for client := range h.clients {
			h.removeLocked(client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.rooms[client.id] == nil {
				h.rooms[client.id] = make(map[*Client]bool)
			}
			h.rooms[client.id][client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "id", client.id, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "id", client.id, "remaining", count)

		case message := <-h.emit:
			h.mu.Lock()
			targets := h.clients
			if message.Room != "" {
				targets = h.rooms[message.Room]
			}
			for client := range targets {
				select {
				case client.send <- message:
					// Message queued successfully
				default:
					// Client's buffer is full - they're too slow
					h.removeLocked(client)
					h.dropped.Add(1)
					h.logger.Warn("dropped slow client", "id", client.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// removeLocked forgets client and closes its queue. It is a no-op for a
// client that is already gone.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if room := h.rooms[client.id]; room != nil {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.id)
		}
	}
	close(client.send)
}

// Emit queues msg for delivery without blocking.
func (h *Hub) Emit(msg Message) error {
	select {
	case h.emit <- msg:
		return nil
	default:
		h.logger.Warn("emit queue full, dropping message", "room", msg.Room)
		return ErrQueueFull
	}
}

// Broadcast sends pre-encoded JSON to every client
func (h *Hub) Broadcast(data []byte) error {
	return h.Emit(NewJSONMessage("", data))
}

// RegisterRoutes registers the rooms WebSocket routes
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/rooms", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/rooms", websocket.New(h.handleDevice))
	app.Get("/rooms/:id", websocket.New(h.handleDevice))
}

func (h *Hub) handleDevice(conn *websocket.Conn) {
	id := conn.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	client, err := NewClient(h, conn, id)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}
	if _, err := h.engine.Attach(id, client, relay.TransportRooms); err != nil {
		h.logger.Warn("rejecting connection", "id", id, "error", err)
		h.leave(client)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		return
	}
	defer h.engine.Disconnect(id)

	client.Run()
}

// leave unregisters client unless the hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of non-empty rooms
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Dropped returns how many slow clients were dropped
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
