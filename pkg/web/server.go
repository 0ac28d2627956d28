// Package web provides the live dashboard of the laptop monitor: the fused
// scores, the latest tracking frame and an event log, over REST and
// WebSocket.
package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-biotracker/pkg/fusion"
	"github.com/teslashibe/go-biotracker/pkg/protocol"
)

const (
	maxEvents       = 500
	subscriberQueue = 16
)

// Status is the current monitor state shown on the dashboard.
type Status struct {
	RelayConnected bool                   `json:"relay_connected"`
	EndpointID     string                 `json:"endpoint_id"`
	Peer           string                 `json:"peer"`
	Scores         *fusion.Scores         `json:"scores,omitempty"`
	Frame          *protocol.TrackingData `json:"frame,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Event is one dashboard log line.
type Event struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, pairing, biofeedback, error
	Message string `json:"message"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	stateMu sync.RWMutex
	state   Status

	eventsMu sync.RWMutex
	events   []Event

	statusSubs *broadcaster
	eventSubs  *broadcaster
}

// NewServer creates a dashboard listening on addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		logger:     logger.With("component", "dashboard"),
		events:     make([]Event, 0, maxEvents),
		statusSubs: newBroadcaster(),
		eventSubs:  newBroadcaster(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "biotracker-monitor",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Warn("dashboard stopped", "error", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// UpdateState applies update and pushes the new state to subscribers.
func (s *Server) UpdateState(update func(*Status)) {
	s.stateMu.Lock()
	update(&s.state)
	s.state.UpdatedAt = time.Now()
	state := s.state
	s.stateMu.Unlock()

	s.statusSubs.publishJSON(state, s.logger)
}

// State returns a copy of the current state.
func (s *Server) State() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// AddEvent appends to the event log and pushes it to subscribers.
func (s *Server) AddEvent(eventType, message string) {
	entry := Event{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}

	s.eventsMu.Lock()
	s.events = append(s.events, entry)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	s.eventSubs.publishJSON(entry, s.logger)
}

// Events returns a copy of the event log.
func (s *Server) Events() []Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	return append([]Event(nil), s.events...)
}

// broadcaster fans payloads out to WebSocket subscribers. A subscriber
// whose queue is full misses the payload.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan []byte]struct{})}
}

func (b *broadcaster) subscribe() chan []byte {
	ch := make(chan []byte, subscriberQueue)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) publishJSON(v any, logger *slog.Logger) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("marshal failed", "error", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
