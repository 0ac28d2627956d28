package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// handleStatus returns the current state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

// handleEvents returns recent events
func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.Events())
}

// handleStatusWS streams state updates, starting with the current state
func (s *Server) handleStatusWS(c *websocket.Conn) {
	sub := s.statusSubs.subscribe()
	defer s.statusSubs.unsubscribe(sub)

	if err := c.WriteJSON(s.State()); err != nil {
		return
	}
	stream(c, sub)
}

// handleEventsWS streams events, starting with the backlog
func (s *Server) handleEventsWS(c *websocket.Conn) {
	sub := s.eventSubs.subscribe()
	defer s.eventSubs.unsubscribe(sub)

	for _, e := range s.Events() {
		if err := c.WriteJSON(e); err != nil {
			return
		}
	}
	stream(c, sub)
}

// stream writes queued payloads until the client goes away.
func stream(c *websocket.Conn, sub <-chan []byte) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case data := <-sub:
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
