package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-biotracker/pkg/fusion"
)

func TestStatusAPI(t *testing.T) {
	s := NewServer(":0", nil)
	s.UpdateState(func(st *Status) {
		st.RelayConnected = true
		st.Peer = "m1"
		st.Scores = &fusion.Scores{Stress: 42, StressLevel: fusion.Moderate}
	})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var got Status
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.True(t, got.RelayConnected)
	assert.Equal(t, "m1", got.Peer)
	require.NotNil(t, got.Scores)
	assert.Equal(t, 42, got.Scores.Stress)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestEventLogBounded(t *testing.T) {
	s := NewServer(":0", nil)
	for i := 0; i < maxEvents+5; i++ {
		s.AddEvent("info", "tick")
	}
	s.AddEvent("biofeedback", "breathe")

	events := s.Events()
	assert.Len(t, events, maxEvents)
	assert.Equal(t, "biofeedback", events[len(events)-1].Type)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/events", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestPlainHTTPOnWebSocketRoute(t *testing.T) {
	s := NewServer(":0", nil)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestStatusWebSocket(t *testing.T) {
	s := NewServer(":18110", nil)
	s.StartAsync()
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18110/ws/status", nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Status
	require.NoError(t, ws.ReadJSON(&first))
	assert.False(t, first.RelayConnected)

	require.Eventually(t, func() bool { return s.statusSubs.count() == 1 }, time.Second, 10*time.Millisecond)
	s.UpdateState(func(st *Status) { st.Peer = "m7" })

	var next Status
	require.NoError(t, ws.ReadJSON(&next))
	assert.Equal(t, "m7", next.Peer)

	ws.Close()
	assert.Eventually(t, func() bool { return s.statusSubs.count() == 0 }, time.Second, 10*time.Millisecond)
}
