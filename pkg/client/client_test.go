package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-biotracker/pkg/cloud"
	"github.com/teslashibe/go-biotracker/pkg/hub"
	"github.com/teslashibe/go-biotracker/pkg/protocol"
	"github.com/teslashibe/go-biotracker/pkg/relay"
)

// startRelay serves the requested transports on port and returns the base URL.
func startRelay(t *testing.T, port int, withWS, withRooms bool) (*relay.Engine, string) {
	t.Helper()
	engine := relay.New()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	if withWS {
		cloud.NewHub(engine, nil).RegisterRoutes(app)
	}
	if withRooms {
		rooms := hub.New("rooms", engine, nil)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go rooms.Run(ctx)
		rooms.RegisterRoutes(app)
	}

	go app.Listen(fmt.Sprintf(":%d", port))
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	return engine, fmt.Sprintf("http://localhost:%d", port)
}

func fastRetry() Option {
	return WithRetry(1, 10*time.Millisecond, 20*time.Millisecond)
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base, path, id string
		want           string
		wantErr        bool
	}{
		{"ws://relay:8080", PathWebSocket, "", "ws://relay:8080/ws", false},
		{"http://relay:8080/", PathRooms, "m1", "ws://relay:8080/rooms/m1", false},
		{"https://relay.example", PathWebSocket, "", "wss://relay.example/ws", false},
		{"ftp://relay", PathWebSocket, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.base+tt.path, func(t *testing.T) {
			got, err := endpointURL(tt.base, tt.path, tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialUnavailable(t *testing.T) {
	start := time.Now()
	_, err := Dial(context.Background(), "ws://localhost:18109", fastRetry(), WithDialTimeout(200*time.Millisecond))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dial(ctx, "ws://localhost:18109", fastRetry())
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}

func TestDialFallsBackToRooms(t *testing.T) {
	engine, base := startRelay(t, 18100, false, true)

	c, err := Dial(context.Background(), base, WithID("m1"), fastRetry())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, PathRooms, c.Transport())
	require.Eventually(t, func() bool { return engine.Count() == 1 }, time.Second, 10*time.Millisecond)
	info, ok := engine.Endpoint("m1")
	require.True(t, ok)
	assert.Equal(t, relay.TransportRooms, info.Transport)
}

func TestSendRequiresPeer(t *testing.T) {
	_, base := startRelay(t, 18101, true, false)

	c, err := Dial(context.Background(), base, fastRetry())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, PathWebSocket, c.Transport())
	assert.ErrorIs(t, c.SendTracking(context.Background(), protocol.TrackingData{}), ErrNotPaired)
	assert.ErrorIs(t, c.SendBiofeedback(context.Background(), protocol.Feedback{}), ErrNotPaired)
}

func TestPairAndStream(t *testing.T) {
	_, base := startRelay(t, 18102, true, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	laptop, err := Dial(ctx, base, WithRole(protocol.RoleLaptop), fastRetry())
	require.NoError(t, err)
	mobile, err := Dial(ctx, base, WithRole(protocol.RoleMobile), fastRetry())
	require.NoError(t, err)

	mobileRoster := make(chan []string, 1)
	paired := make(chan string, 2)
	tracking := make(chan protocol.TrackingData, 1)
	feedback := make(chan protocol.Feedback, 1)

	go laptop.Run(ctx, Handlers{
		OnPairRequest: func(source string) {
			laptop.AcceptPairing(ctx, source)
		},
		OnPaired:   func(peer string) { paired <- peer },
		OnTracking: func(_ string, d protocol.TrackingData) { tracking <- d },
	})
	go mobile.Run(ctx, Handlers{
		OnRoster:      func(ids []string) { mobileRoster <- ids },
		OnPaired:      func(peer string) { paired <- peer },
		OnBiofeedback: func(_ string, f protocol.Feedback) { feedback <- f },
	})

	var laptops []string
	select {
	case laptops = <-mobileRoster:
	case <-ctx.Done():
		t.Fatal("no roster")
	}
	require.Len(t, laptops, 1)
	require.NoError(t, mobile.RequestPairing(ctx, laptops[0]))

	for i := 0; i < 2; i++ {
		select {
		case <-paired:
		case <-ctx.Done():
			t.Fatal("pairing not confirmed")
		}
	}
	peer, ok := mobile.Peer()
	require.True(t, ok)
	assert.Equal(t, laptops[0], peer)
	assert.Equal(t, laptops[0], laptop.ID())

	require.NoError(t, mobile.SendTracking(ctx, protocol.TrackingData{BlinkRate: 18, FaceDetected: true, Timestamp: 7}))
	select {
	case d := <-tracking:
		assert.Equal(t, 18.0, d.BlinkRate)
		assert.EqualValues(t, 7, d.Timestamp)
	case <-ctx.Done():
		t.Fatal("tracking not delivered")
	}

	require.NoError(t, laptop.SendBiofeedback(ctx, protocol.Feedback{Type: protocol.FeedbackBreathing, Message: "slow", Timestamp: 1}))
	select {
	case f := <-feedback:
		assert.Equal(t, protocol.FeedbackBreathing, f.Type)
	case <-ctx.Done():
		t.Fatal("biofeedback not delivered")
	}
}
