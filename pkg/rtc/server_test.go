package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-biotracker/pkg/protocol"
	"github.com/teslashibe/go-biotracker/pkg/relay"
)

func TestHandleOfferRejectsGarbage(t *testing.T) {
	s := NewServer(relay.New(), WithICEServers())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"answer instead of offer", `{"type":"answer","sdp":"v=0"}`},
		{"empty sdp", `{"type":"offer","sdp":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.HandleOffer(context.Background(), []byte(tt.body))
			if !errors.Is(err, ErrBadOffer) {
				t.Errorf("HandleOffer() error = %v, want ErrBadOffer", err)
			}
		})
	}
	if s.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", s.PeerCount())
	}
}

func TestOfferRoute(t *testing.T) {
	s := NewServer(relay.New(), WithICEServers())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s.RegisterRoutes(app)

	req := httptest.NewRequest("POST", "/rtc/offer", strings.NewReader(`{"type":"offer"}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestMaxPeers(t *testing.T) {
	s := NewServer(relay.New(), WithMaxPeers(1), WithICEServers())
	s.peers["busy"] = &Peer{id: "busy"}

	_, err := s.HandleOffer(context.Background(), []byte(`{"type":"offer","sdp":"v=0"}`))
	if !errors.Is(err, ErrTooManyPeers) {
		t.Errorf("HandleOffer() error = %v, want ErrTooManyPeers", err)
	}
}

func TestWaitGather(t *testing.T) {
	done := make(chan struct{})
	close(done)
	if err := waitGather(context.Background(), done, time.Second); err != nil {
		t.Errorf("completed gather: error = %v, want nil", err)
	}

	stalled := make(chan struct{})
	start := time.Now()
	if err := waitGather(context.Background(), stalled, 50*time.Millisecond); !errors.Is(err, ErrGatherTimeout) {
		t.Errorf("stalled gather: error = %v, want ErrGatherTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stalled gather took %v", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitGather(ctx, stalled, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled gather: error = %v, want context.Canceled", err)
	}
}

func TestPeerSendBeforeOpen(t *testing.T) {
	p := &Peer{id: "x"}
	if err := p.Send([]byte("{}")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Send() error = %v, want ErrChannelClosed", err)
	}
}

func TestDataChannelLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC loopback in short mode")
	}

	engine := relay.New()
	s := NewServer(engine, WithICEServers())
	defer s.Close()

	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer client.Close()

	dc, err := client.CreateDataChannel("relay", nil)
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}

	received := make(chan protocol.Message, 8)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if m, err := protocol.Decode(msg.Data); err == nil {
			received <- m
		}
	})
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	gather := webrtc.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	<-gather

	offerJSON, _ := json.Marshal(client.LocalDescription())
	answerJSON, err := s.HandleOffer(context.Background(), offerJSON)
	if err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(answerJSON, &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if err := client.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Skip("data channel did not open; no usable network interface")
	}

	// The server attaches on its own open callback; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for engine.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	data, _ := protocol.Encode(protocol.Register{DeviceType: protocol.RoleLaptop})
	if err := dc.SendText(string(data)); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case m := <-received:
		reg, ok := m.(protocol.Registered)
		if !ok {
			t.Fatalf("first message = %T, want Registered", m)
		}
		info, ok := engine.Endpoint(reg.ID)
		if !ok || info.Transport != relay.TransportWebRTC {
			t.Errorf("endpoint info = %+v, want webrtc transport", info)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no registered message over data channel")
	}
}
