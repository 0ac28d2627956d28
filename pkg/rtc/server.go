// Package rtc carries relay traffic over WebRTC data channels. Browsers
// negotiate with POST /rtc/offer and each opened data channel becomes one
// relay endpoint.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-biotracker/pkg/relay"
)

var (
	// ErrBadOffer is returned for an offer that is not a valid SDP offer.
	ErrBadOffer = errors.New("rtc: invalid offer")

	// ErrTooManyPeers is returned when MaxPeers connections are open.
	ErrTooManyPeers = errors.New("rtc: maximum peers reached")

	// ErrChannelClosed is returned when sending before the channel opens.
	ErrChannelClosed = errors.New("rtc: data channel not open")

	// ErrGatherTimeout is returned when ICE gathering does not finish in
	// time.
	ErrGatherTimeout = errors.New("rtc: ice gathering timed out")
)

// Config configures a Server.
type Config struct {
	ICEServers    []string
	MaxPeers      int
	GatherTimeout time.Duration // bound on ICE gathering per offer
	Logger        *slog.Logger
}

// Option is a functional option for Server.
type Option func(*Config)

// WithICEServers replaces the STUN/TURN server list. No servers means host
// candidates only.
func WithICEServers(urls ...string) Option {
	return func(c *Config) {
		c.ICEServers = urls
	}
}

// WithMaxPeers limits concurrent peer connections.
func WithMaxPeers(n int) Option {
	return func(c *Config) {
		c.MaxPeers = n
	}
}

// WithGatherTimeout bounds how long an offer waits for ICE gathering.
func WithGatherTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.GatherTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns defaults with a public STUN server.
func DefaultConfig() *Config {
	return &Config{
		ICEServers:    []string{"stun:stun.l.google.com:19302"},
		MaxPeers:      64,
		GatherTimeout: 10 * time.Second,
		Logger:        slog.Default(),
	}
}

// Peer is one WebRTC connection and its data channel.
type Peer struct {
	id string
	pc *webrtc.PeerConnection

	mu sync.Mutex
	dc *webrtc.DataChannel
}

// Send writes one text message on the data channel.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelClosed
	}
	return dc.SendText(string(data))
}

// Server answers offers and bridges data channels into a relay engine.
type Server struct {
	engine *relay.Engine
	api    *webrtc.API
	config webrtc.Configuration
	max    int
	gather time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	peers map[string]*Peer
}

// NewServer creates a signaling server in front of engine.
func NewServer(engine *relay.Engine, opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, url := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(2 * time.Second)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	return &Server{
		engine: engine,
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine)),
		config: webrtc.Configuration{ICEServers: iceServers},
		max:    cfg.MaxPeers,
		gather: cfg.GatherTimeout,
		logger: cfg.Logger.With("component", "rtc"),
		peers:  make(map[string]*Peer),
	}
}

// HandleOffer answers a JSON-encoded SDP offer. ICE gathering completes
// before the answer is returned, so no trickle signaling is needed. The wait
// ends early when ctx is done or the gather timeout passes.
func (s *Server) HandleOffer(ctx context.Context, offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadOffer, err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, fmt.Errorf("%w: type %q", ErrBadOffer, offer.Type)
	}

	s.mu.Lock()
	full := s.max > 0 && len(s.peers) >= s.max
	s.mu.Unlock()
	if full {
		return nil, ErrTooManyPeers
	}

	pc, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("rtc: create peer connection: %w", err)
	}

	peer := &Peer{id: uuid.NewString(), pc: pc}
	s.mu.Lock()
	s.peers[peer.id] = peer
	s.mu.Unlock()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		peer.mu.Lock()
		if peer.dc != nil {
			peer.mu.Unlock()
			s.logger.Warn("ignoring extra data channel", "id", peer.id, "label", dc.Label())
			return
		}
		peer.dc = dc
		peer.mu.Unlock()

		dc.OnOpen(func() {
			if _, err := s.engine.Attach(peer.id, peer, relay.TransportWebRTC); err != nil {
				s.logger.Warn("attach failed", "id", peer.id, "error", err)
				s.remove(peer.id)
			}
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			s.engine.Handle(peer.id, msg.Data)
		})
		dc.OnClose(func() {
			s.remove(peer.id)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("connection state", "id", peer.id, "state", state.String())
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			s.remove(peer.id)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		s.remove(peer.id)
		return nil, fmt.Errorf("%w: %v", ErrBadOffer, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.remove(peer.id)
		return nil, fmt.Errorf("rtc: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		s.remove(peer.id)
		return nil, fmt.Errorf("rtc: set local description: %w", err)
	}
	if err := waitGather(ctx, gatherComplete, s.gather); err != nil {
		s.remove(peer.id)
		return nil, err
	}

	local := pc.LocalDescription()
	if local == nil {
		s.remove(peer.id)
		return nil, errors.New("rtc: no local description")
	}

	s.logger.Info("peer negotiated", "id", peer.id)
	return json.Marshal(local)
}

func waitGather(ctx context.Context, done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConfig().GatherTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrGatherTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remove closes a peer and detaches it from the engine. Safe to call more
// than once.
func (s *Server) remove(id string) {
	s.mu.Lock()
	peer, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.engine.Disconnect(id)
	if err := peer.pc.Close(); err != nil {
		s.logger.Debug("close peer", "id", id, "error", err)
	}
	s.logger.Info("peer removed", "id", id)
}

// PeerCount returns the number of open peer connections.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close tears down every peer.
func (s *Server) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.remove(id)
	}
}

// RegisterRoutes registers the signaling endpoint.
func (s *Server) RegisterRoutes(app fiber.Router) {
	app.Post("/rtc/offer", func(c *fiber.Ctx) error {
		answer, err := s.HandleOffer(c.UserContext(), c.Body())
		switch {
		case errors.Is(err, ErrBadOffer):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrTooManyPeers), errors.Is(err, ErrGatherTimeout):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(answer)
	})
}
