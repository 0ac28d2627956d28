// Package client connects a device to the relay. It dials the primary
// WebSocket transport with bounded retries and falls back to the rooms
// transport when the primary one is unavailable.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-biotracker/pkg/protocol"
)

// Relay paths, tried in order.
const (
	PathWebSocket = "/ws"
	PathRooms     = "/rooms"
)

const writeWait = 10 * time.Second

var (
	// ErrUnavailable is returned when no transport could be dialed.
	ErrUnavailable = errors.New("client: relay unavailable")

	// ErrNotPaired is returned when sending data without a peer.
	ErrNotPaired = errors.New("client: not paired")
)

// Handlers receives relay events. Nil handlers are skipped.
type Handlers struct {
	OnRegistered       func(id string, role protocol.Role)
	OnRoster           func(ids []string)
	OnPeerConnected    func(id string)
	OnPeerDisconnected func(id string)
	OnPairRequest      func(sourceID string)
	OnPaired           func(peerID string)
	OnPairRevoked      func(peerID string)
	OnTracking         func(sourceID string, d protocol.TrackingData)
	OnHeartRate        func(sourceID string, d protocol.HeartRateData)
	OnEmotion          func(sourceID string, d protocol.EmotionData)
	OnBiofeedback      func(sourceID string, f protocol.Feedback)
	OnPong             func(ts int64)
}

// Client is one connection to the relay.
type Client struct {
	config    *Config
	conn      *websocket.Conn
	transport string
	logger    *slog.Logger

	writeMu sync.Mutex

	mu   sync.RWMutex
	id   string
	peer string
}

// Dial connects to the relay at baseURL. http and https URLs are mapped to
// ws and wss.
func Dial(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.URL = baseURL
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "client")

	var lastErr error
	for _, path := range []string{PathWebSocket, PathRooms} {
		target, err := endpointURL(cfg.URL, path, cfg.ID)
		if err != nil {
			return nil, err
		}

		conn, err := dialWithRetry(ctx, cfg, target, logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Warn("transport unavailable", "url", target, "error", err)
			continue
		}

		c := &Client{
			config:    cfg,
			conn:      conn,
			transport: path,
			logger:    logger,
			id:        cfg.ID,
		}
		logger.Info("connected", "url", target)

		if cfg.Role != "" {
			if err := c.Register(ctx, cfg.Role); err != nil {
				c.Close()
				return nil, err
			}
		}
		return c, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// dialWithRetry dials with exponential backoff between attempts.
func dialWithRetry(ctx context.Context, cfg *Config, target string, logger *slog.Logger) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Info("retrying dial", "url", target, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay *= 2
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		conn, _, err := dialer.DialContext(ctx, target, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func endpointURL(base, path, id string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path += path
	if id != "" {
		u.Path += "/" + id
	}
	return u.String(), nil
}

// ID returns the endpoint id once known.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Peer returns the paired endpoint, if any.
func (c *Client) Peer() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer, c.peer != ""
}

// Transport returns the relay path in use.
func (c *Client) Transport() string {
	return c.transport
}

// Send writes one message.
func (c *Client) Send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Register announces the device type.
func (c *Client) Register(ctx context.Context, role protocol.Role) error {
	return c.Send(ctx, protocol.Register{DeviceType: role})
}

// RequestPairing asks target to pair.
func (c *Client) RequestPairing(ctx context.Context, target string) error {
	return c.Send(ctx, protocol.PairRequest{TargetID: target})
}

// AcceptPairing accepts a request from requester.
func (c *Client) AcceptPairing(ctx context.Context, requester string) error {
	return c.Send(ctx, protocol.PairAccept{TargetID: requester})
}

// Ping sends a keepalive.
func (c *Client) Ping(ctx context.Context) error {
	return c.Send(ctx, protocol.Ping{})
}

// SendTracking sends a tracking frame to the paired peer.
func (c *Client) SendTracking(ctx context.Context, d protocol.TrackingData) error {
	peer, ok := c.Peer()
	if !ok {
		return ErrNotPaired
	}
	msg, err := protocol.NewEyeTracking(peer, d)
	if err != nil {
		return err
	}
	return c.Send(ctx, msg)
}

// SendHeartRate sends a heart-rate estimate to the paired peer.
func (c *Client) SendHeartRate(ctx context.Context, d protocol.HeartRateData) error {
	peer, ok := c.Peer()
	if !ok {
		return ErrNotPaired
	}
	msg, err := protocol.NewHeartRate(peer, d)
	if err != nil {
		return err
	}
	return c.Send(ctx, msg)
}

// SendEmotion sends an emotion reading to the paired peer.
func (c *Client) SendEmotion(ctx context.Context, d protocol.EmotionData) error {
	peer, ok := c.Peer()
	if !ok {
		return ErrNotPaired
	}
	msg, err := protocol.NewEmotion(peer, d)
	if err != nil {
		return err
	}
	return c.Send(ctx, msg)
}

// SendBiofeedback sends a prompt to the paired peer.
func (c *Client) SendBiofeedback(ctx context.Context, f protocol.Feedback) error {
	peer, ok := c.Peer()
	if !ok {
		return ErrNotPaired
	}
	msg, err := protocol.NewBiofeedback(peer, f)
	if err != nil {
		return err
	}
	return c.Send(ctx, msg)
}

// Run reads messages and dispatches them to h until ctx is done or the
// connection fails. It returns nil when ctx ends the loop.
func (c *Client) Run(ctx context.Context, h Handlers) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	if c.config.PingInterval > 0 {
		go c.keepalive(ctx)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: read: %w", err)
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("ignoring message", "error", err)
			continue
		}
		c.dispatch(msg, h)
	}
}

func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil {
				c.logger.Debug("ping failed", "error", err)
			}
		}
	}
}

func (c *Client) dispatch(msg protocol.Message, h Handlers) {
	switch m := msg.(type) {
	case protocol.Registered:
		c.mu.Lock()
		c.id = m.ID
		c.mu.Unlock()
		if h.OnRegistered != nil {
			h.OnRegistered(m.ID, m.DeviceType)
		}
	case protocol.AvailableLaptops:
		if h.OnRoster != nil {
			h.OnRoster(m.Laptops)
		}
	case protocol.AvailableMobiles:
		if h.OnRoster != nil {
			h.OnRoster(m.Mobiles)
		}
	case protocol.MobileConnected:
		c.peerConnected(m.MobileID, h)
	case protocol.LaptopConnected:
		c.peerConnected(m.LaptopID, h)
	case protocol.MobileDisconnected:
		c.peerGone(m.MobileID, h.OnPeerDisconnected)
	case protocol.LaptopDisconnected:
		c.peerGone(m.LaptopID, h.OnPeerDisconnected)
	case protocol.PairRequest:
		if h.OnPairRequest != nil {
			h.OnPairRequest(m.SourceID)
		}
	case protocol.PairConfirmed:
		c.mu.Lock()
		c.peer = m.SourceID
		c.mu.Unlock()
		if h.OnPaired != nil {
			h.OnPaired(m.SourceID)
		}
	case protocol.PairRevoked:
		c.peerGone(m.SourceID, h.OnPairRevoked)
	case protocol.EyeTrackingUpdate:
		if h.OnTracking != nil {
			h.OnTracking(m.SourceID, m.Data)
		}
	case protocol.HeartRateUpdate:
		if h.OnHeartRate != nil {
			h.OnHeartRate(m.SourceID, m.Data)
		}
	case protocol.EmotionUpdate:
		if h.OnEmotion != nil {
			h.OnEmotion(m.SourceID, m.Data)
		}
	case protocol.BiofeedbackUpdate:
		if h.OnBiofeedback != nil {
			h.OnBiofeedback(m.SourceID, m.Feedback)
		}
	case protocol.Pong:
		if h.OnPong != nil {
			h.OnPong(m.TS)
		}
	default:
		c.logger.Debug("unexpected message", "type", msg.Kind())
	}
}

func (c *Client) peerConnected(id string, h Handlers) {
	if h.OnPeerConnected != nil {
		h.OnPeerConnected(id)
	}
}

// peerGone clears the link when id was the peer and then calls fn.
func (c *Client) peerGone(id string, fn func(string)) {
	c.mu.Lock()
	if c.peer == id {
		c.peer = ""
	}
	c.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
