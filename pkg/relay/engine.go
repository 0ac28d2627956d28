// Package relay implements the pairing and routing engine shared by every
// transport. Transports attach connections, feed raw frames to Handle and
// call Disconnect when the connection ends.
package relay

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-biotracker/pkg/protocol"
)

// Conn is the write side of one connection.
type Conn interface {
	Send(data []byte) error
}

// Transport names used in endpoint info.
const (
	TransportWebSocket = "websocket"
	TransportRooms     = "rooms"
	TransportWebRTC    = "webrtc"
)

// Config configures an Engine.
type Config struct {
	Logger *slog.Logger
	Clock  func() time.Time
}

// Option is a functional option for Engine.
type Option func(*Config)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClock overrides the time source used for receive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

type endpoint struct {
	id        string
	role      protocol.Role
	transport string
	conn      Conn
	connected time.Time
	lastSeen  time.Time
}

// delivery is a frame queued under the lock and written after it is released.
type delivery struct {
	id   string
	conn Conn
	data []byte
}

// Engine owns the endpoint registry, the role buckets and the pairing links.
// All mutations happen under one mutex. Writes to connections never happen
// while it is held.
type Engine struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
	buckets   map[protocol.Role]map[string]struct{}
	peers     map[string]string

	logger *slog.Logger
	now    func() time.Time

	// Stats
	messagesReceived  atomic.Uint64
	messagesRouted    atomic.Uint64
	messagesDropped   atomic.Uint64
	messagesMalformed atomic.Uint64
	messagesSent      atomic.Uint64
	sendErrors        atomic.Uint64
	pairings          atomic.Uint64
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	cfg := &Config{
		Logger: slog.Default(),
		Clock:  time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		endpoints: make(map[string]*endpoint),
		buckets: map[protocol.Role]map[string]struct{}{
			protocol.RoleMobile: {},
			protocol.RoleLaptop: {},
		},
		peers:  make(map[string]string),
		logger: cfg.Logger.With("component", "relay"),
		now:    cfg.Clock,
	}
}

// Attach adds a connected but unregistered endpoint. An empty id gets a
// fresh UUID. The assigned id is returned.
func (e *Engine) Attach(id string, conn Conn, transport string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now()

	e.mu.Lock()
	if _, ok := e.endpoints[id]; ok {
		e.mu.Unlock()
		return "", ErrDuplicateID
	}
	e.endpoints[id] = &endpoint{
		id:        id,
		transport: transport,
		conn:      conn,
		connected: now,
		lastSeen:  now,
	}
	total := len(e.endpoints)
	e.mu.Unlock()

	e.logger.Info("endpoint connected", "id", id, "transport", transport, "total", total)
	return id, nil
}

// Handle decodes one inbound frame from id and applies it. Malformed and
// unknown messages are logged and ignored.
func (e *Engine) Handle(id string, data []byte) {
	e.messagesReceived.Add(1)

	msg, err := protocol.Decode(data)
	if err != nil {
		e.messagesMalformed.Add(1)
		e.logger.Warn("ignoring message", "id", id, "error", err)
		return
	}

	e.mu.Lock()
	if ep, ok := e.endpoints[id]; ok {
		ep.lastSeen = e.now()
	}
	e.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Register:
		if err := e.Register(id, m.DeviceType); err != nil {
			e.logger.Warn("register rejected", "id", id, "error", err)
		}
	case protocol.PairRequest:
		e.RequestPairing(id, m.TargetID)
	case protocol.PairAccept:
		e.AcceptPairing(id, m.TargetID)
	case protocol.EyeTracking:
		e.routeFrom(id, protocol.RoleMobile, m.TargetID, protocol.EyeTrackingUpdate{
			SourceID: id,
			Data:     protocol.SanitizeTracking(m.TrackingData, e.now()),
		})
	case protocol.HeartRate:
		e.routeFrom(id, protocol.RoleMobile, m.TargetID, protocol.HeartRateUpdate{
			SourceID: id,
			Data:     protocol.SanitizeHeartRate(m.HeartRateData),
		})
	case protocol.Emotion:
		e.routeFrom(id, protocol.RoleMobile, m.TargetID, protocol.EmotionUpdate{
			SourceID: id,
			Data:     protocol.SanitizeEmotion(m.EmotionData),
		})
	case protocol.Biofeedback:
		e.routeFrom(id, protocol.RoleLaptop, m.TargetID, protocol.BiofeedbackUpdate{
			SourceID: id,
			Feedback: protocol.SanitizeFeedback(m.Feedback, e.now()),
		})
	case protocol.Ping:
		e.send(id, protocol.Pong{TS: e.now().UnixMilli()})
	default:
		e.messagesDropped.Add(1)
		e.logger.Debug("ignoring relay-only message", "id", id, "type", msg.Kind())
	}
}

// Register puts id into the bucket for role. The endpoint receives
// registered plus the roster of the opposite role, and every endpoint of
// the opposite role learns about it. Re-registering under another role
// severs any existing link.
func (e *Engine) Register(id string, role protocol.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	e.mu.Lock()
	ep, ok := e.endpoints[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotConnected
	}

	var out []delivery
	if ep.role != "" && ep.role != role {
		delete(e.buckets[ep.role], id)
		out = append(out, e.broadcastLocked(ep.role.Opposite(), departed(ep.role, id))...)
		if peer, ok := e.unlinkLocked(id); ok {
			out = append(out, e.deliveryLocked(peer, protocol.PairRevoked{SourceID: id})...)
		}
	}
	ep.role = role
	e.buckets[role][id] = struct{}{}

	out = append(out, e.deliveryLocked(id, protocol.Registered{ID: id, DeviceType: role})...)
	roster := e.rosterLocked(role.Opposite())
	if role == protocol.RoleMobile {
		out = append(out, e.deliveryLocked(id, protocol.AvailableLaptops{Laptops: roster})...)
	} else {
		out = append(out, e.deliveryLocked(id, protocol.AvailableMobiles{Mobiles: roster})...)
	}
	out = append(out, e.broadcastLocked(role.Opposite(), arrived(role, id))...)
	e.mu.Unlock()

	e.logger.Info("endpoint registered", "id", id, "role", role)
	e.flush(out)
	return nil
}

// RequestPairing forwards a pairing request from source to target when the
// two are registered with opposite roles. Anything else is dropped.
func (e *Engine) RequestPairing(source, target string) {
	e.mu.Lock()
	if !e.oppositeLocked(source, target) {
		e.mu.Unlock()
		e.messagesDropped.Add(1)
		e.logger.Debug("dropping pair request", "source", source, "target", target)
		return
	}
	out := e.deliveryLocked(target, protocol.PairRequest{SourceID: source})
	e.mu.Unlock()

	e.logger.Info("pair requested", "source", source, "target", target)
	e.flush(out)
}

// AcceptPairing links accepter and requester and confirms to both. A
// previous link of either side is replaced and the displaced peer receives
// pair_revoked.
func (e *Engine) AcceptPairing(accepter, requester string) {
	e.mu.Lock()
	if !e.oppositeLocked(accepter, requester) {
		e.mu.Unlock()
		e.messagesDropped.Add(1)
		e.logger.Debug("dropping pair accept", "accepter", accepter, "requester", requester)
		return
	}

	var out []delivery
	for _, side := range [2]string{accepter, requester} {
		old, ok := e.peers[side]
		if !ok || old == accepter || old == requester {
			continue
		}
		e.unlinkLocked(side)
		out = append(out, e.deliveryLocked(old, protocol.PairRevoked{SourceID: side})...)
		e.logger.Info("pairing replaced", "id", side, "displaced", old)
	}
	e.peers[accepter] = requester
	e.peers[requester] = accepter
	out = append(out, e.deliveryLocked(requester, protocol.PairConfirmed{SourceID: accepter})...)
	out = append(out, e.deliveryLocked(accepter, protocol.PairConfirmed{SourceID: requester})...)
	e.mu.Unlock()

	e.pairings.Add(1)
	e.logger.Info("paired", "accepter", accepter, "requester", requester)
	e.flush(out)
}

// Route forwards msg to target only when sender and target are linked to
// each other. It reports whether the message was forwarded.
func (e *Engine) Route(sender, target string, msg protocol.Message) bool {
	return e.routeFrom(sender, "", target, msg)
}

// routeFrom is Route with an optional role the sender must hold.
func (e *Engine) routeFrom(sender string, role protocol.Role, target string, msg protocol.Message) bool {
	e.mu.Lock()
	linked := target != "" && e.peers[sender] == target
	if linked && role != "" {
		ep := e.endpoints[sender]
		linked = ep != nil && ep.role == role
	}
	if !linked {
		e.mu.Unlock()
		e.messagesDropped.Add(1)
		e.logger.Debug("dropping unpaired message", "sender", sender, "target", target, "type", msg.Kind())
		return false
	}
	out := e.deliveryLocked(target, msg)
	e.mu.Unlock()

	e.messagesRouted.Add(1)
	e.flush(out)
	return true
}

// Disconnect removes id, severs its link and tells the opposite role. It is
// safe to call more than once.
func (e *Engine) Disconnect(id string) {
	e.mu.Lock()
	ep, ok := e.endpoints[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.endpoints, id)
	e.unlinkLocked(id)

	var out []delivery
	if ep.role != "" {
		delete(e.buckets[ep.role], id)
		out = e.broadcastLocked(ep.role.Opposite(), departed(ep.role, id))
	}
	total := len(e.endpoints)
	e.mu.Unlock()

	e.logger.Info("endpoint disconnected", "id", id, "role", ep.role, "total", total)
	e.flush(out)
}

// Peer returns the endpoint id is linked to.
func (e *Engine) Peer(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.peers[id]
	return p, ok
}

// send delivers msg to a single endpoint outside any routing rule.
func (e *Engine) send(id string, msg protocol.Message) {
	e.mu.Lock()
	out := e.deliveryLocked(id, msg)
	e.mu.Unlock()
	e.flush(out)
}

func (e *Engine) unlinkLocked(id string) (string, bool) {
	peer, ok := e.peers[id]
	if !ok {
		return "", false
	}
	delete(e.peers, id)
	if e.peers[peer] == id {
		delete(e.peers, peer)
	}
	return peer, true
}

func (e *Engine) oppositeLocked(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	ea, eb := e.endpoints[a], e.endpoints[b]
	return ea != nil && eb != nil && ea.role != "" && eb.role == ea.role.Opposite()
}

func (e *Engine) rosterLocked(role protocol.Role) []string {
	ids := make([]string, 0, len(e.buckets[role]))
	for id := range e.buckets[role] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) deliveryLocked(id string, msg protocol.Message) []delivery {
	ep, ok := e.endpoints[id]
	if !ok {
		return nil
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		e.logger.Error("encode failed", "type", msg.Kind(), "error", err)
		return nil
	}
	return []delivery{{id: id, conn: ep.conn, data: data}}
}

func (e *Engine) broadcastLocked(role protocol.Role, msg protocol.Message) []delivery {
	if len(e.buckets[role]) == 0 {
		return nil
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		e.logger.Error("encode failed", "type", msg.Kind(), "error", err)
		return nil
	}
	out := make([]delivery, 0, len(e.buckets[role]))
	for _, id := range e.rosterLocked(role) {
		out = append(out, delivery{id: id, conn: e.endpoints[id].conn, data: data})
	}
	return out
}

func (e *Engine) flush(out []delivery) {
	for _, d := range out {
		if err := d.conn.Send(d.data); err != nil {
			e.sendErrors.Add(1)
			e.logger.Warn("send failed", "id", d.id, "error", err)
			continue
		}
		e.messagesSent.Add(1)
	}
}

func arrived(role protocol.Role, id string) protocol.Message {
	if role == protocol.RoleMobile {
		return protocol.MobileConnected{MobileID: id}
	}
	return protocol.LaptopConnected{LaptopID: id}
}

func departed(role protocol.Role, id string) protocol.Message {
	if role == protocol.RoleMobile {
		return protocol.MobileDisconnected{MobileID: id}
	}
	return protocol.LaptopDisconnected{LaptopID: id}
}
