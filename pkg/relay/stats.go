package relay

import (
	"slices"
	"strings"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/protocol"
)

// Stats contains engine statistics.
type Stats struct {
	Endpoints         int    `json:"endpoints"`
	Mobiles           int    `json:"mobiles"`
	Laptops           int    `json:"laptops"`
	Pairs             int    `json:"pairs"`
	MessagesReceived  uint64 `json:"messages_received"`
	MessagesRouted    uint64 `json:"messages_routed"`
	MessagesDropped   uint64 `json:"messages_dropped"`
	MessagesMalformed uint64 `json:"messages_malformed"`
	MessagesSent      uint64 `json:"messages_sent"`
	SendErrors        uint64 `json:"send_errors"`
	Pairings          uint64 `json:"pairings"`
}

// GetStats returns engine statistics.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	s := Stats{
		Endpoints: len(e.endpoints),
		Mobiles:   len(e.buckets[protocol.RoleMobile]),
		Laptops:   len(e.buckets[protocol.RoleLaptop]),
		Pairs:     len(e.peers) / 2,
	}
	e.mu.Unlock()

	s.MessagesReceived = e.messagesReceived.Load()
	s.MessagesRouted = e.messagesRouted.Load()
	s.MessagesDropped = e.messagesDropped.Load()
	s.MessagesMalformed = e.messagesMalformed.Load()
	s.MessagesSent = e.messagesSent.Load()
	s.SendErrors = e.sendErrors.Load()
	s.Pairings = e.pairings.Load()
	return s
}

// EndpointInfo describes one connected endpoint.
type EndpointInfo struct {
	ID        string        `json:"id"`
	Role      protocol.Role `json:"role,omitempty"`
	Transport string        `json:"transport"`
	Peer      string        `json:"peer,omitempty"`
	Connected time.Time     `json:"connected"`
	LastSeen  time.Time     `json:"last_seen"`
}

// Endpoints returns info about every connected endpoint, ordered by id.
func (e *Engine) Endpoints() []EndpointInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]EndpointInfo, 0, len(e.endpoints))
	for _, ep := range e.endpoints {
		infos = append(infos, EndpointInfo{
			ID:        ep.id,
			Role:      ep.role,
			Transport: ep.transport,
			Peer:      e.peers[ep.id],
			Connected: ep.connected,
			LastSeen:  ep.lastSeen,
		})
	}
	slices.SortFunc(infos, func(a, b EndpointInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Endpoint returns info about one endpoint.
func (e *Engine) Endpoint(id string) (EndpointInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ep, ok := e.endpoints[id]
	if !ok {
		return EndpointInfo{}, false
	}
	return EndpointInfo{
		ID:        ep.id,
		Role:      ep.role,
		Transport: ep.transport,
		Peer:      e.peers[ep.id],
		Connected: ep.connected,
		LastSeen:  ep.lastSeen,
	}, true
}

// Count returns the number of connected endpoints.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.endpoints)
}
