// Package hub provides the rooms transport for the relay: a channel-based
// fan-out hub where every client joins a room named after its endpoint id.
package hub

// Message is a JSON frame addressed to a room. An empty Room reaches every
// client.
type Message struct {
	Room string
	Data []byte
}

// NewJSONMessage creates a message for room from pre-encoded bytes
func NewJSONMessage(room string, data []byte) Message {
	return Message{Room: room, Data: data}
}
