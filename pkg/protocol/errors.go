package protocol

import "errors"

var (
	// ErrMalformed is returned for input that is not a valid message object.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownType is returned for a message type this package does not know.
	ErrUnknownType = errors.New("protocol: unknown message type")
)
