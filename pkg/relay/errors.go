package relay

import "errors"

var (
	// ErrDuplicateID is returned when attaching an id that is already connected.
	ErrDuplicateID = errors.New("relay: endpoint id already connected")

	// ErrNotConnected is returned for operations on an unknown endpoint.
	ErrNotConnected = errors.New("relay: endpoint not connected")

	// ErrInvalidRole is returned when registering with an unknown device type.
	ErrInvalidRole = errors.New("relay: invalid device type")
)
