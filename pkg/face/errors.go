package face

import (
	"errors"
	"fmt"
)

// Sentinel errors for landmark validation and detection.
var (
	// ErrLandmarkCount is returned when a landmark list has the wrong size.
	ErrLandmarkCount = errors.New("face: wrong landmark count")

	// ErrFeatureTooShort is returned when a facial feature has too few points.
	ErrFeatureTooShort = errors.New("face: feature has too few points")

	// ErrEmptyBox is returned when the bounding box has no area.
	ErrEmptyBox = errors.New("face: empty bounding box")

	// ErrNoEndpoint is returned when the landmark service URL is missing.
	ErrNoEndpoint = errors.New("face: landmark service URL required")
)

// ServiceError is a non-2xx response from the landmark service.
type ServiceError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("face: landmark service error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limiting and server-side failures.
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}
