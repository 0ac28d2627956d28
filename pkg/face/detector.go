package face

import (
	"context"
	"sync"
)

// Detector returns at most one face for a JPEG frame.
//
// A nil observation with a nil error means no face was found, which is a
// normal outcome.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) (*Observation, error)
	Close() error
}

// Static is a Detector that always returns the same observation.
// Useful for tests and for driving the pipeline without a camera.
type Static struct {
	mu    sync.Mutex
	obs   *Observation
	calls int
}

// NewStatic creates a Static detector. A nil obs reports "no face".
func NewStatic(obs *Observation) *Static {
	return &Static{obs: obs}
}

// Set replaces the observation returned by Detect.
func (s *Static) Set(obs *Observation) {
	s.mu.Lock()
	s.obs = obs
	s.mu.Unlock()
}

// Detect returns a copy of the configured observation.
func (s *Static) Detect(ctx context.Context, _ []byte) (*Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.obs == nil {
		return nil, nil
	}
	cp := *s.obs
	return &cp, nil
}

// Calls returns how many times Detect ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Close is a no-op.
func (s *Static) Close() error { return nil }
