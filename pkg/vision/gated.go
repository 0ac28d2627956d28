package vision

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-biotracker/pkg/face"
)

// Gated runs a local box detector first and only calls the landmark
// detector when a face is in view.
type Gated struct {
	boxes     BoxDetector
	landmarks face.Detector
	logger    *slog.Logger

	skipped atomic.Uint64
	passed  atomic.Uint64
}

// NewGated combines boxes and landmarks.
func NewGated(boxes BoxDetector, landmarks face.Detector, logger *slog.Logger) *Gated {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gated{
		boxes:     boxes,
		landmarks: landmarks,
		logger:    logger.With("component", "gated-detector"),
	}
}

// Detect implements face.Detector.
func (g *Gated) Detect(ctx context.Context, jpeg []byte) (*face.Observation, error) {
	dets, err := g.boxes.Detect(jpeg)
	if err != nil {
		return nil, err
	}
	best, ok := SelectBest(dets)
	if !ok {
		g.skipped.Add(1)
		return nil, nil
	}
	g.passed.Add(1)

	obs, err := g.landmarks.Detect(ctx, jpeg)
	if err != nil || obs == nil {
		return nil, err
	}
	if obs.Confidence == 0 {
		obs.Confidence = best.Confidence
	}
	return obs, nil
}

// Skipped returns how many frames had no face box.
func (g *Gated) Skipped() uint64 {
	return g.skipped.Load()
}

// Passed returns how many frames went on to the landmark detector.
func (g *Gated) Passed() uint64 {
	return g.passed.Load()
}

// Close closes both detectors.
func (g *Gated) Close() error {
	err := g.boxes.Close()
	if lerr := g.landmarks.Close(); err == nil {
		err = lerr
	}
	g.logger.Debug("closed", "skipped", g.skipped.Load(), "passed", g.passed.Load())
	return err
}
