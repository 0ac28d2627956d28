// Package eyes extracts blink, saccade, fixation, pupil and gaze features
// from per-frame eye landmarks.
//
// A Tracker holds the rolling state of one tracking session and is not safe
// for concurrent use; each session owns its own instance.
package eyes

import (
	"time"

	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/headpose"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Config holds the tunable parameters of the tracker.
type Config struct {
	BlinkThreshold   float64       // EAR below this means the eye is closed
	MaxBlinkHistory  int           // bounded blink timestamp history
	MaxPositions     int           // bounded eye position history
	BlinkWindow      time.Duration // blinks older than this are evicted
	MinRateSpan      time.Duration // history must span more than this for a rate
	FixationRadius   float64       // pixels the gaze may wander and still fixate
	PupilFactor      float64       // diameter per pixel of lid opening
	HeadCompensation float64       // degrees of head rotation per unit of gaze
}

// DefaultConfig returns the standard tracker parameters.
func DefaultConfig() Config {
	return Config{
		BlinkThreshold:   0.25,
		MaxBlinkHistory:  20,
		MaxPositions:     10,
		BlinkWindow:      60 * time.Second,
		MinRateSpan:      time.Second,
		FixationRadius:   10,
		PupilFactor:      0.4,
		HeadCompensation: 45,
	}
}

// Gaze is a normalized gaze direction in [-1, 1].
//
// +X means the iris sits toward larger image x (right in the captured,
// unmirrored frame). +Y means toward larger image y (down).
type Gaze struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Metrics is the eye feature record for one frame.
type Metrics struct {
	FaceDetected         bool
	BlinkRate            float64 // blinks per minute
	BlinkCount           int
	IsBlinking           bool
	JustBlinked          bool
	EAR                  float64
	SaccadeVelocity      float64 // pixels per second
	GazeDuration         float64 // seconds
	Gaze                 Gaze
	PupilSize            float64 // square pixels
	PupilDiameter        float64
	PupilDilationPercent float64
	At                   time.Time
}

type position struct {
	p  mathutil.Point
	at time.Time
}

// Tracker accumulates blink and eye movement state across frames.
type Tracker struct {
	config     Config
	blinkCount int
	closed     bool
	blinks     []time.Time
	positions  []position
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		config:    cfg,
		blinks:    make([]time.Time, 0, cfg.MaxBlinkHistory),
		positions: make([]position, 0, cfg.MaxPositions),
	}
}

// Update processes one frame with a detected face.
func (t *Tracker) Update(left, right face.LandmarkSet, head headpose.Rotation, now time.Time) Metrics {
	ear := (EAR(left) + EAR(right)) / 2
	justBlinked := t.updateBlink(ear, now)

	t.evictBlinks(now)
	t.addPosition(mathutil.Midpoint(left.Center(), right.Center()), now)

	size, diameter, dilation := pupil(left, right, t.config.PupilFactor)

	return Metrics{
		FaceDetected:         true,
		BlinkRate:            BlinkRate(t.blinks, t.config.MinRateSpan),
		BlinkCount:           t.blinkCount,
		IsBlinking:           t.closed,
		JustBlinked:          justBlinked,
		EAR:                  ear,
		SaccadeVelocity:      t.saccadeVelocity(),
		GazeDuration:         t.gazeDuration(),
		Gaze:                 GazeDirection(left, right, head, t.config.HeadCompensation),
		PupilSize:            size,
		PupilDiameter:        diameter,
		PupilDilationPercent: dilation,
		At:                   now,
	}
}

// Missing returns the all-zero record for a frame without a face. The
// rolling state is left untouched.
func (t *Tracker) Missing(now time.Time) Metrics {
	return Metrics{At: now}
}

// BlinkCount returns the number of blinks since the tracker was created.
func (t *Tracker) BlinkCount() int {
	return t.blinkCount
}

// Reset clears all accumulated state.
func (t *Tracker) Reset() {
	t.blinkCount = 0
	t.closed = false
	t.blinks = t.blinks[:0]
	t.positions = t.positions[:0]
}

// updateBlink advances the open/closed state machine and reports whether
// this frame closed a previously open eye.
func (t *Tracker) updateBlink(ear float64, now time.Time) bool {
	if ear < t.config.BlinkThreshold {
		if t.closed {
			return false
		}
		t.closed = true
		t.blinkCount++
		t.blinks = append(t.blinks, now)
		if len(t.blinks) > t.config.MaxBlinkHistory {
			t.blinks = t.blinks[len(t.blinks)-t.config.MaxBlinkHistory:]
		}
		return true
	}
	t.closed = false
	return false
}

func (t *Tracker) evictBlinks(now time.Time) {
	cutoff := now.Add(-t.config.BlinkWindow)
	i := 0
	for i < len(t.blinks) && t.blinks[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.blinks = append(t.blinks[:0], t.blinks[i:]...)
	}
}

func (t *Tracker) addPosition(p mathutil.Point, now time.Time) {
	t.positions = append(t.positions, position{p: p, at: now})
	if len(t.positions) > t.config.MaxPositions {
		t.positions = append(t.positions[:0], t.positions[len(t.positions)-t.config.MaxPositions:]...)
	}
}

func (t *Tracker) saccadeVelocity() float64 {
	if len(t.positions) < 2 {
		return 0
	}
	var velocities []float64
	for i := 1; i < len(t.positions); i++ {
		dt := t.positions[i].at.Sub(t.positions[i-1].at).Seconds()
		if dt <= 0 {
			continue
		}
		velocities = append(velocities, mathutil.Distance(t.positions[i-1].p, t.positions[i].p)/dt)
	}
	return mathutil.Mean(velocities)
}

func (t *Tracker) gazeDuration() float64 {
	if len(t.positions) < 2 {
		return 0
	}
	last := t.positions[len(t.positions)-1]
	start := last.at
	for i := len(t.positions) - 2; i >= 0; i-- {
		if mathutil.Distance(t.positions[i].p, last.p) > t.config.FixationRadius {
			break
		}
		start = t.positions[i].at
	}
	return last.at.Sub(start).Seconds()
}

// EAR returns the eye aspect ratio of one eye, or 0 for a zero-width eye.
func EAR(eye face.LandmarkSet) float64 {
	width := eye.Width()
	if width == 0 {
		return 0
	}
	return (mathutil.Distance(eye[1], eye[5]) + mathutil.Distance(eye[2], eye[4])) / (2 * width)
}

// BlinkRate converts a blink timestamp history into blinks per minute.
// It returns 0 unless the history holds at least two blinks spanning more
// than minSpan.
func BlinkRate(blinks []time.Time, minSpan time.Duration) float64 {
	if len(blinks) < 2 {
		return 0
	}
	span := blinks[len(blinks)-1].Sub(blinks[0])
	if span <= minSpan {
		return 0
	}
	return float64(len(blinks)) / float64(span.Milliseconds()) * 60000
}

func pupil(left, right face.LandmarkSet, factor float64) (size, diameter, dilation float64) {
	height := (left.Opening() + right.Opening()) / 2
	width := (left.Width() + right.Width()) / 2
	size = height * width
	diameter = height * factor
	if width > 0 {
		dilation = mathutil.Clamp01(height/(width/2)) * 100
	}
	return size, diameter, dilation
}
