// Package headpose approximates head orientation and movement from 2D face
// landmarks. It is a coarse geometric estimate, not a 3D pose solver.
package headpose

import (
	"math"

	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Rotation is head orientation in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Position is frame-to-frame head displacement.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose combines displacement and orientation.
type Pose struct {
	Position Position `json:"position"`
	Rotation Rotation `json:"rotation"`
}

// Config holds the scale factors of the estimate.
type Config struct {
	PositionScale float64 // pixels per displacement unit
	DepthScale    float64 // multiplier for the box area ratio
	PitchOffset   float64 // brow-nose / nose-length ratio of a level head
	PitchScale    float64 // degrees per unit of ratio deviation
	YawScale      float64 // degrees per unit of jaw asymmetry
	MaxAngle      float64 // pitch and yaw are clamped to ±MaxAngle
}

// DefaultConfig returns the standard scale factors.
func DefaultConfig() Config {
	return Config{
		PositionScale: 10,
		DepthScale:    5,
		PitchOffset:   0.3,
		PitchScale:    90,
		YawScale:      45,
		MaxAngle:      90,
	}
}

// Estimator tracks the previous face box of one session.
type Estimator struct {
	config  Config
	prev    face.BoundingBox
	hasPrev bool
}

// New creates an estimator.
func New(cfg Config) *Estimator {
	return &Estimator{config: cfg}
}

// Estimate computes the pose for obs and remembers its box for the next call.
func (e *Estimator) Estimate(obs *face.Observation) Pose {
	pose := Pose{
		Position: e.displacement(obs.Box),
		Rotation: Rotation{
			Pitch: e.pitch(obs),
			Yaw:   e.yaw(obs),
			Roll:  Roll(obs.LeftEye.Center(), obs.RightEye.Center()),
		},
	}
	e.prev = obs.Box
	e.hasPrev = true
	return pose
}

// Reset forgets the previous box.
func (e *Estimator) Reset() {
	e.prev = face.BoundingBox{}
	e.hasPrev = false
}

func (e *Estimator) displacement(box face.BoundingBox) Position {
	if !e.hasPrev {
		return Position{}
	}
	p := Position{
		X: (box.X - e.prev.X) / e.config.PositionScale,
		Y: (box.Y - e.prev.Y) / e.config.PositionScale,
	}
	if prevArea := e.prev.Area(); prevArea > 0 {
		p.Z = (box.Area()/prevArea - 1) * e.config.DepthScale
	}
	return p
}

func (e *Estimator) pitch(obs *face.Observation) float64 {
	if len(obs.Nose) < face.MinNosePoints || len(obs.BrowLeft) < face.MinBrowPoints || len(obs.BrowRight) < face.MinBrowPoints {
		return 0
	}
	noseLen := mathutil.Distance(obs.Nose[0], obs.Nose[len(obs.Nose)-1])
	if noseLen == 0 {
		return 0
	}
	browMid := mathutil.Midpoint(obs.BrowLeft[2], obs.BrowRight[2])
	ratio := mathutil.Distance(browMid, obs.Nose[1]) / noseLen
	return mathutil.Clamp((ratio-e.config.PitchOffset)*e.config.PitchScale, -e.config.MaxAngle, e.config.MaxAngle)
}

func (e *Estimator) yaw(obs *face.Observation) float64 {
	if len(obs.Jaw) < face.MinJawPoints {
		return 0
	}
	center := obs.Box.Center()
	right := mathutil.Distance(obs.Jaw[len(obs.Jaw)-1], center)
	if right == 0 {
		return 0
	}
	left := mathutil.Distance(obs.Jaw[0], center)
	return mathutil.Clamp((left/right-1)*e.config.YawScale, -e.config.MaxAngle, e.config.MaxAngle)
}

// Roll returns the angle of the line between the eye centers in degrees.
func Roll(leftEye, rightEye mathutil.Point) float64 {
	return math.Atan2(rightEye.Y-leftEye.Y, rightEye.X-leftEye.X) * 180 / math.Pi
}
