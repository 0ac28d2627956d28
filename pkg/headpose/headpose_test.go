package headpose

import (
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

func TestRoll(t *testing.T) {
	tests := []struct {
		name        string
		left, right mathutil.Point
		want        float64
	}{
		{"level", mathutil.Point{X: 0, Y: 0}, mathutil.Point{X: 10, Y: 0}, 0},
		{"tilted down right", mathutil.Point{X: 0, Y: 0}, mathutil.Point{X: 10, Y: 10}, 45},
		{"tilted up right", mathutil.Point{X: 0, Y: 0}, mathutil.Point{X: 10, Y: -10}, -45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Roll(tt.left, tt.right); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Roll() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateFirstFrameHasNoDisplacement(t *testing.T) {
	e := New(DefaultConfig())
	box := face.BoundingBox{X: 100, Y: 100, Width: 200, Height: 200}
	pose := e.Estimate(face.SyntheticObservation(box, 0.3, time.Now()))

	if pose.Position != (Position{}) {
		t.Errorf("Position = %+v, want zero on first frame", pose.Position)
	}
	if math.Abs(pose.Rotation.Yaw) > 1e-9 {
		t.Errorf("Yaw = %v, want 0 for a symmetric face", pose.Rotation.Yaw)
	}
	if math.Abs(pose.Rotation.Roll) > 1e-9 {
		t.Errorf("Roll = %v, want 0 for level eyes", pose.Rotation.Roll)
	}
	if math.Abs(pose.Rotation.Pitch) > 15 {
		t.Errorf("Pitch = %v, want near level", pose.Rotation.Pitch)
	}
}

func TestEstimateDisplacement(t *testing.T) {
	e := New(DefaultConfig())
	first := face.BoundingBox{X: 100, Y: 100, Width: 200, Height: 200}
	second := face.BoundingBox{X: 120, Y: 90, Width: 220, Height: 220}

	e.Estimate(face.SyntheticObservation(first, 0.3, time.Now()))
	pose := e.Estimate(face.SyntheticObservation(second, 0.3, time.Now()))

	wantZ := (220.0*220/(200*200) - 1) * 5
	if pose.Position.X != 2 || pose.Position.Y != -1 || math.Abs(pose.Position.Z-wantZ) > 1e-9 {
		t.Errorf("Position = %+v, want {2 -1 %v}", pose.Position, wantZ)
	}

	e.Reset()
	pose = e.Estimate(face.SyntheticObservation(second, 0.3, time.Now()))
	if pose.Position != (Position{}) {
		t.Errorf("Position after Reset = %+v, want zero", pose.Position)
	}
}

func TestYawFromJawAsymmetry(t *testing.T) {
	e := New(DefaultConfig())
	obs := face.SyntheticObservation(face.BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}, 0.3, time.Now())
	// Pull the left jaw endpoint halfway to the box center.
	center := obs.Box.Center()
	obs.Jaw[0] = mathutil.Midpoint(obs.Jaw[0], center)

	pose := e.Estimate(obs)
	if math.Abs(pose.Rotation.Yaw-(-22.5)) > 1e-9 {
		t.Errorf("Yaw = %v, want -22.5", pose.Rotation.Yaw)
	}
}

func TestAnglesClamped(t *testing.T) {
	e := New(DefaultConfig())
	obs := face.SyntheticObservation(face.BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}, 0.3, time.Now())
	obs.Jaw[len(obs.Jaw)-1] = mathutil.Lerp(obs.Jaw[len(obs.Jaw)-1], obs.Box.Center(), 0.99)
	obs.BrowLeft[2] = mathutil.Point{X: 50, Y: -1000}
	obs.BrowRight[2] = mathutil.Point{X: 50, Y: -1000}

	pose := e.Estimate(obs)
	if pose.Rotation.Yaw != 90 {
		t.Errorf("Yaw = %v, want clamped to 90", pose.Rotation.Yaw)
	}
	if pose.Rotation.Pitch != 90 {
		t.Errorf("Pitch = %v, want clamped to 90", pose.Rotation.Pitch)
	}
}

func TestPitchFromBrowNoseRatio(t *testing.T) {
	tests := []struct {
		name string
		brow mathutil.Point
		want float64
	}{
		// Nose runs from (50,40) to (50,60); the bridge point sits at (50,50).
		{"level", mathutil.Point{X: 50, Y: 44}, 0},
		{"brows far from bridge", mathutil.Point{X: 50, Y: 30}, 63},
		{"brows close to bridge", mathutil.Point{X: 50, Y: 46}, -9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(DefaultConfig())
			obs := face.SyntheticObservation(face.BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}, 0.3, time.Now())
			obs.Nose = []mathutil.Point{{X: 50, Y: 40}, {X: 50, Y: 50}, {X: 50, Y: 60}}
			obs.BrowLeft[2] = tt.brow
			obs.BrowRight[2] = tt.brow

			pose := e.Estimate(obs)
			if math.Abs(pose.Rotation.Pitch-tt.want) > 1e-9 {
				t.Errorf("Pitch = %v, want %v", pose.Rotation.Pitch, tt.want)
			}
		})
	}
}

func TestPitchNeedsNose(t *testing.T) {
	e := New(DefaultConfig())
	obs := face.SyntheticObservation(face.BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}, 0.3, time.Now())
	obs.Nose = []mathutil.Point{{X: 50, Y: 50}, {X: 50, Y: 50}}

	if got := e.Estimate(obs).Rotation.Pitch; got != 0 {
		t.Errorf("Pitch = %v, want 0 for a zero-length nose", got)
	}
}
