// Package face defines the face observation record produced by a landmark
// detector and the Detector contract the tracking pipeline consumes.
package face

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Point is a 2D point in frame pixels.
type Point = mathutil.Point

// Landmark layout of the 68-point iBUG annotation.
const (
	Landmarks68 = 68

	jawStart, jawEnd             = 0, 17
	browLeftStart, browLeftEnd   = 17, 22
	browRightStart, browRightEnd = 22, 27
	noseStart, noseEnd           = 27, 36
	leftEyeStart, leftEyeEnd     = 36, 42
	rightEyeStart, rightEyeEnd   = 42, 48
)

// Minimum points per feature for the head-pose estimator.
const (
	MinJawPoints  = 2
	MinNosePoints = 2
	MinBrowPoints = 3
)

// BoundingBox is a face rectangle in frame pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center of the box.
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns the area of the box.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// LandmarkSet is the six-point outline of one eye.
//
// Index 0 and 3 are the horizontal corners, 1 and 2 lie on the upper lid,
// 5 sits below 1 and 4 sits below 2.
type LandmarkSet [6]Point

// NewLandmarkSet validates points and copies them into a LandmarkSet.
func NewLandmarkSet(points []Point) (LandmarkSet, error) {
	var l LandmarkSet
	if len(points) != len(l) {
		return l, fmt.Errorf("%w: got %d, want %d", ErrLandmarkCount, len(points), len(l))
	}
	copy(l[:], points)
	return l, nil
}

// Center returns the centroid of the six points.
func (l LandmarkSet) Center() Point {
	return mathutil.Centroid(l[:])
}

// Scale returns a copy with every coordinate multiplied by k.
func (l LandmarkSet) Scale(k float64) LandmarkSet {
	var out LandmarkSet
	for i, p := range l {
		out[i] = p.Scale(k)
	}
	return out
}

// Width returns the corner-to-corner distance.
func (l LandmarkSet) Width() float64 {
	return mathutil.Distance(l[0], l[3])
}

// Opening returns the mean vertical lid distance.
func (l LandmarkSet) Opening() float64 {
	return (mathutil.Distance(l[1], l[5]) + mathutil.Distance(l[2], l[4])) / 2
}

// Observation is one detected face in one frame.
type Observation struct {
	Box        BoundingBox
	Confidence float64
	LeftEye    LandmarkSet
	RightEye   LandmarkSet
	Jaw        []Point
	Nose       []Point
	BrowLeft   []Point
	BrowRight  []Point
	CapturedAt time.Time

	// Expressions is set when the detector also classifies expressions.
	Expressions *emotions.Scores
}

// FromLandmarks68 builds an observation from a 68-point landmark list.
func FromLandmarks68(box BoundingBox, confidence float64, points []Point, at time.Time) (*Observation, error) {
	if len(points) != Landmarks68 {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLandmarkCount, len(points), Landmarks68)
	}

	left, err := NewLandmarkSet(points[leftEyeStart:leftEyeEnd])
	if err != nil {
		return nil, err
	}
	right, err := NewLandmarkSet(points[rightEyeStart:rightEyeEnd])
	if err != nil {
		return nil, err
	}

	obs := &Observation{
		Box:        box,
		Confidence: confidence,
		LeftEye:    left,
		RightEye:   right,
		Jaw:        clonePoints(points[jawStart:jawEnd]),
		Nose:       clonePoints(points[noseStart:noseEnd]),
		BrowLeft:   clonePoints(points[browLeftStart:browLeftEnd]),
		BrowRight:  clonePoints(points[browRightStart:browRightEnd]),
		CapturedAt: at,
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	return obs, nil
}

// Validate checks the structural invariants of the observation.
func (o *Observation) Validate() error {
	switch {
	case o.Box.Empty():
		return ErrEmptyBox
	case len(o.Jaw) < MinJawPoints:
		return fmt.Errorf("%w: jaw has %d points", ErrFeatureTooShort, len(o.Jaw))
	case len(o.Nose) < MinNosePoints:
		return fmt.Errorf("%w: nose has %d points", ErrFeatureTooShort, len(o.Nose))
	case len(o.BrowLeft) < MinBrowPoints || len(o.BrowRight) < MinBrowPoints:
		return fmt.Errorf("%w: brows have %d/%d points", ErrFeatureTooShort, len(o.BrowLeft), len(o.BrowRight))
	}
	return nil
}

func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}
