package face

import (
	"math"
	"time"
)

// Synthetic generates a frontal 68-point landmark layout inside box with
// both eyes opened to the given eye aspect ratio.
//
// The layout is symmetric, so head yaw and roll estimate to zero.
func Synthetic(box BoundingBox, ear float64) []Point {
	points := make([]Point, Landmarks68)
	c := box.Center()
	w, h := box.Width, box.Height

	for i := jawStart; i < jawEnd; i++ {
		theta := math.Pi - float64(i-jawStart)*math.Pi/float64(jawEnd-jawStart-1)
		points[i] = Point{X: c.X + w/2*math.Cos(theta), Y: c.Y + h/2*math.Sin(theta)}
	}

	browY := box.Y + 0.33*h
	for i := 0; i < browLeftEnd-browLeftStart; i++ {
		t := float64(i) / 4
		points[browLeftStart+i] = Point{X: box.X + (0.15+0.25*t)*w, Y: browY}
		points[browRightStart+i] = Point{X: box.X + (0.60+0.25*t)*w, Y: browY}
	}

	// Bridge 27-30, then the nostril line 31-35.
	for i := 0; i < 4; i++ {
		points[noseStart+i] = Point{X: c.X, Y: box.Y + (0.36+0.08*float64(i))*h}
	}
	for i := 0; i < 5; i++ {
		points[noseStart+4+i] = Point{X: c.X + (-0.1+0.05*float64(i))*w, Y: box.Y + 0.66*h}
	}

	eyeY := box.Y + 0.42*h
	copy(points[leftEyeStart:leftEyeEnd], syntheticEye(Point{X: box.X + 0.3*w, Y: eyeY}, 0.16*w, ear))
	copy(points[rightEyeStart:rightEyeEnd], syntheticEye(Point{X: box.X + 0.7*w, Y: eyeY}, 0.16*w, ear))

	for i := 0; i < Landmarks68-rightEyeEnd; i++ {
		theta := 2 * math.Pi * float64(i) / float64(Landmarks68-rightEyeEnd)
		points[rightEyeEnd+i] = Point{X: c.X + 0.18*w*math.Cos(theta), Y: box.Y + 0.8*h + 0.05*h*math.Sin(theta)}
	}
	return points
}

// SyntheticObservation wraps Synthetic into a validated observation.
// It panics if box is empty.
func SyntheticObservation(box BoundingBox, ear float64, at time.Time) *Observation {
	obs, err := FromLandmarks68(box, 1, Synthetic(box, ear), at)
	if err != nil {
		panic(err)
	}
	return obs
}

// SyntheticEye returns a six-point eye centered on center.
func SyntheticEye(center Point, width, ear float64) LandmarkSet {
	var l LandmarkSet
	copy(l[:], syntheticEye(center, width, ear))
	return l
}

func syntheticEye(center Point, width, ear float64) []Point {
	half := width / 2
	open := ear * width / 2
	return []Point{
		{X: center.X - half, Y: center.Y},
		{X: center.X - width/6, Y: center.Y - open},
		{X: center.X + width/6, Y: center.Y - open},
		{X: center.X + half, Y: center.Y},
		{X: center.X + width/6, Y: center.Y + open},
		{X: center.X - width/6, Y: center.Y + open},
	}
}
