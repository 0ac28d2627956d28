package rppg

import (
	"image"

	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Region is a skin patch expressed as fractions of the face box.
type Region struct {
	Name   string
	X, Y   float64
	W, H   float64
	Weight float64
}

// DefaultRegions are the forehead, both cheeks and the face center.
// Weights sum to 1.
var DefaultRegions = []Region{
	{Name: "forehead", X: 0.2, Y: 0.1, W: 0.6, H: 0.15, Weight: 0.5},
	{Name: "left_cheek", X: 0.15, Y: 0.45, W: 0.2, H: 0.2, Weight: 0.2},
	{Name: "right_cheek", X: 0.65, Y: 0.45, W: 0.2, H: 0.2, Weight: 0.2},
	{Name: "center", X: 0.35, Y: 0.35, W: 0.3, H: 0.3, Weight: 0.1},
}

// Rect returns the pixel rectangle of r inside box, clipped to the frame.
// The result is empty when the region lies outside the frame.
func (r Region) Rect(box face.BoundingBox, frameW, frameH int) image.Rectangle {
	rect := image.Rect(
		int(box.X+r.X*box.Width),
		int(box.Y+r.Y*box.Height),
		int(box.X+(r.X+r.W)*box.Width),
		int(box.Y+(r.Y+r.H)*box.Height),
	)
	return rect.Intersect(image.Rect(0, 0, frameW, frameH))
}

// Color is a mean RGB value.
type Color struct {
	R, G, B float64
}

// Blend combines per-region colors by weight. Regions with a non-positive
// weight are skipped and the remaining weights are renormalized. ok is
// false when nothing usable remains.
func Blend(colors []Color, weights []float64) (Color, bool) {
	if len(colors) != len(weights) {
		return Color{}, false
	}
	var rs, gs, bs, ws []float64
	for i, c := range colors {
		if weights[i] <= 0 {
			continue
		}
		rs = append(rs, c.R)
		gs = append(gs, c.G)
		bs = append(bs, c.B)
		ws = append(ws, weights[i])
	}
	if len(ws) == 0 {
		return Color{}, false
	}
	return Color{
		R: mathutil.WeightedMean(rs, ws),
		G: mathutil.WeightedMean(gs, ws),
		B: mathutil.WeightedMean(bs, ws),
	}, true
}
