package eyes

import (
	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/headpose"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// GazeDirection estimates where both eyes look, compensated for head
// rotation. degPerUnit is the head rotation that cancels a full unit of
// gaze; a non-positive value disables compensation.
//
// Without iris landmarks the iris is approximated by the midpoint between
// the upper and lower lid midpoints.
func GazeDirection(left, right face.LandmarkSet, head headpose.Rotation, degPerUnit float64) Gaze {
	l := eyeOffset(left)
	r := eyeOffset(right)
	g := Gaze{X: (l.X + r.X) / 2, Y: (l.Y + r.Y) / 2}

	if degPerUnit > 0 {
		g.X -= head.Yaw / degPerUnit
		g.Y -= head.Pitch / degPerUnit
	}
	return Gaze{X: mathutil.Clamp(g.X, -1, 1), Y: mathutil.Clamp(g.Y, -1, 1)}
}

// eyeOffset returns the iris offset from the eye center, normalized by half
// the eye width and half the lid opening.
func eyeOffset(eye face.LandmarkSet) Gaze {
	upper := mathutil.Midpoint(eye[1], eye[2])
	lower := mathutil.Midpoint(eye[4], eye[5])
	iris := mathutil.Midpoint(upper, lower)
	center := eye.Center()

	halfW := eye.Width() / 2
	if halfW == 0 {
		return Gaze{}
	}
	halfH := eye.Opening() / 2
	if halfH == 0 {
		halfH = halfW
	}
	return Gaze{
		X: (iris.X - center.X) / halfW,
		Y: (iris.Y - center.Y) / halfH,
	}
}
