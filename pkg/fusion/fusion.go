// Package fusion combines heart rate, blink and gaze signals into stress
// and attention scores.
package fusion

import (
	"math"

	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Level is a coarse band of a 0-100 score.
type Level string

const (
	Low      Level = "low"
	Moderate Level = "moderate"
	High     Level = "high"
)

// Stress returns 0-100 from the latest heart rate and blink rate.
// Heart rate saturates at 100 BPM and blink rate at 20 per minute.
func Stress(bpm, blinkRate float64) int {
	hr := mathutil.Clamp01((bpm - 60) / 40)
	blink := mathutil.Clamp01(blinkRate / 20)
	return int(math.Round(100 * (0.7*hr + 0.3*blink)))
}

// Attention returns 0-100 from the latest fixation duration in seconds and
// saccade velocity in pixels per second.
func Attention(gazeDuration, saccadeVelocity float64) int {
	fixation := mathutil.Clamp01(gazeDuration / 5)
	steadiness := mathutil.Clamp01(1 - saccadeVelocity/100)
	return int(math.Round(100 * (0.6*fixation + 0.4*steadiness)))
}

// StressLevel bands a stress score.
func StressLevel(score int) Level {
	switch {
	case score < 30:
		return Low
	case score < 70:
		return Moderate
	default:
		return High
	}
}

// AttentionLevel bands an attention score.
func AttentionLevel(score int) Level {
	switch {
	case score > 70:
		return High
	case score > 30:
		return Moderate
	default:
		return Low
	}
}
