package rppg

import "time"

// Config holds the tunable parameters of the extractor.
type Config struct {
	// Buffer
	Window     time.Duration // samples older than this are trimmed
	MinSamples int           // minimum buffered samples before estimating

	// Signal processing
	SmoothingSigma   time.Duration // Gaussian kernel width
	PeakHeightFactor float64       // threshold = median + factor*(Q3 - median)
	MaxPeakBPM       float64       // sets the minimum distance between peaks

	// Acceptance
	MinBPM float64
	MaxBPM float64

	// Smoothing over accepted estimates
	HistorySize       int
	CVGain            float64 // confidence = 1 - CVGain*cv
	DefaultConfidence float64 // confidence with a single estimate

	// Scheduling
	Interval      time.Duration // minimum time between estimates
	MinBrightness float64       // darker samples are rejected
	HoldTimeout   time.Duration // how long Hold re-reports the last value
}

// DefaultConfig returns the standard extractor parameters.
func DefaultConfig() Config {
	return Config{
		Window:     15 * time.Second,
		MinSamples: 4,

		SmoothingSigma:   100 * time.Millisecond,
		PeakHeightFactor: 0.5,
		MaxPeakBPM:       180,

		MinBPM: 40,
		MaxBPM: 200,

		HistorySize:       6,
		CVGain:            4,
		DefaultConfidence: 0.5,

		Interval:      time.Second,
		MinBrightness: 40,
		HoldTimeout:   10 * time.Second,
	}
}
