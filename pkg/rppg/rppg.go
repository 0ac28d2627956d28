// Package rppg estimates heart rate from the color of skin regions across
// video frames (remote photoplethysmography).
//
// The extractor is fed one mean color sample per frame and asked for an
// estimate at a lower, rate-limited cadence. Every failure mode is reported
// through Result.Status; nothing here returns an error for missing data.
package rppg

import (
	"time"

	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Sample is the mean color of the skin regions in one frame.
type Sample struct {
	R, G, B float64
	At      time.Time
}

// Brightness returns the mean of the three channels.
func (s Sample) Brightness() float64 {
	return (s.R + s.G + s.B) / 3
}

// Channel identifies a color channel.
type Channel int

// Channels in the order they are tried.
const (
	Green Channel = iota
	Red
	Blue
)

var channelOrder = [...]Channel{Green, Red, Blue}

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case Green:
		return "green"
	case Red:
		return "red"
	case Blue:
		return "blue"
	default:
		return "unknown"
	}
}

func (c Channel) value(s Sample) float64 {
	switch c {
	case Red:
		return s.R
	case Blue:
		return s.B
	default:
		return s.G
	}
}

// Status describes the outcome of an estimate.
type Status int

const (
	// StatusOK means a BPM was accepted this cycle.
	StatusOK Status = iota
	// StatusThrottled means the call came before Interval elapsed.
	StatusThrottled
	// StatusInsufficient means too few samples are buffered.
	StatusInsufficient
	// StatusNoSignal means no channel produced a plausible rate.
	StatusNoSignal
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusThrottled:
		return "throttled"
	case StatusInsufficient:
		return "insufficient"
	case StatusNoSignal:
		return "no_signal"
	default:
		return "unknown"
	}
}

// Result is one heart-rate estimate.
type Result struct {
	BPM        float64
	Confidence float64
	Channel    Channel
	Status     Status
	Held       bool // re-reported by Hold
	At         time.Time
}

// OK reports whether the result carries a usable BPM.
func (r Result) OK() bool {
	return r.Status == StatusOK && r.BPM > 0
}

// Extractor buffers color samples for one tracking session.
// It is not safe for concurrent use.
type Extractor struct {
	config  Config
	samples []Sample
	history []float64
	lastRun time.Time
	last    Result
	hasLast bool
}

// New creates an extractor.
func New(cfg Config) *Extractor {
	return &Extractor{config: cfg}
}

// AddSample buffers s and trims the window. Dark or non-finite samples are
// rejected and false is returned.
func (e *Extractor) AddSample(s Sample) bool {
	if !mathutil.Finite(s.R) || !mathutil.Finite(s.G) || !mathutil.Finite(s.B) {
		return false
	}
	if s.Brightness() < e.config.MinBrightness {
		return false
	}
	e.samples = append(e.samples, s)
	e.trim(s.At)
	return true
}

func (e *Extractor) trim(now time.Time) {
	cutoff := now.Add(-e.config.Window)
	i := 0
	for i < len(e.samples) && e.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		e.samples = append(e.samples[:0], e.samples[i:]...)
	}
}

// Len returns the number of buffered samples.
func (e *Extractor) Len() int {
	return len(e.samples)
}

// Estimate runs the extraction if Interval has elapsed since the last run.
func (e *Extractor) Estimate(now time.Time) Result {
	if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.config.Interval {
		return Result{Status: StatusThrottled, At: now}
	}
	e.lastRun = now
	e.trim(now)

	if len(e.samples) < e.config.MinSamples {
		return Result{Status: StatusInsufficient, At: now}
	}

	for _, ch := range channelOrder {
		bpm, ok := e.channelBPM(ch)
		if !ok {
			continue
		}
		e.history = append(e.history, bpm)
		if len(e.history) > e.config.HistorySize {
			e.history = e.history[len(e.history)-e.config.HistorySize:]
		}
		r := Result{
			BPM:        RecencyWeightedMean(e.history),
			Confidence: e.confidence(),
			Channel:    ch,
			Status:     StatusOK,
			At:         now,
		}
		e.last = r
		e.hasLast = true
		return r
	}
	return Result{Status: StatusNoSignal, At: now}
}

// Hold returns the last accepted result with halved confidence, provided it
// is not older than HoldTimeout.
func (e *Extractor) Hold(now time.Time) (Result, bool) {
	if !e.hasLast || now.Sub(e.last.At) > e.config.HoldTimeout {
		return Result{}, false
	}
	r := e.last
	r.Confidence *= 0.5
	r.Held = true
	return r, true
}

// Reset discards all buffered samples and history.
func (e *Extractor) Reset() {
	e.samples = e.samples[:0]
	e.history = e.history[:0]
	e.lastRun = time.Time{}
	e.last = Result{}
	e.hasLast = false
}

func (e *Extractor) confidence() float64 {
	if len(e.history) < 2 {
		return e.config.DefaultConfidence
	}
	return mathutil.Clamp01(1 - e.config.CVGain*mathutil.CoefficientOfVariation(e.history))
}

// channelBPM runs the peak pipeline on one channel of the buffer.
func (e *Extractor) channelBPM(ch Channel) (float64, bool) {
	n := len(e.samples)
	span := e.samples[n-1].At.Sub(e.samples[0].At)
	if span <= 0 {
		return 0, false
	}

	values := make([]float64, n)
	times := make([]time.Time, n)
	for i, s := range e.samples {
		values[i] = ch.value(s)
		times[i] = s.At
	}

	rate := float64(n-1) / span.Seconds()
	sigma := e.config.SmoothingSigma.Seconds() * rate
	if sigma < 1 {
		sigma = 1
	}
	smoothed := GaussianSmooth(Detrend(values), sigma)

	minDistance := time.Duration(60 / e.config.MaxPeakBPM * float64(time.Second))
	peaks := FindPeaks(smoothed, times, e.config.PeakHeightFactor, minDistance)
	if len(peaks) < 2 {
		return 0, false
	}

	intervals := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals = append(intervals, times[peaks[i]].Sub(times[peaks[i-1]]).Seconds())
	}
	mean := mathutil.Mean(RejectOutliers(intervals))
	if mean <= 0 {
		return 0, false
	}

	bpm := 60 / mean
	if bpm < e.config.MinBPM || bpm > e.config.MaxBPM {
		return 0, false
	}
	return bpm, true
}
