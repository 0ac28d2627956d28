package rppg

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-biotracker/pkg/face"
)

var epoch = time.Unix(1_700_000_000, 0)

// pulse returns a sample whose channels oscillate at bpm on top of a skin
// tone baseline.
func pulse(t time.Duration, bpm, amplitude float64) Sample {
	v := amplitude * math.Sin(2*math.Pi*bpm/60*t.Seconds())
	return Sample{R: 150 + 0.5*v, G: 110 + v, B: 90 + 0.3*v, At: epoch.Add(t)}
}

func TestExtractorCleanSignal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 500 * time.Millisecond
	e := New(cfg)

	var last Result
	for t0 := time.Duration(0); t0 <= 20*time.Second; t0 += 100 * time.Millisecond {
		require.True(t, e.AddSample(pulse(t0, 72, 2)))
		if t0%(500*time.Millisecond) == 0 {
			if r := e.Estimate(epoch.Add(t0)); r.OK() {
				last = r
			}
		}
	}

	require.True(t, last.OK(), "expected an accepted estimate")
	assert.InDelta(t, 72, last.BPM, 5)
	assert.Greater(t, last.Confidence, 0.7)
	assert.Equal(t, Green, last.Channel)
	assert.LessOrEqual(t, len(e.history), cfg.HistorySize)
}

func TestExtractorInsufficient(t *testing.T) {
	e := New(DefaultConfig())
	for i := 0; i < 3; i++ {
		e.AddSample(pulse(time.Duration(i)*100*time.Millisecond, 72, 2))
	}

	r := e.Estimate(epoch.Add(300 * time.Millisecond))
	assert.Equal(t, StatusInsufficient, r.Status)
	assert.False(t, r.OK())
}

func TestExtractorFlatSignal(t *testing.T) {
	e := New(DefaultConfig())
	for i := 0; i < 150; i++ {
		e.AddSample(Sample{R: 120, G: 100, B: 80, At: epoch.Add(time.Duration(i) * 100 * time.Millisecond)})
	}

	r := e.Estimate(epoch.Add(15 * time.Second))
	assert.Equal(t, StatusNoSignal, r.Status)
	assert.Zero(t, r.BPM)
}

func TestExtractorRejectsImplausibleRate(t *testing.T) {
	e := New(DefaultConfig())
	for t0 := time.Duration(0); t0 <= 15*time.Second; t0 += 100 * time.Millisecond {
		e.AddSample(pulse(t0, 20, 2))
	}

	r := e.Estimate(epoch.Add(15 * time.Second))
	assert.Equal(t, StatusNoSignal, r.Status)
}

func TestExtractorThrottle(t *testing.T) {
	e := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		e.AddSample(pulse(time.Duration(i)*100*time.Millisecond, 72, 2))
	}

	first := e.Estimate(epoch.Add(time.Second))
	assert.NotEqual(t, StatusThrottled, first.Status)

	second := e.Estimate(epoch.Add(1500 * time.Millisecond))
	assert.Equal(t, StatusThrottled, second.Status)

	third := e.Estimate(epoch.Add(2 * time.Second))
	assert.NotEqual(t, StatusThrottled, third.Status)
}

func TestAddSampleRejectsDarkAndInvalid(t *testing.T) {
	e := New(DefaultConfig())

	assert.False(t, e.AddSample(Sample{R: 20, G: 30, B: 25, At: epoch}))
	assert.False(t, e.AddSample(Sample{R: math.NaN(), G: 100, B: 100, At: epoch}))
	assert.True(t, e.AddSample(Sample{R: 120, G: 100, B: 80, At: epoch}))
	assert.Equal(t, 1, e.Len())
}

func TestWindowTrim(t *testing.T) {
	e := New(DefaultConfig())
	for i := 0; i <= 300; i++ {
		e.AddSample(pulse(time.Duration(i)*100*time.Millisecond, 72, 2))
	}
	// 30 s of samples at 10 Hz keeps the last 15 s inclusive.
	assert.Equal(t, 151, e.Len())
}

func TestHold(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)

	_, ok := e.Hold(epoch)
	assert.False(t, ok, "nothing to hold before the first estimate")

	for t0 := time.Duration(0); t0 <= 10*time.Second; t0 += 100 * time.Millisecond {
		e.AddSample(pulse(t0, 72, 2))
	}
	r := e.Estimate(epoch.Add(10 * time.Second))
	require.True(t, r.OK())

	held, ok := e.Hold(epoch.Add(12 * time.Second))
	require.True(t, ok)
	assert.True(t, held.Held)
	assert.Equal(t, r.BPM, held.BPM)
	assert.InDelta(t, r.Confidence/2, held.Confidence, 1e-12)

	_, ok = e.Hold(epoch.Add(10*time.Second + cfg.HoldTimeout + time.Millisecond))
	assert.False(t, ok, "hold expires after HoldTimeout")

	e.Reset()
	assert.Zero(t, e.Len())
	_, ok = e.Hold(epoch.Add(11 * time.Second))
	assert.False(t, ok)
}

func TestConfidenceSingleEstimate(t *testing.T) {
	e := New(DefaultConfig())
	for t0 := time.Duration(0); t0 <= 10*time.Second; t0 += 100 * time.Millisecond {
		e.AddSample(pulse(t0, 72, 2))
	}
	r := e.Estimate(epoch.Add(10 * time.Second))
	require.True(t, r.OK())
	assert.Equal(t, 0.5, r.Confidence)
}

func TestFindPeaksMinDistance(t *testing.T) {
	values := []float64{0, 5, 0, 6, 0, 0, 0, 0, 4, 0}
	times := make([]time.Time, len(values))
	for i := range times {
		times[i] = epoch.Add(time.Duration(i) * 100 * time.Millisecond)
	}

	peaks := FindPeaks(values, times, 0, 250*time.Millisecond)
	assert.Equal(t, []int{3, 8}, peaks)
}

func TestRejectOutliers(t *testing.T) {
	assert.Equal(t, []float64{1, 1, 1, 1}, RejectOutliers([]float64{1, 1, 10, 1, 1}))
	assert.Equal(t, []float64{1, 10}, RejectOutliers([]float64{1, 10}), "short input is returned unchanged")
}

func TestRecencyWeightedMean(t *testing.T) {
	assert.InDelta(t, (60.0+2*70+3*80)/6, RecencyWeightedMean([]float64{60, 70, 80}), 1e-9)
}

func TestGaussianSmoothPreservesConstant(t *testing.T) {
	out := GaussianSmooth([]float64{3, 3, 3, 3, 3}, 1.5)
	for _, v := range out {
		assert.InDelta(t, 3, v, 1e-12)
	}
}

func TestRegionRect(t *testing.T) {
	box := face.BoundingBox{X: 0, Y: 0, Width: 100, Height: 100}
	forehead := DefaultRegions[0]

	assert.Equal(t, image.Rect(20, 10, 80, 25), forehead.Rect(box, 640, 480))
	assert.Equal(t, image.Rect(20, 10, 50, 25), forehead.Rect(box, 50, 50))
	assert.True(t, forehead.Rect(face.BoundingBox{X: 1000, Y: 1000, Width: 10, Height: 10}, 640, 480).Empty())

	var total float64
	for _, r := range DefaultRegions {
		total += r.Weight
	}
	assert.InDelta(t, 1, total, 1e-12)
}

func TestBlend(t *testing.T) {
	c, ok := Blend(
		[]Color{{R: 100, G: 100, B: 100}, {R: 0, G: 0, B: 0}, {R: 200, G: 50, B: 0}},
		[]float64{0.5, 0, 0.5},
	)
	require.True(t, ok)
	assert.Equal(t, Color{R: 150, G: 75, B: 50}, c)

	_, ok = Blend([]Color{{}}, []float64{0})
	assert.False(t, ok)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "no_signal", StatusNoSignal.String())
	assert.Equal(t, "green", Green.String())
}
