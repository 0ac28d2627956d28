package fusion

import (
	"sync"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
)

// DefaultHistory is the number of samples a Monitor keeps per signal.
const DefaultHistory = 100

// Tracking is the eye-derived part of a received frame.
type Tracking struct {
	BlinkRate       float64
	BlinkCount      int
	GazeDuration    float64
	SaccadeVelocity float64
	At              time.Time
}

// HeartRate is one received heart-rate reading.
type HeartRate struct {
	BPM        float64
	Confidence float64
	At         time.Time
}

// Scores is the fused view of the most recent samples.
type Scores struct {
	Stress          int               `json:"stress"`
	StressLevel     Level             `json:"stress_level"`
	Attention       int               `json:"attention"`
	AttentionLevel  Level             `json:"attention_level"`
	BPM             float64           `json:"bpm"`
	BlinkRate       float64           `json:"blink_rate"`
	GazeDuration    float64           `json:"gaze_duration"`
	SaccadeVelocity float64           `json:"saccade_velocity"`
	TotalBlinks     int               `json:"total_blinks"`
	Emotion         *emotions.Reading `json:"emotion,omitempty"`
}

// Monitor keeps rolling windows of the signals received from one peer.
// It is safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	size      int
	tracking  []Tracking
	heart     []HeartRate
	emotion   *emotions.Reading
	total     int
	lastCount int
}

// NewMonitor creates a monitor keeping size samples per signal. A
// non-positive size uses DefaultHistory.
func NewMonitor(size int) *Monitor {
	if size <= 0 {
		size = DefaultHistory
	}
	return &Monitor{size: size}
}

// AddTracking records a tracking sample and advances the cumulative blink
// total. A sender counter that goes backwards is treated as a restart.
func (m *Monitor) AddTracking(t Tracking) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case t.BlinkCount >= m.lastCount:
		m.total += t.BlinkCount - m.lastCount
	default:
		m.total += t.BlinkCount
	}
	m.lastCount = t.BlinkCount

	m.tracking = appendBounded(m.tracking, t, m.size)
}

// AddHeartRate records a heart-rate reading. Readings without a BPM are
// ignored.
func (m *Monitor) AddHeartRate(h HeartRate) {
	if h.BPM <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heart = appendBounded(m.heart, h, m.size)
}

// SetEmotion records the latest emotion reading.
func (m *Monitor) SetEmotion(r emotions.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emotion = &r
}

// Scores fuses the latest samples. ok is false until at least one tracking
// sample and one heart-rate reading have arrived.
func (m *Monitor) Scores() (Scores, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tracking) == 0 || len(m.heart) == 0 {
		return Scores{}, false
	}
	t := m.tracking[len(m.tracking)-1]
	h := m.heart[len(m.heart)-1]

	stress := Stress(h.BPM, t.BlinkRate)
	attention := Attention(t.GazeDuration, t.SaccadeVelocity)
	s := Scores{
		Stress:          stress,
		StressLevel:     StressLevel(stress),
		Attention:       attention,
		AttentionLevel:  AttentionLevel(attention),
		BPM:             h.BPM,
		BlinkRate:       t.BlinkRate,
		GazeDuration:    t.GazeDuration,
		SaccadeVelocity: t.SaccadeVelocity,
		TotalBlinks:     m.total,
	}
	if m.emotion != nil {
		e := *m.emotion
		s.Emotion = &e
	}
	return s, true
}

// TotalBlinks returns the cumulative blink count across sender restarts.
func (m *Monitor) TotalBlinks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Len returns the number of buffered tracking and heart-rate samples.
func (m *Monitor) Len() (tracking, heart int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracking), len(m.heart)
}

// Reset discards everything, e.g. when the peer disconnects.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking = nil
	m.heart = nil
	m.emotion = nil
	m.total = 0
	m.lastCount = 0
}

func appendBounded[T any](s []T, v T, size int) []T {
	s = append(s, v)
	if len(s) > size {
		s = append(s[:0], s[len(s)-size:]...)
	}
	return s
}
