package fusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/protocol"
)

// AddFrame records a received tracking frame, including the heart rate and
// emotion it carries. The eye fields of a frame without a face are zero
// placeholders, so such frames leave the tracking window and the blink
// total untouched.
func (m *Monitor) AddFrame(d protocol.TrackingData, at time.Time) {
	if d.FaceDetected {
		m.AddTracking(Tracking{
			BlinkRate:       d.BlinkRate,
			BlinkCount:      d.BlinkCount,
			GazeDuration:    d.GazeDuration,
			SaccadeVelocity: d.SaccadeVelocity,
			At:              at,
		})
	}
	if d.HeartRate != nil {
		m.AddHeartRate(HeartRate{BPM: d.HeartRate.BPM, Confidence: d.HeartRate.Confidence, At: at})
	}
	if d.Emotions != nil {
		m.SetEmotion(*d.Emotions)
	}
}

// Coach decides when to prompt the user to breathe. It is safe for
// concurrent use.
type Coach struct {
	Cooldown time.Duration // minimum time between prompts

	mu   sync.Mutex
	last time.Time
}

// DefaultCooldown spaces breathing prompts.
const DefaultCooldown = 30 * time.Second

// NewCoach creates a coach with DefaultCooldown.
func NewCoach() *Coach {
	return &Coach{Cooldown: DefaultCooldown}
}

// Check returns a breathing prompt when stress is high and the cooldown
// has passed.
func (c *Coach) Check(s Scores, now time.Time) (protocol.Feedback, bool) {
	if s.StressLevel != High {
		return protocol.Feedback{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.last.IsZero() && now.Sub(c.last) < c.Cooldown {
		return protocol.Feedback{}, false
	}
	c.last = now
	return protocol.Feedback{
		Type:      protocol.FeedbackBreathing,
		Message:   fmt.Sprintf("Stress is high (%d). Breathe in for 4 seconds, out for 6.", s.Stress),
		Timestamp: now.UnixMilli(),
	}, true
}

// Reset forgets the last prompt.
func (c *Coach) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Time{}
}
