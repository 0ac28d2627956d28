// Package session runs the capture pipeline of one tracking session.
//
// A session owns three periodic tasks. The eye task detects the face and
// updates the eye tracker and head pose. The heart task samples skin color
// inside the latest face box and runs the heart-rate extractor. The emit
// task assembles the latest results into a tracking frame and hands it to
// a Sink. Each task owns its own state and publishes immutable snapshots;
// no task waits for another.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
	"github.com/teslashibe/go-biotracker/pkg/eyes"
	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/headpose"
	"github.com/teslashibe/go-biotracker/pkg/protocol"
	"github.com/teslashibe/go-biotracker/pkg/rppg"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrStopped is returned when starting a stopped session.
	ErrStopped = errors.New("session: stopped")
)

// FrameSource captures JPEG frames.
type FrameSource interface {
	CaptureJPEG() ([]byte, error)
}

// Sampler measures the weighted mean skin color inside a face box.
type Sampler interface {
	Sample(jpeg []byte, box face.BoundingBox) (rppg.Color, error)
}

// Sink receives the outbound stream.
type Sink interface {
	SendTracking(ctx context.Context, d protocol.TrackingData) error
	SendHeartRate(ctx context.Context, d protocol.HeartRateData) error
	SendEmotion(ctx context.Context, d protocol.EmotionData) error
}

// EyeSnapshot is the result of one eye cycle.
type EyeSnapshot struct {
	Metrics eyes.Metrics
	Pose    headpose.Pose
	Box     face.BoundingBox
	Emotion *emotions.Reading
}

// Snapshot is the latest state of all tasks.
type Snapshot struct {
	Eyes  *EyeSnapshot
	Heart *rppg.Result
}

// Stats counts pipeline events.
type Stats struct {
	Frames        uint64 `json:"frames"`
	NoFace        uint64 `json:"no_face"`
	CaptureErrors uint64 `json:"capture_errors"`
	DetectErrors  uint64 `json:"detect_errors"`
	Samples       uint64 `json:"samples"`
	Rejected      uint64 `json:"rejected_samples"`
	Estimates     uint64 `json:"estimates"`
	Emitted       uint64 `json:"emitted"`
	SendErrors    uint64 `json:"send_errors"`
}

// Session is one running capture pipeline.
type Session struct {
	id       string
	config   *Config
	source   FrameSource
	detector face.Detector
	sampler  Sampler
	sink     Sink
	logger   *slog.Logger

	// Task-owned state. Only the owning goroutine touches these while
	// the session runs.
	tracker   *eyes.Tracker
	pose      *headpose.Estimator
	extractor *rppg.Extractor

	eye   atomic.Pointer[EyeSnapshot]
	heart atomic.Pointer[rppg.Result]

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool

	frames, noFace, captureErrs, detectErrs atomic.Uint64
	samples, rejected, estimates            atomic.Uint64
	emitted, sendErrs                       atomic.Uint64
}

// New creates a session. sampler may be nil, in which case no heart rate is
// estimated.
func New(id string, source FrameSource, detector face.Detector, sampler Sampler, sink Sink, opts ...Option) *Session {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		id:        id,
		config:    cfg,
		source:    source,
		detector:  detector,
		sampler:   sampler,
		sink:      sink,
		logger:    cfg.Logger.With("component", "session", "session", id),
		tracker:   eyes.NewTracker(cfg.Eyes),
		pose:      headpose.New(cfg.Head),
		extractor: rppg.New(cfg.Heart),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Start launches the pipeline tasks. They run until Stop is called or ctx
// is done.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return ErrStopped
	case s.started:
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.spawn(ctx, s.config.EyeInterval, s.eyeCycle)
	if s.sampler != nil {
		s.spawn(ctx, s.config.HeartInterval, s.heartCycle)
	}
	s.spawn(ctx, s.config.EmitInterval, (&emitter{s: s}).cycle)

	s.logger.Info("session started",
		"eye_interval", s.config.EyeInterval,
		"heart_interval", s.config.HeartInterval,
		"emit_interval", s.config.EmitInterval,
		"heart", s.sampler != nil)
	return nil
}

// spawn runs fn on every tick. A cycle that overruns its interval causes
// the missed ticks to be dropped.
func (s *Session) spawn(ctx context.Context, interval time.Duration, fn func(context.Context, time.Time)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				fn(ctx, now)
			}
		}
	}()
}

// Stop cancels all tasks, waits for them to exit and discards buffered
// state. It is safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.tracker.Reset()
	s.pose.Reset()
	s.extractor.Reset()
	s.eye.Store(nil)
	s.heart.Store(nil)

	s.logger.Info("session stopped", "frames", s.frames.Load(), "emitted", s.emitted.Load())
}

// Snapshot returns the latest published results.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{Eyes: s.eye.Load(), Heart: s.heart.Load()}
}

// GetStats returns the pipeline counters.
func (s *Session) GetStats() Stats {
	return Stats{
		Frames:        s.frames.Load(),
		NoFace:        s.noFace.Load(),
		CaptureErrors: s.captureErrs.Load(),
		DetectErrors:  s.detectErrs.Load(),
		Samples:       s.samples.Load(),
		Rejected:      s.rejected.Load(),
		Estimates:     s.estimates.Load(),
		Emitted:       s.emitted.Load(),
		SendErrors:    s.sendErrs.Load(),
	}
}

func (s *Session) eyeCycle(ctx context.Context, now time.Time) {
	frame, err := s.source.CaptureJPEG()
	if err != nil {
		s.captureErrs.Add(1)
		s.logger.Debug("capture failed", "error", err)
		return
	}
	s.frames.Add(1)

	obs, err := s.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.detectErrs.Add(1)
		s.logger.Debug("detect failed", "error", err)
		return
	}
	if obs == nil {
		s.noFace.Add(1)
		s.eye.Store(&EyeSnapshot{Metrics: s.tracker.Missing(now)})
		return
	}

	pose := s.pose.Estimate(obs)
	snap := &EyeSnapshot{
		Metrics: s.tracker.Update(obs.LeftEye, obs.RightEye, pose.Rotation, now),
		Pose:    pose,
		Box:     obs.Box,
	}
	if obs.Expressions != nil {
		r := emotions.Classify(*obs.Expressions, now)
		snap.Emotion = &r
	}
	s.eye.Store(snap)
}

func (s *Session) heartCycle(_ context.Context, now time.Time) {
	snap := s.eye.Load()
	if snap == nil || !snap.Metrics.FaceDetected || now.Sub(snap.Metrics.At) > s.config.StaleFace {
		s.publishHeart(now)
		return
	}

	frame, err := s.source.CaptureJPEG()
	if err != nil {
		s.captureErrs.Add(1)
		return
	}
	color, err := s.sampler.Sample(frame, snap.Box)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Debug("sample failed", "error", err)
	} else if s.extractor.AddSample(rppg.Sample{R: color.R, G: color.G, B: color.B, At: now}) {
		s.samples.Add(1)
	} else {
		s.rejected.Add(1)
	}

	s.publishHeart(now)
}

// publishHeart runs a rate-limited estimate and publishes the accepted
// result, or the held previous one while it is still fresh.
func (s *Session) publishHeart(now time.Time) {
	r := s.extractor.Estimate(now)
	switch {
	case r.Status == rppg.StatusThrottled:
		return
	case r.OK():
		s.estimates.Add(1)
		s.heart.Store(&r)
	default:
		if held, ok := s.extractor.Hold(now); ok {
			s.heart.Store(&held)
		} else {
			s.heart.Store(nil)
		}
	}
}

// emitter holds the state of the emit task.
type emitter struct {
	s         *Session
	lastHeart time.Time
	lastMood  time.Time
}

func (e *emitter) cycle(ctx context.Context, now time.Time) {
	s := e.s
	snap := s.eye.Load()
	if snap == nil {
		return
	}
	heart := s.heart.Load()

	d := TrackingFrame(snap, heart, now)
	if err := s.sink.SendTracking(ctx, d); err != nil {
		e.sendFailed(ctx, "tracking", err)
		return
	}
	s.emitted.Add(1)

	if heart != nil && !heart.Held && heart.At.After(e.lastHeart) {
		if err := s.sink.SendHeartRate(ctx, *d.HeartRate); err != nil {
			e.sendFailed(ctx, "heart_rate", err)
		} else {
			e.lastHeart = heart.At
		}
	}

	if snap.Emotion != nil && snap.Emotion.Timestamp.After(e.lastMood) {
		if err := s.sink.SendEmotion(ctx, *snap.Emotion); err != nil {
			e.sendFailed(ctx, "emotion", err)
		} else {
			e.lastMood = snap.Emotion.Timestamp
		}
	}
}

func (e *emitter) sendFailed(ctx context.Context, kind string, err error) {
	if ctx.Err() != nil {
		return
	}
	e.s.sendErrs.Add(1)
	e.s.logger.Debug("send failed", "kind", kind, "error", err)
}

// TrackingFrame assembles the outbound tracking record. heart may be nil.
func TrackingFrame(snap *EyeSnapshot, heart *rppg.Result, now time.Time) protocol.TrackingData {
	m := snap.Metrics
	d := protocol.TrackingData{
		BlinkRate:            m.BlinkRate,
		BlinkCount:           m.BlinkCount,
		IsBlinking:           m.IsBlinking,
		BlinkJustDetected:    m.JustBlinked,
		EyeAspectRatio:       m.EAR,
		SaccadeVelocity:      m.SaccadeVelocity,
		GazeDuration:         m.GazeDuration,
		GazeDirection:        m.Gaze,
		PupilDiameter:        m.PupilDiameter,
		PupilDilationPercent: m.PupilDilationPercent,
		HeadDirection:        snap.Pose.Rotation,
		HeadPosition:         snap.Pose.Position,
		FaceDetected:         m.FaceDetected,
		Timestamp:            now.UnixMilli(),
	}
	if heart != nil && heart.OK() {
		d.HeartRate = &protocol.HeartRateData{BPM: heart.BPM, Confidence: heart.Confidence}
	}
	if snap.Emotion != nil {
		r := *snap.Emotion
		d.Emotions = &r
	}
	return d
}
