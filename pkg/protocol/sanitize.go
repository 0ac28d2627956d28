package protocol

import (
	"encoding/json"
	"math"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Defaults for tracking fields that are missing or out of range.
const (
	DefaultEyeAspectRatio       = 0.3
	DefaultPupilDiameter        = 4.0
	DefaultPupilDilationPercent = 50.0
)

// Accepted ranges for incoming tracking fields.
const (
	maxBlinkRate       = 200
	maxEyeAspectRatio  = 2
	maxSaccadeVelocity = 100000
	maxGazeDuration    = 3600
	maxPupilDiameter   = 20
	maxHeadAngle       = 180
	maxHeadPosition    = 10000
	minBPM             = 30
	maxBPM             = 250
)

// fields is a decoded JSON object. Lookups treat values of the wrong JSON
// type as missing.
type fields map[string]any

func parseFields(raw json.RawMessage) fields {
	var f fields
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil {
		return fields{}
	}
	return f
}

func (f fields) number(key string) (float64, bool) {
	v, ok := f[key].(float64)
	if !ok || !mathutil.Finite(v) {
		return 0, false
	}
	return v, true
}

// within returns the value of key if it lies in [lo, hi], else def.
func (f fields) within(key string, lo, hi, def float64) float64 {
	if v, ok := f.number(key); ok && v >= lo && v <= hi {
		return v
	}
	return def
}

func (f fields) boolean(key string) bool {
	v, _ := f[key].(bool)
	return v
}

func (f fields) str(key, def string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return def
}

func (f fields) object(key string) (fields, bool) {
	v, ok := f[key].(map[string]any)
	return fields(v), ok
}

func (f fields) timestamp(key string, now time.Time) int64 {
	if v, ok := f.number(key); ok && v > 0 && v < math.MaxInt64 {
		return int64(v)
	}
	return now.UnixMilli()
}

// SanitizeTracking validates a raw tracking payload field by field. It never
// fails: missing, mistyped or out-of-range fields take their defaults, and a
// missing timestamp becomes now.
func SanitizeTracking(raw json.RawMessage, now time.Time) TrackingData {
	return sanitizeTracking(parseFields(raw), now)
}

func sanitizeTracking(f fields, now time.Time) TrackingData {
	d := TrackingData{
		BlinkRate:            f.within("blinkRate", 0, maxBlinkRate, 0),
		IsBlinking:           f.boolean("isBlinking"),
		BlinkJustDetected:    f.boolean("blinkJustDetected"),
		EyeAspectRatio:       f.within("eyeAspectRatio", 0, maxEyeAspectRatio, DefaultEyeAspectRatio),
		SaccadeVelocity:      f.within("saccadeVelocity", 0, maxSaccadeVelocity, 0),
		GazeDuration:         f.within("gazeDuration", 0, maxGazeDuration, 0),
		PupilDilationPercent: f.within("pupilDilationPercent", 0, 100, DefaultPupilDilationPercent),
		FaceDetected:         f.boolean("faceDetected"),
		Timestamp:            f.timestamp("timestamp", now),
	}

	if v, ok := f.number("blinkCount"); ok && v >= 0 && v == math.Trunc(v) && v <= math.MaxInt32 {
		d.BlinkCount = int(v)
	}

	d.PupilDiameter = DefaultPupilDiameter
	if v, ok := f.number("pupilDiameter"); ok && v > 0 && v <= maxPupilDiameter {
		d.PupilDiameter = v
	}

	if g, ok := f.object("gazeDirection"); ok {
		d.GazeDirection.X = g.within("x", -1, 1, 0)
		d.GazeDirection.Y = g.within("y", -1, 1, 0)
	}
	if h, ok := f.object("headDirection"); ok {
		d.HeadDirection.Pitch = h.within("pitch", -maxHeadAngle, maxHeadAngle, 0)
		d.HeadDirection.Yaw = h.within("yaw", -maxHeadAngle, maxHeadAngle, 0)
		d.HeadDirection.Roll = h.within("roll", -maxHeadAngle, maxHeadAngle, 0)
	}
	if p, ok := f.object("headPosition"); ok {
		d.HeadPosition.X = p.within("x", -maxHeadPosition, maxHeadPosition, 0)
		d.HeadPosition.Y = p.within("y", -maxHeadPosition, maxHeadPosition, 0)
		d.HeadPosition.Z = p.within("z", -maxHeadPosition, maxHeadPosition, 0)
	}

	if h, ok := f.object("heartRate"); ok {
		hr := sanitizeHeartRate(h)
		d.HeartRate = &hr
	}
	if e, ok := f.object("emotions"); ok {
		em := sanitizeEmotion(e)
		d.Emotions = &em
	}
	return d
}

// SanitizeHeartRate validates a raw heart-rate payload. A BPM outside the
// physiological range is reported as 0 with confidence 0.
func SanitizeHeartRate(raw json.RawMessage) HeartRateData {
	return sanitizeHeartRate(parseFields(raw))
}

func sanitizeHeartRate(f fields) HeartRateData {
	bpm, ok := f.number("bpm")
	if !ok || bpm < minBPM || bpm > maxBPM {
		return HeartRateData{}
	}
	conf, _ := f.number("confidence")
	return HeartRateData{BPM: bpm, Confidence: mathutil.Clamp01(conf)}
}

// SanitizeEmotion validates a raw emotion payload. Scores are clamped to
// [0, 1] and an unknown dominant category becomes neutral.
func SanitizeEmotion(raw json.RawMessage) EmotionData {
	return sanitizeEmotion(parseFields(raw))
}

func sanitizeEmotion(f fields) EmotionData {
	var r EmotionData
	for _, c := range emotions.Categories {
		v, _ := f.number(string(c))
		r.Scores.Set(c, mathutil.Clamp01(v))
	}
	r.Dominant = emotions.Neutral
	if c, err := emotions.Parse(f.str("dominant", "")); err == nil {
		r.Dominant = c
	}
	v, _ := f.number("dominantScore")
	r.DominantScore = mathutil.Clamp01(v)
	return r
}

// SanitizeFeedback validates a raw biofeedback payload.
func SanitizeFeedback(raw json.RawMessage, now time.Time) Feedback {
	f := parseFields(raw)
	return Feedback{
		Type:      f.str("type", FeedbackInfo),
		Message:   f.str("message", ""),
		Timestamp: f.timestamp("timestamp", now),
	}
}
