package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
	"github.com/teslashibe/go-biotracker/pkg/eyes"
	"github.com/teslashibe/go-biotracker/pkg/headpose"
)

var receivedAt = time.UnixMilli(1_700_000_000_000)

func TestEncodeSetsType(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"register", Register{DeviceType: RoleMobile}, `{"type":"register","deviceType":"mobile"}`},
		{"ping", Ping{}, `{"type":"ping"}`},
		{"pair request", PairRequest{SourceID: "m1"}, `{"type":"pair_request","sourceId":"m1"}`},
		{"laptops", AvailableLaptops{Laptops: []string{"a", "b"}}, `{"type":"available_laptops","laptops":["a","b"]}`},
		{"disconnect", LaptopDisconnected{LaptopID: "l1"}, `{"type":"laptop_disconnected","laptopId":"l1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{"register", `{"type":"register","deviceType":"laptop"}`, Register{DeviceType: RoleLaptop}},
		{"pair accept", `{"type":"pair_accept","targetId":"m1"}`, PairAccept{TargetID: "m1"}},
		{"ping", `{"type":"ping"}`, Ping{}},
		{"pong", `{"type":"pong","ts":42}`, Pong{TS: 42}},
		{"registered", `{"type":"registered","id":"x","deviceType":"mobile"}`, Registered{ID: "x", DeviceType: RoleMobile}},
		{
			"biofeedback",
			`{"type":"biofeedback","targetId":"m1","feedback":{"type":"breathing"}}`,
			Biofeedback{TargetID: "m1", Feedback: json.RawMessage(`{"type":"breathing"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `hello`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"no type", `{"targetId":"x"}`, ErrMalformed},
		{"numeric type", `{"type":7}`, ErrMalformed},
		{"bad field type", `{"type":"pair_accept","targetId":5}`, ErrMalformed},
		{"unknown", `{"type":"teleport"}`, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoundTripUpdate(t *testing.T) {
	hr := HeartRateData{BPM: 72, Confidence: 0.8}
	in := EyeTrackingUpdate{
		SourceID: "m1",
		Data: TrackingData{
			BlinkRate:     12.5,
			GazeDirection: eyes.Gaze{X: 0.1, Y: -0.2},
			HeadDirection: headpose.Rotation{Yaw: 10},
			HeartRate:     &hr,
			Emotions:      &EmotionData{Scores: emotions.Scores{Happy: 0.7}, Dominant: emotions.Happy, DominantScore: 0.7},
			FaceDetected:  true,
			Timestamp:     123,
		},
	}

	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(Message(in), got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeTrackingDefaults(t *testing.T) {
	got := SanitizeTracking(nil, receivedAt)
	want := TrackingData{
		EyeAspectRatio:       DefaultEyeAspectRatio,
		PupilDiameter:        DefaultPupilDiameter,
		PupilDilationPercent: DefaultPupilDilationPercent,
		Timestamp:            receivedAt.UnixMilli(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeTracking(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeTrackingRanges(t *testing.T) {
	raw := json.RawMessage(`{
		"blinkRate": 500,
		"blinkCount": 3.5,
		"isBlinking": "yes",
		"blinkJustDetected": true,
		"eyeAspectRatio": -1,
		"saccadeVelocity": 250,
		"gazeDuration": 7200,
		"gazeDirection": {"x": 2, "y": -0.5},
		"pupilDiameter": 0,
		"pupilDilationPercent": 101,
		"headDirection": {"pitch": 10, "yaw": -200, "roll": "left"},
		"headPosition": {"x": 1, "y": 20000, "z": -3},
		"heartRate": {"bpm": 300, "confidence": 0.9},
		"emotions": {"happy": 1.5, "sad": -1, "dominant": "bored", "dominantScore": 2},
		"faceDetected": true,
		"timestamp": -5
	}`)

	got := SanitizeTracking(raw, receivedAt)
	want := TrackingData{
		BlinkJustDetected:    true,
		EyeAspectRatio:       DefaultEyeAspectRatio,
		SaccadeVelocity:      250,
		GazeDirection:        eyes.Gaze{X: 0, Y: -0.5},
		PupilDiameter:        DefaultPupilDiameter,
		PupilDilationPercent: DefaultPupilDilationPercent,
		HeadDirection:        headpose.Rotation{Pitch: 10},
		HeadPosition:         headpose.Position{X: 1, Z: -3},
		HeartRate:            &HeartRateData{},
		Emotions: &EmotionData{
			Scores:        emotions.Scores{Happy: 1},
			Dominant:      emotions.Neutral,
			DominantScore: 1,
		},
		FaceDetected: true,
		Timestamp:    receivedAt.UnixMilli(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeTracking() mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeHeartRate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want HeartRateData
	}{
		{"valid", `{"bpm":72,"confidence":0.8}`, HeartRateData{BPM: 72, Confidence: 0.8}},
		{"confidence clamped", `{"bpm":72,"confidence":3}`, HeartRateData{BPM: 72, Confidence: 1}},
		{"missing confidence", `{"bpm":72}`, HeartRateData{BPM: 72}},
		{"too low", `{"bpm":20,"confidence":0.9}`, HeartRateData{}},
		{"string bpm", `{"bpm":"72","confidence":0.9}`, HeartRateData{}},
		{"not an object", `42`, HeartRateData{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, SanitizeHeartRate(json.RawMessage(tt.in))); diff != "" {
				t.Errorf("SanitizeHeartRate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSanitizeFeedback(t *testing.T) {
	got := SanitizeFeedback(json.RawMessage(`{"message":7}`), receivedAt)
	want := Feedback{Type: FeedbackInfo, Timestamp: receivedAt.UnixMilli()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeFeedback() mismatch (-want +got):\n%s", diff)
	}

	got = SanitizeFeedback(json.RawMessage(`{"type":"breathing","message":"slow down","timestamp":99}`), receivedAt)
	want = Feedback{Type: FeedbackBreathing, Message: "slow down", Timestamp: 99}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeFeedback() mismatch (-want +got):\n%s", diff)
	}
}

func TestHelpersProduceSanitizablePayloads(t *testing.T) {
	d := TrackingData{BlinkRate: 12.5, BlinkCount: 4, EyeAspectRatio: 0.28, PupilDiameter: 3, PupilDilationPercent: 40, Timestamp: 1}
	msg, err := NewEyeTracking("l1", d)
	if err != nil {
		t.Fatalf("NewEyeTracking() error = %v", err)
	}
	if msg.TargetID != "l1" {
		t.Errorf("TargetID = %q, want l1", msg.TargetID)
	}
	if diff := cmp.Diff(d, SanitizeTracking(msg.TrackingData, receivedAt)); diff != "" {
		t.Errorf("sanitized payload mismatch (-want +got):\n%s", diff)
	}
}

func TestRole(t *testing.T) {
	if !RoleMobile.Valid() || !RoleLaptop.Valid() || Role("tablet").Valid() {
		t.Error("Valid() mismatch")
	}
	if RoleMobile.Opposite() != RoleLaptop || RoleLaptop.Opposite() != RoleMobile {
		t.Error("Opposite() mismatch")
	}
}
