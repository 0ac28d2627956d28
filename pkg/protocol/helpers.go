package protocol

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Helper functions for creating data submissions
// =============================================================================

// NewEyeTracking wraps a tracking frame addressed to target.
func NewEyeTracking(target string, d TrackingData) (EyeTracking, error) {
	raw, err := marshalPayload(TypeEyeTrackingData, d)
	return EyeTracking{TargetID: target, TrackingData: raw}, err
}

// NewHeartRate wraps a heart-rate estimate addressed to target.
func NewHeartRate(target string, d HeartRateData) (HeartRate, error) {
	raw, err := marshalPayload(TypeHeartRateData, d)
	return HeartRate{TargetID: target, HeartRateData: raw}, err
}

// NewEmotion wraps an emotion reading addressed to target.
func NewEmotion(target string, d EmotionData) (Emotion, error) {
	raw, err := marshalPayload(TypeEmotionData, d)
	return Emotion{TargetID: target, EmotionData: raw}, err
}

// NewBiofeedback wraps a prompt addressed to target.
func NewBiofeedback(target string, f Feedback) (Biofeedback, error) {
	raw, err := marshalPayload(TypeBiofeedback, f)
	return Biofeedback{TargetID: target, Feedback: raw}, err
}

func marshalPayload(t MessageType, v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", t, err)
	}
	return raw, nil
}
