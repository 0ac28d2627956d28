// Package protocol defines the JSON messages exchanged between devices and
// the relay. Every message is a flat object with a "type" field plus
// type-specific fields.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
	"github.com/teslashibe/go-biotracker/pkg/eyes"
	"github.com/teslashibe/go-biotracker/pkg/headpose"
)

// MessageType identifies the type of a message.
type MessageType string

const (
	// Device → Relay
	TypeRegister        MessageType = "register"
	TypePairAccept      MessageType = "pair_accept"
	TypeEyeTrackingData MessageType = "eye_tracking_data"
	TypeHeartRateData   MessageType = "heart_rate_data"
	TypeEmotionData     MessageType = "emotion_data"
	TypeBiofeedback     MessageType = "biofeedback"

	// Relay → Device
	TypeRegistered         MessageType = "registered"
	TypeAvailableLaptops   MessageType = "available_laptops"
	TypeAvailableMobiles   MessageType = "available_mobiles"
	TypeMobileConnected    MessageType = "mobile_connected"
	TypeMobileDisconnected MessageType = "mobile_disconnected"
	TypeLaptopConnected    MessageType = "laptop_connected"
	TypeLaptopDisconnected MessageType = "laptop_disconnected"
	TypePairConfirmed      MessageType = "pair_confirmed"
	TypePairRevoked        MessageType = "pair_revoked"
	TypeEyeTrackingUpdate  MessageType = "eye_tracking_update"
	TypeHeartRateUpdate    MessageType = "heart_rate_update"
	TypeEmotionUpdate      MessageType = "emotion_update"
	TypeBiofeedbackUpdate  MessageType = "biofeedback_update"
	TypePong               MessageType = "pong"

	// Both directions
	TypePairRequest MessageType = "pair_request"
	TypePing        MessageType = "ping"
)

// Role is the device type an endpoint registers as.
type Role string

const (
	RoleMobile Role = "mobile" // produces biometric data
	RoleLaptop Role = "laptop" // displays it
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMobile || r == RoleLaptop
}

// Opposite returns the role an endpoint of role r pairs with.
func (r Role) Opposite() Role {
	if r == RoleMobile {
		return RoleLaptop
	}
	return RoleMobile
}

// Message is implemented by every message variant in this package.
type Message interface {
	Kind() MessageType
	isMessage()
}

// =============================================================================
// Payloads
// =============================================================================

// HeartRateData is one heart-rate estimate.
type HeartRateData struct {
	BPM        float64 `json:"bpm"`
	Confidence float64 `json:"confidence"`
}

// EmotionData is a classified expression reading.
type EmotionData = emotions.Reading

// TrackingData is the biometric frame a mobile device emits a few times per
// second. Timestamp is Unix milliseconds.
type TrackingData struct {
	BlinkRate            float64           `json:"blinkRate"`
	BlinkCount           int               `json:"blinkCount"`
	IsBlinking           bool              `json:"isBlinking"`
	BlinkJustDetected    bool              `json:"blinkJustDetected"`
	EyeAspectRatio       float64           `json:"eyeAspectRatio"`
	SaccadeVelocity      float64           `json:"saccadeVelocity"`
	GazeDuration         float64           `json:"gazeDuration"`
	GazeDirection        eyes.Gaze         `json:"gazeDirection"`
	PupilDiameter        float64           `json:"pupilDiameter"`
	PupilDilationPercent float64           `json:"pupilDilationPercent"`
	HeadDirection        headpose.Rotation `json:"headDirection"`
	HeadPosition         headpose.Position `json:"headPosition"`
	HeartRate            *HeartRateData    `json:"heartRate,omitempty"`
	Emotions             *EmotionData      `json:"emotions,omitempty"`
	FaceDetected         bool              `json:"faceDetected"`
	Timestamp            int64             `json:"timestamp"`
}

// Feedback is a biofeedback prompt sent from the display to the mobile.
type Feedback struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Feedback types used by the monitor.
const (
	FeedbackInfo      = "info"
	FeedbackBreathing = "breathing"
)

// =============================================================================
// Registration
// =============================================================================

// Register announces the device type of a new connection.
type Register struct {
	DeviceType Role `json:"deviceType"`
}

// Registered acknowledges a Register and tells the endpoint its id.
type Registered struct {
	ID         string `json:"id"`
	DeviceType Role   `json:"deviceType"`
}

// AvailableLaptops lists registered laptops, sent to a new mobile.
type AvailableLaptops struct {
	Laptops []string `json:"laptops"`
}

// AvailableMobiles lists registered mobiles, sent to a new laptop.
type AvailableMobiles struct {
	Mobiles []string `json:"mobiles"`
}

// MobileConnected is broadcast to laptops when a mobile registers.
type MobileConnected struct {
	MobileID string `json:"mobileId"`
}

// MobileDisconnected is broadcast to laptops when a mobile leaves.
type MobileDisconnected struct {
	MobileID string `json:"mobileId"`
}

// LaptopConnected is broadcast to mobiles when a laptop registers.
type LaptopConnected struct {
	LaptopID string `json:"laptopId"`
}

// LaptopDisconnected is broadcast to mobiles when a laptop leaves.
type LaptopDisconnected struct {
	LaptopID string `json:"laptopId"`
}

// =============================================================================
// Pairing
// =============================================================================

// PairRequest carries TargetID from the requester and SourceID when the
// relay forwards it.
type PairRequest struct {
	TargetID string `json:"targetId,omitempty"`
	SourceID string `json:"sourceId,omitempty"`
}

// PairAccept accepts a pending request from TargetID.
type PairAccept struct {
	TargetID string `json:"targetId"`
}

// PairConfirmed tells both sides the link is up. SourceID is the peer.
type PairConfirmed struct {
	SourceID string `json:"sourceId"`
}

// PairRevoked tells an endpoint its peer re-paired with someone else.
type PairRevoked struct {
	SourceID string `json:"sourceId"`
}

// =============================================================================
// Data
// =============================================================================

// EyeTracking submits a tracking frame for the paired laptop. The payload
// stays raw until the relay sanitizes it.
type EyeTracking struct {
	TargetID     string          `json:"targetId"`
	TrackingData json.RawMessage `json:"trackingData,omitempty"`
}

// EyeTrackingUpdate is a sanitized tracking frame delivered to the laptop.
type EyeTrackingUpdate struct {
	SourceID string       `json:"sourceId"`
	Data     TrackingData `json:"data"`
}

// HeartRate submits a heart-rate estimate for the paired laptop.
type HeartRate struct {
	TargetID      string          `json:"targetId"`
	HeartRateData json.RawMessage `json:"heartRateData,omitempty"`
}

// HeartRateUpdate is a sanitized heart-rate estimate.
type HeartRateUpdate struct {
	SourceID string        `json:"sourceId"`
	Data     HeartRateData `json:"data"`
}

// Emotion submits an emotion reading for the paired laptop.
type Emotion struct {
	TargetID    string          `json:"targetId"`
	EmotionData json.RawMessage `json:"emotionData,omitempty"`
}

// EmotionUpdate is a sanitized emotion reading.
type EmotionUpdate struct {
	SourceID string      `json:"sourceId"`
	Data     EmotionData `json:"data"`
}

// Biofeedback submits a prompt for the paired mobile.
type Biofeedback struct {
	TargetID string          `json:"targetId"`
	Feedback json.RawMessage `json:"feedback,omitempty"`
}

// BiofeedbackUpdate is a sanitized prompt delivered to the mobile.
type BiofeedbackUpdate struct {
	SourceID string   `json:"sourceId"`
	Feedback Feedback `json:"feedback"`
}

// =============================================================================
// Keepalive
// =============================================================================

// Ping is a health check.
type Ping struct{}

// Pong answers a Ping. TS is the relay clock in Unix milliseconds.
type Pong struct {
	TS int64 `json:"ts"`
}

func (Register) Kind() MessageType           { return TypeRegister }
func (Registered) Kind() MessageType         { return TypeRegistered }
func (AvailableLaptops) Kind() MessageType   { return TypeAvailableLaptops }
func (AvailableMobiles) Kind() MessageType   { return TypeAvailableMobiles }
func (MobileConnected) Kind() MessageType    { return TypeMobileConnected }
func (MobileDisconnected) Kind() MessageType { return TypeMobileDisconnected }
func (LaptopConnected) Kind() MessageType    { return TypeLaptopConnected }
func (LaptopDisconnected) Kind() MessageType { return TypeLaptopDisconnected }
func (PairRequest) Kind() MessageType        { return TypePairRequest }
func (PairAccept) Kind() MessageType         { return TypePairAccept }
func (PairConfirmed) Kind() MessageType      { return TypePairConfirmed }
func (PairRevoked) Kind() MessageType        { return TypePairRevoked }
func (EyeTracking) Kind() MessageType        { return TypeEyeTrackingData }
func (EyeTrackingUpdate) Kind() MessageType  { return TypeEyeTrackingUpdate }
func (HeartRate) Kind() MessageType          { return TypeHeartRateData }
func (HeartRateUpdate) Kind() MessageType    { return TypeHeartRateUpdate }
func (Emotion) Kind() MessageType            { return TypeEmotionData }
func (EmotionUpdate) Kind() MessageType      { return TypeEmotionUpdate }
func (Biofeedback) Kind() MessageType        { return TypeBiofeedback }
func (BiofeedbackUpdate) Kind() MessageType  { return TypeBiofeedbackUpdate }
func (Ping) Kind() MessageType               { return TypePing }
func (Pong) Kind() MessageType               { return TypePong }

func (Register) isMessage()           {}
func (Registered) isMessage()         {}
func (AvailableLaptops) isMessage()   {}
func (AvailableMobiles) isMessage()   {}
func (MobileConnected) isMessage()    {}
func (MobileDisconnected) isMessage() {}
func (LaptopConnected) isMessage()    {}
func (LaptopDisconnected) isMessage() {}
func (PairRequest) isMessage()        {}
func (PairAccept) isMessage()         {}
func (PairConfirmed) isMessage()      {}
func (PairRevoked) isMessage()        {}
func (EyeTracking) isMessage()        {}
func (EyeTrackingUpdate) isMessage()  {}
func (HeartRate) isMessage()          {}
func (HeartRateUpdate) isMessage()    {}
func (Emotion) isMessage()            {}
func (EmotionUpdate) isMessage()      {}
func (Biofeedback) isMessage()        {}
func (BiofeedbackUpdate) isMessage()  {}
func (Ping) isMessage()               {}
func (Pong) isMessage()               {}

// =============================================================================
// Codec
// =============================================================================

type envelope struct {
	Type MessageType `json:"type"`
}

// Encode returns the JSON form of m with its "type" field set.
func Encode(m Message) ([]byte, error) {
	head, err := json.Marshal(envelope{Type: m.Kind()})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	if len(body) <= 2 {
		return head, nil
	}
	// Splice the body's fields after the type field.
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// Decode parses a message. It returns ErrMalformed for input that is not a
// JSON object with a string type and ErrUnknownType for unrecognized types.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var m Message
	switch env.Type {
	case TypeRegister:
		m = &Register{}
	case TypeRegistered:
		m = &Registered{}
	case TypeAvailableLaptops:
		m = &AvailableLaptops{}
	case TypeAvailableMobiles:
		m = &AvailableMobiles{}
	case TypeMobileConnected:
		m = &MobileConnected{}
	case TypeMobileDisconnected:
		m = &MobileDisconnected{}
	case TypeLaptopConnected:
		m = &LaptopConnected{}
	case TypeLaptopDisconnected:
		m = &LaptopDisconnected{}
	case TypePairRequest:
		m = &PairRequest{}
	case TypePairAccept:
		m = &PairAccept{}
	case TypePairConfirmed:
		m = &PairConfirmed{}
	case TypePairRevoked:
		m = &PairRevoked{}
	case TypeEyeTrackingData:
		m = &EyeTracking{}
	case TypeEyeTrackingUpdate:
		m = &EyeTrackingUpdate{}
	case TypeHeartRateData:
		m = &HeartRate{}
	case TypeHeartRateUpdate:
		m = &HeartRateUpdate{}
	case TypeEmotionData:
		m = &Emotion{}
	case TypeEmotionUpdate:
		m = &EmotionUpdate{}
	case TypeBiofeedback:
		m = &Biofeedback{}
	case TypeBiofeedbackUpdate:
		m = &BiofeedbackUpdate{}
	case TypePing:
		return Ping{}, nil
	case TypePong:
		m = &Pong{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return deref(m), nil
}

// deref returns the value form of a decoded message so callers switch on
// value types only.
func deref(m Message) Message {
	switch v := m.(type) {
	case *Register:
		return *v
	case *Registered:
		return *v
	case *AvailableLaptops:
		return *v
	case *AvailableMobiles:
		return *v
	case *MobileConnected:
		return *v
	case *MobileDisconnected:
		return *v
	case *LaptopConnected:
		return *v
	case *LaptopDisconnected:
		return *v
	case *PairRequest:
		return *v
	case *PairAccept:
		return *v
	case *PairConfirmed:
		return *v
	case *PairRevoked:
		return *v
	case *EyeTracking:
		return *v
	case *EyeTrackingUpdate:
		return *v
	case *HeartRate:
		return *v
	case *HeartRateUpdate:
		return *v
	case *Emotion:
		return *v
	case *EmotionUpdate:
		return *v
	case *Biofeedback:
		return *v
	case *BiofeedbackUpdate:
		return *v
	case *Pong:
		return *v
	}
	return m
}
