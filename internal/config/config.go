// Package config provides environment helpers for go-biotracker commands.
// Flags in cmd/* take these values as their defaults.
package config

import (
	"os"
	"strconv"
)

// Defaults used when the environment is silent.
const (
	DefaultPort        = 8080
	DefaultHost        = ""
	DefaultLogLevel    = "info"
	DefaultRelayURL    = "http://localhost:8080"
	DefaultLandmarkURL = "http://localhost:5000/detect"
	DefaultYuNetModel  = "models/face_detection_yunet.onnx"
)

// String returns the env var key or def.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var key parsed as an int, or def when unset or
// malformed.
func Int(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Port returns the HTTP port from PORT.
func Port() int {
	return Int("PORT", DefaultPort)
}

// Host returns the bind host from HOST. Empty means all interfaces.
func Host() string {
	return String("HOST", DefaultHost)
}

// LogLevel returns LOG_LEVEL.
func LogLevel() string {
	return String("LOG_LEVEL", DefaultLogLevel)
}

// RelayURL returns the relay base URL from RELAY_URL.
func RelayURL() string {
	return String("RELAY_URL", DefaultRelayURL)
}

// LandmarkURL returns the landmark service endpoint from LANDMARK_URL.
func LandmarkURL() string {
	return String("LANDMARK_URL", DefaultLandmarkURL)
}

// DeviceRole returns DEVICE_ROLE, or def.
func DeviceRole(def string) string {
	return String("DEVICE_ROLE", def)
}

// YuNetModel returns the YuNet model path from YUNET_MODEL.
func YuNetModel() string {
	return String("YUNET_MODEL", DefaultYuNetModel)
}

// CameraIndex returns the video device index from CAMERA_INDEX.
func CameraIndex() int {
	return Int("CAMERA_INDEX", 0)
}
