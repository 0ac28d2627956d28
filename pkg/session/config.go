package session

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/eyes"
	"github.com/teslashibe/go-biotracker/pkg/headpose"
	"github.com/teslashibe/go-biotracker/pkg/rppg"
)

// Config holds the cadences and per-stage parameters of a session.
type Config struct {
	// Timing
	EyeInterval   time.Duration // face, eye and head-pose cycle
	HeartInterval time.Duration // color sampling cycle
	EmitInterval  time.Duration // outbound frame cycle

	// Heart sampling pauses when the last face box is older than this.
	StaleFace time.Duration

	Eyes  eyes.Config
	Head  headpose.Config
	Heart rppg.Config

	Logger *slog.Logger
}

// Option configures a Session.
type Option func(*Config)

// WithIntervals overrides the three task cadences.
func WithIntervals(eye, heart, emit time.Duration) Option {
	return func(c *Config) {
		c.EyeInterval = eye
		c.HeartInterval = heart
		c.EmitInterval = emit
	}
}

// WithEyes sets the eye tracker parameters.
func WithEyes(cfg eyes.Config) Option {
	return func(c *Config) {
		c.Eyes = cfg
	}
}

// WithHeart sets the heart-rate extractor parameters.
func WithHeart(cfg rppg.Config) Option {
	return func(c *Config) {
		c.Heart = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() *Config {
	return &Config{
		EyeInterval:   33 * time.Millisecond,  // ~30 fps
		HeartInterval: 100 * time.Millisecond, // 10 samples per second
		EmitInterval:  200 * time.Millisecond, // 5 frames per second

		StaleFace: time.Second,

		Eyes:  eyes.DefaultConfig(),
		Head:  headpose.DefaultConfig(),
		Heart: rppg.DefaultConfig(),
	}
}
