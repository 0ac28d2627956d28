package client

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/protocol"
)

// Config holds client configuration.
type Config struct {
	// URL is the relay base URL, e.g. ws://localhost:8080.
	URL string

	// ID requests a fixed endpoint id. Empty lets the relay assign one.
	ID string

	// Role is registered right after connecting when set.
	Role protocol.Role

	// Dial retry policy, applied per transport.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	DialTimeout  time.Duration
	PingInterval time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithID requests a fixed endpoint id.
func WithID(id string) Option {
	return func(c *Config) {
		c.ID = id
	}
}

// WithRole registers as role right after connecting.
func WithRole(role protocol.Role) Option {
	return func(c *Config) {
		c.Role = role
	}
}

// WithRetry configures the dial retry policy.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.BaseDelay = baseDelay
		c.MaxDelay = maxDelay
	}
}

// WithDialTimeout sets the handshake timeout for each dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithPingInterval sets the keepalive period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		DialTimeout:  5 * time.Second,
		PingInterval: 20 * time.Second,
		Logger:       slog.Default(),
	}
}
