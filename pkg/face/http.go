package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-biotracker/internal/httpc"
	"github.com/teslashibe/go-biotracker/pkg/emotions"
)

// HTTPConfig configures the landmark service client.
type HTTPConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MinScore   float64
	Logger     *slog.Logger
}

// Option is a functional option for HTTPDetector.
type Option func(*HTTPConfig)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPConfig) {
		c.Timeout = timeout
	}
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *HTTPConfig) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithMinScore drops faces scoring below min.
func WithMinScore(min float64) Option {
	return func(c *HTTPConfig) {
		c.MinScore = min
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPConfig) {
		c.Logger = logger
	}
}

// DefaultHTTPConfig returns defaults suited to a LAN landmark service.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: 50 * time.Millisecond,
		MinScore:   0.5,
		Logger:     slog.Default(),
	}
}

// HTTPDetector posts frames to an external landmark service.
//
// The service accepts a JPEG body and answers with
//
//	{"faces":[{"box":{"x":..,"y":..,"width":..,"height":..},"score":..,"landmarks":[[x,y],...]}]}
//
// where landmarks uses the 68-point layout. An optional "expressions" object
// per face carries the seven emotion scores.
type HTTPDetector struct {
	config *HTTPConfig
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPDetector creates a client for the landmark service at url.
func NewHTTPDetector(url string, opts ...Option) (*HTTPDetector, error) {
	cfg := DefaultHTTPConfig()
	cfg.URL = url
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.URL == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPDetector{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "landmarks"),
	}, nil
}

type serviceFace struct {
	Box         BoundingBox      `json:"box"`
	Score       float64          `json:"score"`
	Landmarks   [][2]float64     `json:"landmarks"`
	Expressions *emotions.Scores `json:"expressions,omitempty"`
}

type serviceResponse struct {
	Faces []serviceFace `json:"faces"`
	Error string        `json:"error,omitempty"`
}

// Detect sends jpeg to the service and returns the highest scoring face.
func (d *HTTPDetector) Detect(ctx context.Context, jpeg []byte) (*Observation, error) {
	resp, err := d.doWithRetry(ctx, jpeg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("face: decode response: %w", err)
	}

	best := -1
	for i, f := range body.Faces {
		if f.Score < d.config.MinScore {
			continue
		}
		if best < 0 || f.Score > body.Faces[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}

	f := body.Faces[best]
	points := make([]Point, len(f.Landmarks))
	for i, p := range f.Landmarks {
		points[i] = Point{X: p[0], Y: p[1]}
	}
	obs, err := FromLandmarks68(f.Box, f.Score, points, time.Now())
	if err != nil {
		return nil, err
	}
	obs.Expressions = f.Expressions
	return obs, nil
}

// doWithRetry performs the request with retry logic.
func (d *HTTPDetector) doWithRetry(ctx context.Context, jpeg []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.URL, bytes.NewReader(jpeg))
		if err != nil {
			return nil, fmt.Errorf("face: create request: %w", err)
		}
		req.Header.Set("Content-Type", "image/jpeg")

		resp, err := d.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("face: request: %w", err)
			d.logger.Warn("request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode/100 == 2 {
			return resp, nil
		}

		svcErr := parseError(resp)
		resp.Body.Close()
		var se *ServiceError
		if errors.As(svcErr, &se) && !se.IsRetryable() {
			return nil, svcErr
		}
		lastErr = svcErr
		d.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
	}

	return nil, lastErr
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := string(body)
	var parsed serviceResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		message = parsed.Error
	}
	return &ServiceError{StatusCode: resp.StatusCode, Message: message}
}

// Close releases idle connections.
func (d *HTTPDetector) Close() error {
	d.http.CloseIdleConnections()
	return nil
}
