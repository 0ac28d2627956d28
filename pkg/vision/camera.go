// Package vision wires OpenCV into the capture pipeline: a camera frame
// source, a YuNet face box detector, a gate that skips the landmark service
// when no face is in view, and the skin color sampler for heart rate.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrNoFrame is returned before the first frame has been captured.
	ErrNoFrame = errors.New("vision: no frame yet")

	// ErrCameraClosed is returned after Close.
	ErrCameraClosed = errors.New("vision: camera closed")

	// ErrEmptyImage is returned for frames that decode to nothing.
	ErrEmptyImage = errors.New("vision: empty image")

	// ErrNoSkin is returned when no skin region lies inside the frame.
	ErrNoSkin = errors.New("vision: no skin region in frame")
)

// CameraConfig holds capture parameters.
type CameraConfig struct {
	Device    int // video device index
	Width     int // frame width in pixels
	Height    int // frame height in pixels
	Framerate int // target FPS
	Quality   int // JPEG quality 1-100
}

// DefaultCameraConfig returns 640x480 at 30 FPS, which keeps the landmark
// round trip short.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   85,
	}
}

// Camera grabs frames from a video device and keeps the latest one as JPEG.
type Camera struct {
	config  CameraConfig
	capture *gocv.VideoCapture
	logger  *slog.Logger

	mu     sync.RWMutex
	latest []byte
	at     time.Time
	closed bool
}

// OpenCamera opens the device in cfg.
func OpenCamera(cfg CameraConfig, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("vision: open device %d: %w", cfg.Device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &Camera{
		config:  cfg,
		capture: vc,
		logger:  logger.With("component", "camera", "device", cfg.Device),
	}, nil
}

// Run reads frames until ctx is done or the device stops delivering.
func (c *Camera) Run(ctx context.Context) error {
	img := gocv.NewMat()
	defer img.Close()

	params := []int{gocv.IMWriteJpegQuality, c.config.Quality}
	misses := 0

	for ctx.Err() == nil {
		if ok := c.capture.Read(&img); !ok {
			misses++
			if misses == 30 {
				return fmt.Errorf("vision: device %d stopped delivering frames", c.config.Device)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if img.Empty() {
			continue
		}
		misses = 0

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, params)
		if err != nil {
			c.logger.Debug("encode failed", "error", err)
			continue
		}
		frame := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		c.mu.Lock()
		c.latest = frame
		c.at = time.Now()
		c.mu.Unlock()
	}
	return nil
}

// CaptureJPEG returns the latest frame.
func (c *Camera) CaptureJPEG() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.closed:
		return nil, ErrCameraClosed
	case c.latest == nil:
		return nil, ErrNoFrame
	}
	return c.latest, nil
}

// LastFrameAt returns when the latest frame was captured.
func (c *Camera) LastFrameAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.at
}

// Close releases the device. Run must have returned.
func (c *Camera) Close() error {
	c.mu.Lock()
	c.closed = true
	c.latest = nil
	c.mu.Unlock()
	if c.capture == nil {
		return nil
	}
	return c.capture.Close()
}
