// agent: phone-side capture. Tracks eyes, head pose, heart rate and
// expression from the camera and streams them to the paired laptop
// through the relay.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/teslashibe/go-biotracker/internal/config"
	"github.com/teslashibe/go-biotracker/internal/log"
	"github.com/teslashibe/go-biotracker/pkg/client"
	"github.com/teslashibe/go-biotracker/pkg/emotions"
	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/protocol"
	"github.com/teslashibe/go-biotracker/pkg/session"
	"github.com/teslashibe/go-biotracker/pkg/vision"
)

const captureSession = "capture"

var (
	relayURL    = flag.String("relay", config.RelayURL(), "Relay base URL")
	id          = flag.String("id", "", "Endpoint id (generated by the relay if empty)")
	target      = flag.String("laptop", "", "Laptop id to pair with (first available if empty)")
	landmarkURL = flag.String("landmarks", config.LandmarkURL(), "Landmark service endpoint")
	yunetModel  = flag.String("yunet", config.YuNetModel(), "YuNet model path (gate disabled if missing)")
	cameraIndex = flag.Int("camera", config.CameraIndex(), "Video device index")
	synthetic   = flag.Bool("synthetic", false, "Stream a synthetic face instead of the camera")
	logLevel    = flag.String("log-level", config.LogLevel(), "Log level (debug, info, warn, error)")
)

// pipeline is what each capture session is built from.
type pipeline struct {
	source   session.FrameSource
	detector face.Detector
	sampler  session.Sampler
}

func main() {
	flag.Parse()
	log.Init(*logLevel)
	logger := log.Component("agent")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, cleanup, err := buildPipeline(ctx, logger)
	if err != nil {
		logger.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	sessions := session.NewManager()
	defer sessions.StopAll()

	delay := time.Second
	for ctx.Err() == nil {
		err := run(ctx, p, sessions)
		sessions.StopAll()
		if ctx.Err() != nil {
			break
		}
		logger.Warn("relay connection lost", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		// Exponential backoff
		delay = min(delay*2, 30*time.Second)
	}
	logger.Info("goodbye")
}

func buildPipeline(ctx context.Context, logger *slog.Logger) (*pipeline, func(), error) {
	if *synthetic {
		obs := face.SyntheticObservation(face.BoundingBox{X: 220, Y: 140, Width: 200, Height: 200}, 0.3, time.Now())
		obs.Expressions = &emotions.Scores{Neutral: 0.7, Happy: 0.3}
		logger.Info("using synthetic face")
		return &pipeline{source: blankFrames{}, detector: face.NewStatic(obs)}, func() {}, nil
	}

	camCfg := vision.DefaultCameraConfig()
	camCfg.Device = *cameraIndex
	cam, err := vision.OpenCamera(camCfg, log.L())
	if err != nil {
		return nil, nil, err
	}
	go func() {
		if err := cam.Run(ctx); err != nil {
			logger.Error("camera stopped", "error", err)
		}
	}()

	landmarks, err := face.NewHTTPDetector(*landmarkURL, face.WithLogger(log.L()))
	if err != nil {
		cam.Close()
		return nil, nil, err
	}

	var detector face.Detector = landmarks
	if yunet, err := vision.NewYuNet(yunetConfig()); err == nil {
		detector = vision.NewGated(yunet, landmarks, log.L())
		logger.Info("face gate enabled", "model", *yunetModel)
	} else {
		logger.Warn("face gate disabled", "error", err)
	}

	cleanup := func() {
		detector.Close()
		cam.Close()
	}
	return &pipeline{source: cam, detector: detector, sampler: vision.NewSampler()}, cleanup, nil
}

func yunetConfig() vision.YuNetConfig {
	cfg := vision.DefaultYuNetConfig()
	cfg.ModelPath = *yunetModel
	return cfg
}

func run(ctx context.Context, p *pipeline, sessions *session.Manager) error {
	logger := log.Component("agent")

	opts := []client.Option{client.WithRole(protocol.RoleMobile), client.WithLogger(log.L())}
	if *id != "" {
		opts = append(opts, client.WithID(*id))
	}
	c, err := client.Dial(ctx, *relayURL, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	request := func(laptop string) {
		if _, paired := c.Peer(); paired {
			return
		}
		if *target != "" && laptop != *target {
			return
		}
		logger.Info("requesting pairing", "laptop", laptop)
		if err := c.RequestPairing(ctx, laptop); err != nil {
			logger.Warn("pair request failed", "error", err)
		}
	}
	stop := func(peer string) {
		if sessions.Stop(captureSession) {
			logger.Info("capture stopped", "peer", peer)
		}
	}

	return c.Run(ctx, client.Handlers{
		OnRegistered: func(id string, role protocol.Role) {
			logger.Info("registered", "id", id, "role", role)
		},
		OnRoster: func(ids []string) {
			switch {
			case *target != "" && slices.Contains(ids, *target):
				request(*target)
			case *target == "" && len(ids) > 0:
				request(ids[0])
			}
		},
		OnPeerConnected: request,
		OnPaired: func(peer string) {
			sessions.Stop(captureSession)
			s := session.New(captureSession, p.source, p.detector, p.sampler, c, session.WithLogger(log.L()))
			if err := sessions.Start(ctx, s); err != nil {
				logger.Error("capture start failed", "error", err)
				return
			}
			logger.Info("streaming", "peer", peer)
		},
		OnPairRevoked: stop,
		OnPeerDisconnected: func(peer string) {
			if _, paired := c.Peer(); !paired {
				stop(peer)
			}
		},
		OnBiofeedback: func(_ string, f protocol.Feedback) {
			logger.Info("biofeedback", "type", f.Type, "message", f.Message)
		},
	})
}

// blankFrames feeds the synthetic detector, which ignores frame content.
type blankFrames struct{}

func (blankFrames) CaptureJPEG() ([]byte, error) {
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}
