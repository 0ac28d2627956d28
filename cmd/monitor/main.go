// monitor: laptop-side display of a paired phone's biometrics.
// Accepts pairing requests, fuses the incoming stream into stress and
// attention scores, and sends a breathing prompt when stress runs high.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-biotracker/internal/config"
	"github.com/teslashibe/go-biotracker/internal/log"
	"github.com/teslashibe/go-biotracker/pkg/client"
	"github.com/teslashibe/go-biotracker/pkg/fusion"
	"github.com/teslashibe/go-biotracker/pkg/protocol"
	"github.com/teslashibe/go-biotracker/pkg/web"
)

var (
	relayURL   = flag.String("relay", config.RelayURL(), "Relay base URL")
	id         = flag.String("id", "", "Endpoint id (generated by the relay if empty)")
	acceptFrom = flag.String("accept", "", "Only accept pairing from this mobile id")
	interval   = flag.Duration("interval", 2*time.Second, "Score report interval")
	cooldown   = flag.Duration("cooldown", fusion.DefaultCooldown, "Minimum time between breathing prompts")
	dashboard  = flag.String("dashboard", ":8081", "Dashboard listen address (empty disables)")
	logLevel   = flag.String("log-level", config.LogLevel(), "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()
	log.Init(*logLevel)
	logger := log.Component("monitor")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	monitor := fusion.NewMonitor(fusion.DefaultHistory)
	coach := fusion.NewCoach()
	coach.Cooldown = *cooldown

	dash := web.NewServer(*dashboard, log.L())
	if *dashboard != "" {
		dash.StartAsync()
		defer dash.Shutdown()
	}

	delay := time.Second
	for ctx.Err() == nil {
		err := run(ctx, monitor, coach, dash)
		dash.UpdateState(func(s *web.Status) {
			s.RelayConnected = false
			s.Peer = ""
		})
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
	logger.Info("goodbye", "total_blinks", monitor.TotalBlinks())
}

func run(ctx context.Context, monitor *fusion.Monitor, coach *fusion.Coach, dash *web.Server) error {
	logger := log.Component("monitor")

	opts := []client.Option{client.WithRole(protocol.RoleLaptop), client.WithLogger(log.L())}
	if *id != "" {
		opts = append(opts, client.WithID(*id))
	}
	c, err := client.Dial(ctx, *relayURL, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go report(ctx, c, monitor, coach, dash)

	lost := func(peer string) {
		logger.Info("peer gone", "peer", peer)
		monitor.Reset()
		coach.Reset()
		dash.UpdateState(func(s *web.Status) {
			s.Peer = ""
			s.Scores = nil
			s.Frame = nil
		})
		dash.AddEvent("pairing", "peer "+peer+" gone")
	}

	return c.Run(ctx, client.Handlers{
		OnRegistered: func(id string, role protocol.Role) {
			logger.Info("registered", "id", id, "role", role)
			dash.UpdateState(func(s *web.Status) {
				s.RelayConnected = true
				s.EndpointID = id
			})
		},
		OnRoster: func(ids []string) {
			logger.Info("mobiles online", "count", len(ids), "ids", ids)
		},
		OnPairRequest: func(source string) {
			if *acceptFrom != "" && source != *acceptFrom {
				logger.Info("ignoring pair request", "from", source)
				return
			}
			if err := c.AcceptPairing(ctx, source); err != nil {
				logger.Warn("accept failed", "from", source, "error", err)
			}
		},
		OnPaired: func(peer string) {
			logger.Info("paired", "peer", peer)
			monitor.Reset()
			dash.UpdateState(func(s *web.Status) { s.Peer = peer })
			dash.AddEvent("pairing", "paired with "+peer)
		},
		OnPairRevoked: lost,
		OnPeerDisconnected: func(peer string) {
			if p, ok := c.Peer(); !ok || p == peer {
				lost(peer)
			}
		},
		OnTracking: func(_ string, d protocol.TrackingData) {
			monitor.AddFrame(d, time.Now())
			dash.UpdateState(func(s *web.Status) { s.Frame = &d })
		},
		OnHeartRate: func(_ string, d protocol.HeartRateData) {
			monitor.AddHeartRate(fusion.HeartRate{BPM: d.BPM, Confidence: d.Confidence, At: time.Now()})
		},
		OnEmotion: func(_ string, d protocol.EmotionData) {
			monitor.SetEmotion(d)
		},
	})
}

// report logs the fused scores and sends breathing prompts.
func report(ctx context.Context, c *client.Client, monitor *fusion.Monitor, coach *fusion.Coach, dash *web.Server) {
	logger := log.Component("monitor")
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s, ok := monitor.Scores()
			if !ok {
				continue
			}
			args := []any{
				"stress", s.Stress, "stress_level", s.StressLevel,
				"attention", s.Attention, "attention_level", s.AttentionLevel,
				"bpm", s.BPM, "blink_rate", s.BlinkRate, "total_blinks", s.TotalBlinks,
			}
			if s.Emotion != nil {
				args = append(args, "emotion", s.Emotion.Dominant)
			}
			logger.Info("scores", args...)
			dash.UpdateState(func(st *web.Status) { st.Scores = &s })

			if f, ok := coach.Check(s, now); ok {
				if err := c.SendBiofeedback(ctx, f); err != nil {
					logger.Debug("biofeedback not sent", "error", err)
				} else {
					dash.AddEvent("biofeedback", f.Message)
				}
			}
		}
	}
}
