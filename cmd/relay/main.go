// relay: pairing and relay service for biotracker devices.
// Accepts mobile and laptop endpoints over WebSocket, the rooms fallback
// and WebRTC data channels, and forwards tracking data between pairs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	accesslog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-biotracker/internal/config"
	"github.com/teslashibe/go-biotracker/internal/log"
	"github.com/teslashibe/go-biotracker/pkg/cloud"
	"github.com/teslashibe/go-biotracker/pkg/hub"
	"github.com/teslashibe/go-biotracker/pkg/relay"
	"github.com/teslashibe/go-biotracker/pkg/rtc"
)

var (
	version  = "1.0.0"
	port     = flag.Int("port", config.Port(), "HTTP server port")
	host     = flag.String("host", config.Host(), "Bind host")
	logLevel = flag.String("log-level", config.LogLevel(), "Log level (debug, info, warn, error)")
	noRTC    = flag.Bool("no-webrtc", false, "Disable the WebRTC data channel transport")
	stun     = flag.String("stun", "stun:stun.l.google.com:19302", "STUN server for WebRTC")
	maxPeers = flag.Int("max-peers", 64, "Maximum concurrent WebRTC peers")
)

func main() {
	flag.Parse()
	log.Init(*logLevel)
	logger := log.Component("relay-server")
	debug := *logLevel == "debug"

	engine := relay.New(relay.WithLogger(log.L()))
	metrics := relay.NewMetrics(engine)

	app := fiber.New(fiber.Config{
		AppName:               "biotracker-relay",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if debug {
		app.Use(accesslog.New())
	}

	// Transports
	primary := cloud.NewHub(engine, log.L())
	primary.RegisterRoutes(app)

	rooms := hub.New("rooms", engine, log.L())
	rooms.RegisterRoutes(app)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rooms.Run(ctx)

	var signaling *rtc.Server
	if !*noRTC {
		signaling = rtc.NewServer(engine,
			rtc.WithICEServers(*stun),
			rtc.WithMaxPeers(*maxPeers),
			rtc.WithLogger(log.L()),
		)
		signaling.RegisterRoutes(app)
	}

	// API
	api := app.Group("/api")
	engine.RegisterAPIRoutes(api)
	primary.RegisterAPIRoutes(api)

	app.Get("/health", func(c *fiber.Ctx) error {
		stats := engine.GetStats()
		return c.JSON(fiber.Map{
			"status":    "ok",
			"version":   version,
			"endpoints": stats.Endpoints,
			"pairs":     stats.Pairs,
			"rooms":     rooms.IsRunning(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	addr := fmt.Sprintf("%s:%d", *host, *port)
	go func() {
		logger.Info("starting server", "addr", addr, "version", version, "webrtc", signaling != nil)
		logger.Info("endpoints",
			"websocket", fmt.Sprintf("ws://localhost:%d/ws", *port),
			"rooms", fmt.Sprintf("ws://localhost:%d/rooms", *port),
			"health", fmt.Sprintf("http://localhost:%d/health", *port))

		if err := app.Listen(addr); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	if signaling != nil {
		signaling.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	stats := engine.GetStats()
	logger.Info("goodbye", "received", stats.MessagesReceived, "routed", stats.MessagesRouted)
}
