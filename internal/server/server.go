package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Nibbler1250/Domotique-Jetson/internal/device"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
	"github.com/Nibbler1250/Domotique-Jetson/internal/trader"
)

// Config configures the fan-out server.
type Config struct {
	Addr         string
	InstanceID   string
	TradingToken string // empty disables the trading route guard
	CORSOrigins  []string
}

// Server serves the REST API and the rebroadcast WebSocket endpoints.
type Server struct {
	cfg     Config
	devices *device.Service
	trading *trader.Service
	logger  *slog.Logger

	engine     *gin.Engine
	http       *http.Server
	deviceHub  *Hub
	tradingHub *Hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the server. Routes are registered immediately; nothing
// runs until Start.
func New(cfg Config, devices *device.Service, trading *trader.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		devices: devices,
		trading: trading,
		logger:  logger,
		engine:  engine,
	}
	s.deviceHub = newHub("device", s.deviceSnapshotFrame, logger)
	s.tradingHub = newHub("trader", s.tradingSnapshotFrame, logger)

	engine.Use(s.cors())
	s.routes()
	return s
}

func (s *Server) routes() {
	root := s.engine.Group("/api")
	root.GET("/health", s.health)

	v1 := root.Group("/v1")
	v1.GET("/ping", s.ping)

	v1.GET("/devices", s.listDevices)
	v1.GET("/devices/:id", s.getDevice)
	v1.POST("/devices/:id/commands", s.deviceCommand)
	v1.GET("/rooms", s.rooms)
	v1.GET("/ws", s.deviceHub.handle)

	trading := v1.Group("/trading", s.tradingAuth())
	trading.GET("/status", s.tradingStatus)
	trading.GET("/services", s.tradingServices)
	trading.GET("/positions", s.tradingPositions)
	trading.GET("/account", s.tradingAccount)
	trading.GET("/summary", s.tradingSummary)
	trading.POST("/control", s.tradingControl)
	trading.GET("/ws", s.tradingHub.handle)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start launches the hubs, the event pumps, and the listener.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	go s.deviceHub.run(s.ctx)
	go s.tradingHub.run(s.ctx)

	s.pump(s.devices.Events(), s.deviceHub)
	s.pump(s.trading.Events(), s.tradingHub)

	s.http = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}
	go func() {
		s.logger.Info("fanout server listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("fanout server error", "err", err)
		}
	}()

	return nil
}

// Stop shuts the listener and the pumps down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// pump moves engine events into a hub through a growable queue, so a burst
// of changes never blocks the engine's fan-out channel.
func (s *Server) pump(events <-chan mirror.Event, hub *Hub) {
	queue := stream.NewQueue[mirror.Event](64)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer queue.Close()
		for {
			select {
			case <-s.ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				queue.Push(ev)
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			ev, ok := queue.Pop()
			if !ok {
				return
			}
			hub.Broadcast(s.eventFrame(ev))
		}
	}()
}

// cors allows the configured dashboard origins.
func (s *Server) cors() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	all := false
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			all = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (all || allowed[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// tradingAuth guards the trading routes with the static token when one is
// configured. WebSocket dials cannot set headers from a browser, so the
// token is also accepted as a query parameter.
func (s *Server) tradingAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.TradingToken == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == c.GetHeader("Authorization") {
			token = c.Query("token")
		}
		if token != s.cfg.TradingToken {
			s.problem(c, http.StatusUnauthorized, "unauthorized", "trading routes require a valid token")
			return
		}
		c.Next()
	}
}

func (s *Server) ping(c *gin.Context) {
	s.respond(c, http.StatusOK, "pong")
}

func (s *Server) health(c *gin.Context) {
	deviceHealth := s.devices.Health()
	tradingHealth := s.trading.Health()

	status := "ok"
	if deviceHealth == mirror.HealthStale || tradingHealth == mirror.HealthStale {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"feeds": gin.H{
			"device": gin.H{
				"health":  deviceHealth,
				"channel": s.devices.ConnectionState().Status,
				"clients": s.deviceHub.Clients(),
			},
			"trader": gin.H{
				"health":  tradingHealth,
				"channel": s.trading.ConnectionState().Status,
				"clients": s.tradingHub.Clients(),
			},
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
