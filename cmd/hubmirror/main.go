// hubmirror mirrors the home hub's device and trading feeds into local
// state and serves it to LAN dashboards over REST and WebSocket.
//
// Usage: go run ./cmd/hubmirror --config configs/hubmirror.local.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/config"
	"github.com/Nibbler1250/Domotique-Jetson/internal/device"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/server"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
	"github.com/Nibbler1250/Domotique-Jetson/internal/trader"
	"github.com/Nibbler1250/Domotique-Jetson/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/hubmirror.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting hubmirror",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load .env before the config so ${VAR} expansion sees it
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"hub_api", cfg.HubAPI.BaseURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create hub REST client
	rest := api.NewClient(
		cfg.HubAPI.BaseURL,
		cfg.HubAPI.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.HubAPI.Timeout),
		api.WithRetries(cfg.HubAPI.MaxRetries, time.Second),
	)

	// Assemble the two mirrors
	devices := device.NewService(device.ServiceConfig{
		Stream:   feedConfig("device", cfg.Feeds.Device, cfg.HubAPI.Token),
		Engine:   engineConfig(cfg.Feeds.Device, cfg.Optimistic),
		Registry: device.DefaultRegistryConfig(),
		Refresh: device.RefreshConfig{
			Interval:    cfg.Refresh.Interval,
			SettleDelay: cfg.Refresh.SettleDelay,
			Concurrency: cfg.Refresh.Concurrency,
			Timeout:     cfg.Refresh.Timeout,
		},
	}, rest, logger)

	tradingCfg := trader.DefaultServiceConfig()
	tradingCfg.Stream = feedConfig("trader", cfg.Feeds.Trader, cfg.HubAPI.Token)
	tradingCfg.Engine = engineConfig(cfg.Feeds.Trader, cfg.Optimistic)
	trading := trader.NewService(tradingCfg, rest, logger)

	// Start both mirrors; their initial catalog and swing syncs run in
	// parallel
	var g errgroup.Group
	g.Go(func() error { return devices.Start(ctx) })
	g.Go(func() error { return trading.Start(ctx) })
	if err := g.Wait(); err != nil {
		logger.Error("failed to start mirrors", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		trading.Stop(shutdownCtx)
		devices.Stop(shutdownCtx)
	}()

	logger.Info("mirrors started",
		"devices", len(devices.List(device.ListOptions{IncludeHidden: true})),
	)

	// Fan-out server for the dashboards
	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		InstanceID:   cfg.Instance.ID,
		TradingToken: cfg.Server.TradingToken,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}, devices, trading, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	logger.Info("hubmirror running",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}

	logger.Info("hubmirror stopped")
}

// feedConfig maps one feed's YAML section onto the stream manager.
func feedConfig(name string, fc config.FeedConfig, token string) stream.ManagerConfig {
	mc := stream.DefaultManagerConfig()
	mc.Name = name
	mc.URL = fc.WSURL
	mc.Token = token
	mc.SubscribeTopics = fc.SubscribeTopics
	mc.PingInterval = fc.PingInterval
	mc.ReconnectDelay = fc.ReconnectDelay
	mc.Backoff = fc.Backoff
	mc.ReconnectMax = fc.ReconnectMax
	return mc
}

func engineConfig(fc config.FeedConfig, opt config.OptimisticConfig) mirror.Config {
	ec := mirror.DefaultConfig()
	ec.StaleAfter = fc.StaleAfter
	ec.CheckInterval = fc.CheckInterval
	ec.PendingTimeout = opt.PendingTimeout
	return ec
}
