// streamtest connects to one hub feed and dumps decoded envelopes to the
// console. Useful for checking what the bridge actually publishes before
// pointing the mirror at it.
//
// Usage: go run ./cmd/streamtest --config configs/hubmirror.local.yaml --feed trader
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Nibbler1250/Domotique-Jetson/internal/config"
	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/hubmirror.local.yaml", "path to config file")
	feedName := flag.String("feed", "trader", "feed to stream: device or trader")
	verbose := flag.Bool("verbose", false, "print full envelope JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var fc config.FeedConfig
	switch *feedName {
	case "device":
		fc = cfg.Feeds.Device
	case "trader":
		fc = cfg.Feeds.Trader
	default:
		logger.Error("unknown feed", "feed", *feedName)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	mc := stream.DefaultManagerConfig()
	mc.Name = *feedName
	mc.URL = fc.WSURL
	mc.Token = cfg.HubAPI.Token
	mc.SubscribeTopics = fc.SubscribeTopics
	mc.PingInterval = fc.PingInterval
	mc.ReconnectDelay = fc.ReconnectDelay
	mc.Backoff = fc.Backoff
	mc.ReconnectMax = fc.ReconnectMax

	mgr := stream.NewManager(mc, logger)

	logger.Info("connecting", "feed", *feedName, "url", fc.WSURL)
	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Console printer
	go printEnvelopes(mgr.Envelopes(), *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				state := mgr.State()
				logger.Info("stats",
					"status", state.Status,
					"frames", stats.FramesReceived,
					"data", stats.DataEnvelopes,
					"control", stats.ControlFrames,
					"decode_errors", stats.DecodeErrors,
					"reconnects", stats.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Close()
	logger.Info("shutdown complete")
}

func printEnvelopes(queue *stream.Queue[envelope.Envelope], verbose bool) {
	for {
		env, ok := queue.Pop()
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(env, "", "  ")
			fmt.Printf("[%s] %s\n", strings.ToUpper(env.Kind), data)
			continue
		}

		fmt.Printf("[%s] topic=%s bytes=%d ts=%s\n",
			strings.ToUpper(env.Kind), env.Topic, len(env.Payload), env.Timestamp)
	}
}
