package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
)

// ServiceConfig configures the trading mirror service.
type ServiceConfig struct {
	Stream stream.ManagerConfig
	Engine mirror.Config

	// ResyncDelay is how long to wait after a reconnect before fetching
	// the cached swing state, giving retained frames time to replay.
	ResyncDelay time.Duration

	// ResyncCheckInterval is how often the reconnect watcher looks at the
	// feed's reconnect counter.
	ResyncCheckInterval time.Duration
}

// DefaultServiceConfig returns defaults tuned for the trading feed's
// heartbeat cadence.
func DefaultServiceConfig() ServiceConfig {
	cfg := ServiceConfig{
		Stream:              stream.DefaultManagerConfig(),
		Engine:              mirror.DefaultConfig(),
		ResyncDelay:         2 * time.Second,
		ResyncCheckInterval: time.Second,
	}
	cfg.Engine.StaleAfter = 75 * time.Second
	return cfg
}

// Service assembles the trading mirror: feed channel, state engine, and
// control publisher. There is no catalog registry on this side; entities
// exist only as topics deliver them.
type Service struct {
	rest    *api.Client
	feed    stream.Manager
	engine  *mirror.Engine
	control *Controller
	logger  *slog.Logger

	resyncDelay   time.Duration
	checkInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires up a trading mirror service.
func NewService(cfg ServiceConfig, rest *api.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ResyncDelay <= 0 {
		cfg.ResyncDelay = 2 * time.Second
	}
	if cfg.ResyncCheckInterval <= 0 {
		cfg.ResyncCheckInterval = time.Second
	}

	feed := stream.NewManager(cfg.Stream, logger)
	engine := mirror.NewEngine(Feed(), cfg.Engine, feed.Envelopes(), logger)
	control := NewController(feed, engine, rest, logger)

	return &Service{
		rest:          rest,
		feed:          feed,
		engine:        engine,
		control:       control,
		logger:        logger,
		resyncDelay:   cfg.ResyncDelay,
		checkInterval: cfg.ResyncCheckInterval,
	}
}

// Start brings up the engine and the feed, seeds the swing slice from the
// hub's cache, and watches for reconnects. The seed fetch is best effort;
// the feed replays retained frames anyway.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.engine.Start(s.ctx); err != nil {
		return fmt.Errorf("trader engine: %w", err)
	}
	if err := s.feed.Connect(s.ctx); err != nil {
		return fmt.Errorf("trader feed: %w", err)
	}

	if err := s.control.ConfirmSwing(s.ctx); err != nil {
		s.logger.Warn("initial swing state fetch failed", "err", err)
	}

	s.wg.Add(1)
	go s.watchReconnects()

	return nil
}

// Stop tears the service down. The feed closes first so the engine can
// drain its queue and exit.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	var firstErr error
	if err := s.feed.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.engine.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if firstErr == nil {
			firstErr = ctx.Err()
		}
	}

	return firstErr
}

// watchReconnects refetches the cached swing state after each completed
// reconnect, catching anything published while the channel was down.
func (s *Service) watchReconnects() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	seen := s.feed.Stats().Reconnects
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		now := s.feed.Stats().Reconnects
		if now == seen {
			continue
		}
		seen = now

		timer := time.NewTimer(s.resyncDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.control.ConfirmSwing(s.ctx); err != nil {
			s.logger.Warn("swing state resync failed", "err", err)
			continue
		}
		s.logger.Info("swing state resynced after reconnect")
	}
}

// Snapshot returns a point-in-time copy of the mirrored trading state.
func (s *Service) Snapshot() mirror.Snapshot {
	return s.engine.Snapshot()
}

// Events returns the engine's change event channel.
func (s *Service) Events() <-chan mirror.Event {
	return s.engine.Events()
}

// Health returns the trading feed's freshness classification.
func (s *Service) Health() mirror.Health {
	return s.engine.Health()
}

// ConnectionState returns the feed channel state, including the upstream
// broker flag from trading pongs.
func (s *Service) ConnectionState() stream.ConnectionState {
	return s.feed.State()
}

// FeedStats returns frame-handling counters for the feed channel.
func (s *Service) FeedStats() stream.ManagerStats {
	return s.feed.Stats()
}

// EngineStats returns envelope-handling counters for the state engine.
func (s *Service) EngineStats() mirror.EngineStats {
	return s.engine.Stats()
}

// Control returns the control publisher.
func (s *Service) Control() *Controller {
	return s.control
}

// BridgeStatus fetches the hub bridge's connectivity report over REST.
func (s *Service) BridgeStatus(ctx context.Context) (*api.TradingStatus, error) {
	return s.rest.GetTradingStatus(ctx)
}

// SwingState fetches the hub's cached swing snapshot over REST.
func (s *Service) SwingState(ctx context.Context) (*api.SwingState, error) {
	return s.rest.GetSwingState(ctx)
}
