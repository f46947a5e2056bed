package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
)

// ServiceConfig configures the device mirror service.
type ServiceConfig struct {
	Stream   stream.ManagerConfig
	Engine   mirror.Config
	Registry RegistryConfig
	Refresh  RefreshConfig
}

// Service assembles the device mirror: feed channel, state engine, catalog
// registry, state refresher, and command issuing.
type Service struct {
	rest      *api.Client
	feed      stream.Manager
	engine    *mirror.Engine
	registry  Registry
	refresher *Refresher
	commander *Commander
	logger    *slog.Logger
}

// NewService wires up a device mirror service.
func NewService(cfg ServiceConfig, rest *api.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	feed := stream.NewManager(cfg.Stream, logger)
	engine := mirror.NewEngine(Feed(), cfg.Engine, feed.Envelopes(), logger)
	registry := NewRegistry(cfg.Registry, rest, logger)
	refresher := NewRefresher(cfg.Refresh, rest, registry, engine, logger)
	commander := NewCommander(rest, registry, engine, refresher, logger)

	return &Service{
		rest:      rest,
		feed:      feed,
		engine:    engine,
		registry:  registry,
		refresher: refresher,
		commander: commander,
		logger:    logger,
	}
}

// Start brings up the catalog, the engine, the feed, and the refresher.
// The catalog load blocks so commands can resolve devices immediately.
func (s *Service) Start(ctx context.Context) error {
	if err := s.registry.Start(ctx); err != nil {
		return fmt.Errorf("device registry: %w", err)
	}
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("device engine: %w", err)
	}
	if err := s.feed.Connect(ctx); err != nil {
		return fmt.Errorf("device feed: %w", err)
	}
	if err := s.refresher.Start(ctx); err != nil {
		return fmt.Errorf("device refresher: %w", err)
	}
	return nil
}

// Stop tears the service down. The feed closes first so the engine can
// drain its queue and exit.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error

	if err := s.feed.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.engine.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.refresher.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.registry.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// Snapshot returns a point-in-time copy of the mirrored device state.
func (s *Service) Snapshot() mirror.Snapshot {
	return s.engine.Snapshot()
}

// Events returns the engine's change event channel.
func (s *Service) Events() <-chan mirror.Event {
	return s.engine.Events()
}

// Health returns the device feed's freshness classification.
func (s *Service) Health() mirror.Health {
	return s.engine.Health()
}

// ConnectionState returns the feed channel state.
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

// Device returns a catalog entry by feed key.
func (s *Service) Device(key string) (Info, bool) {
	return s.registry.Device(key)
}

// List returns catalog entries matching the filter.
func (s *Service) List(opts ListOptions) []Info {
	return s.registry.List(opts)
}

// Rooms returns all room names in use.
func (s *Service) Rooms() []string {
	return s.registry.Rooms()
}

// CatalogChanges returns the catalog change channel.
func (s *Service) CatalogChanges() <-chan DeviceChange {
	return s.registry.SubscribeChanges()
}

// Commands returns the command issuer.
func (s *Service) Commands() *Commander {
	return s.commander
}

// Refresh triggers a hub-side state refresh and folds the results back in.
func (s *Service) Refresh(ctx context.Context) (*api.RefreshResult, error) {
	return s.refresher.RefreshNow(ctx)
}

// SyncCatalog asks the hub to re-import its catalog, then reconciles ours.
func (s *Service) SyncCatalog(ctx context.Context) (*api.SyncResult, error) {
	result, err := s.rest.SyncDevices(ctx)
	if err != nil {
		return nil, err
	}
	s.registry.Resync(ctx)
	return result, nil
}
