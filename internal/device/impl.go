package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
)

// RegistryConfig holds catalog registry configuration.
type RegistryConfig struct {
	ReconcileInterval  time.Duration
	InitialLoadTimeout time.Duration
}

// DefaultRegistryConfig returns sensible defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		ReconcileInterval:  5 * time.Minute,
		InitialLoadTimeout: 2 * time.Minute,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg    RegistryConfig
	rest   *api.Client
	logger *slog.Logger

	state *registryState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new device catalog registry.
func NewRegistry(cfg RegistryConfig, rest *api.Client, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &registryImpl{
		cfg:    cfg,
		rest:   rest,
		logger: logger,
		state:  newState(),
	}
}

// Start loads the catalog, then reconciles in the background.
func (r *registryImpl) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	// Initial load (blocking).
	if err := r.initialSync(r.ctx); err != nil {
		r.cancel()
		return err
	}

	// Start background reconciliation.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconciliationLoop(r.ctx)
	}()

	r.logger.Info("device registry started",
		"devices", len(r.state.devices),
	)

	return nil
}

// Stop gracefully shuts down.
func (r *registryImpl) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("device registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resync forces an immediate catalog reconciliation.
func (r *registryImpl) Resync(ctx context.Context) {
	r.reconcile(ctx)
}

// Device returns a catalog entry by feed key.
func (r *registryImpl) Device(key string) (Info, bool) {
	return r.state.getDevice(key)
}

// List returns catalog entries matching the filter.
func (r *registryImpl) List(opts ListOptions) []Info {
	return r.state.list(opts)
}

// Rooms returns all room names in use.
func (r *registryImpl) Rooms() []string {
	return r.state.rooms()
}

// SubscribeChanges returns a channel of catalog changes.
func (r *registryImpl) SubscribeChanges() <-chan DeviceChange {
	return r.state.changes
}
