package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// StateSink receives out-of-band attribute merges.
type StateSink interface {
	Reconcile(d mirror.Delta)
}

// RefreshConfig holds state refresher configuration.
type RefreshConfig struct {
	Interval    time.Duration // full refresh cadence (default: 5m)
	SettleDelay time.Duration // wait before confirming a command (default: 1.5s)
	Concurrency int           // concurrent confirmation fetches (default: 4)
	Timeout     time.Duration // per-request timeout (default: 30s)
}

// DefaultRefreshConfig returns sensible defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:    5 * time.Minute,
		SettleDelay: 1500 * time.Millisecond,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// Refresher periodically re-reads device states over REST and reconciles
// them into the mirror. It also runs per-device confirmation fetches after
// commands, once the device has had a moment to settle.
type Refresher struct {
	cfg      RefreshConfig
	client   *api.Client
	registry Registry
	sink     StateSink
	logger   *slog.Logger

	confirm singleflight.Group
	sem     chan struct{} // bounds concurrent confirmation fetches

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a new state refresher.
func NewRefresher(cfg RefreshConfig, client *api.Client, registry Registry, sink StateSink, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Refresher{
		cfg:      cfg,
		client:   client,
		registry: registry,
		sink:     sink,
		logger:   logger,
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("device refresher started",
		"interval", r.cfg.Interval,
		"settle_delay", r.cfg.SettleDelay,
	)

	return nil
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop(ctx context.Context) error {
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
		r.logger.Info("device refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Confirm schedules a confirmation fetch for one device, delayed so the
// device has time to settle after a command. Bursts for the same device
// collapse into a single fetch.
func (r *Refresher) Confirm(key string) {
	if r.ctx == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(r.cfg.SettleDelay)
		defer timer.Stop()

		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}

		// Acquire a fetch slot so a burst of commands across many
		// devices does not stampede the hub.
		select {
		case r.sem <- struct{}{}:
			defer func() { <-r.sem }()
		case <-r.ctx.Done():
			return
		}

		r.confirm.Do(key, func() (any, error) {
			r.confirmNow(key)
			return nil, nil
		})
	}()
}

// run is the main refresh loop.
func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Refresh immediately on start.
	r.refreshAll()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshAll()
		}
	}
}

// RefreshNow triggers a hub-side state refresh and reconciles the results.
// Used by the manual refresh endpoint; errors surface to the caller instead
// of only being logged.
func (r *Refresher) RefreshNow(ctx context.Context) (*api.RefreshResult, error) {
	result, err := r.client.RefreshStates(ctx)
	if err != nil {
		return nil, err
	}

	if _, _, err := r.reconcileStates(ctx); err != nil {
		r.logger.Warn("state listing after refresh failed", "err", err)
	}

	return result, nil
}

// refreshAll asks the hub to re-read device attributes, then reconciles
// the resulting states into the mirror.
func (r *Refresher) refreshAll() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	result, err := r.client.RefreshStates(ctx)
	if err != nil {
		// The listing below still reconciles whatever the hub has cached.
		r.logger.Warn("hub state refresh failed", "err", err)
	} else if len(result.Errors) > 0 {
		r.logger.Warn("hub state refresh partially failed",
			"updated", result.Updated,
			"total", result.Total,
			"errors", len(result.Errors),
		)
	}

	total, withState, err := r.reconcileStates(ctx)
	if err != nil {
		r.logger.Error("device state listing failed", "err", err)
		return
	}

	r.logger.Info("device refresh complete",
		"devices", total,
		"with_state", withState,
		"duration", time.Since(start),
	)
}

// reconcileStates lists devices and merges their cached states into the
// mirror. Returns the device count and how many carried state.
func (r *Refresher) reconcileStates(ctx context.Context) (int, int, error) {
	devices, err := r.client.ListDevices(ctx, api.ListDevicesOptions{IncludeHidden: true})
	if err != nil {
		return 0, 0, err
	}

	merge := make(map[string]mirror.Attributes)
	for _, d := range devices {
		if len(d.State) == 0 {
			continue
		}
		merge[d.Key()] = NormalizeAttributes(d.State)
	}

	if len(merge) > 0 {
		r.sink.Reconcile(mirror.Delta{Slice: Slice, Merge: merge})
	}

	return len(devices), len(merge), nil
}

// confirmNow fetches one device's state and reconciles it.
func (r *Refresher) confirmNow(key string) {
	info, ok := r.registry.Device(key)
	if !ok {
		r.logger.Debug("confirmation skipped, device not in catalog", "device", key)
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	d, err := r.client.GetDevice(ctx, info.CatalogID)
	if err != nil {
		r.logger.Warn("confirmation fetch failed", "device", key, "err", err)
		return
	}
	if len(d.State) == 0 {
		return
	}

	r.sink.Reconcile(mirror.Delta{
		Slice: Slice,
		Merge: map[string]mirror.Attributes{key: NormalizeAttributes(d.State)},
	})

	r.logger.Debug("device state confirmed", "device", key)
}
