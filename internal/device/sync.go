package device

import (
	"context"
	"fmt"
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
)

// initialSync fetches the full catalog from the hub on startup.
func (r *registryImpl) initialSync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.InitialLoadTimeout)
	defer cancel()

	r.logger.Info("starting initial device catalog load")
	start := time.Now()

	devices, err := r.rest.ListDevices(ctx, api.ListDevicesOptions{IncludeHidden: true})
	if err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}

	r.state.mu.Lock()
	for _, d := range devices {
		info := infoFromAPI(d)
		r.state.upsertLocked(info)

		r.state.notifyChange(DeviceChange{
			Key:       info.Key,
			EventType: "created",
			Info:      &info,
		})
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	r.logger.Info("initial catalog load complete",
		"devices", len(devices),
		"duration", time.Since(start),
	)

	return nil
}

// reconciliationLoop periodically re-syncs the catalog with the hub.
func (r *registryImpl) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile fetches the catalog and detects adds, edits, and removals.
func (r *registryImpl) reconcile(ctx context.Context) {
	start := time.Now()

	devices, err := r.rest.ListDevices(ctx, api.ListDevicesOptions{IncludeHidden: true})
	if err != nil {
		r.logger.Error("catalog reconciliation failed", "err", err)
		return
	}

	var created, changed, removed int
	seen := make(map[string]struct{}, len(devices))

	r.state.mu.Lock()
	for _, d := range devices {
		info := infoFromAPI(d)
		seen[info.Key] = struct{}{}

		existing, ok := r.state.devices[info.Key]
		if !ok {
			r.state.upsertLocked(info)
			r.state.notifyChange(DeviceChange{
				Key:       info.Key,
				EventType: "created",
				Info:      &info,
			})
			created++
			continue
		}

		if !sameInfo(*existing, info) {
			r.state.upsertLocked(info)
			r.state.notifyChange(DeviceChange{
				Key:       info.Key,
				EventType: "updated",
				Info:      &info,
			})
			changed++
		}
	}

	// Devices gone from the hub catalog.
	for key := range r.state.devices {
		if _, ok := seen[key]; !ok {
			r.state.removeLocked(key)
			r.state.notifyChange(DeviceChange{
				Key:       key,
				EventType: "removed",
			})
			removed++
		}
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	if created > 0 || changed > 0 || removed > 0 {
		r.logger.Info("catalog reconciliation found changes",
			"created", created,
			"changed", changed,
			"removed", removed,
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("catalog reconciliation complete",
			"devices", len(devices),
			"duration", time.Since(start),
		)
	}
}
