package device

import "context"

// ChangeBufferSize is the capacity of the DeviceChange channel.
const ChangeBufferSize = 256

// Registry tracks the hub's device catalog: which devices exist, their
// rooms, labels, and capabilities. Live attribute values are not kept here.
type Registry interface {
	// Start loads the catalog from the hub (blocking), then reconciles it
	// in the background.
	Start(ctx context.Context) error

	// Stop gracefully shuts down.
	Stop(ctx context.Context) error

	// Resync forces an immediate catalog reconciliation.
	Resync(ctx context.Context)

	// Device returns a catalog entry by feed key.
	Device(key string) (Info, bool)

	// List returns catalog entries matching the filter, ordered by display
	// position then name.
	List(opts ListOptions) []Info

	// Rooms returns all room names in use, sorted.
	Rooms() []string

	// SubscribeChanges returns a channel of catalog changes.
	SubscribeChanges() <-chan DeviceChange
}

// ListOptions filters List results.
type ListOptions struct {
	Room          string
	FavoritesOnly bool
	IncludeHidden bool
}

// DeviceChange represents a catalog transition.
type DeviceChange struct {
	Key       string // Feed key (Hubitat id)
	EventType string // "created", "updated", "removed"
	Info      *Info  // Catalog entry (nil for "removed")
}
