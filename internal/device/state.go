package device

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// registryState holds the thread-safe catalog cache.
type registryState struct {
	mu sync.RWMutex

	// All known devices indexed by feed key.
	devices map[string]*Info

	// Last successful REST sync timestamp.
	lastSyncAt time.Time

	// Output channel for catalog change consumers.
	changes chan DeviceChange
}

func newState() *registryState {
	return &registryState{
		devices: make(map[string]*Info),
		changes: make(chan DeviceChange, ChangeBufferSize),
	}
}

// getDevice returns a catalog entry by key (read-locked).
func (s *registryState) getDevice(key string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[key]
	if !ok {
		return Info{}, false
	}
	return *d, true
}

// list returns filtered catalog entries (read-locked).
func (s *registryState) list(opts ListOptions) []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Info, 0, len(s.devices))
	for _, d := range s.devices {
		if d.IsHidden && !opts.IncludeHidden {
			continue
		}
		if opts.FavoritesOnly && !d.IsFavorite {
			continue
		}
		if opts.Room != "" && d.Room != opts.Room {
			continue
		}
		result = append(result, *d)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch {
		case a.DisplayOrder != nil && b.DisplayOrder != nil:
			if *a.DisplayOrder != *b.DisplayOrder {
				return *a.DisplayOrder < *b.DisplayOrder
			}
		case a.DisplayOrder != nil:
			return true
		case b.DisplayOrder != nil:
			return false
		}
		return strings.ToLower(a.DisplayName()) < strings.ToLower(b.DisplayName())
	})

	return result
}

// rooms returns the sorted set of room names in use (read-locked).
func (s *registryState) rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, d := range s.devices {
		if d.Room != "" {
			seen[d.Room] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for room := range seen {
		result = append(result, room)
	}
	sort.Strings(result)
	return result
}

// upsert adds or updates a device (write-locked).
func (s *registryState) upsert(d Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(d)
}

// upsertLocked adds or updates a device (caller must hold write lock).
func (s *registryState) upsertLocked(d Info) {
	dCopy := d
	s.devices[d.Key] = &dCopy
}

// removeLocked deletes a device (caller must hold write lock).
func (s *registryState) removeLocked(key string) {
	delete(s.devices, key)
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *registryState) notifyChange(change DeviceChange) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
			s.changes <- change
		default:
		}
	}
}

// sameInfo reports whether two catalog entries carry identical metadata.
func sameInfo(a, b Info) bool {
	if a.CatalogID != b.CatalogID ||
		a.Name != b.Name ||
		a.Label != b.Label ||
		a.Type != b.Type ||
		a.Room != b.Room ||
		a.IsFavorite != b.IsFavorite ||
		a.IsHidden != b.IsHidden ||
		a.Icon != b.Icon {
		return false
	}
	if (a.DisplayOrder == nil) != (b.DisplayOrder == nil) {
		return false
	}
	if a.DisplayOrder != nil && *a.DisplayOrder != *b.DisplayOrder {
		return false
	}
	if len(a.Capabilities) != len(b.Capabilities) {
		return false
	}
	for i := range a.Capabilities {
		if a.Capabilities[i] != b.Capabilities[i] {
			return false
		}
	}
	return true
}
