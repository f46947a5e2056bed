package device

import (
	"strconv"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
)

// Slice is the state slice holding device attribute bags. Entity ids are
// Hubitat ids rendered as strings, matching the feed's device_id field.
const Slice = "devices"

// Info is a catalog entry for one device. It carries the metadata the hub
// stores about a device; live attribute values live in the mirror state.
type Info struct {
	CatalogID    int      // Hub database id, used for REST commands
	Key          string   // Hubitat id as string, used on the feed
	Name         string   // Device name from Hubitat
	Label        string   // User-assigned label (optional)
	Type         string   // Hubitat driver type
	Room         string   // Room assignment (optional)
	IsFavorite   bool     // Pinned on the dashboard
	IsHidden     bool     // Excluded from default listings
	DisplayOrder *int     // Manual sort position (optional)
	Icon         string   // Dashboard icon name (optional)
	Capabilities []string // Hubitat capability list
}

// DisplayName returns the label when set, falling back to the name.
func (i Info) DisplayName() string {
	if i.Label != "" {
		return i.Label
	}
	return i.Name
}

// HasCapability reports whether the device advertises a capability.
func (i Info) HasCapability(cap string) bool {
	for _, c := range i.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// infoFromAPI converts a REST catalog device to an Info.
func infoFromAPI(d api.Device) Info {
	return Info{
		CatalogID:    d.ID,
		Key:          strconv.Itoa(d.HubitatID),
		Name:         d.Name,
		Label:        d.Label,
		Type:         d.Type,
		Room:         d.Room,
		IsFavorite:   d.IsFavorite,
		IsHidden:     d.IsHidden,
		DisplayOrder: d.DisplayOrder,
		Icon:         d.Icon,
		Capabilities: d.Capabilities,
	}
}
