package api

import "strconv"

// Meta carries response metadata from the hub's {data, meta} envelope.
type Meta struct {
	Timestamp string `json:"timestamp"`
}

// Device represents a device from the hub catalog, enriched with the
// last state the hub saw for it.
type Device struct {
	ID           int      `json:"id"`
	HubitatID    int      `json:"hubitat_id"`
	Name         string   `json:"name"`
	Label        string   `json:"label,omitempty"`
	Type         string   `json:"type"`
	Room         string   `json:"room,omitempty"`
	IsFavorite   bool     `json:"is_favorite"`
	IsHidden     bool     `json:"is_hidden"`
	DisplayOrder *int     `json:"display_order,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// Timestamp (ISO 8601)
	CreatedAt string `json:"created_at,omitempty"`

	// Current attribute values keyed by attribute name.
	State map[string]any `json:"state,omitempty"`
}

// Key returns the identifier used for this device on the state feed.
// Feed frames carry the Hubitat id, not the catalog row id.
func (d Device) Key() string {
	return strconv.Itoa(d.HubitatID)
}

// DisplayName returns the label when set, falling back to the name.
func (d Device) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

// SyncResult from POST /devices/sync
type SyncResult struct {
	Synced  int      `json:"synced"`
	Devices []Device `json:"devices"`
}

// RefreshError describes a single device that failed during a state refresh.
type RefreshError struct {
	DeviceID int    `json:"device_id"`
	Error    string `json:"error"`
}

// RefreshResult from POST /devices/refresh-states
type RefreshResult struct {
	Updated int            `json:"updated"`
	Total   int            `json:"total"`
	Errors  []RefreshError `json:"errors"`
}

// TradingStatus from GET /trading/status. Unlike the device endpoints this
// one is returned without the {data, meta} envelope.
type TradingStatus struct {
	MQTTConnected    bool     `json:"mqtt_connected"`
	WebSocketClients int      `json:"websocket_clients"`
	MQTTBroker       string   `json:"mqtt_broker"`
	SubscribedTopics []string `json:"subscribed_topics"`
}

// SwingState from GET /trading/swing/state. Also unenveloped.
type SwingState struct {
	Heartbeat  map[string]any   `json:"heartbeat"`
	Candidates []map[string]any `json:"candidates"`
	Positions  []map[string]any `json:"positions"`
	Config     map[string]any   `json:"config"`
	Timestamp  string           `json:"timestamp,omitempty"`
}
