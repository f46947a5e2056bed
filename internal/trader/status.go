package trader

import (
	"strings"

	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// Status is the canonical health of one trading service.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusDegraded Status = "degraded"
	StatusErrored  Status = "errored"
	StatusOffline  Status = "offline" // feed stale, last-known values untrusted
	StatusUnknown  Status = "unknown" // never reported
)

// NormalizeStatus maps the spellings seen on the feed to a canonical
// status. The same logical state arrives under several names depending on
// which service published it.
func NormalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "ok", "healthy", "up", "active", "online":
		return StatusRunning
	case "stopped", "down", "inactive", "halted":
		return StatusStopped
	case "degraded", "warn", "warning":
		return StatusDegraded
	case "error", "errored", "failed", "fault":
		return StatusErrored
	default:
		return StatusUnknown
	}
}

// Classify derives the visible status of a service from its attribute bag
// and the feed health. A stale feed reports offline no matter what the
// last status frame said; a frozen feed must not pin "running" forever.
func Classify(attrs mirror.Attributes, health mirror.Health) Status {
	if health == mirror.HealthStale {
		return StatusOffline
	}
	if attrs == nil {
		return StatusUnknown
	}
	raw, ok := attrs["status"].(string)
	if !ok {
		return StatusUnknown
	}
	return NormalizeStatus(raw)
}
