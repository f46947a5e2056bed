package server

import (
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// Rebroadcast frame kinds.
const (
	frameInitialState = "initial_state"
	frameStateChange  = "state_change"
	frameHealth       = "health"
)

// snapshotFrame is the full-state frame sent to each client on connect.
type snapshotFrame struct {
	Type      string                                  `json:"type"`
	Feed      string                                  `json:"feed"`
	Slices    map[string]map[string]mirror.Attributes `json:"slices"`
	Health    mirror.Health                           `json:"health"`
	Timestamp string                                  `json:"timestamp"`
}

// changeFrame carries one applied change with the entities' current bags.
type changeFrame struct {
	Type      string                       `json:"type"`
	Feed      string                       `json:"feed"`
	Kind      string                       `json:"kind,omitempty"`
	Slice     string                       `json:"slice,omitempty"`
	Entities  map[string]mirror.Attributes `json:"entities,omitempty"`
	Health    mirror.Health                `json:"health,omitempty"`
	Timestamp string                       `json:"timestamp"`
}

func (s *Server) deviceSnapshotFrame() any {
	return buildSnapshotFrame(s.devices.Snapshot())
}

func (s *Server) tradingSnapshotFrame() any {
	return buildSnapshotFrame(s.trading.Snapshot())
}

func buildSnapshotFrame(snap mirror.Snapshot) any {
	return snapshotFrame{
		Type:      frameInitialState,
		Feed:      snap.Feed,
		Slices:    snap.Slices,
		Health:    snap.Health,
		Timestamp: snap.TakenAt.UTC().Format(time.RFC3339Nano),
	}
}

// eventFrame shapes one engine event for rebroadcast. Entity bags are read
// back from the owning service so the frame carries settled values.
func (s *Server) eventFrame(ev mirror.Event) any {
	frame := changeFrame{
		Type:      frameStateChange,
		Feed:      ev.Feed,
		Kind:      ev.Kind,
		Slice:     ev.Slice,
		Timestamp: ev.At.UTC().Format(time.RFC3339Nano),
	}

	if ev.Kind == frameHealth {
		frame.Type = frameHealth
		frame.Health = ev.Health
		return frame
	}

	if len(ev.Entities) > 0 {
		var snap mirror.Snapshot
		if ev.Feed == "trader" {
			snap = s.trading.Snapshot()
		} else {
			snap = s.devices.Snapshot()
		}
		frame.Entities = make(map[string]mirror.Attributes, len(ev.Entities))
		for _, id := range ev.Entities {
			if bag, ok := snap.Entity(ev.Slice, id); ok {
				frame.Entities[id] = bag
			}
		}
	}
	return frame
}
