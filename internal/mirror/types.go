package mirror

import (
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
)

// Attributes is the attribute bag of a single entity. Values are stored as
// decoded JSON scalars (or nested structures) and treated as immutable once
// stored; merges replace whole values, never mutate them in place.
type Attributes map[string]any

// Health describes the freshness of a feed.
type Health string

const (
	HealthUnknown Health = "unknown" // no envelope accepted yet
	HealthFresh   Health = "fresh"   // last accepted envelope within threshold
	HealthStale   Health = "stale"   // threshold exceeded; values are last-known
)

// Delta is a reducer's partial update. Merge maps entity ids to attribute
// bags that are shallow-merged into the slice, entity by entity. Replace
// swaps the whole slice for Merge, for authoritative full-collection
// snapshots. A zero Delta means the envelope was accepted but changed
// nothing.
type Delta struct {
	Slice   string
	Merge   map[string]Attributes
	Replace bool
}

// View is read access to current state for reducers. Implementations are
// only valid for the duration of the reducer call.
type View interface {
	// Entity returns a copy of one entity's attributes.
	Entity(slice, id string) (Attributes, bool)

	// Slice returns a copy of a whole slice.
	Slice(name string) map[string]Attributes
}

// Reducer folds one envelope into a delta. Reducers must be pure: no side
// effects, no retained references to the view.
type Reducer func(view View, env envelope.Envelope) (Delta, error)

// Route binds a topic pattern to a reducer. Patterns are exact topics or
// MQTT-style prefix wildcards ("trader/services/#").
type Route struct {
	Pattern string
	Reduce  Reducer
}

// Feed declares one feed binding: how to extract a topic from an envelope
// and the routing table. When TopicOf is nil the envelope topic is used,
// falling back to the kind for feeds whose kind is the topic.
type Feed struct {
	Name    string
	TopicOf func(envelope.Envelope) string
	Routes  []Route
}

// PendingWrite is one outstanding optimistic mutation.
type PendingWrite struct {
	ID       string // correlation id
	Slice    string
	EntityID string
	Attrs    Attributes
	IssuedAt time.Time
}

// Snapshot is a deep-copied, point-in-time view of engine state.
type Snapshot struct {
	Feed       string
	Slices     map[string]map[string]Attributes
	LastUpdate time.Time
	Health     Health
	LastError  string
	Pending    []PendingWrite
	TakenAt    time.Time
}

// Entity returns one entity's attributes from the snapshot.
func (s Snapshot) Entity(slice, id string) (Attributes, bool) {
	bag, ok := s.Slices[slice][id]
	return bag, ok
}

// Slice returns one slice from the snapshot (nil when absent).
func (s Snapshot) Slice(name string) map[string]Attributes {
	return s.Slices[name]
}

// Event describes one applied change, for fan-out consumers.
type Event struct {
	Feed     string
	Kind     string // envelope kind, or "optimistic", "reconcile", "health"
	Topic    string
	Slice    string
	Entities []string
	Health   Health
	At       time.Time
}

// Config configures an Engine.
type Config struct {
	StaleAfter      time.Duration // staleness threshold
	CheckInterval   time.Duration // staleness tick cadence
	PendingTimeout  time.Duration // optimistic write expiry
	EventBufferSize int           // fan-out event channel capacity
}

// Default configuration values.
const (
	DefaultStaleAfter      = 180 * time.Second
	DefaultCheckInterval   = 30 * time.Second
	DefaultPendingTimeout  = 10 * time.Second
	DefaultEventBufferSize = 256
)

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:      DefaultStaleAfter,
		CheckInterval:   DefaultCheckInterval,
		PendingTimeout:  DefaultPendingTimeout,
		EventBufferSize: DefaultEventBufferSize,
	}
}

// EngineStats counts envelope handling.
type EngineStats struct {
	Applied          int64 // envelopes accepted and folded
	UnknownTopics    int64 // envelopes dropped for lack of a route
	ReducerErrors    int64 // envelopes dropped by reducer failure
	OptimisticWrites int64
	PendingExpired   int64
	Reconciled       int64 // out-of-band merges (refresh, confirmation)
	EventsDropped    int64
}
