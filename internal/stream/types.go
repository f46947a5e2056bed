package stream

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Backoff policies for reconnection.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Status is the lifecycle state of a feed channel.
type Status string

const (
	StatusIdle       Status = "idle"       // never connected
	StatusConnecting Status = "connecting" // dial in progress
	StatusOpen       Status = "open"       // channel established
	StatusClosed     Status = "closed"     // channel down (terminal or awaiting reconnect)
)

// ConnectionState is a point-in-time snapshot of a feed channel.
type ConnectionState struct {
	Status       Status
	LastError    string // human-readable transport error, cleared on open
	Reconnecting bool   // true between an unexpected close and the next open
	ConnectedAt  time.Time
	LastPongAt   time.Time

	// BridgeConnected mirrors the mqtt_connected flag on trading pongs.
	// Always false on feeds whose pongs do not carry the flag.
	BridgeConnected bool
}

// TimestampedMessage wraps raw frame bytes with the receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single WebSocket client.
type ClientConfig struct {
	URL          string        // Feed URL (e.g. ws://hub:8000/api/v1/ws)
	Token        string        // Optional bearer token for the Authorization header
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures a feed channel manager.
type ManagerConfig struct {
	Name            string        // Feed name for logging ("device", "trader")
	URL             string        // Feed WebSocket URL
	Token           string        // Optional bearer token
	SubscribeTopics []string      // Topics sent on every open; empty = no subscribe frame
	PingInterval    time.Duration // Keepalive ping cadence; 0 disables pings
	ReconnectDelay  time.Duration // Delay before redial after a close
	Backoff         string        // BackoffFixed (default) or BackoffExponential
	ReconnectMax    time.Duration // Backoff cap, exponential mode only
	WriteTimeout    time.Duration // Write deadline for sends
	QueueSize       int           // Initial envelope queue capacity
}

// DefaultManagerConfig returns defaults matching the hub bridge's observed
// behaviour: fixed five second reconnect, thirty second ping.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PingInterval:   30 * time.Second,
		ReconnectDelay: 5 * time.Second,
		Backoff:        BackoffFixed,
		ReconnectMax:   60 * time.Second,
		WriteTimeout:   5 * time.Second,
		QueueSize:      256,
	}
}

// ManagerStats counts frame handling on a feed channel.
type ManagerStats struct {
	FramesReceived int64 // raw frames read off the wire
	DataEnvelopes  int64 // decoded data frames queued for the engine
	ControlFrames  int64 // pongs and other liveness frames
	DecodeErrors   int64 // malformed frames dropped
	Reconnects     int64 // completed reconnect cycles
}
