package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Frame kinds observed on the hub feeds.
const (
	// Server -> client
	KindInitialState = "initial_state" // full device snapshot
	KindDeviceState  = "device_state"  // single attribute change
	KindMQTT         = "mqtt"          // trading bridge data frame
	KindPong         = "pong"          // keepalive acknowledgment

	// Client -> server
	KindPing      = "ping"
	KindSubscribe = "subscribe"
	KindPublish   = "publish"
)

var (
	// ErrMissingKind indicates a frame without a "type" field.
	ErrMissingKind = errors.New("envelope: missing kind")
)

// Envelope is a single decoded inbound frame. Payload stays opaque here;
// reducers decode it against their own wire structs.
type Envelope struct {
	Kind      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`

	// BridgeConnected reports upstream broker liveness on trading pongs.
	// Nil when the frame does not carry the field.
	BridgeConnected *bool `json:"mqtt_connected,omitempty"`

	// ReceivedAt is stamped by the transport at decode time, not part of
	// the wire format.
	ReceivedAt time.Time `json:"-"`
}

// Decode parses a raw text frame. Frames that are not JSON objects or that
// lack a kind are rejected; callers are expected to drop them.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, ErrMissingKind
	}
	env.ReceivedAt = time.Now()
	return env, nil
}

// IsData reports whether the envelope carries reducer-bound data rather
// than transport bookkeeping.
func (e Envelope) IsData() bool {
	switch e.Kind {
	case KindPong, KindPing:
		return false
	}
	return true
}

// At returns the envelope timestamp as a time, or the zero time when the
// frame carried none or it does not parse. Retained trading messages are
// replayed with their original timestamps, so callers must expect values
// well in the past.
func (e Envelope) At() time.Time {
	if e.Timestamp == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return ts
	}
	return time.Time{}
}

// subscribeFrame is the outbound topic registration frame.
type subscribeFrame struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// publishFrame is the outbound command frame for the trading bridge.
type publishFrame struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// pingFrame is the outbound keepalive probe.
type pingFrame struct {
	Type string `json:"type"`
}

// Subscribe builds a subscribe frame for the given topics.
func Subscribe(topics []string) ([]byte, error) {
	frame := subscribeFrame{Type: KindSubscribe, Topics: topics}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal subscribe: %w", err)
	}
	return data, nil
}

// Publish builds a publish frame carrying a command payload.
func Publish(topic string, payload any) ([]byte, error) {
	frame := publishFrame{Type: KindPublish, Topic: topic, Payload: payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal publish: %w", err)
	}
	return data, nil
}

// Ping builds the keepalive probe frame.
func Ping() []byte {
	// Static frame, marshal cannot fail.
	data, _ := json.Marshal(pingFrame{Type: KindPing})
	return data
}
