package device

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// Feed returns the device feed binding. Device envelopes carry no topic, so
// routes match on the envelope kind.
func Feed() mirror.Feed {
	return mirror.Feed{
		Name: "devices",
		Routes: []mirror.Route{
			{Pattern: envelope.KindInitialState, Reduce: reduceInitialState},
			{Pattern: envelope.KindDeviceState, Reduce: reduceDeviceState},
		},
	}
}

// reduceInitialState replaces the whole device slice from the snapshot the
// hub sends on connect: {"devices": {id: {attr: value}}}.
func reduceInitialState(_ mirror.View, env envelope.Envelope) (mirror.Delta, error) {
	var payload struct {
		Devices map[string]map[string]any `json:"devices"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return mirror.Delta{}, fmt.Errorf("initial_state payload: %w", err)
	}

	merge := make(map[string]mirror.Attributes, len(payload.Devices))
	for id, attrs := range payload.Devices {
		merge[id] = NormalizeAttributes(attrs)
	}

	return mirror.Delta{Slice: Slice, Merge: merge, Replace: true}, nil
}

// reduceDeviceState merges a single attribute change:
// {"device_id": id, "attribute": name, "value": v}.
func reduceDeviceState(_ mirror.View, env envelope.Envelope) (mirror.Delta, error) {
	var payload struct {
		DeviceID  any    `json:"device_id"`
		Attribute string `json:"attribute"`
		Value     any    `json:"value"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return mirror.Delta{}, fmt.Errorf("device_state payload: %w", err)
	}

	key, ok := deviceKey(payload.DeviceID)
	if !ok {
		return mirror.Delta{}, fmt.Errorf("device_state missing device_id")
	}
	if payload.Attribute == "" {
		return mirror.Delta{}, fmt.Errorf("device_state missing attribute")
	}

	return mirror.Delta{
		Slice: Slice,
		Merge: map[string]mirror.Attributes{
			key: {payload.Attribute: NormalizeValue(payload.Value)},
		},
	}, nil
}

// deviceKey renders a device_id to the canonical string key. The hub sends
// ids as strings but some publishers emit bare numbers.
func deviceKey(id any) (string, bool) {
	switch v := id.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
