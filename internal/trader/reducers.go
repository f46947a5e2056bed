package trader

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// State slices fed by the trading stream.
const (
	SliceServices  = "services"  // per-service heartbeats, keyed by name
	SlicePositions = "positions" // open positions, keyed by symbol
	SliceAccount   = "account"   // account, capital, margin protection
	SlicePortfolio = "portfolio" // portfolio, pnl, forex, history
	SliceConfig    = "config"    // trading engine configuration
	SliceSwing     = "swing"     // swing module state, keyed by section
	SliceScanner   = "scanner"   // scanner output
	SliceAlerts    = "alerts"    // bounded most-recent alert stream
)

// MaxAlerts bounds the alerts slice; the oldest entries fall off.
const MaxAlerts = 100

// Feed returns the trading feed binding. Data frames carry kind "mqtt" and
// an explicit topic; route order matters because the first match wins.
func Feed() mirror.Feed {
	return mirror.Feed{
		Name: "trader",
		Routes: []mirror.Route{
			{Pattern: "momentum/swing/candidates", Reduce: reduceSwingList("candidates")},
			{Pattern: "momentum/swing/positions", Reduce: reduceSwingList("positions")},
			{Pattern: "momentum/swing/#", Reduce: mergeTopic(SliceSwing, "momentum/swing/", "swing")},
			{Pattern: "trader/status/#", Reduce: reduceService("trader/status/")},
			{Pattern: "trader/services/#", Reduce: reduceService("trader/services/")},
			{Pattern: "trader/positions/#", Reduce: reducePositions},
			{Pattern: "trader/account/#", Reduce: mergeTopic(SliceAccount, "trader/account/", "account")},
			{Pattern: "trader/capital/#", Reduce: mergeTopic(SliceAccount, "trader/capital/", "capital")},
			{Pattern: "trader/margin_protection/#", Reduce: mergeTopic(SliceAccount, "trader/margin_protection/", "margin_protection")},
			{Pattern: "trader/portfolio/#", Reduce: mergeTopic(SlicePortfolio, "trader/portfolio/", "portfolio")},
			{Pattern: "trader/pnl/#", Reduce: mergeTopic(SlicePortfolio, "trader/pnl/", "pnl")},
			{Pattern: "trader/forex/#", Reduce: mergeTopic(SlicePortfolio, "trader/forex/", "forex")},
			{Pattern: "trader/history/#", Reduce: mergeTopic(SlicePortfolio, "trader/history/", "history")},
			{Pattern: "trader/config/#", Reduce: mergeTopic(SliceConfig, "trader/config/", "config")},
			{Pattern: "trader/scanner/#", Reduce: mergeTopic(SliceScanner, "trader/scanner/", "scanner")},
			{Pattern: "trader/alerts/#", Reduce: reduceAlert},
			{Pattern: "trader/errors/#", Reduce: reduceAlert},
			{Pattern: "trader/decisions/#", Reduce: reduceAlert},
		},
	}
}

// topicEntity derives an entity id from the topic remainder after prefix.
// "trader/account/margin" under "trader/account/" yields "margin"; the bare
// family topic yields the fallback.
func topicEntity(topic, prefix, fallback string) string {
	rest := strings.TrimPrefix(topic, prefix)
	if rest == topic || rest == "" {
		return fallback
	}
	return rest
}

// decodeObject decodes a payload into an attribute bag. Scalar and list
// payloads wrap under "value" so they survive the merge path.
func decodeObject(payload json.RawMessage) (mirror.Attributes, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	var bag map[string]any
	if err := json.Unmarshal(payload, &bag); err == nil {
		return bag, nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	return mirror.Attributes{"value": v}, nil
}

// mergeTopic builds a reducer that merges object payloads into one slice,
// one entity per topic.
func mergeTopic(slice, prefix, fallback string) mirror.Reducer {
	return func(_ mirror.View, env envelope.Envelope) (mirror.Delta, error) {
		bag, err := decodeObject(env.Payload)
		if err != nil {
			return mirror.Delta{}, err
		}
		normalizeMoney(bag)

		id := topicEntity(env.Topic, prefix, fallback)
		return mirror.Delta{
			Slice: slice,
			Merge: map[string]mirror.Attributes{id: bag},
		}, nil
	}
}

// reduceService folds heartbeat frames into the services slice, rewriting
// the status field through the normalization table.
func reduceService(prefix string) mirror.Reducer {
	return func(_ mirror.View, env envelope.Envelope) (mirror.Delta, error) {
		name := topicEntity(env.Topic, prefix, "trader")

		// Some services publish a bare status string.
		var s string
		if err := json.Unmarshal(env.Payload, &s); err == nil {
			return mirror.Delta{
				Slice: SliceServices,
				Merge: map[string]mirror.Attributes{
					name: {"status": string(NormalizeStatus(s))},
				},
			}, nil
		}

		bag, err := decodeObject(env.Payload)
		if err != nil {
			return mirror.Delta{}, err
		}
		if raw, ok := bag["status"].(string); ok {
			bag["status"] = string(NormalizeStatus(raw))
		}

		return mirror.Delta{
			Slice: SliceServices,
			Merge: map[string]mirror.Attributes{name: bag},
		}, nil
	}
}

// reducePositions folds a position snapshot. Snapshots are authoritative:
// the whole slice is replaced, so closed positions disappear.
func reducePositions(_ mirror.View, env envelope.Envelope) (mirror.Delta, error) {
	items, err := decodePositions(env.Payload)
	if err != nil {
		return mirror.Delta{}, err
	}

	merge := make(map[string]mirror.Attributes, len(items))
	for _, item := range items {
		sym, _ := item["symbol"].(string)
		if sym == "" {
			sym, _ = item["ticker"].(string)
		}
		if sym == "" {
			continue
		}
		bag := mirror.Attributes(item)
		normalizeMoney(bag)
		merge[sym] = bag
	}

	return mirror.Delta{Slice: SlicePositions, Merge: merge, Replace: true}, nil
}

func decodePositions(payload json.RawMessage) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(payload, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Positions []map[string]any `json:"positions"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Positions != nil {
		return wrapped.Positions, nil
	}

	return nil, errors.New("positions payload is neither a list nor a positions object")
}

// reduceSwingList folds candidate/position lists into one swing entity as
// {items, count}. Object payloads merge directly.
func reduceSwingList(entity string) mirror.Reducer {
	return func(_ mirror.View, env envelope.Envelope) (mirror.Delta, error) {
		var items []any
		if err := json.Unmarshal(env.Payload, &items); err == nil {
			bag := mirror.Attributes{"items": items, "count": len(items)}
			return mirror.Delta{
				Slice: SliceSwing,
				Merge: map[string]mirror.Attributes{entity: bag},
			}, nil
		}

		bag, err := decodeObject(env.Payload)
		if err != nil {
			return mirror.Delta{}, err
		}
		if list, ok := bag["items"].([]any); ok {
			bag["count"] = len(list)
		}
		return mirror.Delta{
			Slice: SliceSwing,
			Merge: map[string]mirror.Attributes{entity: bag},
		}, nil
	}
}

// reduceAlert appends one alert to the bounded alerts slice. Alert ids are
// taken from the payload when present, otherwise derived from the frame
// content so a redelivered retained message lands on the same entry
// instead of duplicating it.
func reduceAlert(view mirror.View, env envelope.Envelope) (mirror.Delta, error) {
	bag, err := decodeObject(env.Payload)
	if err != nil {
		return mirror.Delta{}, err
	}

	id := alertID(bag, env)
	bag["topic"] = env.Topic
	bag["ts_ns"] = alertStamp(env)

	existing := view.Slice(SliceAlerts)
	if _, dup := existing[id]; !dup && len(existing) >= MaxAlerts {
		existing[id] = bag
		return mirror.Delta{
			Slice:   SliceAlerts,
			Merge:   newestAlerts(existing, MaxAlerts),
			Replace: true,
		}, nil
	}

	return mirror.Delta{
		Slice: SliceAlerts,
		Merge: map[string]mirror.Attributes{id: bag},
	}, nil
}

func alertID(bag mirror.Attributes, env envelope.Envelope) string {
	for _, k := range []string{"id", "uuid", "alert_id"} {
		switch v := bag[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}

	h := fnv.New64a()
	h.Write([]byte(env.Topic))
	h.Write(env.Payload)
	return "h" + strconv.FormatUint(h.Sum64(), 16)
}

// alertStamp orders alerts. The frame timestamp is preferred because
// retained messages replay with their original timestamps; the receive
// time only covers frames without one.
func alertStamp(env envelope.Envelope) int64 {
	if ts := env.At(); !ts.IsZero() {
		return ts.UnixNano()
	}
	return env.ReceivedAt.UnixNano()
}

// newestAlerts keeps the n most recent alerts by stamp, ties broken by id.
func newestAlerts(all map[string]mirror.Attributes, n int) map[string]mirror.Attributes {
	type aged struct {
		id string
		ns int64
	}
	entries := make([]aged, 0, len(all))
	for id, bag := range all {
		ns, _ := bag["ts_ns"].(int64)
		entries = append(entries, aged{id: id, ns: ns})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ns != entries[j].ns {
			return entries[i].ns > entries[j].ns
		}
		return entries[i].id < entries[j].id
	})
	if len(entries) > n {
		entries = entries[:n]
	}

	keep := make(map[string]mirror.Attributes, len(entries))
	for _, e := range entries {
		keep[e.id] = all[e.id]
	}
	return keep
}
