package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
)

func mqttEnv(topic, payload string) envelope.Envelope {
	return envelope.Envelope{
		Kind:       envelope.KindMQTT,
		Topic:      topic,
		Payload:    json.RawMessage(payload),
		Timestamp:  "2025-01-15T10:30:00Z",
		ReceivedAt: time.Now(),
	}
}

// fakeView serves reducer reads from a fixed slice map.
type fakeView struct {
	slices map[string]map[string]mirror.Attributes
}

func (v fakeView) Entity(slice, id string) (mirror.Attributes, bool) {
	bag, ok := v.slices[slice][id]
	return bag, ok
}

func (v fakeView) Slice(name string) map[string]mirror.Attributes {
	cp := make(map[string]mirror.Attributes, len(v.slices[name]))
	for id, bag := range v.slices[name] {
		cp[id] = bag
	}
	return cp
}

func TestTopicEntity(t *testing.T) {
	tests := []struct {
		topic, prefix, fallback, want string
	}{
		{"trader/account/margin", "trader/account/", "account", "margin"},
		{"trader/account", "trader/account/", "account", "account"},
		{"trader/account/", "trader/account/", "account", "account"},
		{"trader/services/momentum/health", "trader/services/", "trader", "momentum/health"},
	}

	for _, tt := range tests {
		got := topicEntity(tt.topic, tt.prefix, tt.fallback)
		if got != tt.want {
			t.Errorf("topicEntity(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestReduceService(t *testing.T) {
	reduce := reduceService("trader/status/")

	t.Run("object payload normalizes status", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("trader/status/momentum", `{"status": "RUNNING", "uptime_seconds": 42}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if d.Slice != SliceServices {
			t.Errorf("Slice = %q, want %q", d.Slice, SliceServices)
		}
		if d.Replace {
			t.Error("service frames must merge, not replace")
		}
		bag := d.Merge["momentum"]
		if bag == nil {
			t.Fatal("entity momentum missing")
		}
		if bag["status"] != "running" {
			t.Errorf("status = %v, want running", bag["status"])
		}
		if bag["uptime_seconds"] != float64(42) {
			t.Errorf("uptime_seconds = %v, want 42", bag["uptime_seconds"])
		}
	})

	t.Run("bare string payload", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("trader/status/scanner", `"ok"`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if d.Merge["scanner"]["status"] != "running" {
			t.Errorf("status = %v, want running", d.Merge["scanner"]["status"])
		}
	})

	t.Run("bare family topic falls back", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("trader/status", `{"status": "down"}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if _, ok := d.Merge["trader"]; !ok {
			t.Errorf("entities = %v, want trader", d.Merge)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		if _, err := reduce(nil, mqttEnv("trader/status/x", `{broken`)); err == nil {
			t.Error("expected error for malformed payload")
		}
	})
}

func TestReducePositions(t *testing.T) {
	t.Run("bare list", func(t *testing.T) {
		payload := `[
			{"symbol": "AAPL", "qty": 10, "avg_price": 189.5, "unrealized_pnl": "12.30"},
			{"ticker": "TSLA", "qty": 2, "avg_price": 240}
		]`
		d, err := reducePositions(nil, mqttEnv("trader/positions", payload))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if !d.Replace {
			t.Error("position snapshots must replace the slice")
		}
		if len(d.Merge) != 2 {
			t.Fatalf("len(Merge) = %d, want 2", len(d.Merge))
		}

		aapl := d.Merge["AAPL"]
		price, ok := aapl["avg_price"].(decimal.Decimal)
		if !ok {
			t.Fatalf("avg_price is %T, want decimal.Decimal", aapl["avg_price"])
		}
		if !price.Equal(decimal.NewFromFloat(189.5)) {
			t.Errorf("avg_price = %s, want 189.5", price)
		}
		pnl, ok := aapl["unrealized_pnl"].(decimal.Decimal)
		if !ok {
			t.Fatalf("unrealized_pnl is %T, want decimal.Decimal", aapl["unrealized_pnl"])
		}
		if !pnl.Equal(decimal.NewFromFloat(12.3)) {
			t.Errorf("unrealized_pnl = %s, want 12.3", pnl)
		}

		if _, ok := d.Merge["TSLA"]; !ok {
			t.Error("ticker field should key the entry when symbol is absent")
		}
	})

	t.Run("wrapped list", func(t *testing.T) {
		d, err := reducePositions(nil, mqttEnv("trader/positions", `{"positions": [{"symbol": "NVDA", "qty": 1}]}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if len(d.Merge) != 1 {
			t.Errorf("len(Merge) = %d, want 1", len(d.Merge))
		}
	})

	t.Run("empty snapshot clears", func(t *testing.T) {
		d, err := reducePositions(nil, mqttEnv("trader/positions", `[]`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if !d.Replace {
			t.Error("empty snapshot must still replace")
		}
		if d.Merge == nil {
			t.Error("Merge must be non-nil so the replace applies")
		}
		if len(d.Merge) != 0 {
			t.Errorf("len(Merge) = %d, want 0", len(d.Merge))
		}
	})

	t.Run("nameless entries skipped", func(t *testing.T) {
		d, err := reducePositions(nil, mqttEnv("trader/positions", `[{"qty": 5}, {"symbol": "AMD", "qty": 1}]`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if len(d.Merge) != 1 {
			t.Errorf("len(Merge) = %d, want 1", len(d.Merge))
		}
	})

	t.Run("unusable payload", func(t *testing.T) {
		if _, err := reducePositions(nil, mqttEnv("trader/positions", `{"other": 1}`)); err == nil {
			t.Error("expected error for payload without positions")
		}
	})
}

func TestMergeTopic(t *testing.T) {
	reduce := mergeTopic(SliceAccount, "trader/account/", "account")

	t.Run("money fields become decimals", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("trader/account", `{"equity": 25000.50, "cash": "10000.25", "positions_count": 3}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		bag := d.Merge["account"]

		equity, ok := bag["equity"].(decimal.Decimal)
		if !ok {
			t.Fatalf("equity is %T, want decimal.Decimal", bag["equity"])
		}
		if !equity.Equal(decimal.NewFromFloat(25000.50)) {
			t.Errorf("equity = %s, want 25000.50", equity)
		}
		cash, ok := bag["cash"].(decimal.Decimal)
		if !ok {
			t.Fatalf("cash is %T, want decimal.Decimal", bag["cash"])
		}
		if !cash.Equal(decimal.NewFromFloat(10000.25)) {
			t.Errorf("cash = %s, want 10000.25", cash)
		}

		// Non-money numerics stay plain.
		if bag["positions_count"] != float64(3) {
			t.Errorf("positions_count = %v (%T), want float64 3", bag["positions_count"], bag["positions_count"])
		}
	})

	t.Run("subtopic names the entity", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("trader/account/margin", `{"margin_used": 1200}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if _, ok := d.Merge["margin"]; !ok {
			t.Errorf("entities = %v, want margin", d.Merge)
		}
	})

	t.Run("scalar payload wraps", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("trader/account/mode", `"paper"`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if d.Merge["mode"]["value"] != "paper" {
			t.Errorf("value = %v, want paper", d.Merge["mode"]["value"])
		}
	})
}

func TestReduceSwingList(t *testing.T) {
	reduce := reduceSwingList("candidates")

	t.Run("list payload", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("momentum/swing/candidates", `[{"symbol": "AAPL"}, {"symbol": "TSLA"}]`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		bag := d.Merge["candidates"]
		items, ok := bag["items"].([]any)
		if !ok {
			t.Fatalf("items is %T, want []any", bag["items"])
		}
		if len(items) != 2 {
			t.Errorf("len(items) = %d, want 2", len(items))
		}
		if bag["count"] != 2 {
			t.Errorf("count = %v, want 2", bag["count"])
		}
	})

	t.Run("object payload", func(t *testing.T) {
		d, err := reduce(nil, mqttEnv("momentum/swing/candidates", `{"items": [{"symbol": "NVDA"}], "scan_time": "10:30"}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		bag := d.Merge["candidates"]
		if bag["count"] != 1 {
			t.Errorf("count = %v, want 1", bag["count"])
		}
		if bag["scan_time"] != "10:30" {
			t.Errorf("scan_time = %v, want 10:30", bag["scan_time"])
		}
	})
}

func TestReduceAlert(t *testing.T) {
	emptyView := fakeView{slices: map[string]map[string]mirror.Attributes{}}

	t.Run("payload id", func(t *testing.T) {
		d, err := reduceAlert(emptyView, mqttEnv("trader/alerts/risk", `{"id": "a-17", "message": "margin call"}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		bag := d.Merge["a-17"]
		if bag == nil {
			t.Fatal("alert a-17 missing")
		}
		if bag["topic"] != "trader/alerts/risk" {
			t.Errorf("topic = %v, want trader/alerts/risk", bag["topic"])
		}
		if _, ok := bag["ts_ns"].(int64); !ok {
			t.Errorf("ts_ns is %T, want int64", bag["ts_ns"])
		}
	})

	t.Run("derived id is stable", func(t *testing.T) {
		env := mqttEnv("trader/errors/scanner", `{"message": "timeout"}`)

		d1, err := reduceAlert(emptyView, env)
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		d2, err := reduceAlert(emptyView, env)
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}

		var id1, id2 string
		for id := range d1.Merge {
			id1 = id
		}
		for id := range d2.Merge {
			id2 = id
		}
		if id1 != id2 {
			t.Errorf("redelivered alert got a new id: %q vs %q", id1, id2)
		}
	})

	t.Run("cap replaces with newest", func(t *testing.T) {
		full := map[string]mirror.Attributes{}
		for i := 0; i < MaxAlerts; i++ {
			full[fmt.Sprintf("old-%03d", i)] = mirror.Attributes{"ts_ns": int64(i)}
		}
		view := fakeView{slices: map[string]map[string]mirror.Attributes{SliceAlerts: full}}

		d, err := reduceAlert(view, mqttEnv("trader/alerts/x", `{"id": "fresh"}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if !d.Replace {
			t.Fatal("overflow must replace the slice")
		}
		if len(d.Merge) != MaxAlerts {
			t.Errorf("len(Merge) = %d, want %d", len(d.Merge), MaxAlerts)
		}
		if _, ok := d.Merge["fresh"]; !ok {
			t.Error("new alert missing after cap")
		}
		if _, ok := d.Merge["old-000"]; ok {
			t.Error("oldest alert should have been dropped")
		}
	})

	t.Run("redelivery at cap merges in place", func(t *testing.T) {
		full := map[string]mirror.Attributes{}
		for i := 0; i < MaxAlerts-1; i++ {
			full[fmt.Sprintf("old-%03d", i)] = mirror.Attributes{"ts_ns": int64(i)}
		}
		full["known"] = mirror.Attributes{"ts_ns": int64(999)}
		view := fakeView{slices: map[string]map[string]mirror.Attributes{SliceAlerts: full}}

		d, err := reduceAlert(view, mqttEnv("trader/alerts/x", `{"id": "known"}`))
		if err != nil {
			t.Fatalf("reduce failed: %v", err)
		}
		if d.Replace {
			t.Error("updating a known alert must not trigger the cap")
		}
	})
}

// TestFeed_ThroughEngine pushes one frame per topic family through a real
// engine and checks each slice fills in.
func TestFeed_ThroughEngine(t *testing.T) {
	queue := stream.NewQueue[envelope.Envelope](32)
	engine := mirror.NewEngine(Feed(), mirror.DefaultConfig(), queue, nil)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frames := []envelope.Envelope{
		mqttEnv("trader/status/momentum", `{"status": "RUNNING"}`),
		mqttEnv("trader/positions", `[{"symbol": "AAPL", "qty": 10}]`),
		mqttEnv("trader/account", `{"equity": 25000}`),
		mqttEnv("trader/pnl", `{"daily_pnl": -120.5}`),
		mqttEnv("trader/config", `{"max_positions": 5}`),
		mqttEnv("trader/scanner/top", `{"matches": 3}`),
		mqttEnv("momentum/swing/heartbeat", `{"status": "ok", "ts": "2025-01-15T10:30:00Z"}`),
		mqttEnv("trader/alerts/risk", `{"id": "a1", "message": "margin"}`),
	}
	for _, f := range frames {
		queue.Push(f)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.Stats().Applied == int64(len(frames)) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := engine.Stats().Applied; got != int64(len(frames)) {
		t.Fatalf("Applied = %d, want %d", got, len(frames))
	}

	snap := engine.Snapshot()

	checks := []struct {
		slice, entity string
	}{
		{SliceServices, "momentum"},
		{SlicePositions, "AAPL"},
		{SliceAccount, "account"},
		{SlicePortfolio, "pnl"},
		{SliceConfig, "config"},
		{SliceScanner, "top"},
		{SliceSwing, "heartbeat"},
		{SliceAlerts, "a1"},
	}
	for _, c := range checks {
		if _, ok := snap.Entity(c.slice, c.entity); !ok {
			t.Errorf("entity %s/%s missing", c.slice, c.entity)
		}
	}

	if bag, _ := snap.Entity(SliceServices, "momentum"); bag["status"] != "running" {
		t.Errorf("momentum status = %v, want running", bag["status"])
	}

	queue.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := engine.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

// Positions snapshots are authoritative: a second snapshot without a symbol
// drops it.
func TestFeed_PositionSnapshotReplaces(t *testing.T) {
	queue := stream.NewQueue[envelope.Envelope](8)
	engine := mirror.NewEngine(Feed(), mirror.DefaultConfig(), queue, nil)

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	queue.Push(mqttEnv("trader/positions", `[{"symbol": "AAPL", "qty": 10}, {"symbol": "TSLA", "qty": 2}]`))
	queue.Push(mqttEnv("trader/positions", `[{"symbol": "AAPL", "qty": 8}]`))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.Stats().Applied == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := engine.Snapshot()
	if _, ok := snap.Entity(SlicePositions, "TSLA"); ok {
		t.Error("TSLA should be gone after the second snapshot")
	}
	bag, ok := snap.Entity(SlicePositions, "AAPL")
	if !ok {
		t.Fatal("AAPL missing")
	}
	if bag["qty"] != float64(8) {
		t.Errorf("qty = %v, want 8", bag["qty"])
	}

	queue.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	engine.Stop(stopCtx)
}
