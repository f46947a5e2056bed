package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// recordingSink captures reconcile deltas for inspection.
type recordingSink struct {
	mu     sync.Mutex
	deltas []mirror.Delta
}

func (s *recordingSink) Reconcile(d mirror.Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, d)
}

func (s *recordingSink) all() []mirror.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mirror.Delta(nil), s.deltas...)
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := DefaultRefreshConfig()

	if cfg.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want %v", cfg.Interval, 5*time.Minute)
	}
	if cfg.SettleDelay != 1500*time.Millisecond {
		t.Errorf("SettleDelay = %v, want %v", cfg.SettleDelay, 1500*time.Millisecond)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 30*time.Second)
	}
}

func TestRefresher_RefreshNow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/devices/refresh-states" {
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"updated": 2, "total": 3},
				"meta": map[string]any{"timestamp": "2024-06-01T12:00:00Z"},
			})
			return
		}
		json.NewEncoder(w).Encode(catalogResponse(
			map[string]any{"id": 1, "hubitat_id": 101, "name": "lamp",
				"state": map[string]any{"switch": "on", "level": "80"}},
			map[string]any{"id": 2, "hubitat_id": 102, "name": "sensor"},
			map[string]any{"id": 3, "hubitat_id": 103, "name": "fan",
				"state": map[string]any{"speed": "low"}},
		))
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := api.NewClient(server.URL, "")
	refresher := NewRefresher(DefaultRefreshConfig(), client, seedRegistry(), sink, nil)

	result, err := refresher.RefreshNow(context.Background())
	if err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	if result.Updated != 2 {
		t.Errorf("Updated = %d, want 2", result.Updated)
	}

	deltas := sink.all()
	if len(deltas) != 1 {
		t.Fatalf("len(deltas) = %d, want 1", len(deltas))
	}

	d := deltas[0]
	if d.Slice != Slice {
		t.Errorf("Slice = %q, want %q", d.Slice, Slice)
	}
	if d.Replace {
		t.Error("refresh must merge, never replace")
	}
	if len(d.Merge) != 2 {
		t.Errorf("len(Merge) = %d, want 2 (stateless device skipped)", len(d.Merge))
	}

	// String states come back normalized.
	if d.Merge["101"]["switch"] != true {
		t.Errorf("switch = %v, want true", d.Merge["101"]["switch"])
	}
	if d.Merge["101"]["level"] != float64(80) {
		t.Errorf("level = %v, want 80", d.Merge["101"]["level"])
	}
	if d.Merge["103"]["speed"] != "low" {
		t.Errorf("speed = %v, want low", d.Merge["103"]["speed"])
	}
}

func TestRefresher_RefreshNow_RefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "hub offline"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := api.NewClient(server.URL, "", api.WithRetries(0, time.Millisecond))
	refresher := NewRefresher(DefaultRefreshConfig(), client, seedRegistry(), sink, nil)

	if _, err := refresher.RefreshNow(context.Background()); err == nil {
		t.Fatal("expected error when the hub refresh fails")
	}
	if len(sink.all()) != 0 {
		t.Error("no reconcile expected after a failed refresh")
	}
}

func TestRefresher_StartRefreshesImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/devices/refresh-states" {
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"updated": 1, "total": 1},
				"meta": map[string]any{"timestamp": "2024-06-01T12:00:00Z"},
			})
			return
		}
		json.NewEncoder(w).Encode(catalogResponse(
			map[string]any{"id": 1, "hubitat_id": 101, "name": "lamp",
				"state": map[string]any{"switch": "off"}},
		))
	}))
	defer server.Close()

	engine := testEngine()
	client := api.NewClient(server.URL, "")
	refresher := NewRefresher(RefreshConfig{
		Interval:    time.Hour, // Only the startup refresh during the test
		SettleDelay: time.Second,
		Timeout:     5 * time.Second,
	}, client, seedRegistry(), engine, nil)

	if err := refresher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.Stats().Reconciled >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	bag, ok := engine.Snapshot().Entity(Slice, "101")
	if !ok {
		t.Fatal("entity 101 not reconciled on startup")
	}
	if bag["switch"] != false {
		t.Errorf("switch = %v, want false", bag["switch"])
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := refresher.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestRefresher_RefreshFailureStillReconcilesListing(t *testing.T) {
	// The hub-side refresh can fail while the catalog listing still works;
	// cached states are better than nothing.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/devices/refresh-states" {
			http.Error(w, `{"detail": "zigbee mesh busy"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(catalogResponse(
			map[string]any{"id": 1, "hubitat_id": 101, "name": "lamp",
				"state": map[string]any{"switch": "on"}},
		))
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := api.NewClient(server.URL, "", api.WithRetries(0, time.Millisecond))
	refresher := NewRefresher(RefreshConfig{
		Interval:    time.Hour,
		SettleDelay: time.Second,
		Timeout:     5 * time.Second,
	}, client, seedRegistry(), sink, nil)

	if err := refresher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.all()) >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	deltas := sink.all()
	if len(deltas) != 1 {
		t.Fatalf("len(deltas) = %d, want 1", len(deltas))
	}
	if deltas[0].Merge["101"]["switch"] != true {
		t.Errorf("switch = %v, want true", deltas[0].Merge["101"]["switch"])
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	refresher.Stop(stopCtx)
}

func TestRefresher_Confirm_BeforeStart(t *testing.T) {
	sink := &recordingSink{}
	client := api.NewClient("http://localhost", "")
	refresher := NewRefresher(DefaultRefreshConfig(), client, seedRegistry(), sink, nil)

	// Confirm before Start is a no-op, not a panic.
	refresher.Confirm("101")
}

func TestRefresher_Confirm_UnknownDevice(t *testing.T) {
	var gets int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path != "/devices" {
			gets++
		}
		if r.URL.Path == "/devices/refresh-states" {
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"updated": 0, "total": 0},
				"meta": map[string]any{"timestamp": "2024-06-01T12:00:00Z"},
			})
			return
		}
		json.NewEncoder(w).Encode(catalogResponse())
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := api.NewClient(server.URL, "")
	refresher := NewRefresher(RefreshConfig{
		Interval:    time.Hour,
		SettleDelay: 5 * time.Millisecond,
		Timeout:     5 * time.Second,
	}, client, seedRegistry(), sink, nil)

	if err := refresher.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	refresher.Confirm("999")
	time.Sleep(100 * time.Millisecond)

	if gets != 0 {
		t.Errorf("gets = %d, want 0 (no fetch for uncataloged device)", gets)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	refresher.Stop(stopCtx)
}

func TestRefresher_Stop_NilCancel(t *testing.T) {
	sink := &recordingSink{}
	client := api.NewClient("http://localhost", "")
	refresher := NewRefresher(DefaultRefreshConfig(), client, seedRegistry(), sink, nil)

	// Stop without Start should not panic.
	if err := refresher.Stop(context.Background()); err != nil {
		t.Errorf("Stop returned error: %v", err)
	}
}
