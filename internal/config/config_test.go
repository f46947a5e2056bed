package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: jetson-mirror
hub_api:
  base_url: http://192.168.1.95:8000/api/v1
feeds:
  device:
    ws_url: ws://192.168.1.95:8000/api/v1/ws
  trader:
    ws_url: ws://192.168.1.95:8000/api/v1/trading/ws
    subscribe_topics:
      - trader/status/#
      - momentum/swing/#
server:
  addr: ":9000"
  cors_origins:
    - http://localhost:5173
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "jetson-mirror" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "jetson-mirror")
	}
	if cfg.HubAPI.BaseURL != "http://192.168.1.95:8000/api/v1" {
		t.Errorf("HubAPI.BaseURL = %q, want %q", cfg.HubAPI.BaseURL, "http://192.168.1.95:8000/api/v1")
	}
	if cfg.Feeds.Device.WSURL != "ws://192.168.1.95:8000/api/v1/ws" {
		t.Errorf("Feeds.Device.WSURL = %q", cfg.Feeds.Device.WSURL)
	}
	if len(cfg.Feeds.Trader.SubscribeTopics) != 2 {
		t.Errorf("Trader.SubscribeTopics = %v, want 2 entries", cfg.Feeds.Trader.SubscribeTopics)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9000")
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("Server.CORSOrigins = %v, want 1 entry", cfg.Server.CORSOrigins)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_HUB_TOKEN", "secret123")

	yaml := `
instance:
  id: jetson-mirror
hub_api:
  base_url: http://hub:8000/api/v1
  token: ${TEST_HUB_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HubAPI.Token != "secret123" {
		t.Errorf("HubAPI.Token = %q, want %q", cfg.HubAPI.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: jetson-mirror
hub_api:
  base_url: http://hub:8000/api/v1
feeds:
  device:
    ws_url: ws://hub:8000/api/v1/ws
  trader:
    ws_url: ws://hub:8000/api/v1/trading/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.HubAPI.Timeout != DefaultAPITimeout {
		t.Errorf("HubAPI.Timeout = %v, want default %v", cfg.HubAPI.Timeout, DefaultAPITimeout)
	}
	if cfg.Feeds.Device.StaleAfter != DefaultDeviceStaleAfter {
		t.Errorf("Device.StaleAfter = %v, want default %v", cfg.Feeds.Device.StaleAfter, DefaultDeviceStaleAfter)
	}
	if cfg.Feeds.Trader.StaleAfter != DefaultTraderStaleAfter {
		t.Errorf("Trader.StaleAfter = %v, want default %v", cfg.Feeds.Trader.StaleAfter, DefaultTraderStaleAfter)
	}
	if cfg.Feeds.Device.Backoff != DefaultBackoff {
		t.Errorf("Device.Backoff = %q, want default %q", cfg.Feeds.Device.Backoff, DefaultBackoff)
	}
	if len(cfg.Feeds.Trader.SubscribeTopics) != len(DefaultTraderTopics) {
		t.Errorf("Trader.SubscribeTopics has %d entries, want %d", len(cfg.Feeds.Trader.SubscribeTopics), len(DefaultTraderTopics))
	}
	if len(cfg.Feeds.Device.SubscribeTopics) != 0 {
		t.Errorf("Device.SubscribeTopics = %v, want none", cfg.Feeds.Device.SubscribeTopics)
	}
	if cfg.Refresh.SettleDelay != DefaultSettleDelay {
		t.Errorf("Refresh.SettleDelay = %v, want default %v", cfg.Refresh.SettleDelay, DefaultSettleDelay)
	}
	if cfg.Optimistic.PendingTimeout != DefaultPendingTimeout {
		t.Errorf("Optimistic.PendingTimeout = %v, want default %v", cfg.Optimistic.PendingTimeout, DefaultPendingTimeout)
	}
	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, DefaultServerAddr)
	}
}

func validConfig() MirrorConfig {
	cfg := MirrorConfig{
		Instance: InstanceConfig{ID: "test"},
		HubAPI:   HubAPIConfig{BaseURL: "http://hub:8000/api/v1"},
		Feeds: FeedsConfig{
			Device: FeedConfig{WSURL: "ws://hub:8000/api/v1/ws"},
			Trader: FeedConfig{WSURL: "ws://hub:8000/api/v1/trading/ws"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MirrorConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *MirrorConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *MirrorConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing hub base url",
			mutate:  func(c *MirrorConfig) { c.HubAPI.BaseURL = "" },
			wantErr: "hub_api.base_url is required",
		},
		{
			name:    "missing device ws url",
			mutate:  func(c *MirrorConfig) { c.Feeds.Device.WSURL = "" },
			wantErr: "feeds.device.ws_url is required",
		},
		{
			name:    "missing trader ws url",
			mutate:  func(c *MirrorConfig) { c.Feeds.Trader.WSURL = "" },
			wantErr: "feeds.trader.ws_url is required",
		},
		{
			name:    "bad backoff policy",
			mutate:  func(c *MirrorConfig) { c.Feeds.Device.Backoff = "linear" },
			wantErr: `feeds.device.backoff must be fixed or exponential, got "linear"`,
		},
		{
			name: "reconnect max below delay",
			mutate: func(c *MirrorConfig) {
				c.Feeds.Trader.ReconnectDelay = 10 * time.Second
				c.Feeds.Trader.ReconnectMax = time.Second
			},
			wantErr: "feeds.trader.reconnect_max (1s) cannot be below reconnect_delay (10s)",
		},
		{
			name:    "zero refresh concurrency",
			mutate:  func(c *MirrorConfig) { c.Refresh.Concurrency = 0 },
			wantErr: "refresh.concurrency must be >= 1",
		},
		{
			name:    "zero pending timeout",
			mutate:  func(c *MirrorConfig) { c.Optimistic.PendingTimeout = 0 },
			wantErr: "optimistic.pending_timeout must be positive",
		},
		{
			name:    "missing server addr",
			mutate:  func(c *MirrorConfig) { c.Server.Addr = "" },
			wantErr: "server.addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoadAndValidate(t *testing.T) {
	yaml := `
instance:
  id: jetson-mirror
hub_api:
  base_url: http://hub:8000/api/v1
feeds:
  device:
    ws_url: ws://hub:8000/api/v1/ws
  trader:
    ws_url: ws://hub:8000/api/v1/trading/ws
`
	path := writeTempFile(t, yaml)

	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: test\n")

	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("expected validation error for missing hub_api.base_url")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
