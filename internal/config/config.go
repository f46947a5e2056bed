package config

import "time"

// MirrorConfig is the root configuration for a mirror instance.
type MirrorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	HubAPI     HubAPIConfig     `yaml:"hub_api"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Optimistic OptimisticConfig `yaml:"optimistic"`
	Server     ServerConfig     `yaml:"server"`
}

// InstanceConfig identifies this mirror.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HubAPIConfig holds hub REST API settings.
type HubAPIConfig struct {
	BaseURL    string        `yaml:"base_url"` // versioned root, e.g. http://hub:8000/api/v1
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// FeedsConfig holds the two WebSocket feed channels.
type FeedsConfig struct {
	Device FeedConfig `yaml:"device"`
	Trader FeedConfig `yaml:"trader"`
}

// FeedConfig holds one feed channel's settings.
type FeedConfig struct {
	WSURL           string        `yaml:"ws_url"`
	SubscribeTopics []string      `yaml:"subscribe_topics"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
	Backoff         string        `yaml:"backoff"` // fixed or exponential
	ReconnectMax    time.Duration `yaml:"reconnect_max"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	CheckInterval   time.Duration `yaml:"check_interval"`
}

// RefreshConfig holds device state refresh settings.
type RefreshConfig struct {
	Interval    time.Duration `yaml:"interval"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OptimisticConfig holds optimistic write settings.
type OptimisticConfig struct {
	PendingTimeout time.Duration `yaml:"pending_timeout"`
}

// ServerConfig holds the local fan-out server settings.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	TradingToken string   `yaml:"trading_token"` // empty disables the trading route guard
	CORSOrigins  []string `yaml:"cors_origins"`
}
