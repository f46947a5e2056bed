package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultPingInterval     = 30 * time.Second
	DefaultReconnectDelay   = 5 * time.Second
	DefaultReconnectMax     = 60 * time.Second
	DefaultBackoff          = "fixed"
	DefaultDeviceStaleAfter = 180 * time.Second
	DefaultTraderStaleAfter = 75 * time.Second
	DefaultCheckInterval    = 30 * time.Second
	DefaultRefreshInterval  = 15 * time.Minute
	DefaultSettleDelay      = 1500 * time.Millisecond
	DefaultRefreshConc      = 4
	DefaultRefreshTimeout   = 10 * time.Second
	DefaultPendingTimeout   = 10 * time.Second
	DefaultServerAddr       = ":8090"
)

// DefaultTraderTopics is the trading bridge's full topic set. Sent in the
// subscribe frame on every open; the bridge replays retained messages for
// each matched topic.
var DefaultTraderTopics = []string{
	"trader/services/#",
	"trader/portfolio/#",
	"trader/scanner/#",
	"trader/errors/#",
	"trader/status/#",
	"trader/positions/#",
	"trader/pnl/#",
	"trader/forex/#",
	"trader/decisions/#",
	"trader/alerts/#",
	"trader/account/#",
	"trader/capital/#",
	"trader/control/#",
	"trader/margin_protection/#",
	"trader/config/#",
	"trader/history/#",
	"momentum/swing/#",
}

func (c *MirrorConfig) applyDefaults() {
	// Hub API defaults
	if c.HubAPI.Timeout == 0 {
		c.HubAPI.Timeout = DefaultAPITimeout
	}
	if c.HubAPI.MaxRetries == 0 {
		c.HubAPI.MaxRetries = DefaultMaxRetries
	}

	// Feed defaults
	applyFeedDefaults(&c.Feeds.Device, DefaultDeviceStaleAfter)
	applyFeedDefaults(&c.Feeds.Trader, DefaultTraderStaleAfter)
	if len(c.Feeds.Trader.SubscribeTopics) == 0 {
		c.Feeds.Trader.SubscribeTopics = append([]string(nil), DefaultTraderTopics...)
	}

	// Refresh defaults
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultRefreshInterval
	}
	if c.Refresh.SettleDelay == 0 {
		c.Refresh.SettleDelay = DefaultSettleDelay
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = DefaultRefreshConc
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultRefreshTimeout
	}

	// Optimistic defaults
	if c.Optimistic.PendingTimeout == 0 {
		c.Optimistic.PendingTimeout = DefaultPendingTimeout
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}

func applyFeedDefaults(f *FeedConfig, staleAfter time.Duration) {
	if f.PingInterval == 0 {
		f.PingInterval = DefaultPingInterval
	}
	if f.ReconnectDelay == 0 {
		f.ReconnectDelay = DefaultReconnectDelay
	}
	if f.Backoff == "" {
		f.Backoff = DefaultBackoff
	}
	if f.ReconnectMax == 0 {
		f.ReconnectMax = DefaultReconnectMax
	}
	if f.StaleAfter == 0 {
		f.StaleAfter = staleAfter
	}
	if f.CheckInterval == 0 {
		f.CheckInterval = DefaultCheckInterval
	}
}
