package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *MirrorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.HubAPI.BaseURL == "" {
		return errors.New("hub_api.base_url is required")
	}
	if c.HubAPI.Timeout <= 0 {
		return errors.New("hub_api.timeout must be positive")
	}
	if c.HubAPI.MaxRetries < 0 {
		return errors.New("hub_api.max_retries must be >= 0")
	}

	if err := c.Feeds.Device.validate("feeds.device"); err != nil {
		return err
	}
	if err := c.Feeds.Trader.validate("feeds.trader"); err != nil {
		return err
	}

	if c.Refresh.Interval <= 0 {
		return errors.New("refresh.interval must be positive")
	}
	if c.Refresh.SettleDelay < 0 {
		return errors.New("refresh.settle_delay must be >= 0")
	}
	if c.Refresh.Concurrency < 1 {
		return errors.New("refresh.concurrency must be >= 1")
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("refresh.timeout must be positive")
	}

	if c.Optimistic.PendingTimeout <= 0 {
		return errors.New("optimistic.pending_timeout must be positive")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	return nil
}

func (f *FeedConfig) validate(prefix string) error {
	if f.WSURL == "" {
		return fmt.Errorf("%s.ws_url is required", prefix)
	}
	if f.Backoff != "fixed" && f.Backoff != "exponential" {
		return fmt.Errorf("%s.backoff must be fixed or exponential, got %q", prefix, f.Backoff)
	}
	if f.PingInterval < 0 {
		return fmt.Errorf("%s.ping_interval must be >= 0", prefix)
	}
	if f.ReconnectDelay <= 0 {
		return fmt.Errorf("%s.reconnect_delay must be positive", prefix)
	}
	if f.ReconnectMax < f.ReconnectDelay {
		return fmt.Errorf("%s.reconnect_max (%s) cannot be below reconnect_delay (%s)", prefix, f.ReconnectMax, f.ReconnectDelay)
	}
	if f.StaleAfter <= 0 {
		return fmt.Errorf("%s.stale_after must be positive", prefix)
	}
	if f.CheckInterval <= 0 {
		return fmt.Errorf("%s.check_interval must be positive", prefix)
	}
	return nil
}
