package api

import (
	"context"
	"fmt"
)

// GetTradingStatus fetches bridge connectivity for the trading feed.
func (c *Client) GetTradingStatus(ctx context.Context) (*TradingStatus, error) {
	var resp TradingStatus
	if err := c.get(ctx, "/trading/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get trading status: %w", err)
	}
	return &resp, nil
}

// GetSwingState fetches the hub's cached swing trading snapshot. Useful after
// a reconnect when retained frames may have been missed.
func (c *Client) GetSwingState(ctx context.Context) (*SwingState, error) {
	var resp SwingState
	if err := c.get(ctx, "/trading/swing/state", nil, &resp); err != nil {
		return nil, fmt.Errorf("get swing state: %w", err)
	}
	return &resp, nil
}
