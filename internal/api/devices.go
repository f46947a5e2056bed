package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ListDevicesOptions filters GET /devices.
type ListDevicesOptions struct {
	Room          string
	FavoritesOnly bool
	IncludeHidden bool
}

// ListDevices fetches the device catalog with current states.
func (c *Client) ListDevices(ctx context.Context, opts ListDevicesOptions) ([]Device, error) {
	query := url.Values{}

	if opts.Room != "" {
		query.Set("room", opts.Room)
	}
	if opts.FavoritesOnly {
		query.Set("favorites", "true")
	}
	if opts.IncludeHidden {
		query.Set("include_hidden", "true")
	}

	var resp struct {
		Data []Device `json:"data"`
		Meta Meta     `json:"meta"`
	}
	if err := c.get(ctx, "/devices", query, &resp); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	return resp.Data, nil
}

// ListRooms fetches all unique room names.
func (c *Client) ListRooms(ctx context.Context) ([]string, error) {
	var resp struct {
		Data []string `json:"data"`
		Meta Meta     `json:"meta"`
	}
	if err := c.get(ctx, "/devices/rooms", nil, &resp); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	return resp.Data, nil
}

// GetDevice fetches a single device by its catalog id.
func (c *Client) GetDevice(ctx context.Context, id int) (*Device, error) {
	var resp struct {
		Data Device `json:"data"`
		Meta Meta   `json:"meta"`
	}
	if err := c.get(ctx, "/devices/"+strconv.Itoa(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get device %d: %w", id, err)
	}

	return &resp.Data, nil
}

// SendCommand sends a command to a device. The hub takes command and value
// as query parameters, not a body.
func (c *Client) SendCommand(ctx context.Context, id int, command, value string) error {
	query := url.Values{}
	query.Set("command", command)
	if value != "" {
		query.Set("value", value)
	}

	path := fmt.Sprintf("/devices/%d/command", id)
	if err := c.post(ctx, path, query, nil, nil); err != nil {
		return fmt.Errorf("send %s to device %d: %w", command, id, err)
	}

	return nil
}

// TurnOn turns a device on.
func (c *Client) TurnOn(ctx context.Context, id int) error {
	path := fmt.Sprintf("/devices/%d/on", id)
	if err := c.post(ctx, path, nil, nil, nil); err != nil {
		return fmt.Errorf("turn on device %d: %w", id, err)
	}
	return nil
}

// TurnOff turns a device off.
func (c *Client) TurnOff(ctx context.Context, id int) error {
	path := fmt.Sprintf("/devices/%d/off", id)
	if err := c.post(ctx, path, nil, nil, nil); err != nil {
		return fmt.Errorf("turn off device %d: %w", id, err)
	}
	return nil
}

// SetLevel sets a dimmer level. Levels outside 0-100 are clamped.
func (c *Client) SetLevel(ctx context.Context, id, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}

	path := fmt.Sprintf("/devices/%d/level/%d", id, level)
	if err := c.post(ctx, path, nil, nil, nil); err != nil {
		return fmt.Errorf("set device %d level %d: %w", id, level, err)
	}
	return nil
}

// SyncDevices asks the hub to re-import its device catalog upstream.
func (c *Client) SyncDevices(ctx context.Context) (*SyncResult, error) {
	var resp struct {
		Data SyncResult `json:"data"`
		Meta Meta       `json:"meta"`
	}
	if err := c.post(ctx, "/devices/sync", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("sync devices: %w", err)
	}

	return &resp.Data, nil
}

// RefreshStates asks the hub to re-read current attributes for all devices.
func (c *Client) RefreshStates(ctx context.Context) (*RefreshResult, error) {
	var resp struct {
		Data RefreshResult `json:"data"`
		Meta Meta          `json:"meta"`
	}
	if err := c.post(ctx, "/devices/refresh-states", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh states: %w", err)
	}

	return &resp.Data, nil
}
