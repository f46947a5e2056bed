package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// ErrUnknownDevice is returned for commands against keys not in the catalog.
var ErrUnknownDevice = errors.New("unknown device")

// Commander issues device commands through the hub. The predicted result is
// applied to the mirror immediately so the dashboard reacts without waiting
// for the round trip; a confirmation fetch follows once the device settles.
type Commander struct {
	client    *api.Client
	registry  Registry
	engine    *mirror.Engine
	refresher *Refresher
	logger    *slog.Logger
}

// NewCommander creates a command issuer. refresher may be nil, in which case
// no confirmation fetches are scheduled.
func NewCommander(client *api.Client, registry Registry, engine *mirror.Engine, refresher *Refresher, logger *slog.Logger) *Commander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commander{
		client:    client,
		registry:  registry,
		engine:    engine,
		refresher: refresher,
		logger:    logger,
	}
}

// TurnOn turns a device on.
func (c *Commander) TurnOn(ctx context.Context, key string) error {
	return c.issue(ctx, key, mirror.Attributes{"switch": true},
		func(ctx context.Context, id int) error {
			return c.client.TurnOn(ctx, id)
		})
}

// TurnOff turns a device off.
func (c *Commander) TurnOff(ctx context.Context, key string) error {
	return c.issue(ctx, key, mirror.Attributes{"switch": false},
		func(ctx context.Context, id int) error {
			return c.client.TurnOff(ctx, id)
		})
}

// SetLevel sets a dimmer level (0-100, clamped). Any level above zero also
// switches the device on.
func (c *Commander) SetLevel(ctx context.Context, key string, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}

	predicted := mirror.Attributes{
		"level":  float64(level),
		"switch": level > 0,
	}
	return c.issue(ctx, key, predicted,
		func(ctx context.Context, id int) error {
			return c.client.SetLevel(ctx, id, level)
		})
}

// SetColorTemperature sets a bulb's color temperature in kelvin.
func (c *Commander) SetColorTemperature(ctx context.Context, key string, kelvin int) error {
	return c.issue(ctx, key, mirror.Attributes{"colorTemperature": float64(kelvin)},
		func(ctx context.Context, id int) error {
			return c.client.SendCommand(ctx, id, "setColorTemperature", strconv.Itoa(kelvin))
		})
}

// Lock locks a lock.
func (c *Commander) Lock(ctx context.Context, key string) error {
	return c.issue(ctx, key, mirror.Attributes{"lock": "locked"},
		func(ctx context.Context, id int) error {
			return c.client.SendCommand(ctx, id, "lock", "")
		})
}

// Unlock unlocks a lock.
func (c *Commander) Unlock(ctx context.Context, key string) error {
	return c.issue(ctx, key, mirror.Attributes{"lock": "unlocked"},
		func(ctx context.Context, id int) error {
			return c.client.SendCommand(ctx, id, "unlock", "")
		})
}

// SetHeatingSetpoint sets a thermostat's heating target.
func (c *Commander) SetHeatingSetpoint(ctx context.Context, key string, degrees float64) error {
	return c.issue(ctx, key, mirror.Attributes{"heatingSetpoint": degrees},
		func(ctx context.Context, id int) error {
			return c.client.SendCommand(ctx, id, "setHeatingSetpoint", formatDegrees(degrees))
		})
}

// SetCoolingSetpoint sets a thermostat's cooling target.
func (c *Commander) SetCoolingSetpoint(ctx context.Context, key string, degrees float64) error {
	return c.issue(ctx, key, mirror.Attributes{"coolingSetpoint": degrees},
		func(ctx context.Context, id int) error {
			return c.client.SendCommand(ctx, id, "setCoolingSetpoint", formatDegrees(degrees))
		})
}

// Send issues an arbitrary Hubitat command. No prediction is applied since
// the resulting attribute change is not known; the confirmation fetch still
// picks up whatever the device did.
func (c *Commander) Send(ctx context.Context, key, command, value string) error {
	return c.issue(ctx, key, nil,
		func(ctx context.Context, id int) error {
			return c.client.SendCommand(ctx, id, command, value)
		})
}

// issue resolves the device, applies the prediction, performs the REST call,
// and schedules confirmation. The prediction is kept even when the call
// fails: the confirmation fetch or the feed corrects it, and the pending
// marker expires on its own.
func (c *Commander) issue(ctx context.Context, key string, predicted mirror.Attributes, call func(context.Context, int) error) error {
	info, ok := c.registry.Device(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}

	if len(predicted) > 0 {
		c.engine.ApplyOptimistic(Slice, key, predicted)
	}

	err := call(ctx, info.CatalogID)

	if c.refresher != nil {
		c.refresher.Confirm(key)
	}

	if err != nil {
		c.logger.Warn("device command failed", "device", key, "err", err)
		return err
	}

	return nil
}

func formatDegrees(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

// Capability names a device must advertise for common commands.
const (
	CapSwitch      = "Switch"
	CapSwitchLevel = "SwitchLevel"
	CapLock        = "Lock"
	CapThermostat  = "Thermostat"
)
