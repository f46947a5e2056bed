package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/device"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/view"
)

// deviceModel is a catalog entry merged with its live attribute bag.
type deviceModel struct {
	ID           int               `json:"id"`
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Label        string            `json:"label,omitempty"`
	DisplayName  string            `json:"display_name"`
	Type         string            `json:"type"`
	Room         string            `json:"room,omitempty"`
	IsFavorite   bool              `json:"is_favorite"`
	Icon         string            `json:"icon,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Controls     []string          `json:"controls,omitempty"`
	Attributes   mirror.Attributes `json:"attributes,omitempty"`
}

func deviceModelFrom(info device.Info, snap mirror.Snapshot) deviceModel {
	attrs, _ := snap.Entity(device.Slice, info.Key)
	return deviceModel{
		ID:           info.CatalogID,
		Key:          info.Key,
		Name:         info.Name,
		Label:        info.Label,
		DisplayName:  info.DisplayName(),
		Type:         info.Type,
		Room:         info.Room,
		IsFavorite:   info.IsFavorite,
		Icon:         info.Icon,
		Capabilities: info.Capabilities,
		Controls:     controlsFor(info),
		Attributes:   attrs,
	}
}

// controlsFor maps advertised capabilities to the control groups a
// dashboard can render for the device.
func controlsFor(info device.Info) []string {
	var controls []string
	if info.HasCapability(device.CapSwitch) {
		controls = append(controls, "switch")
	}
	if info.HasCapability(device.CapSwitchLevel) {
		controls = append(controls, "level")
	}
	if info.HasCapability(device.CapLock) {
		controls = append(controls, "lock")
	}
	if info.HasCapability(device.CapThermostat) {
		controls = append(controls, "thermostat")
	}
	return controls
}

func (s *Server) listDevices(c *gin.Context) {
	opts := device.ListOptions{
		Room:          c.Query("room"),
		FavoritesOnly: c.Query("favorites") == "true",
		IncludeHidden: c.Query("include_hidden") == "true",
	}

	infos := s.devices.List(opts)
	snap := s.devices.Snapshot()

	items := make([]deviceModel, 0, len(infos))
	for _, info := range infos {
		items = append(items, deviceModelFrom(info, snap))
	}

	s.respond(c, http.StatusOK, gin.H{
		"devices": items,
		"count":   len(items),
		"health":  snap.Health,
	})
}

func (s *Server) getDevice(c *gin.Context) {
	key := c.Param("id")
	info, ok := s.devices.Device(key)
	if !ok {
		s.problem(c, http.StatusNotFound, "unknown device", "no device with key "+key)
		return
	}

	s.respond(c, http.StatusOK, deviceModelFrom(info, s.devices.Snapshot()))
}

// rooms groups the catalog by room, averaging light levels where present.
func (s *Server) rooms(c *gin.Context) {
	infos := s.devices.List(device.ListOptions{})
	snap := s.devices.Snapshot()

	bags := make(map[string]mirror.Attributes, len(infos))
	for _, info := range infos {
		bag := mirror.Attributes{"room": info.Room}
		if attrs, ok := snap.Entity(device.Slice, info.Key); ok {
			for k, v := range attrs {
				bag[k] = v
			}
			bag["room"] = info.Room
		}
		bags[info.Key] = bag
	}

	s.respond(c, http.StatusOK, gin.H{
		"rooms": view.GroupBy(bags, "room", "level"),
	})
}

// commandRequest is the body of POST /api/v1/devices/:id/commands.
type commandRequest struct {
	Command string `json:"command"`
	Value   any    `json:"value"`
}

func (s *Server) deviceCommand(c *gin.Context) {
	key := c.Param("id")

	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.problem(c, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	if req.Command == "" {
		s.problem(c, http.StatusBadRequest, "invalid body", "command is required")
		return
	}

	cmd := s.devices.Commands()
	ctx := c.Request.Context()

	var err error
	switch req.Command {
	case "on":
		err = cmd.TurnOn(ctx, key)
	case "off":
		err = cmd.TurnOff(ctx, key)
	case "set_level":
		level, ok := intValue(req.Value)
		if !ok {
			s.problem(c, http.StatusBadRequest, "invalid value", "set_level requires a numeric value")
			return
		}
		err = cmd.SetLevel(ctx, key, level)
	case "set_color_temperature":
		kelvin, ok := intValue(req.Value)
		if !ok {
			s.problem(c, http.StatusBadRequest, "invalid value", "set_color_temperature requires a numeric value")
			return
		}
		err = cmd.SetColorTemperature(ctx, key, kelvin)
	case "lock":
		err = cmd.Lock(ctx, key)
	case "unlock":
		err = cmd.Unlock(ctx, key)
	case "set_heating_setpoint":
		degrees, ok := floatValue(req.Value)
		if !ok {
			s.problem(c, http.StatusBadRequest, "invalid value", "set_heating_setpoint requires a numeric value")
			return
		}
		err = cmd.SetHeatingSetpoint(ctx, key, degrees)
	case "set_cooling_setpoint":
		degrees, ok := floatValue(req.Value)
		if !ok {
			s.problem(c, http.StatusBadRequest, "invalid value", "set_cooling_setpoint requires a numeric value")
			return
		}
		err = cmd.SetCoolingSetpoint(ctx, key, degrees)
	default:
		err = cmd.Send(ctx, key, req.Command, stringValue(req.Value))
	}

	if err != nil {
		s.commandProblem(c, err)
		return
	}

	s.respond(c, http.StatusOK, gin.H{
		"device":  key,
		"command": req.Command,
		"status":  "applied",
	})
}

func (s *Server) commandProblem(c *gin.Context, err error) {
	var p *api.Problem
	switch {
	case errors.Is(err, device.ErrUnknownDevice):
		s.problem(c, http.StatusNotFound, "unknown device", err.Error())
	case errors.As(err, &p):
		s.problem(c, http.StatusBadGateway, "hub rejected command", err.Error())
	default:
		s.problem(c, http.StatusBadGateway, "command failed", err.Error())
	}
}

func floatValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func intValue(v any) (int, bool) {
	f, ok := floatValue(v)
	return int(f), ok
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
