package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
	"github.com/Nibbler1250/Domotique-Jetson/internal/trader"
	"github.com/Nibbler1250/Domotique-Jetson/internal/view"
)

func classifyService(attrs mirror.Attributes, health mirror.Health) string {
	return string(trader.Classify(attrs, health))
}

func (s *Server) tradingStatus(c *gin.Context) {
	conn := s.trading.ConnectionState()

	s.respond(c, http.StatusOK, gin.H{
		"channel":          conn.Status,
		"reconnecting":     conn.Reconnecting,
		"bridge_connected": conn.BridgeConnected,
		"last_pong_at":     conn.LastPongAt,
		"health":           s.trading.Health(),
		"stats":            s.trading.FeedStats(),
	})
}

// serviceModel is one trading service with its classified status.
type serviceModel struct {
	Name   string            `json:"name"`
	Status string            `json:"status"`
	Attrs  mirror.Attributes `json:"attrs,omitempty"`
}

func (s *Server) tradingServices(c *gin.Context) {
	snap := s.trading.Snapshot()
	slice := snap.Slice(trader.SliceServices)

	items := make([]serviceModel, 0, len(slice))
	for name, bag := range slice {
		items = append(items, serviceModel{
			Name:   name,
			Status: classifyService(bag, snap.Health),
			Attrs:  bag,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	s.respond(c, http.StatusOK, gin.H{
		"services": items,
		"health":   snap.Health,
	})
}

func (s *Server) tradingPositions(c *gin.Context) {
	snap := s.trading.Snapshot()
	slice := snap.Slice(trader.SlicePositions)

	symbols := make([]string, 0, len(slice))
	for sym := range slice {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	items := make([]mirror.Attributes, 0, len(symbols))
	for _, sym := range symbols {
		items = append(items, slice[sym])
	}

	s.respond(c, http.StatusOK, gin.H{
		"positions": items,
		"count":     len(items),
		"health":    snap.Health,
	})
}

func (s *Server) tradingAccount(c *gin.Context) {
	snap := s.trading.Snapshot()

	s.respond(c, http.StatusOK, gin.H{
		"account": snap.Slice(trader.SliceAccount),
		"health":  snap.Health,
	})
}

func (s *Server) tradingSummary(c *gin.Context) {
	snap := s.trading.Snapshot()

	s.respond(c, http.StatusOK, gin.H{
		"services":      view.HealthSummary(snap.Slice(trader.SliceServices), snap.Health, classifyService),
		"top_positions": view.TopN(snap.Slice(trader.SlicePositions), "unrealized_pnl", 5),
		"alerts":        len(snap.Slice(trader.SliceAlerts)),
		"health":        snap.Health,
		"last_update":   snap.LastUpdate,
	})
}

// controlRequest is the body of POST /api/v1/trading/control.
type controlRequest struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

func (s *Server) tradingControl(c *gin.Context) {
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.problem(c, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	if req.Topic == "" {
		s.problem(c, http.StatusBadRequest, "invalid body", "topic is required")
		return
	}

	control := s.trading.Control()

	var err error
	if req.Topic == trader.SwingConfigTopic {
		// Swing config changes go through the optimistic path so the
		// mirror predicts them.
		changes, ok := req.Payload.(map[string]any)
		if !ok {
			s.problem(c, http.StatusBadRequest, "invalid body", "swing config payload must be an object")
			return
		}
		err = control.UpdateSwingConfig(changes)
	} else {
		err = control.PublishControl(req.Topic, req.Payload)
	}

	switch {
	case err == nil:
	case errors.Is(err, trader.ErrForbiddenTopic):
		s.problem(c, http.StatusForbidden, "forbidden topic", err.Error())
		return
	case errors.Is(err, stream.ErrNotConnected):
		s.problem(c, http.StatusServiceUnavailable, "feed not connected", err.Error())
		return
	default:
		s.problem(c, http.StatusBadGateway, "publish failed", err.Error())
		return
	}

	s.respond(c, http.StatusAccepted, gin.H{
		"topic":  req.Topic,
		"status": "published",
	})
}
