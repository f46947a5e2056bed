package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Nibbler1250/Domotique-Jetson/internal/api"
	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// ErrForbiddenTopic is returned for publishes outside trader/control/.
var ErrForbiddenTopic = errors.New("topic outside trader/control/")

const controlPrefix = "trader/control/"

// SwingConfigTopic is the control topic for swing configuration changes.
// Publishes to it should go through UpdateSwingConfig so the local mirror
// predicts the change.
const SwingConfigTopic = "trader/control/swing/config"

// Publisher sends raw frames on the trading channel.
type Publisher interface {
	Send(data []byte) error
}

// Controller issues control messages to the trading engine over the feed
// channel. Only trader/control/ topics go out; everything else on the
// trading side is read-only.
type Controller struct {
	feed   Publisher
	engine *mirror.Engine
	rest   *api.Client
	logger *slog.Logger
}

// NewController creates a control publisher for the trading feed.
func NewController(feed Publisher, engine *mirror.Engine, rest *api.Client, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		feed:   feed,
		engine: engine,
		rest:   rest,
		logger: logger,
	}
}

// PublishControl sends a command frame on a control topic.
func (c *Controller) PublishControl(topic string, payload any) error {
	if !strings.HasPrefix(topic, controlPrefix) {
		return fmt.Errorf("%w: %s", ErrForbiddenTopic, topic)
	}

	frame, err := envelope.Publish(topic, payload)
	if err != nil {
		return err
	}
	if err := c.feed.Send(frame); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Info("control message published", "topic", topic)
	return nil
}

// UpdateSwingConfig publishes a swing configuration change. The change is
// merged into the swing slice immediately; on publish failure the
// prediction stays, the next swing-state fetch or feed frame corrects it.
func (c *Controller) UpdateSwingConfig(changes map[string]any) error {
	if len(changes) == 0 {
		return errors.New("empty swing config update")
	}

	c.engine.ApplyOptimistic(SliceSwing, "config", wireShaped(changes))

	if err := c.PublishControl(SwingConfigTopic, changes); err != nil {
		c.logger.Warn("swing config publish failed", "err", err)
		return err
	}
	return nil
}

// ConfirmSwing fetches the hub's cached swing snapshot and folds it in
// through the merge path, settling any pending swing-config write. Called
// after reconnects, when retained frames may have been missed.
func (c *Controller) ConfirmSwing(ctx context.Context) error {
	state, err := c.rest.GetSwingState(ctx)
	if err != nil {
		return fmt.Errorf("confirm swing state: %w", err)
	}

	merge := make(map[string]mirror.Attributes)
	if len(state.Heartbeat) > 0 {
		merge["heartbeat"] = state.Heartbeat
	}
	if state.Candidates != nil {
		merge["candidates"] = listBag(state.Candidates)
	}
	if state.Positions != nil {
		merge["positions"] = listBag(state.Positions)
	}
	if len(state.Config) > 0 {
		merge["config"] = state.Config
	}
	if len(merge) == 0 {
		return nil
	}

	c.engine.Reconcile(mirror.Delta{Slice: SliceSwing, Merge: merge})
	return nil
}

// listBag shapes a REST list the way the feed reducers store one.
func listBag(items []map[string]any) mirror.Attributes {
	list := make([]any, len(items))
	for i, item := range items {
		list[i] = item
	}
	return mirror.Attributes{"items": list, "count": len(items)}
}

// wireShaped round-trips values through the codec so predictions carry the
// same types a feed frame would deliver.
func wireShaped(attrs map[string]any) mirror.Attributes {
	data, err := json.Marshal(attrs)
	if err != nil {
		return attrs
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return attrs
	}
	return out
}
