package mirror

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
	"github.com/Nibbler1250/Domotique-Jetson/internal/stream"
)

// Engine folds one feed's envelopes into canonical state.
type Engine struct {
	feed   Feed
	cfg    Config
	source *stream.Queue[envelope.Envelope]
	logger *slog.Logger

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	slices     map[string]map[string]Attributes
	lastUpdate time.Time
	health     Health
	lastError  string
	pending    map[string]PendingWrite // keyed slice+"/"+entity
	stats      EngineStats
}

// NewEngine creates an engine for one feed binding. The source queue is
// owned by the caller; closing it ends the consume loop.
func NewEngine(feed Feed, cfg Config, source *stream.Queue[envelope.Envelope], logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if feed.Name != "" {
		logger = logger.With("feed", feed.Name)
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.EventBufferSize < 1 {
		cfg.EventBufferSize = DefaultEventBufferSize
	}

	return &Engine{
		feed:    feed,
		cfg:     cfg,
		source:  source,
		logger:  logger,
		events:  make(chan Event, cfg.EventBufferSize),
		slices:  make(map[string]map[string]Attributes),
		health:  HealthUnknown,
		pending: make(map[string]PendingWrite),
	}
}

// Start launches the consume and staleness loops.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go e.consumeLoop()
	go e.tickLoop()

	e.logger.Info("state engine started",
		"stale_after", e.cfg.StaleAfter,
		"check_interval", e.cfg.CheckInterval,
	)
	return nil
}

// Stop shuts the engine down. The source queue must be closed first or
// Stop waits out the context. State stays readable after Stop.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("engine shutdown timeout")
	}

	e.logger.Info("state engine stopped")
	return nil
}

// Events returns the fan-out channel of applied changes. Single consumer;
// events are dropped (and counted) when the consumer lags.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Snapshot returns a deep copy of current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	slices := make(map[string]map[string]Attributes, len(e.slices))
	for name, sl := range e.slices {
		cp := make(map[string]Attributes, len(sl))
		for id, bag := range sl {
			cp[id] = cloneAttributes(bag)
		}
		slices[name] = cp
	}

	pending := make([]PendingWrite, 0, len(e.pending))
	for _, w := range e.pending {
		pending = append(pending, w)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].IssuedAt.Before(pending[j].IssuedAt)
	})

	return Snapshot{
		Feed:       e.feed.Name,
		Slices:     slices,
		LastUpdate: e.lastUpdate,
		Health:     e.health,
		LastError:  e.lastError,
		Pending:    pending,
		TakenAt:    time.Now(),
	}
}

// Health returns current feed health.
func (e *Engine) Health() Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.health
}

// LastUpdate returns the timestamp of the last accepted envelope.
func (e *Engine) LastUpdate() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUpdate
}

// Stats returns envelope-handling counters.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// ApplyOptimistic merges attrs into an entity immediately and records a
// pending write. The merge does not advance LastUpdate; the next feed or
// confirmation merge touching the entity settles it. The latest write per
// entity wins.
func (e *Engine) ApplyOptimistic(slice, id string, attrs Attributes) PendingWrite {
	w := PendingWrite{
		ID:       uuid.NewString(),
		Slice:    slice,
		EntityID: id,
		Attrs:    cloneAttributes(attrs),
		IssuedAt: time.Now(),
	}

	e.mu.Lock()
	e.mergeEntityLocked(slice, id, attrs)
	e.pending[pendingKey(slice, id)] = w
	e.stats.OptimisticWrites++
	e.mu.Unlock()

	e.emit(Event{
		Feed:     e.feed.Name,
		Kind:     "optimistic",
		Slice:    slice,
		Entities: []string{id},
		At:       w.IssuedAt,
	})
	return w
}

// Reconcile applies an out-of-band delta (refresh result, confirmation
// fetch). It settles pending writes for touched entities but leaves the
// staleness clock alone; only feed envelopes advance LastUpdate.
func (e *Engine) Reconcile(d Delta) {
	if d.Slice == "" {
		return
	}

	e.mu.Lock()
	entities := e.applyDeltaLocked(d)
	e.settlePendingLocked(d, entities)
	e.stats.Reconciled++
	e.mu.Unlock()

	e.emit(Event{
		Feed:     e.feed.Name,
		Kind:     "reconcile",
		Slice:    d.Slice,
		Entities: entities,
		At:       time.Now(),
	})
}

// consumeLoop drains the source queue and applies each envelope in order.
func (e *Engine) consumeLoop() {
	defer e.wg.Done()

	for {
		env, ok := e.source.Pop()
		if !ok {
			return
		}
		if e.ctx.Err() != nil {
			return
		}
		e.apply(env)
	}
}

// tickLoop runs the staleness monitor and pending-write sweeper.
func (e *Engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweep(time.Now())
		}
	}
}

// apply routes and folds one envelope in a single atomic step: delta,
// LastUpdate, error flag, health, and pending settlement move together.
func (e *Engine) apply(env envelope.Envelope) {
	topic := e.feed.topic(env)
	route, ok := e.feed.lookup(topic)
	if !ok {
		e.mu.Lock()
		e.stats.UnknownTopics++
		e.mu.Unlock()
		e.logger.Debug("dropping unroutable envelope", "topic", topic, "kind", env.Kind)
		return
	}

	e.mu.Lock()

	delta, err := route.Reduce(lockedView{e}, env)
	if err != nil {
		e.stats.ReducerErrors++
		e.mu.Unlock()
		e.logger.Warn("reducer failed", "topic", topic, "error", err)
		return
	}

	entities := e.applyDeltaLocked(delta)
	e.settlePendingLocked(delta, entities)

	ts := env.At()
	if ts.IsZero() {
		ts = env.ReceivedAt
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	e.lastUpdate = ts
	e.lastError = ""
	e.recomputeHealthLocked(time.Now())

	e.stats.Applied++
	health := e.health
	e.mu.Unlock()

	e.emit(Event{
		Feed:     e.feed.Name,
		Kind:     env.Kind,
		Topic:    topic,
		Slice:    delta.Slice,
		Entities: entities,
		Health:   health,
		At:       ts,
	})
}

// applyDeltaLocked folds a delta into the slices. Returns touched entity
// ids in sorted order. Must be called with the write lock held.
func (e *Engine) applyDeltaLocked(d Delta) []string {
	if d.Slice == "" || d.Merge == nil {
		return nil
	}

	entities := make([]string, 0, len(d.Merge))
	for id := range d.Merge {
		entities = append(entities, id)
	}
	sort.Strings(entities)

	if d.Replace {
		next := make(map[string]Attributes, len(d.Merge))
		for id, attrs := range d.Merge {
			next[id] = cloneAttributes(attrs)
		}
		e.slices[d.Slice] = next
		return entities
	}

	for _, id := range entities {
		e.mergeEntityLocked(d.Slice, id, d.Merge[id])
	}
	return entities
}

// mergeEntityLocked shallow-merges attrs into one entity bag.
func (e *Engine) mergeEntityLocked(slice, id string, attrs Attributes) {
	sl := e.slices[slice]
	if sl == nil {
		sl = make(map[string]Attributes)
		e.slices[slice] = sl
	}
	bag := sl[id]
	if bag == nil {
		bag = make(Attributes, len(attrs))
		sl[id] = bag
	}
	for k, v := range attrs {
		bag[k] = v
	}
}

// settlePendingLocked clears pending writes superseded by a delta. A full
// replace settles every pending write on the slice; the snapshot is
// authoritative.
func (e *Engine) settlePendingLocked(d Delta, entities []string) {
	if d.Slice == "" {
		return
	}
	if d.Replace {
		for key, w := range e.pending {
			if w.Slice == d.Slice {
				delete(e.pending, key)
			}
		}
		return
	}
	for _, id := range entities {
		delete(e.pending, pendingKey(d.Slice, id))
	}
}

// emit publishes an event without blocking the apply path.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.mu.Lock()
		e.stats.EventsDropped++
		e.mu.Unlock()
		e.logger.Warn("event buffer full, dropping event", "kind", ev.Kind)
	}
}

func pendingKey(slice, id string) string {
	return slice + "/" + id
}

// cloneAttributes copies one attribute bag. Values are shared; they are
// immutable once stored.
func cloneAttributes(attrs Attributes) Attributes {
	cp := make(Attributes, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp
}

// lockedView is the reducer's read access to live state. Valid only while
// the engine lock is held.
type lockedView struct{ e *Engine }

func (v lockedView) Entity(slice, id string) (Attributes, bool) {
	bag, ok := v.e.slices[slice][id]
	if !ok {
		return nil, false
	}
	return cloneAttributes(bag), true
}

func (v lockedView) Slice(name string) map[string]Attributes {
	sl := v.e.slices[name]
	cp := make(map[string]Attributes, len(sl))
	for id, bag := range sl {
		cp[id] = cloneAttributes(bag)
	}
	return cp
}
