package mirror

import "time"

// sweep is one staleness tick: recompute health from the last accepted
// envelope and expire unconfirmed optimistic writes. The expired value
// stays in place; only the pending marker is dropped.
func (e *Engine) sweep(now time.Time) {
	e.mu.Lock()

	prev := e.health
	e.recomputeHealthLocked(now)
	health := e.health

	var expired []PendingWrite
	for key, w := range e.pending {
		if now.Sub(w.IssuedAt) >= e.cfg.PendingTimeout {
			delete(e.pending, key)
			e.stats.PendingExpired++
			expired = append(expired, w)
		}
	}

	e.mu.Unlock()

	for _, w := range expired {
		e.logger.Debug("optimistic write expired unconfirmed",
			"slice", w.Slice,
			"entity", w.EntityID,
		)
	}

	if health != prev {
		e.logger.Info("feed health changed", "from", prev, "to", health)
		e.emit(Event{
			Feed:   e.feed.Name,
			Kind:   "health",
			Health: health,
			At:     now,
		})
	}
}

// recomputeHealthLocked derives health from the staleness clock. Called on
// every tick and on every accepted envelope, so a live frame lifts a stale
// feed immediately while a replayed retained frame with an old original
// timestamp leaves it stale. Must be called with the write lock held.
func (e *Engine) recomputeHealthLocked(now time.Time) {
	switch {
	case e.lastUpdate.IsZero():
		e.health = HealthUnknown
	case now.Sub(e.lastUpdate) >= e.cfg.StaleAfter:
		e.health = HealthStale
	default:
		e.health = HealthFresh
	}
}
