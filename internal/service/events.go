// Package service composes the coordination engines with persistence, caching,
// distributed locking, and event fan-out. Engines stay authoritative and
// synchronous; everything in this package happens after a transition commits.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// eventStream is the durable Redis stream every event is appended to, in
// addition to its per-event pub/sub channel.
const eventStream = "events"

// lockTTL bounds how long a cross-instance mutation lock can be held.
const lockTTL = 10 * time.Second

// Publisher fans a committed state transition out to the signal bus and the
// audit log. Failures are logged and swallowed: fan-out never unwinds a
// transition that already happened.
type Publisher struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

func NewPublisher(bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, audit: audit, logger: logger}
}

// emit broadcasts one event envelope on its named channel, appends it to the
// durable stream, and records it in the audit log.
func (p *Publisher) emit(ctx context.Context, name, entityID string, detail map[string]any) {
	ev := domain.Event{
		ID:        uuid.New().String(),
		Name:      name,
		EntityID:  entityID,
		Detail:    detail,
		EmittedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "event marshal failed",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
		return
	}

	if p.bus != nil {
		if err := p.bus.Publish(ctx, name, payload); err != nil {
			p.logger.WarnContext(ctx, "event publish failed",
				slog.String("event", name),
				slog.String("error", err.Error()),
			)
		}
		if err := p.bus.StreamAppend(ctx, eventStream, payload); err != nil {
			p.logger.WarnContext(ctx, "event stream append failed",
				slog.String("event", name),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.audit != nil {
		auditDetail := map[string]any{"event_id": ev.ID, "entity_id": entityID}
		for k, v := range detail {
			auditDetail[k] = v
		}
		if err := p.audit.Log(ctx, name, auditDetail); err != nil {
			p.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// withLock runs fn while holding the distributed lock for key, when a lock
// manager is configured. Without one, fn runs directly: the engines' own
// mutexes already serialize single-instance deployments.
func withLock(ctx context.Context, locks domain.LockManager, key string, fn func() error) error {
	if locks == nil {
		return fn()
	}
	unlock, err := locks.Acquire(ctx, key, lockTTL)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
