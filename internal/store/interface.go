// Package store defines the persistence contracts for audit/history
// records. The engines keep their active entities in memory and hand
// durable writes to these interfaces asynchronously; a storage failure
// never blocks a trigger decision.
package store

import (
	"context"
	"time"
)

// Entity kinds recorded in the audit trail.
const (
	KindRule     = "rule"
	KindTrailing = "trailing_stop"
	KindScaled   = "scaled_exit"
	KindAlert    = "alert"
)

// Lifecycle events recorded in the audit trail.
const (
	EventCreated     = "created"
	EventTriggered   = "triggered"
	EventCancelled   = "cancelled"
	EventToggled     = "toggled"
	EventTargetFired = "target_fired"
)

// Event is one entity lifecycle transition.
type Event struct {
	EntityKind string
	EntityID   string
	Symbol     string
	Event      string
	Details    map[string]any
	CreatedAt  time.Time
}

// AuditSink accepts lifecycle events. Implementations must not block
// the caller; dropping an event under pressure is acceptable.
type AuditSink interface {
	Record(ev Event)
}

// AuditStore is the full audit-trail surface.
type AuditStore interface {
	AuditSink
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// NoopAudit discards all events.
type NoopAudit struct{}

func (NoopAudit) Record(Event) {}
