package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a scheduler lifecycle notification.
type EventType string

const (
	// EventPublishStart fires when a cycle decided to publish.
	EventPublishStart EventType = "publish-start"
	// EventPublishSuccess fires when a publish ended in success or
	// nothing-to-commit; either way the baseline advanced.
	EventPublishSuccess EventType = "publish-success"
	// EventPublishFailure fires when a publish (or the scan feeding it)
	// failed; the baseline is unchanged.
	EventPublishFailure EventType = "publish-failure"
	// EventCycleSkipped fires when a tick arrived while a publish was
	// still in flight.
	EventCycleSkipped EventType = "cycle-skipped"
)

// Event is one scheduler notification. Every event carries a unique ID so
// downstream consumers can deduplicate retried webhook deliveries.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Time          time.Time `json:"time"`
	SnapshotBytes int64     `json:"snapshot_bytes"`
	BaselineBytes int64     `json:"baseline_bytes"`
	Outcome       string    `json:"outcome,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Notifier receives scheduler events. Implementations must not block the
// cycle for long and must never return the failure into it; delivery is
// fire-and-forget from the scheduler's perspective.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// MultiNotifier fans an event out to several notifiers in order.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// LogNotifier writes events to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, e Event) {
	l.Logger.Info("event",
		"id", e.ID,
		"type", string(e.Type),
		"snapshot_bytes", e.SnapshotBytes,
		"baseline_bytes", e.BaselineBytes,
		"outcome", e.Outcome,
		"detail", e.Detail)
}

// newEvent stamps a fresh event of the given type.
func newEvent(t EventType, snapshot, baseline int64) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		Time:          time.Now().UTC(),
		SnapshotBytes: snapshot,
		BaselineBytes: baseline,
	}
}
