// Package eventbus provides the in-process typed publish/subscribe bus
// that coordinates the GitGov adapters. Publishing never blocks on
// handlers: events are enqueued per subscription and dispatched by one
// worker per subscription, preserving FIFO order within a subscription.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Defined event kinds. Subscribers may also use TypeAny to observe
// everything (diagnostics, projection sinks).
const (
	TypeActorCreated       = "identity.actor.created"
	TypeActorRevoked       = "identity.actor.revoked"
	TypeAgentRegistered    = "identity.agent.registered"
	TypeFeedbackCreated    = "feedback.created"
	TypeFeedbackStatus     = "feedback.status.changed"
	TypeExecutionCreated   = "execution.created"
	TypeChangelogCreated   = "changelog.created"
	TypeTaskStatusChanged  = "task.status.changed"
	TypeCycleStatusChanged = "cycle.status.changed"
	TypeDailyTick          = "system.daily_tick"
	TypeRecordChanged      = "store.record.changed"

	// TypeAny matches every event kind.
	TypeAny = "*"
)

// Event is the tagged object flowing over the bus. Payload keys are
// documented per event kind at the emitting adapter.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"` // epoch milliseconds
	Source    string         `json:"source"`    // emitting component, e.g. "identity_adapter"
	Payload   map[string]any `json:"payload"`
}

// NewEvent stamps a fresh event of the given kind.
func NewEvent(eventType, source string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Payload:   payload,
	}
}

// Str extracts a string payload field, "" when absent or not a string.
func (e Event) Str(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Bool extracts a bool payload field.
func (e Event) Bool(key string) bool {
	v, _ := e.Payload[key].(bool)
	return v
}
