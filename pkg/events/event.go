package events

import "time"

// Event is anything published on the diagnostics bus.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHILD_APP_ERROR").
	EventType() string

	Payload() map[string]interface{}

	Timestamp() time.Time
}

const (
	TypeChildAppError    = "CHILD_APP_ERROR"
	TypeToolAuthRequired = "TOOL_AUTH_REQUIRED"
)

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Envelope is the wire form of an event.
type Envelope struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func ToEnvelope(e Event) Envelope {
	return Envelope{Type: e.EventType(), Timestamp: e.Timestamp(), Data: e.Payload()}
}

func (env Envelope) Event() BaseEvent {
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.Timestamp}
}
