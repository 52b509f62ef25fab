package stepwire

import "time"

// EventType represents the kind of a stream event.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventCancelled EventType = "cancelled"
	EventError     EventType = "error"
)

// Event is the unit of information flowing from server to client. A task
// emits one event per step outcome and exactly one terminal event.
type Event struct {
	Type       EventType `json:"type"`
	Step       int       `json:"step,omitempty"`
	TotalSteps int       `json:"totalSteps,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

// Terminal reports whether the event ends a task's stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventCancelled
}

// incomingMessage is a client-to-server control message on a WebSocket
// stream. Only cancellation is defined today.
type incomingMessage struct {
	Type string `json:"type"`
}

const incomingCancel = "cancel"

// cancelRequestBody is the expected JSON body for POST /cancel.
type cancelRequestBody struct {
	TaskID string `json:"taskId"`
}
