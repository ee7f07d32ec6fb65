// Package events defines the notification events emitted while flows run and are published.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every flowstudio event on the bus.
const Topic = "flowstudio.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events, keyed by execution id.
	ExecutionStartedEvent   EventType = "execution_started"
	ExecutionProgressEvent  EventType = "execution_progress"
	ExecutionCompletedEvent EventType = "execution_completed"
	ExecutionFailedEvent    EventType = "execution_failed"
	ExecutionCancelledEvent EventType = "execution_cancelled"

	// Component lifecycle events within a run.
	ComponentStartedEvent   EventType = "component_started"
	ComponentCompletedEvent EventType = "component_completed"
	ComponentFailedEvent    EventType = "component_failed"

	// Publication events, keyed by flow id.
	FlowPublishedEvent   EventType = "flow.published"
	FlowUnpublishedEvent EventType = "flow.unpublished"
)

// ExecutionEventTypes lists every type carried by Event, in lifecycle order.
var ExecutionEventTypes = []EventType{
	ExecutionStartedEvent,
	ComponentStartedEvent,
	ComponentCompletedEvent,
	ComponentFailedEvent,
	ExecutionProgressEvent,
	ExecutionCompletedEvent,
	ExecutionFailedEvent,
	ExecutionCancelledEvent,
}

// IsExecution reports whether the type belongs to the execution notification stream.
func (t EventType) IsExecution() bool {
	for _, candidate := range ExecutionEventTypes {
		if candidate == t {
			return true
		}
	}

	return false
}

// IsTerminal reports whether no further event follows for the same run.
func (t EventType) IsTerminal() bool {
	return t == ExecutionCompletedEvent || t == ExecutionFailedEvent || t == ExecutionCancelledEvent
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is one execution notification addressed to the owning user.
// Sequence is strictly increasing within a run.
type Event struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	UserID      string         `json:"user_id,omitempty"`
	FlowID      string         `json:"flow_id"`
	NodeID      string         `json:"node_id,omitempty"`
	Status      string         `json:"status,omitempty"`
	Progress    *int           `json:"progress,omitempty"`
	Error       string         `json:"error,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Sequence    int64          `json:"sequence"`
}

func (e Event) GetType() EventType {
	return e.Type
}

// Key partitions execution events per run.
func (e Event) Key() string {
	return e.ExecutionID
}

type FlowPublished struct {
	BaseEvent

	FlowID   string `json:"flow_id"`
	Version  string `json:"version"`
	Endpoint string `json:"endpoint"`
}

func (f FlowPublished) GetType() EventType {
	return FlowPublishedEvent
}

type FlowUnpublished struct {
	BaseEvent

	FlowID  string `json:"flow_id"`
	Version string `json:"version"`
}

func (f FlowUnpublished) GetType() EventType {
	return FlowUnpublishedEvent
}

func NewBaseEvent(eventType EventType, at time.Time) BaseEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return BaseEvent{
		ID:        id.String(),
		Type:      eventType,
		Timestamp: at.UTC(),
	}
}

// IntPtr is a convenience for the optional Progress field.
func IntPtr(v int) *int {
	return &v
}
