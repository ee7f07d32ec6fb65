// Package eventbus carries flowstudio events between processes over watermill pub/sub.
package eventbus

import (
	"context"

	"github.com/dukex/flowstudio/pkg/events"
)

// Event is anything with a type that can travel on the bus: execution
// notifications and publication changes.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes an event under a partition key. Execution events
// use the execution id, publication events the flow id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches incoming events to one handler per type.
// Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.Event.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
