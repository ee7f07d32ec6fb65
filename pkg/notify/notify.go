// Package notify delivers execution events to their subscribers. The
// coordinator calls a Sink synchronously, in program order, for every event of a run.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/events"
)

type Sink interface {
	Notify(ctx context.Context, event events.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event events.Event) error

func (f SinkFunc) Notify(ctx context.Context, event events.Event) error {
	return f(ctx, event)
}

// Multi fans an event out to every sink in order. All sinks are called even
// when one fails.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, event events.Event) error {
	errs := make([]error, 0)

	for _, sink := range m {
		err := sink.Notify(ctx, event)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, events.Event) error { return nil })

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "notify")}
}

func (s *LogSink) Notify(ctx context.Context, event events.Event) error {
	attrs := []any{
		"type", event.Type,
		"execution_id", event.ExecutionID,
		"flow_id", event.FlowID,
		"sequence", event.Sequence,
	}

	if event.NodeID != "" {
		attrs = append(attrs, "node_id", event.NodeID)
	}

	if event.Progress != nil {
		attrs = append(attrs, "progress", *event.Progress)
	}

	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
		s.logger.WarnContext(ctx, "Execution event", attrs...)

		return nil
	}

	s.logger.DebugContext(ctx, "Execution event", attrs...)

	return nil
}

// EventBusSink publishes events on the event bus keyed by execution id, so a
// partitioned transport keeps the events of one run in order.
type EventBusSink struct {
	publisher eventbus.EventPublisher
}

func NewEventBusSink(publisher eventbus.EventPublisher) *EventBusSink {
	return &EventBusSink{publisher: publisher}
}

func (s *EventBusSink) Notify(ctx context.Context, event events.Event) error {
	return s.publisher.Publish(ctx, event.Key(), event)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *Recorder) Notify(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

// Types returns the recorded event types in arrival order.
func (r *Recorder) Types() []events.EventType {
	recorded := r.Events()
	types := make([]events.EventType, len(recorded))

	for i, event := range recorded {
		types[i] = event.Type
	}

	return types
}

// ForExecution returns the recorded events of one run.
func (r *Recorder) ForExecution(executionID string) []events.Event {
	matching := make([]events.Event, 0)

	for _, event := range r.Events() {
		if event.ExecutionID == executionID {
			matching = append(matching, event)
		}
	}

	return matching
}
