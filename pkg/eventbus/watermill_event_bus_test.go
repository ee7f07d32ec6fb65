package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowstudio/pkg/channels/gochannel"
	"github.com/dukex/flowstudio/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, nil)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversExecutionEvents(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	received := make(chan *events.Event, 1)

	require.NoError(t, bus.Handle(events.ComponentCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.Event)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	sent := events.Event{
		BaseEvent:   events.NewBaseEvent(events.ComponentCompletedEvent, time.Now()),
		ExecutionID: "exec-1",
		FlowID:      "flow-1",
		NodeID:      "node-1",
		Status:      "completed",
		Output:      map[string]any{"text": "hi"},
		Sequence:    3,
	}
	require.NoError(t, bus.Publish(t.Context(), sent.Key(), sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "node-1", got.NodeID)
		assert.Equal(t, int64(3), got.Sequence)
		assert.Equal(t, map[string]any{"text": "hi"}, got.Output)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_DeliversPublicationEvents(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	received := make(chan *events.FlowPublished, 1)

	require.NoError(t, bus.Handle(events.FlowPublishedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.FlowPublished)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	sent := events.FlowPublished{
		BaseEvent: events.NewBaseEvent(events.FlowPublishedEvent, time.Now()),
		FlowID:    "flow-1",
		Version:   "1",
		Endpoint:  "/api/flows/flow-1/v1/execute",
	}
	require.NoError(t, bus.Publish(t.Context(), sent.FlowID, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.Endpoint, got.Endpoint)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_SkipsUnhandledTypes(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	received := make(chan events.EventType, 2)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.Event).Type

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	for _, eventType := range []events.EventType{events.ExecutionProgressEvent, events.ExecutionCompletedEvent} {
		event := events.Event{BaseEvent: events.NewBaseEvent(eventType, time.Now()), ExecutionID: "exec-1"}
		require.NoError(t, bus.Publish(t.Context(), event.Key(), event))
	}

	select {
	case got := <-received:
		assert.Equal(t, events.ExecutionCompletedEvent, got)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &events.Event{}, newEvent(events.ExecutionFailedEvent))
	assert.IsType(t, &events.FlowUnpublished{}, newEvent(events.FlowUnpublishedEvent))
	assert.Nil(t, newEvent("unknown"))
}

