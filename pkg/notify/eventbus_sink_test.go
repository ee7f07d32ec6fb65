package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/flowstudio/pkg/events"
	"github.com/dukex/flowstudio/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventBusSink_KeysByExecutionMockBus(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	event := sampleEvent(events.ExecutionStartedEvent, 1)

	bus.On("Publish", mock.Anything, "exec-1", event).Return(nil).Once()

	require.NoError(t, NewEventBusSink(bus).Notify(context.Background(), event))
	bus.AssertExpectations(t)
}

func TestEventBusSink_PublishError(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := NewEventBusSink(bus).Notify(context.Background(), sampleEvent(events.ExecutionFailedEvent, 2))
	assert.EqualError(t, err, "broker down")
}
