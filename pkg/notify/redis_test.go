package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/flowstudio/pkg/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSink_PublishesToUserChannel(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	sink := NewRedisSink(client, "")
	t.Cleanup(func() { _ = sink.Close() })

	subscriber := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = subscriber.Close() })

	pubsub := subscriber.Subscribe(t.Context(), DefaultChannelPrefix+"user:user-1")
	t.Cleanup(func() { _ = pubsub.Close() })

	_, err := pubsub.Receive(t.Context())
	require.NoError(t, err)

	event := sampleEvent(events.ExecutionCompletedEvent, 5)
	event.Output = map[string]any{"out": "done"}

	require.NoError(t, sink.Notify(t.Context(), event))

	select {
	case msg := <-pubsub.Channel():
		var decoded events.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
		assert.Equal(t, events.ExecutionCompletedEvent, decoded.Type)
		assert.Equal(t, int64(5), decoded.Sequence)
		assert.Equal(t, map[string]any{"out": "done"}, decoded.Output)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisSink_Channel(t *testing.T) {
	t.Parallel()

	sink := NewRedisSink(nil, "test:")

	owned := sampleEvent(events.ExecutionStartedEvent, 1)
	assert.Equal(t, "test:user:user-1", sink.Channel(owned))

	anonymous := sampleEvent(events.ExecutionStartedEvent, 1)
	anonymous.UserID = ""
	assert.Equal(t, "test:execution:exec-1", sink.Channel(anonymous))
}

func TestNewRedisSinkFromURL(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)

	sink, err := NewRedisSinkFromURL("redis://" + server.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	require.NoError(t, sink.Notify(t.Context(), sampleEvent(events.ExecutionStartedEvent, 1)))

	_, err = NewRedisSinkFromURL("://bad")
	require.Error(t, err)
}
