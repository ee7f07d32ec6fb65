package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/flowstudio/pkg/events"
	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the pub/sub channels of RedisSink.
const DefaultChannelPrefix = "flowstudio:notifications:"

// RedisSink publishes events to a per-user Redis channel, or to a per-run
// channel when the run has no owner.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	return &RedisSink{client: client, prefix: prefix}
}

// NewRedisSinkFromURL parses a redis:// URL.
func NewRedisSinkFromURL(url string) (*RedisSink, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewRedisSink(redis.NewClient(options), ""), nil
}

// Channel returns the channel an event is published to.
func (s *RedisSink) Channel(event events.Event) string {
	if event.UserID != "" {
		return s.prefix + "user:" + event.UserID
	}

	return s.prefix + "execution:" + event.ExecutionID
}

func (s *RedisSink) Notify(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = s.client.Publish(ctx, s.Channel(event), payload).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s to redis: %w", event.Type, err)
	}

	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
