package cmd

import (
	"log/slog"

	"github.com/dukex/flowstudio/pkg/eventbus"
	"github.com/dukex/flowstudio/pkg/notify"
)

// NewNotificationSink logs every execution event and publishes it on the
// event bus, plus to Redis when redisURL is set. The returned close function
// releases the Redis client.
func NewNotificationSink(logger *slog.Logger, bus eventbus.EventPublisher, redisURL string) (notify.Sink, func() error, error) {
	sinks := notify.Multi{notify.NewLogSink(logger)}

	if bus != nil {
		sinks = append(sinks, notify.NewEventBusSink(bus))
	}

	closeFn := func() error { return nil }

	if redisURL != "" {
		redisSink, err := notify.NewRedisSinkFromURL(redisURL)
		if err != nil {
			return nil, nil, err
		}

		sinks = append(sinks, redisSink)
		closeFn = redisSink.Close
	}

	return sinks, closeFn, nil
}
