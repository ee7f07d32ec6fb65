package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/flowstudio/pkg/channels/gochannel"
	"github.com/dukex/flowstudio/pkg/channels/kafka"
	"github.com/dukex/flowstudio/pkg/eventbus"
)

// NewEventBus creates the event bus of provider "gochannel" or "kafka".
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	var (
		pub message.Publisher
		sub message.Subscriber
		err error
	)

	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err = gochannel.CreateChannel(wlogger)
	case "kafka":
		pub, sub, err = kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), "flowstudio")
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s pub/sub: %w", provider, err)
	}

	return eventbus.NewWatermillEventBus(pub, sub, logger), nil
}
