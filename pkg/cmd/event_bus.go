package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cascadehq/cascade/pkg/channels/gochannel"
	"github.com/cascadehq/cascade/pkg/channels/kafka"
	"github.com/cascadehq/cascade/pkg/eventbus"
)

// NewEventBus creates the lifecycle event bus plus the raw publisher and
// subscriber backing it. The raw handles feed the publish-event action and
// the queue ingress without a second connection.
func NewEventBus(provider string, logger *slog.Logger, brokers []string, consumerGroup string) (eventbus.EventBus, message.Publisher, message.Subscriber, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, consumerGroup)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create kafka channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), pub, sub, nil
	case "memory":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create in-memory channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), pub, sub, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
