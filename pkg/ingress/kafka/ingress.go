// Package kafka subscribes to external queue topics and feeds correlated
// messages into the event aggregation service.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cascadehq/cascade/pkg/aggregation"
)

// EventSink receives the (topic, payload) pairs decoded from queue messages.
// Satisfied by the aggregation service.
type EventSink interface {
	HandleKafkaEvent(ctx context.Context, topic string, payload map[string]any) error
}

// Ingress pumps messages from subscribed topics into the sink. Unmatched or
// already-resolved deliveries are acked and dropped: queue consumers must
// not wedge a partition on an event no wait state expects.
type Ingress struct {
	logger     *slog.Logger
	subscriber message.Subscriber
	sink       EventSink
}

func NewIngress(logger *slog.Logger, subscriber message.Subscriber, sink EventSink) *Ingress {
	return &Ingress{
		logger:     logger.With("module", "ingress"),
		subscriber: subscriber,
		sink:       sink,
	}
}

// Subscribe starts consuming the given topics until the context ends.
func (i *Ingress) Subscribe(ctx context.Context, topics []string) error {
	for _, topic := range topics {
		messages, err := i.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe to topic %q: %w", topic, err)
		}

		go i.consume(ctx, topic, messages)

		i.logger.InfoContext(ctx, "Subscribed to queue topic", "topic", topic)
	}

	return nil
}

func (i *Ingress) consume(ctx context.Context, topic string, messages <-chan *message.Message) {
	for msg := range messages {
		i.handle(ctx, topic, msg)
	}
}

func (i *Ingress) handle(ctx context.Context, topic string, msg *message.Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		i.logger.WarnContext(ctx, "Dropping non-JSON queue message",
			"topic", topic,
			"message_id", msg.UUID,
			"error", err)
		msg.Ack()

		return
	}

	err := i.sink.HandleKafkaEvent(ctx, topic, payload)

	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, aggregation.ErrNoMatchingWaitState),
		errors.Is(err, aggregation.ErrWaitStateResolved):
		i.logger.DebugContext(ctx, "Dropping uncorrelated queue message",
			"topic", topic,
			"message_id", msg.UUID,
			"reason", err)
		msg.Ack()
	default:
		i.logger.ErrorContext(ctx, "Failed to process queue message",
			"topic", topic,
			"message_id", msg.UUID,
			"error", err)
		msg.Nack()
	}
}

// Close stops the underlying subscriber.
func (i *Ingress) Close() error {
	return i.subscriber.Close()
}
