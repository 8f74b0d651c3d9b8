package kafka_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cascadehq/cascade/pkg/aggregation"
	"github.com/cascadehq/cascade/pkg/channels/gochannel"
	"github.com/cascadehq/cascade/pkg/ingress/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingSink struct {
	mu      sync.Mutex
	err     error
	topics  []string
	payload []map[string]any
}

func (s *recordingSink) HandleKafkaEvent(_ context.Context, topic string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topics = append(s.topics, topic)
	s.payload = append(s.payload, payload)

	return s.err
}

func (s *recordingSink) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.topics)
}

func publishJSON(t *testing.T, publisher message.Publisher, topic string, payload map[string]any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(topic, message.NewMessage(watermill.NewULID(), data)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met in time")
}

func TestIngressDeliversDecodedPayloads(t *testing.T) {
	ctx := t.Context()

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	sink := &recordingSink{}

	ingress := kafka.NewIngress(testLogger(), subscriber, sink)
	require.NoError(t, ingress.Subscribe(ctx, []string{"payments.settled"}))

	publishJSON(t, publisher, "payments.settled", map[string]any{
		"correlation_id": "corr-1",
		"amount":         float64(100),
	})

	waitFor(t, func() bool { return sink.received() == 1 })

	assert.Equal(t, []string{"payments.settled"}, sink.topics)
	assert.Equal(t, "corr-1", sink.payload[0]["correlation_id"])
}

func TestIngressAcksUncorrelatedMessages(t *testing.T) {
	ctx := t.Context()

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	sink := &recordingSink{err: fmt.Errorf("no wait: %w", aggregation.ErrNoMatchingWaitState)}

	ingress := kafka.NewIngress(testLogger(), subscriber, sink)
	require.NoError(t, ingress.Subscribe(ctx, []string{"payments.settled"}))

	publishJSON(t, publisher, "payments.settled", map[string]any{"correlation_id": "unknown"})
	publishJSON(t, publisher, "payments.settled", map[string]any{"correlation_id": "unknown-2"})

	// Both dropped messages must be acked, so the second still arrives.
	waitFor(t, func() bool { return sink.received() == 2 })
}

func TestIngressDropsNonJSONMessages(t *testing.T) {
	ctx := t.Context()

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)
	sink := &recordingSink{}

	ingress := kafka.NewIngress(testLogger(), subscriber, sink)
	require.NoError(t, ingress.Subscribe(ctx, []string{"payments.settled"}))

	require.NoError(t, publisher.Publish("payments.settled",
		message.NewMessage(watermill.NewULID(), []byte("not json"))))
	publishJSON(t, publisher, "payments.settled", map[string]any{"correlation_id": "after"})

	waitFor(t, func() bool { return sink.received() == 1 })
	assert.Equal(t, "after", sink.payload[0]["correlation_id"])
}
