package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bibbank/fraudscoring/internal/domain/event"
	"github.com/bibbank/fraudscoring/pkg/events"
	pkgkafka "github.com/bibbank/fraudscoring/pkg/kafka"
)

// MessageProducer is satisfied by *pkgkafka.Producer.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, messages ...pkgkafka.Message) error
}

// Topics routes events: flagged transactions go to Flagged and model
// lifecycle events to Events.
type Topics struct {
	Events  string
	Flagged string
}

// Publisher implements port.EventPublisher using Kafka.
type Publisher struct {
	producer MessageProducer
	topics   Topics
	logger   *slog.Logger
}

// NewPublisher creates a new Kafka event publisher.
func NewPublisher(producer MessageProducer, topics Topics, logger *slog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topics:   topics,
		logger:   logger,
	}
}

// Publish sends domain events to Kafka as JSON envelopes keyed by
// aggregate id.
func (p *Publisher) Publish(ctx context.Context, domainEvents ...events.DomainEvent) error {
	byTopic := make(map[string][]pkgkafka.Message)
	var order []string

	for _, evt := range domainEvents {
		eventType := evt.EventType()

		payload, err := events.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", eventType, err)
		}

		topic := p.topics.Events
		key := evt.AggregateID().String()
		if eventType == event.EventTypeTransactionFlagged {
			topic = p.topics.Flagged
			if flagged, ok := evt.(event.TransactionFlagged); ok && flagged.TransactionID != "" {
				key = flagged.TransactionID
			}
		}

		p.logger.DebugContext(ctx, "publishing event",
			slog.String("event_type", eventType),
			slog.String("topic", topic),
			slog.Int("payload_size", len(payload)),
		)

		if _, seen := byTopic[topic]; !seen {
			order = append(order, topic)
		}
		byTopic[topic] = append(byTopic[topic], pkgkafka.Message{
			Key:   []byte(key),
			Value: payload,
			Headers: map[string]string{
				"event_type": eventType,
				"event_id":   evt.EventID().String(),
			},
		})
	}

	for _, topic := range order {
		if err := p.producer.Publish(ctx, topic, byTopic[topic]...); err != nil {
			return fmt.Errorf("failed to publish events to topic %s: %w", topic, err)
		}
	}

	return nil
}
