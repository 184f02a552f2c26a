package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// New returns a Kafka publisher when brokers are configured and a no-op one
// otherwise.
func New(brokers []string, topic string, logger zerolog.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		logger.Info().Msg("KAFKA_BROKERS not set, order events are disabled")
		return NopPublisher{}, nil
	}

	p, err := NewKafkaPublisher(brokers, topic, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Publishing order events to Kafka")
	return p, nil
}

// Publish enqueues the event and returns without waiting for the broker.
// Records are keyed by order id so events for one order stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, event OrderEvent) error {
	record, err := newRecord(p.topic, event)
	if err != nil {
		return err
	}

	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error().Err(err).
				Str("topic", r.Topic).
				Str("order_id", event.OrderID).
				Str("event", event.Type).
				Msg("Failed to publish order event")
		}
	})
	return nil
}

func (p *KafkaPublisher) Close() {
	if err := p.client.Flush(context.Background()); err != nil {
		p.logger.Warn().Err(err).Msg("Error flushing kafka producer")
	}
	p.client.Close()
}

func newRecord(topic string, event OrderEvent) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}
