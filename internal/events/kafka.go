package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards outbox entries to a Kafka topic, keyed by
// business so one tenant's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.Logger
}

// NewKafkaPublisher builds a hash-balanced writer for topic.
func NewKafkaPublisher(brokers []string, topic string, logger *logging.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("events: kafka brokers required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("events: kafka topic required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisherWithWriter(writer, topic, logger), nil
}

func newKafkaPublisherWithWriter(w messageWriter, topic string, logger *logging.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	value, err := marshalEnvelope(entry)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(entry.BusinessID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(entry.ID.String())},
			{Key: "event_type", Value: []byte(entry.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka publish %s: %w", entry.Type, err)
	}
	p.logger.Debug("event published to kafka", "topic", p.topic, "event_id", entry.ID, "type", entry.Type)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
