package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQPublisher forwards outbox entries to a topic exchange using the
// event type as routing key.
type RabbitMQPublisher struct {
	channel  amqpPublisher
	closer   func() error
	exchange string
	logger   *logging.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher dials url and declares a durable topic exchange.
func NewRabbitMQPublisher(url, exchange string, logger *logging.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	logger.Info("rabbitmq publisher connected", "exchange", exchange)
	p := newRabbitMQPublisherWithChannel(ch, exchange, logger)
	p.closer = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return p, nil
}

func newRabbitMQPublisherWithChannel(ch amqpPublisher, exchange string, logger *logging.Logger) *RabbitMQPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &RabbitMQPublisher{channel: ch, exchange: exchange, logger: logger}
}

func (p *RabbitMQPublisher) Handle(ctx context.Context, entry OutboxEntry) error {
	body, err := marshalEnvelope(entry)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, entry.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.ID.String(),
		Type:         entry.Type,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"business_id": entry.BusinessID},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("events: rabbitmq publish %s: %w", entry.Type, err)
	}
	p.logger.Debug("event published to rabbitmq", "exchange", p.exchange, "event_id", entry.ID, "type", entry.Type)
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
