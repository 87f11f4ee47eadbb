package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events keyed by order id, so one order's events
// land on one partition in order.
type KafkaPublisher struct {
	writer  messageWriter
	brokers []string
	topic   string
	dialer  *kafka.Dialer
}

var _ services.OrderEventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a synchronous writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka publisher: brokers and topic are required")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		brokers: append([]string(nil), brokers...),
		topic:   topic,
		dialer:  &kafka.Dialer{Timeout: 2 * time.Second},
	}, nil
}

// Ping succeeds once any broker answers a metadata request for the topic.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("kafka publisher: no brokers configured")
	}
	var errs []error
	for _, broker := range p.brokers {
		conn, err := p.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.ReadPartitions(p.topic)
		_ = conn.Close()
		if err == nil || errors.Is(err, kafka.UnknownTopicOrPartition) {
			// Auto-created on first write.
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("kafka publisher: brokers unreachable: %w", errors.Join(errs...))
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	data, err := envelope.marshal()
	if err != nil {
		return err
	}

	attrs := envelope.attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(envelope.OrderID),
		Value:   data,
		Headers: headers,
		Time:    envelope.OccurredAt,
	}); err != nil {
		return fmt.Errorf("write %s event: %w", envelope.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
