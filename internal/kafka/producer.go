package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-reservation/internal/logger"
)

// Publisher sends domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
	Close() error
}

// Producer writes JSON messages to any topic through one kafka.Writer.
type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish keys messages so one booking's events land on one partition in order.
func (p *Producer) Publish(ctx context.Context, topic, key string, value any) error {
	msg, err := encode(topic, key, value)
	if err != nil {
		return err
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

func encode(topic, key string, value any) (kafka.Message, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s message: %w", topic, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: raw,
		Time:  time.Now().UTC(),
	}, nil
}

// Nop drops every message. Used when Kafka is disabled.
type Nop struct {
	Logger *logger.Logger
}

func (n Nop) Publish(_ context.Context, topic, key string, _ any) error {
	if n.Logger != nil {
		n.Logger.Debug("KAFKA", fmt.Sprintf("Kafka disabled, dropping %s for %s", topic, key))
	}
	return nil
}

func (Nop) Close() error { return nil }
