// internal/notify/kafka.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deposit-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits notifications as JSON events, keyed by order id
type KafkaPublisher struct {
	writer    messageWriter
	userTopic string
	opsTopic  string
	logger    *zap.Logger
}

func NewKafkaPublisher(brokers []string, userTopic, opsTopic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, userTopic, opsTopic, logger)
}

func newKafkaPublisher(w messageWriter, userTopic, opsTopic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, userTopic: userTopic, opsTopic: opsTopic, logger: logger}
}

func (p *KafkaPublisher) NotifyUser(ctx context.Context, n domain.Notification) error {
	return p.publish(ctx, p.userTopic, n)
}

func (p *KafkaPublisher) NotifyOps(ctx context.Context, n domain.Notification) error {
	return p.publish(ctx, p.opsTopic, n)
}

func (p *KafkaPublisher) publish(ctx context.Context, topic string, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(n.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(n.Type)},
			{Key: "event_id", Value: []byte(n.EventID)},
		},
		Time: n.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", n.Type, topic, err)
	}

	p.logger.Debug("notification published",
		zap.String("topic", topic),
		zap.String("event_type", string(n.Type)),
		zap.String("order_id", n.OrderID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
