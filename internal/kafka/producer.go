package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"event-ticketing/internal/config"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer streams ticket domain events. Messages are keyed by event id so all
// changes to one event land on the same partition in order.
type Producer struct {
	writer messageWriter
	topics config.TopicConfig
	logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil && len(messages) > 0 {
				log.LogKafka("DELIVERY_FAILED", messages[0].Topic, err.Error())
			}
		},
	}
	return &Producer{writer: writer, topics: topics, logger: log}
}

// Publish JSON-encodes value and writes it to topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

func (p *Producer) PublishTicketsPurchased(ctx context.Context, msg models.TicketsPurchased) error {
	return p.Publish(ctx, p.topics.TicketsPurchased, strconv.FormatInt(msg.EventID, 10), msg)
}

func (p *Producer) PublishTicketRedeemed(ctx context.Context, msg models.TicketRedeemed) error {
	return p.Publish(ctx, p.topics.TicketRedeemed, strconv.FormatInt(msg.EventID, 10), msg)
}

// Close flushes pending async writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
