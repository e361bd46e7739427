package kafka

import (
	"context"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes fire-and-forget events. Writes are batched in the background;
// delivery errors are logged, not returned.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 200 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Log.Warn("kafka: publish failed", zap.String("topic", topic), zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}}
}

func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (p *Producer) Close() error { return p.w.Close() }
