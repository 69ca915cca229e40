package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/graphql-cost-guard/internal/model"
	"github.com/couchcryptid/graphql-cost-guard/internal/observability"
)

// MessageWriter abstracts the kafka writer for testability.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes admission decisions to a Kafka topic.
type Producer struct {
	writer  MessageWriter
	topic   string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewProducer creates a producer that publishes decision records to the given topic.
func NewProducer(brokers []string, topic string, m *observability.Metrics, logger *slog.Logger) *Producer {
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer:  writer,
		topic:   topic,
		logger:  logger,
		metrics: m,
	}
}

// Name identifies the producer when it is used as an audit sink.
func (p *Producer) Name() string { return "kafka" }

// RecordDecision publishes one decision as a JSON message keyed by cache key,
// so decisions for the same query shape land in the same partition.
func (p *Producer) RecordDecision(ctx context.Context, rec *model.DecisionRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(rec.CacheKey),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.KafkaProduceErrors.WithLabelValues(p.topic).Inc()
		return fmt.Errorf("write decision to kafka: %w", err)
	}

	p.metrics.KafkaMessagesProduced.WithLabelValues(p.topic).Inc()
	p.logger.Debug("produced decision", "cache_key", rec.CacheKey, "cost", rec.Cost)
	return nil
}

// Close flushes and shuts down the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
