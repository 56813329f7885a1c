package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix is the prefix for dead-letter topics.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// DeadLetterPublisher receives messages a consumer gave up on.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error
}

// DLQProducer publishes failed messages to a dead-letter queue topic.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewDLQProducer creates a DLQ producer writing synchronously, one message per batch.
func NewDLQProducer(brokers []string, logger *slog.Logger) *DLQProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return &DLQProducer{
		writer: w,
		logger: logger,
	}
}

// DLQTopic constructs the DLQ topic name for a given source topic.
func DLQTopic(originalTopic string) string {
	return fmt.Sprintf("%s.%s", DLQTopicPrefix, originalTopic)
}

// Publish copies the failed message to its DLQ topic, recording the origin
// and the last handler error as headers.
func (d *DLQProducer) Publish(ctx context.Context, originalMsg kafka.Message, lastErr error, consumerGroup string) error {
	dlqTopic := DLQTopic(originalMsg.Topic)

	headers := make([]kafka.Header, 0, len(originalMsg.Headers)+5)
	headers = append(headers, originalMsg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(originalMsg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(originalMsg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(originalMsg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(consumerGroup)},
	)
	if lastErr != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(lastErr.Error())})
	}

	dlqMsg := kafka.Message{
		Topic:   dlqTopic,
		Key:     originalMsg.Key,
		Value:   originalMsg.Value,
		Headers: headers,
	}

	if err := d.writer.WriteMessages(ctx, dlqMsg); err != nil {
		d.logger.ErrorContext(ctx, "failed to publish message to DLQ",
			slog.String("dlq_topic", dlqTopic),
			slog.Int64("offset", originalMsg.Offset),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish to DLQ %s: %w", dlqTopic, err)
	}

	d.logger.WarnContext(ctx, "message sent to DLQ",
		slog.String("dlq_topic", dlqTopic),
		slog.Int("partition", originalMsg.Partition),
		slog.Int64("offset", originalMsg.Offset),
		slog.String("consumer_group", consumerGroup),
	)
	return nil
}

// Close closes the DLQ producer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
