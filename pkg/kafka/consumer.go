package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrPermanent marks handler errors that retrying cannot fix. The message is
// dead-lettered without further attempts.
var ErrPermanent = errors.New("permanent handler failure")

// Handler is a function that processes a Kafka event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes messages that exhaust their retries, or cannot be
// decoded, to dlq before they are committed.
func WithDeadLetter(dlq DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) { c.dlq = dlq }
}

// Consumer reads events from one topic in a consumer group, committing each
// message once it was handled, dead-lettered or dropped.
type Consumer struct {
	reader     messageReader
	topic      string
	group      string
	handler    Handler
	dlq        DeadLetterPublisher
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
	closeOnce  sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:     r,
		topic:      cfg.Topic,
		group:      cfg.GroupID,
		handler:    handler,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
	)
	defer func() { _ = c.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			if !sleepCtx(ctx, c.backoff) {
				return nil
			}
			continue
		}
		consumerMessages.WithLabelValues(c.topic, c.group, outcomeReceived).Inc()

		if !c.process(ctx, msg) {
			return nil
		}
	}
}

// process handles one message and reports false when ctx was cancelled
// before the message could be settled; it is then left uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	msgCtx := extractTraceContext(ctx, &msg)
	msgCtx, span := otel.Tracer("github.com/utafrali/storefront-search/pkg/kafka").Start(msgCtx, "consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", c.topic),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.ErrorContext(msgCtx, "failed to unmarshal event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		span.SetStatus(codes.Error, "undecodable message")
		c.deadLetter(msgCtx, msg, err)
		c.commit(ctx, msg)
		return true
	}
	span.SetAttributes(attribute.String("tenant.id", event.TenantID), attribute.String("event.type", event.EventType))

	start := time.Now()
	lastErr := c.handleWithRetry(msgCtx, msg, event)
	consumerHandleDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return false
	}

	if lastErr != nil {
		consumerMessages.WithLabelValues(c.topic, c.group, outcomeFailed).Inc()
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		c.logger.ErrorContext(msgCtx, "handler failed after all retries, skipping message",
			slog.String("event_type", event.EventType),
			slog.String("tenant_id", event.TenantID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", lastErr.Error()),
		)
		c.deadLetter(msgCtx, msg, lastErr)
	} else {
		consumerMessages.WithLabelValues(c.topic, c.group, outcomeProcessed).Inc()
	}

	c.commit(ctx, msg)
	return true
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, event *Event) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil || errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
		c.logger.WarnContext(ctx, "handler failed, will retry",
			slog.String("event_type", event.EventType),
			slog.String("tenant_id", event.TenantID),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if attempt < c.maxRetries && !sleepCtx(ctx, time.Duration(attempt)*c.backoff) {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		return
	}
	consumerMessages.WithLabelValues(c.topic, c.group, outcomeDeadLettered).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
