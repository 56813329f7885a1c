package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// KafkaHeaderCarrier adapts kafka message headers to a propagation.TextMapCarrier.
type KafkaHeaderCarrier struct {
	headers *[]kafka.Header
}

// Get returns the value of the first header named key.
func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces or appends the header named key.
func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists the header names.
func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func injectTraceContext(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, &KafkaHeaderCarrier{headers: &msg.Headers})
}

func extractTraceContext(ctx context.Context, msg *kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &KafkaHeaderCarrier{headers: &msg.Headers})
}
