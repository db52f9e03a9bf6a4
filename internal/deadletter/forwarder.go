// Package deadletter drains the shared dead-letter queue. Every poison message
// is logged and mirrored to a Kafka audit topic keyed by its message id.
package deadletter

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"marketplace/internal/consumer"
	"marketplace/internal/domain/event"
	"marketplace/internal/infrastructure/kafka"
)

// death is the most recent x-death entry the broker attached on dead-lettering.
type death struct {
	queue       string
	reason      string
	exchange    string
	routingKeys []string
	count       int64
}

func lastDeath(headers map[string]any) (death, bool) {
	entries, ok := headers["x-death"].([]any)
	if !ok || len(entries) == 0 {
		return death{}, false
	}
	var table map[string]any
	switch t := entries[0].(type) {
	case amqp.Table:
		table = t
	case map[string]any:
		table = t
	default:
		return death{}, false
	}

	d := death{}
	d.queue, _ = table["queue"].(string)
	d.reason, _ = table["reason"].(string)
	d.exchange, _ = table["exchange"].(string)
	d.count, _ = table["count"].(int64)
	if keys, ok := table["routing-keys"].([]any); ok {
		for _, k := range keys {
			if s, ok := k.(string); ok {
				d.routingKeys = append(d.routingKeys, s)
			}
		}
	}
	return d, true
}

func (d death) originalRoutingKey(fallback string) string {
	if len(d.routingKeys) > 0 {
		return d.routingKeys[0]
	}
	return fallback
}

type Forwarder struct {
	producer     kafka.Producer
	topic        string
	requeueDelay time.Duration
	logger       *zap.Logger
}

// NewForwarder builds the dead-letter drain. A nil producer only logs.
// requeueDelay is held before a message whose mirroring failed goes back to the queue.
func NewForwarder(producer kafka.Producer, topic string, requeueDelay time.Duration, l *zap.Logger) *Forwarder {
	return &Forwarder{
		producer:     producer,
		topic:        topic,
		requeueDelay: requeueDelay,
		logger:       l.With(zap.String("component", "deadletter_forwarder")),
	}
}

func (f *Forwarder) Process(ctx context.Context, msg consumer.Message) consumer.Outcome {
	d, _ := lastDeath(msg.Headers)
	originalKey := d.originalRoutingKey(msg.RoutingKey)

	messageID, messageType := "unknown", "unknown"
	if env, err := event.Decode(msg.Body); err == nil {
		messageID, messageType = env.ID, string(env.Type)
	}

	f.logger.Error("Message dead-lettered",
		zap.String("message_id", messageID),
		zap.String("message_type", messageType),
		zap.String("original_routing_key", originalKey),
		zap.String("queue", d.queue),
		zap.String("reason", d.reason),
		zap.Int64("death_count", d.count))

	if f.producer == nil {
		return consumer.Ack
	}

	key := messageID
	if key == "unknown" {
		key = originalKey
	}
	headers := map[string]string{
		"message_type":         messageType,
		"original_routing_key": originalKey,
		"dead_letter_queue":    d.queue,
		"dead_letter_reason":   d.reason,
	}
	if err := f.producer.Produce(ctx, f.topic, key, msg.Body, headers); err != nil {
		f.logger.Warn("Failed to mirror dead-lettered message, requeueing",
			zap.String("message_id", messageID),
			zap.String("topic", f.topic),
			zap.Duration("requeue_delay", f.requeueDelay),
			zap.Error(err))
		f.backoff(ctx)
		return consumer.Requeue
	}
	return consumer.Ack
}

// backoff holds the delivery unacked so a Kafka outage does not spin the queue.
func (f *Forwarder) backoff(ctx context.Context) {
	if f.requeueDelay <= 0 {
		return
	}
	timer := time.NewTimer(f.requeueDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
