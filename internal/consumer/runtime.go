// Package consumer implements the at-least-once processing loop shared by every
// domain consumer: duplicate detection, handler dispatch, bounded retry and
// dead-letter routing. The broker adapter applies the returned Outcome.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketplace/internal/domain/event"
	"marketplace/internal/observability"
)

type Outcome int

const (
	// Ack removes the message from the queue.
	Ack Outcome = iota
	// Requeue negatively acknowledges with requeue.
	Requeue
	// DeadLetter negatively acknowledges without requeue, routing to the DLX.
	DeadLetter
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Message is a raw delivery as handed over by the broker adapter.
type Message struct {
	Body        []byte
	RoutingKey  string
	Headers     map[string]any
	Redelivered bool
}

type Handler interface {
	Handle(ctx context.Context, env *event.Envelope) error
}

type HandlerFunc func(ctx context.Context, env *event.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env *event.Envelope) error {
	return f(ctx, env)
}

// DedupStore is the shared store of processed-message markers and retry counters.
type DedupStore interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error
	IncrRetry(ctx context.Context, messageID string, ttl time.Duration) (int, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable: the message goes straight to the dead-letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Config struct {
	Name       string
	MaxRetries int
	DedupTTL   time.Duration
}

type Runtime struct {
	name       string
	store      DedupStore
	handler    Handler
	maxRetries int
	ttl        time.Duration
	tracer     trace.Tracer
	logger     *zap.Logger
}

func NewRuntime(cfg Config, store DedupStore, handler Handler, logger *zap.Logger) *Runtime {
	return &Runtime{
		name:       cfg.Name,
		store:      store,
		handler:    handler,
		maxRetries: cfg.MaxRetries,
		ttl:        cfg.DedupTTL,
		tracer:     otel.Tracer("marketplace/consumer"),
		logger:     logger.With(zap.String("consumer", cfg.Name)),
	}
}

// Process runs one delivery through dedup, dispatch and the retry policy.
// It never panics and never returns an error: every failure becomes an Outcome.
func (r *Runtime) Process(ctx context.Context, msg Message) Outcome {
	ctx = otel.GetTextMapPropagator().Extract(ctx, observability.HeaderCarrier(msg.Headers))
	ctx, span := r.tracer.Start(ctx, r.name+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.routing_key", msg.RoutingKey)))
	defer span.End()

	env, err := event.Decode(msg.Body)
	if err != nil {
		r.logger.Error("Malformed message, routing to dead-letter queue",
			zap.String("routing_key", msg.RoutingKey),
			zap.ByteString("body", msg.Body),
			zap.Error(err))
		span.SetStatus(codes.Error, "malformed message")
		return DeadLetter
	}
	span.SetAttributes(
		attribute.String("messaging.message.id", env.ID),
		attribute.String("messaging.message.type", string(env.Type)))

	log := r.logger.With(
		zap.String("message_id", env.ID),
		zap.String("message_type", string(env.Type)),
		zap.String("correlation_id", env.Metadata.CorrelationID),
		zap.String("routing_key", msg.RoutingKey),
	)

	processed, err := r.store.IsProcessed(ctx, env.ID)
	if err != nil {
		log.Warn("Dedup check failed", zap.Error(err))
		return r.onFailure(ctx, env, fmt.Errorf("dedup check: %w", err), log)
	}
	if processed {
		log.Info("Duplicate message, acknowledging without reprocessing")
		return Ack
	}

	if err := r.invoke(ctx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.onFailure(ctx, env, err, log)
	}

	// The marker is written after the handler, not atomically with the check.
	if err := r.store.MarkProcessed(ctx, env.ID, r.ttl); err != nil {
		log.Error("Message processed but dedup marker could not be written", zap.Error(err))
	}
	log.Debug("Message processed")
	return Ack
}

func (r *Runtime) invoke(ctx context.Context, env *event.Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handler.Handle(ctx, env)
}

func (r *Runtime) onFailure(ctx context.Context, env *event.Envelope, err error, log *zap.Logger) Outcome {
	if IsPermanent(err) {
		log.Error("Poison message, routing to dead-letter queue", zap.Error(err))
		return DeadLetter
	}

	retries := env.Metadata.RetryCount
	failures, countErr := r.store.IncrRetry(ctx, env.ID, r.ttl)
	if countErr != nil {
		log.Warn("Retry counter unavailable, using envelope retryCount only", zap.Error(countErr))
	} else {
		retries += failures - 1
	}

	if retries < r.maxRetries {
		log.Warn("Message handling failed, requeueing",
			zap.Int("retry_count", retries),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err))
		return Requeue
	}

	log.Error("Message exhausted retries, routing to dead-letter queue",
		zap.Int("retry_count", retries),
		zap.Int("max_retries", r.maxRetries),
		zap.Error(err))
	return DeadLetter
}
