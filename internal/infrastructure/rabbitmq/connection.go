// Package rabbitmq owns the broker connection: topology declaration, publishing,
// prefetch-bounded consumption and bounded reconnection.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketplace/internal/consumer"
	"marketplace/internal/domain/event"
	"marketplace/internal/observability"
)

var (
	ErrNotConnected        = errors.New("rabbitmq: not connected")
	ErrClosed              = errors.New("rabbitmq: connection closed")
	ErrReconnectExhausted  = errors.New("rabbitmq: reconnect attempts exhausted")
	errDeliveriesInterrupt = errors.New("rabbitmq: delivery channel closed")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Config struct {
	URL                string
	Exchange           string
	DeadLetterExchange string
	ReconnectAttempts  int
	ReconnectDelay     time.Duration
	MessageTTL         time.Duration
}

type PublishOptions struct {
	Persistent bool
	Priority   uint8
	Expiration time.Duration
	Headers    map[string]any
}

// Processor turns one delivery into a settlement decision.
type Processor interface {
	Process(ctx context.Context, msg consumer.Message) consumer.Outcome
}

type Connection struct {
	cfg    Config
	dial   func(url string) (*amqp.Connection, error)
	tracer trace.Tracer
	logger *zap.Logger

	mu          sync.RWMutex
	conn        *amqp.Connection
	ch          *amqp.Channel
	reconnected chan struct{}
	failure     error

	state     atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(cfg Config, logger *zap.Logger) *Connection {
	return &Connection{
		cfg:         cfg,
		dial:        amqp.Dial,
		tracer:      otel.Tracer("marketplace/rabbitmq"),
		logger:      logger.With(zap.String("component", "rabbitmq")),
		reconnected: make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Done is closed once the connection is closed or gave up reconnecting.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err reports why Done was closed.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failure
}

func (c *Connection) attempts() int {
	return max(c.cfg.ReconnectAttempts, 1)
}

// Connect dials the broker and declares the topology, retrying with a fixed delay.
func (c *Connection) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts(); attempt++ {
		conn, err := c.open()
		if err == nil {
			c.setState(StateConnected)
			c.logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			go c.watch(conn)
			return nil
		}
		lastErr = err
		c.logger.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts()),
			zap.Error(err))

		if attempt == c.attempts() {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.attempts(), lastErr)
}

func (c *Connection) open() (*amqp.Connection, error) {
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch, c.cfg); err != nil {
		conn.Close()
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.mu.Unlock()
	return conn, nil
}

func (c *Connection) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case <-c.done:
		return
	case amqpErr := <-closed:
		if c.State() == StateClosed {
			return
		}
		c.logger.Warn("RabbitMQ connection lost", zap.Any("reason", amqpErr))
		c.reconnect()
	}
}

func (c *Connection) reconnect() {
	c.setState(StateReconnecting)
	c.mu.Lock()
	c.conn = nil
	c.ch = nil
	c.mu.Unlock()

	for attempt := 1; attempt <= c.attempts(); attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		conn, err := c.open()
		if err != nil {
			c.logger.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.attempts()),
				zap.Error(err))
			continue
		}

		c.setState(StateConnected)
		c.mu.Lock()
		close(c.reconnected)
		c.reconnected = make(chan struct{})
		c.mu.Unlock()
		c.logger.Info("Reconnected to RabbitMQ", zap.Int("attempt", attempt))
		go c.watch(conn)
		return
	}

	c.logger.Error("Giving up on RabbitMQ after reconnect attempts exhausted",
		zap.Int("max_attempts", c.attempts()))
	c.shutdown(ErrReconnectExhausted)
}

func (c *Connection) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Connection) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.mu.Lock()
		defer c.mu.Unlock()
		c.failure = reason
		if c.ch != nil {
			c.ch.Close()
			c.ch = nil
		}
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		close(c.done)
	})
}

// Publish sends env to the configured exchange. It fails fast with
// ErrNotConnected while the connection is down.
func (c *Connection) Publish(ctx context.Context, routingKey string, env *event.Envelope, opts PublishOptions) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	c.mu.RLock()
	ch := c.ch
	c.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "publish "+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.routing_key", routingKey),
			attribute.String("messaging.message.id", env.ID)))
	defer span.End()

	msg := buildPublishing(ctx, env, body, opts)
	if err := ch.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

func buildPublishing(ctx context.Context, env *event.Envelope, body []byte, opts PublishOptions) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, observability.HeaderCarrier(headers))

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Transient,
		Priority:      opts.Priority,
		MessageId:     env.ID,
		Type:          string(env.Type),
		CorrelationId: env.Metadata.CorrelationID,
		Timestamp:     env.Timestamp,
		Headers:       headers,
		Body:          body,
	}
	if opts.Persistent {
		msg.DeliveryMode = amqp.Persistent
	}
	if opts.Expiration > 0 {
		msg.Expiration = strconv.FormatInt(opts.Expiration.Milliseconds(), 10)
	}
	return msg
}

// Consume delivers messages from queue to p, at most prefetch at a time, and
// settles each one by the returned Outcome. It resubscribes after a reconnect
// and returns nil once ctx is cancelled, or Err() once the connection is gone.
func (c *Connection) Consume(ctx context.Context, queue string, prefetch int, p Processor) error {
	log := c.logger.With(zap.String("queue", queue))
	for {
		err := c.consumeOnce(ctx, queue, prefetch, p, log)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-c.done:
			return c.Err()
		default:
		}
		log.Warn("Consumer interrupted, waiting for connection", zap.Error(err))

		c.mu.RLock()
		reconnected := c.reconnected
		c.mu.RUnlock()
		if c.State() == StateConnected {
			// The channel failed but the connection did not.
			reconnected = nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return c.Err()
		case <-reconnected:
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Connection) consumeOnce(ctx context.Context, queue string, prefetch int, p Processor, log *zap.Logger) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}
	log.Info("Consuming", zap.Int("prefetch", prefetch))

	var g errgroup.Group
	g.SetLimit(prefetch)
	// In-flight messages finish even when ctx is cancelled.
	workCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			g.Wait()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				g.Wait()
				return errDeliveriesInterrupt
			}
			g.Go(func() error {
				outcome := p.Process(workCtx, toMessage(d))
				if err := settle(d, outcome); err != nil {
					log.Error("Failed to settle delivery",
						zap.String("message_id", d.MessageId),
						zap.Stringer("outcome", outcome),
						zap.Error(err))
				}
				return nil
			})
		}
	}
}

func toMessage(d amqp.Delivery) consumer.Message {
	return consumer.Message{
		Body:        d.Body,
		RoutingKey:  d.RoutingKey,
		Headers:     d.Headers,
		Redelivered: d.Redelivered,
	}
}

func settle(d amqp.Delivery, outcome consumer.Outcome) error {
	switch outcome {
	case consumer.Ack:
		return d.Ack(false)
	case consumer.Requeue:
		return d.Nack(false, true)
	case consumer.DeadLetter:
		return d.Nack(false, false)
	}
	return fmt.Errorf("unknown outcome %d", outcome)
}
