package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	QueueVendorOrders    = "vendor.orders"
	QueueVendorInventory = "vendor.inventory"
	QueueCustomerOrders  = "customer.orders"
	QueueAdmin           = "admin"
	QueueDeadLetter      = "dead-letter"

	maxPriority = 10
)

type QueueSpec struct {
	Name       string
	BindingKey string
}

// AudienceQueues is one durable queue per audience group.
var AudienceQueues = []QueueSpec{
	{Name: QueueVendorOrders, BindingKey: "vendor.order.#"},
	{Name: QueueVendorInventory, BindingKey: "vendor.inventory.#"},
	{Name: QueueCustomerOrders, BindingKey: "customer.order.#"},
	{Name: QueueAdmin, BindingKey: "admin.#"},
}

type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func audienceQueueArgs(ttl time.Duration, deadLetterExchange string) amqp.Table {
	return amqp.Table{
		"x-message-ttl":          ttl.Milliseconds(),
		"x-dead-letter-exchange": deadLetterExchange,
		"x-max-priority":         int32(maxPriority),
	}
}

func declareTopology(ch topologyChannel, cfg Config) error {
	for _, exchange := range []string{cfg.Exchange, cfg.DeadLetterExchange} {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	args := audienceQueueArgs(cfg.MessageTTL, cfg.DeadLetterExchange)
	for _, q := range AudienceQueues {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}
		if err := ch.QueueBind(q.Name, q.BindingKey, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, q.BindingKey, err)
		}
	}

	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueDeadLetter, err)
	}
	if err := ch.QueueBind(QueueDeadLetter, "#", cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}
	return nil
}
