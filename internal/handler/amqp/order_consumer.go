package amqp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"marketplace/internal/consumer"
	"marketplace/internal/domain"
	"marketplace/internal/domain/event"
)

// Realtime event names pushed to connected clients.
const (
	PushOrderNew        = "order:new"
	PushOrderConfirmed  = "order:confirmed"
	PushOrderHighValue  = "order:high_value"
	PushOrderCancelled  = "order:cancelled"
	PushOrderItemStatus = "order:item_status"
	PushOrderStatus     = "order:status"
)

type OrderConsumer struct {
	sink               NotificationSink
	pusher             RealtimePusher
	highValueThreshold float64
	logger             *zap.Logger
}

func NewOrderConsumer(sink NotificationSink, pusher RealtimePusher, highValueThreshold float64, l *zap.Logger) *OrderConsumer {
	return &OrderConsumer{
		sink:               sink,
		pusher:             pusher,
		highValueThreshold: highValueThreshold,
		logger:             l.With(zap.String("component", "order_consumer")),
	}
}

func (c *OrderConsumer) Handle(ctx context.Context, env *event.Envelope) error {
	switch env.Type {
	case event.OrderCreated:
		var p event.OrderCreatedPayload
		if err := env.DecodePayload(&p); err != nil {
			return consumer.Permanent(err)
		}
		return c.handleCreated(ctx, env, p)
	case event.OrderCancelled:
		var p event.OrderCancelledPayload
		if err := env.DecodePayload(&p); err != nil {
			return consumer.Permanent(err)
		}
		return c.handleCancelled(ctx, env, p)
	case event.OrderItemStatusUpdated:
		var p event.OrderItemStatusUpdatedPayload
		if err := env.DecodePayload(&p); err != nil {
			return consumer.Permanent(err)
		}
		return c.handleItemStatus(ctx, env, p)
	case event.OrderStatusUpdated:
		var p event.OrderStatusUpdatedPayload
		if err := env.DecodePayload(&p); err != nil {
			return consumer.Permanent(err)
		}
		return c.handleStatus(ctx, env, p)
	}
	return consumer.Permanent(fmt.Errorf("order consumer cannot handle message type %s", env.Type))
}

func (c *OrderConsumer) handleCreated(ctx context.Context, env *event.Envelope, p event.OrderCreatedPayload) error {
	if err := requireRecipient(env, p.Recipient); err != nil {
		return consumer.Permanent(err)
	}
	data := map[string]any{
		"orderId":     p.OrderID,
		"orderNumber": p.OrderNumber,
		"itemCount":   p.ItemCount,
		"totalAmount": p.TotalAmount,
		"currency":    p.Currency,
	}

	switch p.RecipientType {
	case domain.RecipientVendor:
		return deliver(ctx, c.sink, c.pusher, c.logger, PushOrderNew, &domain.Notification{
			Type:          "NEW_ORDER",
			Priority:      domain.PriorityHigh,
			RecipientType: domain.RecipientVendor,
			RecipientID:   p.RecipientID,
			Title:         "New order received",
			Message:       fmt.Sprintf("Order %s: %d item(s) totalling %.2f %s", p.OrderNumber, p.ItemCount, p.TotalAmount, p.Currency),
			Data:          data,
			ActionURL:     "/vendor/orders/" + p.OrderID,
			Source:        env.Metadata.Source,
		})
	case domain.RecipientCustomer:
		return deliver(ctx, c.sink, c.pusher, c.logger, PushOrderConfirmed, &domain.Notification{
			Type:          "ORDER_CONFIRMED",
			Priority:      domain.PriorityMedium,
			RecipientType: domain.RecipientCustomer,
			RecipientID:   p.RecipientID,
			Title:         "Order confirmed",
			Message:       fmt.Sprintf("Your order %s has been confirmed", p.OrderNumber),
			Data:          data,
			ActionURL:     "/orders/" + p.OrderID,
			Source:        env.Metadata.Source,
		})
	case domain.RecipientAdmin:
		if p.TotalAmount < c.highValueThreshold {
			c.logger.Info("Skipping admin alert below high-value threshold",
				zap.String("order_id", p.OrderID),
				zap.Float64("total_amount", p.TotalAmount))
			return nil
		}
		push(ctx, c.pusher, c.logger, PushOrderHighValue, domain.RecipientAdmin, p.RecipientID, data)
		return nil
	}
	return consumer.Permanent(fmt.Errorf("unknown recipient type %q on message %s", p.RecipientType, env.ID))
}

func (c *OrderConsumer) handleCancelled(ctx context.Context, env *event.Envelope, p event.OrderCancelledPayload) error {
	if err := requireRecipient(env, p.Recipient); err != nil {
		return consumer.Permanent(err)
	}
	data := map[string]any{
		"orderId":      p.OrderID,
		"orderNumber":  p.OrderNumber,
		"reason":       p.Reason,
		"refundStatus": p.RefundStatus,
		"totalAmount":  p.TotalAmount,
		"currency":     p.Currency,
	}

	n := &domain.Notification{
		Type:          "ORDER_CANCELLED",
		Priority:      domain.PriorityHigh,
		RecipientType: p.RecipientType,
		RecipientID:   p.RecipientID,
		Title:         "Order cancelled",
		Data:          data,
		Source:        env.Metadata.Source,
	}
	switch p.RecipientType {
	case domain.RecipientVendor:
		n.Message = fmt.Sprintf("Order %s was cancelled: %s", p.OrderNumber, p.Reason)
		n.ActionURL = "/vendor/orders/" + p.OrderID
	case domain.RecipientCustomer:
		n.Message = fmt.Sprintf("Your order %s was cancelled (refund: %s)", p.OrderNumber, p.RefundStatus)
		n.ActionURL = "/orders/" + p.OrderID
	default:
		return consumer.Permanent(fmt.Errorf("unknown recipient type %q on message %s", p.RecipientType, env.ID))
	}
	return deliver(ctx, c.sink, c.pusher, c.logger, PushOrderCancelled, n)
}

func (c *OrderConsumer) handleItemStatus(ctx context.Context, env *event.Envelope, p event.OrderItemStatusUpdatedPayload) error {
	if err := requireRecipient(env, p.Recipient); err != nil {
		return consumer.Permanent(err)
	}
	data := map[string]any{
		"orderId":        p.OrderID,
		"orderNumber":    p.OrderNumber,
		"itemId":         p.ItemID,
		"productId":      p.ProductID,
		"previousStatus": p.PreviousStatus,
		"newStatus":      p.NewStatus,
	}

	switch p.RecipientType {
	case domain.RecipientVendor:
		return deliver(ctx, c.sink, c.pusher, c.logger, PushOrderItemStatus, &domain.Notification{
			Type:          "ORDER_ITEM_STATUS_UPDATED",
			Priority:      domain.PriorityLow,
			RecipientType: domain.RecipientVendor,
			RecipientID:   p.RecipientID,
			Title:         "Order item updated",
			Message:       fmt.Sprintf("%s in order %s is now %s", p.ProductName, p.OrderNumber, p.NewStatus),
			Data:          data,
			ActionURL:     "/vendor/orders/" + p.OrderID,
			Source:        env.Metadata.Source,
		})
	case domain.RecipientCustomer:
		if p.NewStatus != domain.FulfillmentShipped && p.NewStatus != domain.FulfillmentDelivered {
			return nil
		}
		return deliver(ctx, c.sink, c.pusher, c.logger, PushOrderItemStatus, &domain.Notification{
			Type:          "ORDER_ITEM_" + strings.ToUpper(string(p.NewStatus)),
			Priority:      domain.PriorityMedium,
			RecipientType: domain.RecipientCustomer,
			RecipientID:   p.RecipientID,
			Title:         "Item " + string(p.NewStatus),
			Message:       fmt.Sprintf("%s from order %s has been %s", p.ProductName, p.OrderNumber, p.NewStatus),
			Data:          data,
			ActionURL:     "/orders/" + p.OrderID,
			Source:        env.Metadata.Source,
		})
	}
	return consumer.Permanent(fmt.Errorf("unknown recipient type %q on message %s", p.RecipientType, env.ID))
}

func (c *OrderConsumer) handleStatus(ctx context.Context, env *event.Envelope, p event.OrderStatusUpdatedPayload) error {
	if err := requireRecipient(env, p.Recipient); err != nil {
		return consumer.Permanent(err)
	}
	return deliver(ctx, c.sink, c.pusher, c.logger, PushOrderStatus, &domain.Notification{
		Type:          "ORDER_STATUS_UPDATED",
		Priority:      domain.PriorityMedium,
		RecipientType: p.RecipientType,
		RecipientID:   p.RecipientID,
		Title:         "Order " + string(p.NewStatus),
		Message:       fmt.Sprintf("Your order %s is now %s", p.OrderNumber, p.NewStatus),
		Data: map[string]any{
			"orderId":        p.OrderID,
			"orderNumber":    p.OrderNumber,
			"previousStatus": p.PreviousStatus,
			"newStatus":      p.NewStatus,
		},
		ActionURL: "/orders/" + p.OrderID,
		Source:    env.Metadata.Source,
	})
}
