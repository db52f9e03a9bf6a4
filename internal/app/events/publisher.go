// Package events turns order outcomes into audience-addressed bus messages.
package events

import (
	"context"

	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/domain/event"
	"marketplace/internal/infrastructure/rabbitmq"
)

const (
	priorityDefault uint8 = 3
	priorityAdmin   uint8 = 5

	// AdminRecipientID addresses the admin audience as a whole.
	AdminRecipientID = "admins"
)

type Broker interface {
	Publish(ctx context.Context, routingKey string, env *event.Envelope, opts rabbitmq.PublishOptions) error
}

// Publisher never returns publish errors to the caller; they are logged.
type Publisher struct {
	broker             Broker
	highValueThreshold float64
	logger             *zap.Logger
}

func NewPublisher(broker Broker, highValueThreshold float64, logger *zap.Logger) *Publisher {
	return &Publisher{
		broker:             broker,
		highValueThreshold: highValueThreshold,
		logger:             logger.With(zap.String("component", "event_publisher")),
	}
}

type vendorGroup struct {
	vendorID string
	items    []event.ItemSummary
	subtotal float64
}

func groupByVendor(order *domain.Order) []vendorGroup {
	groups := make([]vendorGroup, 0, len(order.VendorIDs()))
	index := make(map[string]int)
	for _, vendorID := range order.VendorIDs() {
		index[vendorID] = len(groups)
		groups = append(groups, vendorGroup{vendorID: vendorID})
	}
	for _, item := range order.Items {
		g := &groups[index[item.VendorID]]
		g.items = append(g.items, summarize(item))
		g.subtotal += item.LineTotal
	}
	return groups
}

func summarize(item domain.OrderItem) event.ItemSummary {
	return event.ItemSummary{
		ItemID:      item.ID,
		ProductID:   item.ProductID,
		VariantID:   item.VariantID,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		LineTotal:   item.LineTotal,
	}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, order *domain.Order) {
	for _, g := range groupByVendor(order) {
		p.publish(ctx, event.KeyVendorOrderCreated, event.OrderCreated, order.ID, event.OrderCreatedPayload{
			Recipient:   event.Recipient{RecipientType: domain.RecipientVendor, RecipientID: g.vendorID},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.UserID,
			VendorID:    g.vendorID,
			Items:       g.items,
			ItemCount:   len(g.items),
			TotalAmount: g.subtotal,
			Currency:    order.Currency,
			CreatedAt:   order.CreatedAt,
		}, priorityDefault)
	}

	all := make([]event.ItemSummary, 0, len(order.Items))
	for _, item := range order.Items {
		all = append(all, summarize(item))
	}
	customer := event.OrderCreatedPayload{
		Recipient:   event.Recipient{RecipientType: domain.RecipientCustomer, RecipientID: order.UserID},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.UserID,
		Items:       all,
		ItemCount:   len(all),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		CreatedAt:   order.CreatedAt,
	}
	p.publish(ctx, event.KeyCustomerOrderConfirmed, event.OrderCreated, order.ID, customer, priorityDefault)

	if order.TotalAmount >= p.highValueThreshold {
		admin := customer
		admin.Recipient = event.Recipient{RecipientType: domain.RecipientAdmin, RecipientID: AdminRecipientID}
		p.publish(ctx, event.KeyAdminHighValue, event.OrderCreated, order.ID, admin, priorityAdmin)
	}
}

func (p *Publisher) PublishOrderCancelled(ctx context.Context, order *domain.Order, reason string, refundStatus domain.RefundStatus) {
	for _, g := range groupByVendor(order) {
		p.publish(ctx, event.KeyVendorOrderCancelled, event.OrderCancelled, order.ID, event.OrderCancelledPayload{
			Recipient:    event.Recipient{RecipientType: domain.RecipientVendor, RecipientID: g.vendorID},
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			CustomerID:   order.UserID,
			VendorID:     g.vendorID,
			Reason:       reason,
			RefundStatus: refundStatus,
			TotalAmount:  g.subtotal,
			Currency:     order.Currency,
		}, priorityDefault)
	}
	p.publish(ctx, event.KeyCustomerOrderCancelled, event.OrderCancelled, order.ID, event.OrderCancelledPayload{
		Recipient:    event.Recipient{RecipientType: domain.RecipientCustomer, RecipientID: order.UserID},
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerID:   order.UserID,
		Reason:       reason,
		RefundStatus: refundStatus,
		TotalAmount:  order.TotalAmount,
		Currency:     order.Currency,
	}, priorityDefault)
}

func (p *Publisher) PublishOrderStatusUpdated(ctx context.Context, order *domain.Order, previous, next domain.OrderStatus) {
	p.publish(ctx, event.CustomerStatusKey(next), event.OrderStatusUpdated, order.ID, event.OrderStatusUpdatedPayload{
		Recipient:      event.Recipient{RecipientType: domain.RecipientCustomer, RecipientID: order.UserID},
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.UserID,
		PreviousStatus: previous,
		NewStatus:      next,
	}, priorityDefault)
}

func (p *Publisher) PublishOrderItemStatusUpdated(ctx context.Context, order *domain.Order, item *domain.OrderItem, previous, next domain.FulfillmentStatus) {
	payload := event.OrderItemStatusUpdatedPayload{
		Recipient:      event.Recipient{RecipientType: domain.RecipientVendor, RecipientID: item.VendorID},
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.UserID,
		VendorID:       item.VendorID,
		ItemID:         item.ID,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		PreviousStatus: previous,
		NewStatus:      next,
	}
	p.publish(ctx, event.KeyVendorOrderItemStatus, event.OrderItemStatusUpdated, order.ID, payload, priorityDefault)

	var key string
	switch next {
	case domain.FulfillmentShipped:
		key = event.KeyCustomerOrderShipped
	case domain.FulfillmentDelivered:
		key = event.KeyCustomerOrderDelivered
	default:
		return
	}
	payload.Recipient = event.Recipient{RecipientType: domain.RecipientCustomer, RecipientID: order.UserID}
	p.publish(ctx, key, event.OrderItemStatusUpdated, order.ID, payload, priorityDefault)
}

// PublishLowStockAlert emits vendor.inventory.low_stock on behalf of the inventory service.
func (p *Publisher) PublishLowStockAlert(ctx context.Context, alert event.LowStockAlertPayload) {
	alert.Recipient = event.Recipient{RecipientType: domain.RecipientVendor, RecipientID: alert.VendorID}
	p.publishFrom(ctx, event.SourceInventoryService, event.KeyVendorLowStock, event.LowStockAlert, alert.ProductID, alert, priorityDefault)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msgType event.MessageType, correlationID string, payload any, priority uint8) {
	p.publishFrom(ctx, event.SourceOrderService, routingKey, msgType, correlationID, payload, priority)
}

func (p *Publisher) publishFrom(ctx context.Context, source, routingKey string, msgType event.MessageType, correlationID string, payload any, priority uint8) {
	log := p.logger.With(
		zap.String("routing_key", routingKey),
		zap.String("message_type", string(msgType)),
		zap.String("correlation_id", correlationID))

	env, err := event.NewEnvelope(msgType, source, correlationID, payload)
	if err != nil {
		log.Error("Failed to build message", zap.Error(err))
		return
	}
	err = p.broker.Publish(ctx, routingKey, env, rabbitmq.PublishOptions{Persistent: true, Priority: priority})
	if err != nil {
		log.Error("Failed to publish message", zap.String("message_id", env.ID), zap.Error(err))
		return
	}
	log.Debug("Message published", zap.String("message_id", env.ID))
}
