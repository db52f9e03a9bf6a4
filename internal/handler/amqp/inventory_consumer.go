package amqp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"marketplace/internal/consumer"
	"marketplace/internal/domain"
	"marketplace/internal/domain/event"
)

const PushLowStock = "inventory:low_stock"

type InventoryConsumer struct {
	sink   NotificationSink
	pusher RealtimePusher
	logger *zap.Logger
}

func NewInventoryConsumer(sink NotificationSink, pusher RealtimePusher, l *zap.Logger) *InventoryConsumer {
	return &InventoryConsumer{
		sink:   sink,
		pusher: pusher,
		logger: l.With(zap.String("component", "inventory_consumer")),
	}
}

func (c *InventoryConsumer) Handle(ctx context.Context, env *event.Envelope) error {
	if env.Type != event.LowStockAlert {
		return consumer.Permanent(fmt.Errorf("inventory consumer cannot handle message type %s", env.Type))
	}

	var p event.LowStockAlertPayload
	if err := env.DecodePayload(&p); err != nil {
		return consumer.Permanent(err)
	}
	if p.RecipientID == "" {
		p.RecipientID = p.VendorID
	}
	if p.RecipientID == "" {
		return consumer.Permanent(fmt.Errorf("low stock alert %s has no vendor", env.ID))
	}

	name := p.ProductName
	if name == "" {
		name = p.ProductID
	}
	priority := domain.PriorityHigh
	if p.CurrentStock == 0 {
		priority = domain.PriorityUrgent
	}

	c.logger.Info("Low stock alert",
		zap.String("vendor_id", p.RecipientID),
		zap.String("product_id", p.ProductID),
		zap.Int("current_stock", p.CurrentStock),
		zap.Int("threshold", p.Threshold))

	return deliver(ctx, c.sink, c.pusher, c.logger, PushLowStock, &domain.Notification{
		Type:          "LOW_STOCK_ALERT",
		Priority:      priority,
		RecipientType: domain.RecipientVendor,
		RecipientID:   p.RecipientID,
		Title:         "Low stock",
		Message:       fmt.Sprintf("%s has %d unit(s) left (threshold %d)", name, p.CurrentStock, p.Threshold),
		Data: map[string]any{
			"productId":    p.ProductID,
			"variantId":    p.VariantID,
			"productName":  p.ProductName,
			"currentStock": p.CurrentStock,
			"threshold":    p.Threshold,
		},
		ActionURL: "/vendor/products/" + p.ProductID,
		Source:    env.Metadata.Source,
	})
}
