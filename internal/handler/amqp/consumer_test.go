package amqp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace/internal/consumer"
	"marketplace/internal/domain"
	"marketplace/internal/domain/event"
)

type fakeSink struct {
	notifications []*domain.Notification
	err           error
}

func (s *fakeSink) CreateNotification(_ context.Context, n *domain.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.notifications = append(s.notifications, n)
	return nil
}

type pushed struct {
	event         string
	recipientType domain.RecipientType
	recipientID   string
}

type fakePusher struct {
	pushes []pushed
	err    error
}

func (p *fakePusher) Notify(_ context.Context, eventName string, recipientType domain.RecipientType, recipientID string, _ any) error {
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, pushed{event: eventName, recipientType: recipientType, recipientID: recipientID})
	return nil
}

func envelope(t *testing.T, msgType event.MessageType, payload any) *event.Envelope {
	t.Helper()
	env, err := event.NewEnvelope(msgType, event.SourceOrderService, "o-1", payload)
	require.NoError(t, err)
	return env
}

func newOrderConsumer() (*OrderConsumer, *fakeSink, *fakePusher) {
	sink, pusher := &fakeSink{}, &fakePusher{}
	return NewOrderConsumer(sink, pusher, 500, zap.NewNop()), sink, pusher
}

func createdPayload(recipientType domain.RecipientType, recipientID string, total float64) event.OrderCreatedPayload {
	return event.OrderCreatedPayload{
		Recipient:   event.Recipient{RecipientType: recipientType, RecipientID: recipientID},
		OrderID:     "o-1",
		OrderNumber: "ORD-20260315-ABCDEF",
		CustomerID:  "u-1",
		ItemCount:   2,
		TotalAmount: total,
		Currency:    "USD",
	}
}

func TestOrderCreatedNotifiesVendorAndCustomer(t *testing.T) {
	c, sink, pusher := newOrderConsumer()
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, envelope(t, event.OrderCreated, createdPayload(domain.RecipientVendor, "v-a", 70))))
	require.NoError(t, c.Handle(ctx, envelope(t, event.OrderCreated, createdPayload(domain.RecipientCustomer, "u-1", 120))))

	require.Len(t, sink.notifications, 2)
	vendor, customer := sink.notifications[0], sink.notifications[1]
	assert.Equal(t, "NEW_ORDER", vendor.Type)
	assert.Equal(t, domain.RecipientVendor, vendor.RecipientType)
	assert.Equal(t, "v-a", vendor.RecipientID)
	assert.Equal(t, 70.0, vendor.Data["totalAmount"])
	assert.Equal(t, event.SourceOrderService, vendor.Source)
	assert.Equal(t, "ORDER_CONFIRMED", customer.Type)
	assert.Equal(t, "u-1", customer.RecipientID)

	assert.Equal(t, []pushed{
		{event: PushOrderNew, recipientType: domain.RecipientVendor, recipientID: "v-a"},
		{event: PushOrderConfirmed, recipientType: domain.RecipientCustomer, recipientID: "u-1"},
	}, pusher.pushes)
}

func TestOrderCreatedAdminPushRespectsThreshold(t *testing.T) {
	c, sink, pusher := newOrderConsumer()
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, envelope(t, event.OrderCreated, createdPayload(domain.RecipientAdmin, "admins", 499.99))))
	assert.Empty(t, pusher.pushes)

	require.NoError(t, c.Handle(ctx, envelope(t, event.OrderCreated, createdPayload(domain.RecipientAdmin, "admins", 500))))
	assert.Equal(t, []pushed{{event: PushOrderHighValue, recipientType: domain.RecipientAdmin, recipientID: "admins"}}, pusher.pushes)
	assert.Empty(t, sink.notifications)
}

func TestOrderCancelledCarriesRefundStatus(t *testing.T) {
	c, sink, _ := newOrderConsumer()

	err := c.Handle(context.Background(), envelope(t, event.OrderCancelled, event.OrderCancelledPayload{
		Recipient:    event.Recipient{RecipientType: domain.RecipientCustomer, RecipientID: "u-1"},
		OrderID:      "o-1",
		OrderNumber:  "ORD-20260315-ABCDEF",
		Reason:       "changed mind",
		RefundStatus: domain.RefundIssued,
	}))
	require.NoError(t, err)

	require.Len(t, sink.notifications, 1)
	assert.Equal(t, "ORDER_CANCELLED", sink.notifications[0].Type)
	assert.Equal(t, domain.RefundIssued, sink.notifications[0].Data["refundStatus"])
	assert.Contains(t, sink.notifications[0].Message, "refunded")
}

func TestOrderItemStatusNotifiesCustomerOnlyWhenShippedOrDelivered(t *testing.T) {
	tests := []struct {
		name          string
		recipientType domain.RecipientType
		next          domain.FulfillmentStatus
		wantNotified  bool
	}{
		{name: "vendor processing", recipientType: domain.RecipientVendor, next: domain.FulfillmentProcessing, wantNotified: true},
		{name: "vendor shipped", recipientType: domain.RecipientVendor, next: domain.FulfillmentShipped, wantNotified: true},
		{name: "customer processing", recipientType: domain.RecipientCustomer, next: domain.FulfillmentProcessing},
		{name: "customer shipped", recipientType: domain.RecipientCustomer, next: domain.FulfillmentShipped, wantNotified: true},
		{name: "customer delivered", recipientType: domain.RecipientCustomer, next: domain.FulfillmentDelivered, wantNotified: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sink, _ := newOrderConsumer()
			err := c.Handle(context.Background(), envelope(t, event.OrderItemStatusUpdated, event.OrderItemStatusUpdatedPayload{
				Recipient:      event.Recipient{RecipientType: tt.recipientType, RecipientID: "r-1"},
				OrderID:        "o-1",
				VendorID:       "v-a",
				ItemID:         "i-1",
				ProductName:    "Mug",
				PreviousStatus: domain.FulfillmentPending,
				NewStatus:      tt.next,
			}))
			require.NoError(t, err)
			if !tt.wantNotified {
				assert.Empty(t, sink.notifications)
				return
			}
			require.Len(t, sink.notifications, 1)
			assert.Equal(t, tt.recipientType, sink.notifications[0].RecipientType)
		})
	}
}

func TestOrderStatusUpdatedNotifiesCustomer(t *testing.T) {
	c, sink, pusher := newOrderConsumer()

	err := c.Handle(context.Background(), envelope(t, event.OrderStatusUpdated, event.OrderStatusUpdatedPayload{
		Recipient:      event.Recipient{RecipientType: domain.RecipientCustomer, RecipientID: "u-1"},
		OrderID:        "o-1",
		PreviousStatus: domain.OrderStatusConfirmed,
		NewStatus:      domain.OrderStatusShipped,
	}))
	require.NoError(t, err)
	require.Len(t, sink.notifications, 1)
	assert.Equal(t, "Order shipped", sink.notifications[0].Title)
	assert.Len(t, pusher.pushes, 1)
}

func TestOrderConsumerRejectsUnhandledMessagesPermanently(t *testing.T) {
	c, _, _ := newOrderConsumer()

	err := c.Handle(context.Background(), envelope(t, event.LowStockAlert, event.LowStockAlertPayload{ProductID: "p-1"}))
	assert.True(t, consumer.IsPermanent(err))

	err = c.Handle(context.Background(), envelope(t, event.OrderCreated, event.OrderCreatedPayload{OrderID: "o-1"}))
	assert.True(t, consumer.IsPermanent(err))

	bad := envelope(t, event.OrderCancelled, nil)
	bad.Payload = []byte(`"not an object"`)
	assert.True(t, consumer.IsPermanent(c.Handle(context.Background(), bad)))
}

func TestSinkFailureIsRetryable(t *testing.T) {
	c, sink, pusher := newOrderConsumer()
	sink.err = errors.New("connection reset")

	err := c.Handle(context.Background(), envelope(t, event.OrderCreated, createdPayload(domain.RecipientVendor, "v-a", 70)))
	require.Error(t, err)
	assert.False(t, consumer.IsPermanent(err))
	assert.Empty(t, pusher.pushes)
}

func TestPushFailureDoesNotFailMessage(t *testing.T) {
	c, sink, pusher := newOrderConsumer()
	pusher.err = errors.New("redis down")

	err := c.Handle(context.Background(), envelope(t, event.OrderCreated, createdPayload(domain.RecipientCustomer, "u-1", 70)))
	require.NoError(t, err)
	assert.Len(t, sink.notifications, 1)
}

func TestInventoryConsumerLowStock(t *testing.T) {
	sink, pusher := &fakeSink{}, &fakePusher{}
	c := NewInventoryConsumer(sink, pusher, zap.NewNop())

	err := c.Handle(context.Background(), envelope(t, event.LowStockAlert, event.LowStockAlertPayload{
		VendorID:     "v-a",
		ProductID:    "p-1",
		ProductName:  "Mug",
		CurrentStock: 2,
		Threshold:    5,
	}))
	require.NoError(t, err)

	require.Len(t, sink.notifications, 1)
	n := sink.notifications[0]
	assert.Equal(t, "LOW_STOCK_ALERT", n.Type)
	assert.Equal(t, "v-a", n.RecipientID)
	assert.Equal(t, domain.PriorityHigh, n.Priority)
	assert.Equal(t, "p-1", n.Data["productId"])
	assert.Equal(t, 2, n.Data["currentStock"])
	assert.Equal(t, 5, n.Data["threshold"])
	assert.Equal(t, []pushed{{event: PushLowStock, recipientType: domain.RecipientVendor, recipientID: "v-a"}}, pusher.pushes)
}

func TestInventoryConsumerOutOfStockIsUrgent(t *testing.T) {
	sink := &fakeSink{}
	c := NewInventoryConsumer(sink, &fakePusher{}, zap.NewNop())

	require.NoError(t, c.Handle(context.Background(), envelope(t, event.LowStockAlert, event.LowStockAlertPayload{
		VendorID: "v-a", ProductID: "p-1", CurrentStock: 0, Threshold: 5,
	})))
	assert.Equal(t, domain.PriorityUrgent, sink.notifications[0].Priority)
}

func TestInventoryConsumerRejectsOtherTypes(t *testing.T) {
	c := NewInventoryConsumer(&fakeSink{}, &fakePusher{}, zap.NewNop())

	err := c.Handle(context.Background(), envelope(t, event.OrderCreated, createdPayload(domain.RecipientVendor, "v-a", 1)))
	assert.True(t, consumer.IsPermanent(err))

	err = c.Handle(context.Background(), envelope(t, event.LowStockAlert, event.LowStockAlertPayload{ProductID: "p-1"}))
	assert.True(t, consumer.IsPermanent(err))
}
