package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	order, err := NewOrder("o-1", "ORD-1", "u-1", []OrderItem{
		{ID: "i-1", VendorID: "A", Quantity: 1, UnitPrice: 30},
		{ID: "i-2", VendorID: "A", Quantity: 2, UnitPrice: 20},
		{ID: "i-3", VendorID: "B", Quantity: 1, UnitPrice: 50},
	}, "USD")
	require.NoError(t, err)
	return order
}

func TestNewOrderComputesTotals(t *testing.T) {
	order := newTestOrder(t)

	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 40.0, order.Items[1].LineTotal)
	assert.Equal(t, 120.0, order.Subtotal)
	assert.Equal(t, []string{"A", "B"}, order.VendorIDs())

	order.ApplyCharges(5, 2.5)
	assert.Equal(t, 127.5, order.TotalAmount)
}

func TestNewOrderRejectsEmptyItems(t *testing.T) {
	_, err := NewOrder("o-1", "ORD-1", "u-1", nil, "USD")
	assert.Error(t, err)
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusFailed, OrderStatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestMarkAsCancelledCancelsItems(t *testing.T) {
	order := newTestOrder(t)
	require.NoError(t, order.MarkAsConfirmed("pay-1"))
	require.NoError(t, order.MarkAsCancelled("changed my mind"))

	assert.Equal(t, OrderStatusCancelled, order.Status)
	assert.Equal(t, "changed my mind", order.CancelReason)
	for _, item := range order.Items {
		assert.Equal(t, FulfillmentCancelled, item.FulfillmentStatus)
	}
	assert.Error(t, order.MarkAsCancelled("again"))
}

func TestPaymentRefund(t *testing.T) {
	p := &Payment{Amount: 100, Status: PaymentStatusCompleted}

	require.NoError(t, p.Refund(40))
	assert.Equal(t, PaymentStatusPartiallyRefunded, p.Status)
	require.NoError(t, p.Refund(60))
	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.ErrorIs(t, p.Refund(1), ErrRefundExceedsPayment)
}

func TestPaymentMethodExpired(t *testing.T) {
	now := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	assert.False(t, PaymentMethod{ExpMonth: 5, ExpYear: 2026}.Expired(now))
	assert.True(t, PaymentMethod{ExpMonth: 4, ExpYear: 2026}.Expired(now))
	assert.True(t, PaymentMethod{ExpMonth: 12, ExpYear: 2025}.Expired(now))
}

func TestCode(t *testing.T) {
	code, ok := Code(NewValidationError(CodeOutOfStock, "sku %s", "x"))
	assert.True(t, ok)
	assert.Equal(t, CodeOutOfStock, code)

	code, ok = Code(&BusinessFailure{Code: CodePaymentDeclined, Reason: "insufficient_funds"})
	assert.True(t, ok)
	assert.Equal(t, CodePaymentDeclined, code)

	_, ok = Code(errors.New("boom"))
	assert.False(t, ok)
}
