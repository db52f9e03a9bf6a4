package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/domain"
)

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"id":"m-1","type":"ORDER_EXPLODED","payload":{}}`))
	assert.Error(t, err)
}

func TestDecodeRejectsMissingID(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ORDER_CREATED","payload":{}}`))
	assert.Error(t, err)
}

func TestDecodeReadsRetryCount(t *testing.T) {
	env, err := Decode([]byte(`{
		"id": "m-1",
		"type": "LOW_STOCK_ALERT",
		"timestamp": "2026-01-02T03:04:05Z",
		"payload": {"productId": "p-1", "currentStock": 2, "threshold": 5},
		"metadata": {"source": "inventory-service", "version": "1.0", "correlationId": "c-1", "retryCount": 2}
	}`))
	require.NoError(t, err)
	assert.Equal(t, LowStockAlert, env.Type)
	assert.Equal(t, 2, env.Metadata.RetryCount)

	var payload LowStockAlertPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, 2, payload.CurrentStock)
	assert.Equal(t, 5, payload.Threshold)
}

func TestNewEnvelopeAssignsIdentity(t *testing.T) {
	a, err := NewEnvelope(OrderCreated, SourceOrderService, "o-1", OrderCreatedPayload{OrderID: "o-1"})
	require.NoError(t, err)
	b, err := NewEnvelope(OrderCreated, SourceOrderService, "o-1", OrderCreatedPayload{OrderID: "o-1"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "o-1", a.Metadata.CorrelationID)
	assert.Equal(t, SchemaVersion, a.Metadata.Version)
	assert.JSONEq(t, `{"recipientType":"","recipientId":"","orderId":"o-1","orderNumber":"","customerId":"","items":null,"itemCount":0,"totalAmount":0,"currency":"","createdAt":"0001-01-01T00:00:00Z"}`, string(a.Payload))
}

func TestCustomerStatusKey(t *testing.T) {
	assert.Equal(t, KeyCustomerOrderShipped, CustomerStatusKey(domain.OrderStatusShipped))
	assert.Equal(t, KeyCustomerOrderDelivered, CustomerStatusKey(domain.OrderStatusDelivered))
	assert.Equal(t, "customer.order.processing", CustomerStatusKey(domain.OrderStatusProcessing))
}
