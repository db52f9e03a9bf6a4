package event

import "marketplace/internal/domain"

// Routing keys follow audience.domain.verb.
const (
	KeyVendorOrderCreated     = "vendor.order.created"
	KeyVendorOrderCancelled   = "vendor.order.cancelled"
	KeyVendorOrderItemStatus  = "vendor.order.item.status"
	KeyVendorLowStock         = "vendor.inventory.low_stock"
	KeyCustomerOrderConfirmed = "customer.order.confirmed"
	KeyCustomerOrderShipped   = "customer.order.shipped"
	KeyCustomerOrderDelivered = "customer.order.delivered"
	KeyCustomerOrderCancelled = "customer.order.cancelled"
	KeyAdminHighValue         = "admin.order.high_value"
)

// CustomerStatusKey picks the customer routing key for an order status change.
func CustomerStatusKey(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusShipped:
		return KeyCustomerOrderShipped
	case domain.OrderStatusDelivered:
		return KeyCustomerOrderDelivered
	}
	return "customer.order." + string(status)
}
