package orders

import (
	"time"

	"marketplace/internal/domain"
)

type CreateOrderRequest struct {
	UserID            string `json:"-"`
	ShippingAddressID string `json:"shippingAddressId"`
	PaymentMethodID   string `json:"paymentMethodId"`
}

type CancelOrderRequest struct {
	OrderID string `json:"-"`
	UserID  string `json:"-"`
	Reason  string `json:"reason"`
}

type OrderItemResponse struct {
	ID                string  `json:"id"`
	VendorID          string  `json:"vendorId"`
	ProductID         string  `json:"productId"`
	VariantID         string  `json:"variantId,omitempty"`
	ProductName       string  `json:"productName"`
	Quantity          int     `json:"quantity"`
	UnitPrice         float64 `json:"unitPrice"`
	LineTotal         float64 `json:"lineTotal"`
	FulfillmentStatus string  `json:"fulfillmentStatus"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	UserID        string              `json:"userId"`
	Items         []OrderItemResponse `json:"items"`
	Subtotal      float64             `json:"subtotal"`
	ShippingCost  float64             `json:"shippingCost"`
	Tax           float64             `json:"tax"`
	TotalAmount   float64             `json:"totalAmount"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"paymentStatus"`
	CancelReason  string              `json:"cancelReason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func MapOrderToResponse(order *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ID:                item.ID,
			VendorID:          item.VendorID,
			ProductID:         item.ProductID,
			VariantID:         item.VariantID,
			ProductName:       item.ProductName,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			LineTotal:         item.LineTotal,
			FulfillmentStatus: string(item.FulfillmentStatus),
		})
	}
	return &OrderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Items:         items,
		Subtotal:      order.Subtotal,
		ShippingCost:  order.ShippingCost,
		Tax:           order.Tax,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		CancelReason:  order.CancelReason,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func MapOrdersToResponse(orders []*domain.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, MapOrderToResponse(order))
	}
	return out
}
