package event

import (
	"time"

	"marketplace/internal/domain"
)

// Recipient addresses a payload to one audience member.
type Recipient struct {
	RecipientType domain.RecipientType `json:"recipientType"`
	RecipientID   string               `json:"recipientId"`
}

type ItemSummary struct {
	ItemID      string  `json:"itemId"`
	ProductID   string  `json:"productId"`
	VariantID   string  `json:"variantId,omitempty"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

type OrderCreatedPayload struct {
	Recipient
	OrderID     string        `json:"orderId"`
	OrderNumber string        `json:"orderNumber"`
	CustomerID  string        `json:"customerId"`
	VendorID    string        `json:"vendorId,omitempty"`
	Items       []ItemSummary `json:"items"`
	ItemCount   int           `json:"itemCount"`
	TotalAmount float64       `json:"totalAmount"`
	Currency    string        `json:"currency"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type OrderCancelledPayload struct {
	Recipient
	OrderID      string              `json:"orderId"`
	OrderNumber  string              `json:"orderNumber"`
	CustomerID   string              `json:"customerId"`
	VendorID     string              `json:"vendorId,omitempty"`
	Reason       string              `json:"reason"`
	RefundStatus domain.RefundStatus `json:"refundStatus"`
	TotalAmount  float64             `json:"totalAmount"`
	Currency     string              `json:"currency"`
}

type OrderStatusUpdatedPayload struct {
	Recipient
	OrderID        string             `json:"orderId"`
	OrderNumber    string             `json:"orderNumber"`
	CustomerID     string             `json:"customerId"`
	PreviousStatus domain.OrderStatus `json:"previousStatus"`
	NewStatus      domain.OrderStatus `json:"newStatus"`
}

type OrderItemStatusUpdatedPayload struct {
	Recipient
	OrderID        string                   `json:"orderId"`
	OrderNumber    string                   `json:"orderNumber"`
	CustomerID     string                   `json:"customerId"`
	VendorID       string                   `json:"vendorId"`
	ItemID         string                   `json:"itemId"`
	ProductID      string                   `json:"productId"`
	ProductName    string                   `json:"productName"`
	PreviousStatus domain.FulfillmentStatus `json:"previousStatus"`
	NewStatus      domain.FulfillmentStatus `json:"newStatus"`
}

type LowStockAlertPayload struct {
	Recipient
	VendorID     string `json:"vendorId"`
	ProductID    string `json:"productId"`
	VariantID    string `json:"variantId,omitempty"`
	ProductName  string `json:"productName"`
	CurrentStock int    `json:"currentStock"`
	Threshold    int    `json:"threshold"`
}
