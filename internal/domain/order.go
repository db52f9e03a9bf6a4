package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderItemNotFound = errors.New("order item not found")
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the order state machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable is true for every status before shipment.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

type FulfillmentStatus string

const (
	FulfillmentPending    FulfillmentStatus = "pending"
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentPending, FulfillmentProcessing, FulfillmentShipped, FulfillmentDelivered, FulfillmentCancelled:
		return true
	}
	return false
}

type OrderItem struct {
	ID                string
	VendorID          string
	ProductID         string
	VariantID         string
	ProductName       string
	Quantity          int
	UnitPrice         float64
	LineTotal         float64
	FulfillmentStatus FulfillmentStatus
}

type Order struct {
	ID                 string
	OrderNumber        string
	UserID             string
	CartID             string
	Items              []OrderItem
	Subtotal           float64
	ShippingCost       float64
	Tax                float64
	TotalAmount        float64
	Currency           string
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	PaymentID          string
	StockReservationID string
	ShippingAddressID  string
	PaymentMethodID    string
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewOrder(id, orderNumber, userID string, items []OrderItem, currency string) (*Order, error) {
	if id == "" || userID == "" || len(items) == 0 {
		return nil, errors.New("invalid order data")
	}
	now := time.Now().UTC()
	order := &Order{
		ID:            id,
		OrderNumber:   orderNumber,
		UserID:        userID,
		Items:         items,
		Currency:      currency,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range order.Items {
		item := &order.Items[i]
		item.LineTotal = float64(item.Quantity) * item.UnitPrice
		if item.FulfillmentStatus == "" {
			item.FulfillmentStatus = FulfillmentPending
		}
		order.Subtotal += item.LineTotal
	}
	order.TotalAmount = order.Subtotal
	return order, nil
}

// ApplyCharges sets shipping and tax and recomputes the total.
func (o *Order) ApplyCharges(shipping, tax float64) {
	o.ShippingCost = shipping
	o.Tax = tax
	o.TotalAmount = o.Subtotal + shipping + tax
}

func (o *Order) TransitionTo(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("cannot move order %s from %s to %s", o.ID, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (o *Order) MarkAsConfirmed(paymentID string) error {
	if err := o.TransitionTo(OrderStatusConfirmed); err != nil {
		return err
	}
	o.PaymentID = paymentID
	o.PaymentStatus = PaymentStatusCompleted
	return nil
}

func (o *Order) MarkAsFailed() error {
	if err := o.TransitionTo(OrderStatusFailed); err != nil {
		return err
	}
	o.PaymentStatus = PaymentStatusFailed
	return nil
}

func (o *Order) MarkAsCancelled(reason string) error {
	if err := o.TransitionTo(OrderStatusCancelled); err != nil {
		return err
	}
	o.CancelReason = reason
	for i := range o.Items {
		o.Items[i].FulfillmentStatus = FulfillmentCancelled
	}
	return nil
}

func (o *Order) Item(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// VendorIDs returns the distinct vendors of the order in first-seen item order.
func (o *Order) VendorIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if _, ok := seen[item.VendorID]; ok {
			continue
		}
		seen[item.VendorID] = struct{}{}
		ids = append(ids, item.VendorID)
	}
	return ids
}
