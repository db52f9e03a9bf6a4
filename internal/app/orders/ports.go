package orders

import (
	"context"

	"marketplace/internal/domain"
)

type CartService interface {
	ValidateCartForCheckout(ctx context.Context, userID string) (*domain.CartValidation, error)
	MarkConverted(ctx context.Context, cartID, orderID string) error
}

// StockService reports unavailability on ReserveStock as domain.ErrStockUnavailable.
type StockService interface {
	CheckStock(ctx context.Context, items []domain.StockItem) (*domain.StockCheck, error)
	ReserveStock(ctx context.Context, items []domain.StockItem) (*domain.StockReservation, error)
	ReleaseStock(ctx context.Context, reservationID string) error
	ConfirmStockDeduction(ctx context.Context, reservationID string) error
}

// AddressService reports missing addresses as domain.ErrNotFound.
type AddressService interface {
	GetUserAddress(ctx context.Context, userID, addressID string) (*domain.Address, error)
}

type PaymentRequest struct {
	OrderID         string
	PaymentMethodID string
	Amount          float64
	Currency        string
}

// PaymentService reports missing payment methods as domain.ErrNotFound.
// A declined capture is a PaymentResult with status failed, not an error.
type PaymentService interface {
	GetPaymentMethod(ctx context.Context, userID, methodID string) (*domain.PaymentMethod, error)
	ProcessPayment(ctx context.Context, req PaymentRequest) (*domain.PaymentResult, error)
	ProcessRefund(ctx context.Context, paymentID string, amount float64, reason string) error
}

type OwnershipChecker interface {
	CanAccessOrder(ctx context.Context, userID, orderID string) (bool, error)
}

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order)
	PublishOrderCancelled(ctx context.Context, order *domain.Order, reason string, refundStatus domain.RefundStatus)
	PublishOrderStatusUpdated(ctx context.Context, order *domain.Order, previous, next domain.OrderStatus)
	PublishOrderItemStatusUpdated(ctx context.Context, order *domain.Order, item *domain.OrderItem, previous, next domain.FulfillmentStatus)
}
