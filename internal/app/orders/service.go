package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/repository/order_repo"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, req *CancelOrderRequest) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error)
	UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, next domain.FulfillmentStatus) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
}

type Dependencies struct {
	Orders    order_repo.OrderRepository
	Carts     CartService
	Stock     StockService
	Addresses AddressService
	Payments  PaymentService
	Ownership OwnershipChecker
	Publisher EventPublisher
}

type orderService struct {
	orders    order_repo.OrderRepository
	carts     CartService
	stock     StockService
	addresses AddressService
	payments  PaymentService
	ownership OwnershipChecker
	publisher EventPublisher
	pricing   Pricing
	currency  string
	now       func() time.Time
	tracer    trace.Tracer
	logger    *zap.Logger
}

func NewOrderService(deps Dependencies, pricing Pricing, currency string, logger *zap.Logger) OrderService {
	return &orderService{
		orders:    deps.Orders,
		carts:     deps.Carts,
		stock:     deps.Stock,
		addresses: deps.Addresses,
		payments:  deps.Payments,
		ownership: deps.Ownership,
		publisher: deps.Publisher,
		pricing:   pricing,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
		tracer:    otel.Tracer("marketplace/orders"),
		logger:    logger.With(zap.String("component", "order_saga")),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (order *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := s.logger.With(zap.String("user_id", req.UserID))

	cart, items, err := s.validateCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.validateCheckoutDetails(ctx, req); err != nil {
		return nil, err
	}

	reservation, err := s.stock.ReserveStock(ctx, items)
	if err != nil {
		if errors.Is(err, domain.ErrStockUnavailable) {
			return nil, domain.NewValidationError(domain.CodeOutOfStock, "stock could not be reserved")
		}
		log.Error("Failed to reserve stock", zap.Error(err))
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}
	log.Info("Stock reserved", zap.String("reservation_id", reservation.ID))

	// Once stock is reserved the saga runs to commit or compensation.
	return s.chargeReservedOrder(context.WithoutCancel(ctx), req, cart, reservation.ID, log)
}

func (s *orderService) validateCart(ctx context.Context, userID string) (*domain.Cart, []domain.StockItem, error) {
	validation, err := s.carts.ValidateCartForCheckout(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to validate cart: %w", err)
	}
	if validation.Cart == nil || len(validation.Cart.Items) == 0 {
		return nil, nil, domain.NewValidationError(domain.CodeEmptyCart, "cart is empty")
	}
	if !validation.Valid {
		return nil, nil, domain.NewValidationError(domain.CodeCartInvalid, "%s", strings.Join(validation.Issues, "; "))
	}

	items := domain.StockItemsFromCart(validation.Cart.Items)
	check, err := s.stock.CheckStock(ctx, items)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check stock: %w", err)
	}
	if !check.AllAvailable {
		var missing []string
		for _, result := range check.Results {
			if !result.InStock {
				missing = append(missing, result.ProductID)
			}
		}
		return nil, nil, domain.NewValidationError(domain.CodeOutOfStock, "insufficient stock for %s", strings.Join(missing, ", "))
	}
	return validation.Cart, items, nil
}

func (s *orderService) validateCheckoutDetails(ctx context.Context, req *CreateOrderRequest) error {
	address, err := s.addresses.GetUserAddress(ctx, req.UserID, req.ShippingAddressID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewValidationError(domain.CodeAddressNotFound, "address %s not found", req.ShippingAddressID)
	case err != nil:
		return fmt.Errorf("failed to get shipping address: %w", err)
	case address.UserID != req.UserID:
		return domain.NewValidationError(domain.CodeAddressNotFound, "address %s not found", req.ShippingAddressID)
	}

	method, err := s.payments.GetPaymentMethod(ctx, req.UserID, req.PaymentMethodID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewValidationError(domain.CodePaymentMethodNotFound, "payment method %s not found", req.PaymentMethodID)
	case err != nil:
		return fmt.Errorf("failed to get payment method: %w", err)
	case method.UserID != req.UserID:
		return domain.NewValidationError(domain.CodePaymentMethodNotFound, "payment method %s not found", req.PaymentMethodID)
	case method.Expired(s.now()):
		return domain.NewValidationError(domain.CodeCardExpired, "payment method %s expired %02d/%d", method.ID, method.ExpMonth, method.ExpYear)
	}
	return nil
}

// chargeReservedOrder persists the order, captures payment and commits the
// reservation. Every exit before the commit releases the reservation first.
func (s *orderService) chargeReservedOrder(ctx context.Context, req *CreateOrderRequest, cart *domain.Cart, reservationID string, log *zap.Logger) (_ *domain.Order, err error) {
	var (
		order     *domain.Order
		persisted bool
		committed bool
		released  bool
		paymentID string
	)
	compensate := func(cause any) {
		if committed || released {
			return
		}
		released = true
		if !persisted {
			order = nil
		}
		s.compensate(ctx, order, reservationID, paymentID, cause, log)
	}
	defer func() {
		if p := recover(); p != nil {
			compensate(p)
			panic(p)
		}
		if err != nil {
			compensate(err)
		}
	}()

	order, err = domain.NewOrder(uuid.NewString(), generateOrderNumber(s.now()), req.UserID, orderItemsFromCart(cart.Items), s.currency)
	if err != nil {
		return nil, domain.NewValidationError(domain.CodeCartInvalid, "%v", err)
	}
	order.CartID = cart.ID
	order.ShippingAddressID = req.ShippingAddressID
	order.PaymentMethodID = req.PaymentMethodID
	order.StockReservationID = reservationID
	order.ApplyCharges(s.pricing.Charges(order.Subtotal))
	log = log.With(zap.String("order_id", order.ID), zap.String("order_number", order.OrderNumber))

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist pending order: %w", err)
	}
	persisted = true
	log.Info("Pending order persisted", zap.Float64("total_amount", order.TotalAmount))

	result, err := s.payments.ProcessPayment(ctx, PaymentRequest{
		OrderID:         order.ID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process payment: %w", err)
	}

	if result.Status != domain.PaymentStatusCompleted {
		reason := result.FailureReason
		if reason == "" {
			reason = "payment was not completed"
		}
		log.Warn("Payment declined", zap.String("reason", reason))
		compensate(reason)
		return nil, &domain.BusinessFailure{Code: domain.CodePaymentDeclined, Reason: reason}
	}
	paymentID = result.PaymentID

	if err := s.stock.ConfirmStockDeduction(ctx, reservationID); err != nil {
		return nil, fmt.Errorf("failed to confirm stock deduction: %w", err)
	}
	committed = true

	if err := order.MarkAsConfirmed(paymentID); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		log.Error("Payment captured and stock committed but order could not be saved as confirmed", zap.Error(err))
		return nil, fmt.Errorf("failed to persist confirmed order: %w", err)
	}

	if err := s.carts.MarkConverted(ctx, order.CartID, order.ID); err != nil {
		log.Warn("Failed to mark cart converted", zap.String("cart_id", order.CartID), zap.Error(err))
	}

	log.Info("Order confirmed", zap.String("payment_id", paymentID))
	s.publisher.PublishOrderCreated(ctx, order)
	return order, nil
}

// compensate releases the reservation, refunds a captured payment and moves a
// persisted order out of pending. It runs to completion even if ctx is cancelled.
func (s *orderService) compensate(ctx context.Context, order *domain.Order, reservationID, paymentID string, cause any, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	log.Warn("Compensating checkout", zap.Any("cause", cause))

	if err := s.stock.ReleaseStock(ctx, reservationID); err != nil {
		log.Error("Failed to release stock reservation", zap.String("reservation_id", reservationID), zap.Error(err))
	} else {
		log.Info("Stock reservation released", zap.String("reservation_id", reservationID))
	}

	if order == nil {
		return
	}
	if paymentID != "" {
		if err := s.payments.ProcessRefund(ctx, paymentID, order.TotalAmount, "checkout aborted"); err != nil {
			log.Error("Failed to refund captured payment", zap.String("payment_id", paymentID), zap.Error(err))
		}
	}
	if order.Status != domain.OrderStatusPending {
		return
	}

	var err error
	if paymentID == "" {
		err = order.MarkAsFailed()
	} else {
		err = order.MarkAsCancelled(fmt.Sprintf("checkout aborted: %v", cause))
	}
	if err == nil {
		order.StockReservationID = ""
		err = s.orders.UpdateOrder(ctx, order)
	}
	if err != nil {
		log.Error("Failed to record compensated order state", zap.Error(err))
	}
}

func orderItemsFromCart(items []domain.CartItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			ID:          uuid.NewString(),
			VendorID:    item.VendorID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return out
}

func (s *orderService) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrder", trace.WithAttributes(attribute.String("order_id", req.OrderID)))
	defer span.End()
	log := s.logger.With(zap.String("order_id", req.OrderID), zap.String("user_id", req.UserID))

	allowed, err := s.ownership.CanAccessOrder(ctx, req.UserID, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check order access: %w", err)
	}
	if !allowed {
		log.Warn("Cancel rejected, caller does not own order")
		return nil, domain.NewValidationError(domain.CodeForbidden, "not allowed to cancel order %s", req.OrderID)
	}

	order, err := s.orders.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.Cancellable() {
		return nil, domain.NewValidationError(domain.CodeNotCancellable, "order %s is %s", order.ID, order.Status)
	}

	refundStatus := domain.RefundNotApplicable
	if order.PaymentStatus == domain.PaymentStatusCompleted && order.PaymentID != "" {
		refundStatus = s.refund(ctx, order, req.Reason, log)
	}

	if order.Status == domain.OrderStatusPending && order.StockReservationID != "" {
		if err := s.stock.ReleaseStock(ctx, order.StockReservationID); err != nil {
			return nil, fmt.Errorf("failed to release stock reservation: %w", err)
		}
		order.StockReservationID = ""
	}

	if err := order.MarkAsCancelled(req.Reason); err != nil {
		return nil, domain.NewValidationError(domain.CodeNotCancellable, "%v", err)
	}
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		log.Error("Failed to persist cancelled order", zap.Error(err))
		return nil, fmt.Errorf("failed to persist cancelled order: %w", err)
	}

	log.Info("Order cancelled", zap.String("refund_status", string(refundStatus)))
	s.publisher.PublishOrderCancelled(ctx, order, req.Reason, refundStatus)
	return order, nil
}

// refund returns the full captured amount. A failed refund does not block the
// cancellation; it is reported through the refund status.
func (s *orderService) refund(ctx context.Context, order *domain.Order, reason string, log *zap.Logger) domain.RefundStatus {
	payment := domain.Payment{
		ID:       order.PaymentID,
		OrderID:  order.ID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Status:   order.PaymentStatus,
	}
	if err := payment.Refund(order.TotalAmount); err != nil {
		log.Error("Refund rejected", zap.Error(err))
		return domain.RefundFailed
	}
	if err := s.payments.ProcessRefund(ctx, payment.ID, payment.RefundedAmount, reason); err != nil {
		log.Error("Failed to refund payment", zap.String("payment_id", payment.ID), zap.Error(err))
		return domain.RefundFailed
	}
	order.PaymentStatus = payment.Status
	log.Info("Payment refunded", zap.String("payment_id", payment.ID), zap.Float64("amount", payment.RefundedAmount))
	return domain.RefundIssued
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	if !next.Valid() {
		return nil, domain.NewValidationError(domain.CodeInvalidTransition, "unknown status %q", next)
	}
	switch next {
	case domain.OrderStatusConfirmed, domain.OrderStatusCancelled, domain.OrderStatusFailed:
		return nil, domain.NewValidationError(domain.CodeInvalidTransition, "status %s is set by checkout or cancellation only", next)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// A pending order still holds an uncommitted reservation and an uncaptured payment.
	if order.Status == domain.OrderStatusPending {
		return nil, domain.NewValidationError(domain.CodeInvalidTransition, "order %s is still in checkout", order.ID)
	}
	previous := order.Status
	if err := order.TransitionTo(next); err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidTransition, "%v", err)
	}
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order status: %w", err)
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("old_status", string(previous)),
		zap.String("new_status", string(next)))
	s.publisher.PublishOrderStatusUpdated(ctx, order, previous, next)
	return order, nil
}

func (s *orderService) UpdateOrderItemStatus(ctx context.Context, orderID, itemID string, next domain.FulfillmentStatus) (*domain.Order, error) {
	if !next.Valid() || next == domain.FulfillmentCancelled {
		return nil, domain.NewValidationError(domain.CodeInvalidTransition, "invalid item status %q", next)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusCancelled, domain.OrderStatusFailed:
		return nil, domain.NewValidationError(domain.CodeInvalidTransition, "items of a %s order cannot change status", order.Status)
	}
	item, ok := order.Item(itemID)
	if !ok {
		return nil, domain.ErrOrderItemNotFound
	}

	previous := item.FulfillmentStatus
	if previous == next {
		return order, nil
	}
	item.FulfillmentStatus = next
	order.UpdatedAt = s.now()
	if err := s.orders.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist item status: %w", err)
	}

	s.logger.Info("Order item status updated",
		zap.String("order_id", order.ID),
		zap.String("item_id", item.ID),
		zap.String("old_status", string(previous)),
		zap.String("new_status", string(next)))
	s.publisher.PublishOrderItemStatusUpdated(ctx, order, item, previous, next)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Error("Failed to get order from repository", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, err
	}
	return order, nil
}

func (s *orderService) GetOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	orders, err := s.orders.GetOrdersByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get orders for user from repository", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return orders, nil
}
