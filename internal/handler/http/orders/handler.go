package orders

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"marketplace/internal/app/orders"
	"marketplace/internal/domain"
)

// UserIDHeader carries the caller identity set by the gateway.
const UserIDHeader = "X-User-ID"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type OrderHandler struct {
	service orders.OrderService
	logger  *zap.Logger
}

func NewOrderHandler(s orders.OrderService, l *zap.Logger) *OrderHandler {
	return &OrderHandler{service: s, logger: l}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	writeJSON(w, status, errorResponse{Error: msg, Code: string(code)})
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var validationErr *domain.ValidationError
	var businessErr *domain.BusinessFailure
	switch {
	case errors.As(err, &validationErr):
		if validationErr.Code == domain.CodeForbidden {
			return http.StatusForbidden
		}
		return http.StatusBadRequest
	case errors.As(err, &businessErr):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrOrderItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *OrderHandler) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)
	code, _ := domain.Code(err)
	fields = append(fields, zap.Int("status", status), zap.Error(err))

	if status >= http.StatusInternalServerError {
		h.logger.Error("Error in "+op, fields...)
		msg := "Internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "Service temporarily unavailable"
		}
		writeError(w, status, msg, code)
		return
	}
	h.logger.Warn("Request rejected in "+op, fields...)
	writeError(w, status, err.Error(), code)
}

func (h *OrderHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+UserIDHeader+" header", "")
		return "", false
	}
	return userID, true
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req orders.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateOrder", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	req.UserID = userID

	order, err := h.service.CreateOrder(r.Context(), &req)
	if err != nil {
		h.fail(w, "CreateOrder", err, zap.String("user_id", userID))
		return
	}
	writeJSON(w, http.StatusCreated, orders.MapOrderToResponse(order))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, "GetOrder", err, zap.String("order_id", orderID))
		return
	}
	writeJSON(w, http.StatusOK, orders.MapOrderToResponse(order))
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	list, err := h.service.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		h.fail(w, "ListOrders", err, zap.String("user_id", userID))
		return
	}
	writeJSON(w, http.StatusOK, orders.MapOrdersToResponse(list))
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req orders.CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid request body for CancelOrder", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")
	req.UserID = userID

	order, err := h.service.CancelOrder(r.Context(), &req)
	if err != nil {
		h.fail(w, "CancelOrder", err, zap.String("order_id", req.OrderID))
		return
	}
	writeJSON(w, http.StatusOK, orders.MapOrderToResponse(order))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "Status is required", "")
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), orderID, domain.OrderStatus(req.Status))
	if err != nil {
		h.fail(w, "UpdateOrderStatus", err, zap.String("order_id", orderID))
		return
	}
	writeJSON(w, http.StatusOK, orders.MapOrderToResponse(order))
}

func (h *OrderHandler) UpdateOrderItemStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	itemID := chi.URLParam(r, "itemID")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "Status is required", "")
		return
	}

	order, err := h.service.UpdateOrderItemStatus(r.Context(), orderID, itemID, domain.FulfillmentStatus(req.Status))
	if err != nil {
		h.fail(w, "UpdateOrderItemStatus", err, zap.String("order_id", orderID), zap.String("item_id", itemID))
		return
	}
	writeJSON(w, http.StatusOK, orders.MapOrderToResponse(order))
}
