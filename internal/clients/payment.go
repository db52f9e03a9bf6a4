package clients

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"marketplace/internal/app/orders"
	"marketplace/internal/domain"
)

type PaymentClient struct {
	*httpClient
}

func NewPaymentClient(baseURL string, timeout time.Duration, l *zap.Logger) *PaymentClient {
	return &PaymentClient{newHTTPClient(baseURL, timeout, l.With(zap.String("component", "payment_client")))}
}

func (c *PaymentClient) GetPaymentMethod(ctx context.Context, userID, methodID string) (*domain.PaymentMethod, error) {
	var out domain.PaymentMethod
	path := "/users/" + url.PathEscape(userID) + "/payment-methods/" + url.PathEscape(methodID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type paymentRequest struct {
	OrderID         string  `json:"orderId"`
	PaymentMethodID string  `json:"paymentMethodId"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

type paymentResponse struct {
	PaymentID     string               `json:"paymentId"`
	Status        domain.PaymentStatus `json:"status"`
	FailureReason string               `json:"failureReason,omitempty"`
}

// ProcessPayment reports a decline as a failed PaymentResult, not as an error.
func (c *PaymentClient) ProcessPayment(ctx context.Context, req orders.PaymentRequest) (*domain.PaymentResult, error) {
	var out paymentResponse
	err := c.do(ctx, http.MethodPost, "/payments", paymentRequest{
		OrderID:         req.OrderID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentResult{PaymentID: out.PaymentID, Status: out.Status, FailureReason: out.FailureReason}, nil
}

type refundRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

func (c *PaymentClient) ProcessRefund(ctx context.Context, paymentID string, amount float64, reason string) error {
	return c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refunds", refundRequest{Amount: amount, Reason: reason}, nil)
}
