package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace/internal/app/orders"
	"marketplace/internal/domain"
)

func newServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestStockClientReserve(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reservations", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req stockItemsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []domain.StockItem{{ProductID: "p-1", Quantity: 2}}, req.Items)

		writeJSON(w, http.StatusCreated, map[string]string{"reservationId": "r-1"})
	})

	c := NewStockClient(url, time.Second, zap.NewNop())
	res, err := c.ReserveStock(context.Background(), []domain.StockItem{{ProductID: "p-1", Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, "r-1", res.ID)
}

func TestStockClientReserveConflictIsUnavailable(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "p-1 has 0 available"})
	})

	c := NewStockClient(url, time.Second, zap.NewNop())
	_, err := c.ReserveStock(context.Background(), []domain.StockItem{{ProductID: "p-1", Quantity: 2}})
	assert.ErrorIs(t, err, domain.ErrStockUnavailable)
	assert.Contains(t, err.Error(), "p-1 has 0 available")
}

func TestStockClientReleaseAndConfirm(t *testing.T) {
	var calls []string
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	c := NewStockClient(url, time.Second, zap.NewNop())
	require.NoError(t, c.ReleaseStock(context.Background(), "r-1"))
	require.NoError(t, c.ConfirmStockDeduction(context.Background(), "r-2"))
	assert.Equal(t, []string{"DELETE /reservations/r-1", "POST /reservations/r-2/confirm"}, calls)
}

func TestClientMapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{name: "not found", status: http.StatusNotFound, check: func(t *testing.T, err error) {
			assert.ErrorIs(t, err, domain.ErrNotFound)
		}},
		{name: "server error", status: http.StatusBadGateway, check: func(t *testing.T, err error) {
			assert.ErrorIs(t, err, domain.ErrTransient)
		}},
		{name: "bad request", status: http.StatusBadRequest, check: func(t *testing.T, err error) {
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusBadRequest, statusErr.Status)
			assert.Equal(t, "bad address id", statusErr.Message)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "bad address id"})
			})
			c := NewUserClient(url, time.Second, zap.NewNop())
			_, err := c.GetUserAddress(context.Background(), "u-1", "a-1")
			tt.check(t, err)
		})
	}
}

func TestClientNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewCartClient(srv.URL, time.Second, zap.NewNop())
	_, err := c.ValidateCartForCheckout(context.Background(), "u-1")
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestPaymentClientDeclineIsAResult(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		var req paymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "o-1", req.OrderID)
		assert.Equal(t, 120.0, req.Amount)
		writeJSON(w, http.StatusOK, paymentResponse{PaymentID: "pay-1", Status: domain.PaymentStatusFailed, FailureReason: "insufficient funds"})
	})

	c := NewPaymentClient(url, time.Second, zap.NewNop())
	res, err := c.ProcessPayment(context.Background(), orders.PaymentRequest{OrderID: "o-1", PaymentMethodID: "pm-1", Amount: 120, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, res.Status)
	assert.Equal(t, "insufficient funds", res.FailureReason)
}

func TestPaymentClientRefund(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay-1/refunds", r.URL.Path)
		var req refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, refundRequest{Amount: 50, Reason: "changed mind"}, req)
		w.WriteHeader(http.StatusAccepted)
	})

	c := NewPaymentClient(url, time.Second, zap.NewNop())
	require.NoError(t, c.ProcessRefund(context.Background(), "pay-1", 50, "changed mind"))
}

func TestPaymentClientGetPaymentMethod(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u-1/payment-methods/pm-1", r.URL.Path)
		writeJSON(w, http.StatusOK, domain.PaymentMethod{ID: "pm-1", UserID: "u-1", ExpMonth: 12, ExpYear: 2030})
	})

	c := NewPaymentClient(url, time.Second, zap.NewNop())
	pm, err := c.GetPaymentMethod(context.Background(), "u-1", "pm-1")
	require.NoError(t, err)
	assert.Equal(t, 2030, pm.ExpYear)
}

func TestUserClientCanAccessOrder(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/o-1/access", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]bool{"allowed": r.URL.Query().Get("user") == "u-1"})
	})

	c := NewUserClient(url, time.Second, zap.NewNop())
	ok, err := c.CanAccessOrder(context.Background(), "u-1", "o-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CanAccessOrder(context.Background(), "u-2", "o-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCartClient(t *testing.T) {
	url := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/carts/validate":
			writeJSON(w, http.StatusOK, domain.CartValidation{
				Valid: true,
				Cart:  &domain.Cart{ID: "c-1", UserID: "u-1", Items: []domain.CartItem{{ProductID: "p-1", VendorID: "v-a", Quantity: 1, UnitPrice: 30}}},
			})
		case "/carts/c-1/convert":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "o-1", body["orderId"])
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	c := NewCartClient(url, time.Second, zap.NewNop())
	v, err := c.ValidateCartForCheckout(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "c-1", v.Cart.ID)
	require.NoError(t, c.MarkConverted(context.Background(), "c-1", "o-1"))
}
