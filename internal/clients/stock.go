package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"marketplace/internal/domain"
)

type StockClient struct {
	*httpClient
}

func NewStockClient(baseURL string, timeout time.Duration, l *zap.Logger) *StockClient {
	return &StockClient{newHTTPClient(baseURL, timeout, l.With(zap.String("component", "stock_client")))}
}

type stockItemsRequest struct {
	Items []domain.StockItem `json:"items"`
}

func (c *StockClient) CheckStock(ctx context.Context, items []domain.StockItem) (*domain.StockCheck, error) {
	var out domain.StockCheck
	if err := c.do(ctx, http.MethodPost, "/stock/check", stockItemsRequest{Items: items}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReserveStock maps a 409 reply to domain.ErrStockUnavailable.
func (c *StockClient) ReserveStock(ctx context.Context, items []domain.StockItem) (*domain.StockReservation, error) {
	var out domain.StockReservation
	err := c.do(ctx, http.MethodPost, "/reservations", stockItemsRequest{Items: items}, &out)
	if errors.Is(err, errConflict) {
		return nil, fmt.Errorf("%w: %v", domain.ErrStockUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("stock service returned an empty reservation id")
	}
	return &out, nil
}

func (c *StockClient) ReleaseStock(ctx context.Context, reservationID string) error {
	return c.do(ctx, http.MethodDelete, "/reservations/"+url.PathEscape(reservationID), nil, nil)
}

func (c *StockClient) ConfirmStockDeduction(ctx context.Context, reservationID string) error {
	return c.do(ctx, http.MethodPost, "/reservations/"+url.PathEscape(reservationID)+"/confirm", nil, nil)
}
