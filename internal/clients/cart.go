package clients

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"marketplace/internal/domain"
)

type CartClient struct {
	*httpClient
}

func NewCartClient(baseURL string, timeout time.Duration, l *zap.Logger) *CartClient {
	return &CartClient{newHTTPClient(baseURL, timeout, l.With(zap.String("component", "cart_client")))}
}

func (c *CartClient) ValidateCartForCheckout(ctx context.Context, userID string) (*domain.CartValidation, error) {
	var out domain.CartValidation
	if err := c.do(ctx, http.MethodPost, "/carts/validate", map[string]string{"userId": userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CartClient) MarkConverted(ctx context.Context, cartID, orderID string) error {
	return c.do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/convert", map[string]string{"orderId": orderID}, nil)
}
