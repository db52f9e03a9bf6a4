package clients

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"marketplace/internal/domain"
)

// UserClient serves address lookups and order ownership checks.
type UserClient struct {
	*httpClient
}

func NewUserClient(baseURL string, timeout time.Duration, l *zap.Logger) *UserClient {
	return &UserClient{newHTTPClient(baseURL, timeout, l.With(zap.String("component", "user_client")))}
}

func (c *UserClient) GetUserAddress(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	var out domain.Address
	path := "/users/" + url.PathEscape(userID) + "/addresses/" + url.PathEscape(addressID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *UserClient) CanAccessOrder(ctx context.Context, userID, orderID string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	path := "/orders/" + url.PathEscape(orderID) + "/access?user=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}
