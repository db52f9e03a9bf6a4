package notification_repo

import (
	"context"

	"marketplace/internal/domain"
)

// NotificationRepository is the notification sink of the domain consumers.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}
