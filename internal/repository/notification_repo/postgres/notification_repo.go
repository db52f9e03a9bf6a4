package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/repository/notification_repo"
)

type pgNotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewNotificationRepository(db *sql.DB, l *zap.Logger) notification_repo.NotificationRepository {
	return &pgNotificationRepository{db: db, logger: l.With(zap.String("component", "notification_repo"))}
}

func (r *pgNotificationRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := marshalData(n.Data)
	if err != nil {
		return err
	}

	query := `INSERT INTO notifications (id, type, priority, recipient_type, recipient_id, title, message, data, action_url, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, query, n.ID, n.Type, n.Priority, n.RecipientType, n.RecipientID,
		n.Title, n.Message, data, n.ActionURL, n.Source, n.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("notification_type", n.Type),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	r.logger.Debug("Notification created",
		zap.String("notification_id", n.ID),
		zap.String("recipient_type", string(n.RecipientType)),
		zap.String("recipient_id", n.RecipientID))
	return nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte(`{}`), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification data: %w", err)
	}
	return raw, nil
}
