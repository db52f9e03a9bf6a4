// Package amqp holds the domain consumers that turn bus messages into
// notification records and realtime pushes.
package amqp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/domain/event"
)

type NotificationSink interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

type RealtimePusher interface {
	Notify(ctx context.Context, eventName string, recipientType domain.RecipientType, recipientID string, payload any) error
}

// deliver stores the notification and then pushes it. The stored record is
// authoritative: a failed push is logged and does not fail the message.
func deliver(ctx context.Context, sink NotificationSink, pusher RealtimePusher, logger *zap.Logger, eventName string, n *domain.Notification) error {
	if err := sink.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to create %s notification for %s %s: %w", n.Type, n.RecipientType, n.RecipientID, err)
	}
	push(ctx, pusher, logger, eventName, n.RecipientType, n.RecipientID, n.Data)
	return nil
}

func push(ctx context.Context, pusher RealtimePusher, logger *zap.Logger, eventName string, recipientType domain.RecipientType, recipientID string, payload any) {
	if err := pusher.Notify(ctx, eventName, recipientType, recipientID, payload); err != nil {
		logger.Warn("Realtime push failed",
			zap.String("event", eventName),
			zap.String("recipient_type", string(recipientType)),
			zap.String("recipient_id", recipientID),
			zap.Error(err))
	}
}

func requireRecipient(env *event.Envelope, r event.Recipient) error {
	if r.RecipientID == "" || r.RecipientType == "" {
		return fmt.Errorf("message %s of type %s has no recipient", env.ID, env.Type)
	}
	return nil
}
