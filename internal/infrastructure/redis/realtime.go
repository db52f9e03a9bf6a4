package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/domain"
)

type realtimeMessage struct {
	Event         string               `json:"event"`
	RecipientType domain.RecipientType `json:"recipientType"`
	RecipientID   string               `json:"recipientId"`
	Payload       any                  `json:"payload"`
	SentAt        time.Time            `json:"sentAt"`
}

// RealtimePusher publishes live updates on realtime:<recipientType>:<recipientId>.
// Delivery is best effort: nobody subscribed means nobody receives it.
type RealtimePusher struct {
	client *redis.Client
}

func NewRealtimePusher(client *redis.Client) *RealtimePusher {
	return &RealtimePusher{client: client}
}

func Channel(recipientType domain.RecipientType, recipientID string) string {
	return fmt.Sprintf("realtime:%s:%s", recipientType, recipientID)
}

func (p *RealtimePusher) Notify(ctx context.Context, eventName string, recipientType domain.RecipientType, recipientID string, payload any) error {
	body, err := json.Marshal(realtimeMessage{
		Event:         eventName,
		RecipientType: recipientType,
		RecipientID:   recipientID,
		Payload:       payload,
		SentAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal realtime message: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(recipientType, recipientID), body).Err(); err != nil {
		return fmt.Errorf("failed to publish realtime message: %w", err)
	}
	return nil
}
