package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	SourceOrderService     = "order-service"
	SourceInventoryService = "inventory-service"
	SchemaVersion          = "1.0"
)

// MessageType is the closed set of message types carried on the bus.
type MessageType string

const (
	OrderCreated           MessageType = "ORDER_CREATED"
	OrderCancelled         MessageType = "ORDER_CANCELLED"
	OrderStatusUpdated     MessageType = "ORDER_STATUS_UPDATED"
	OrderItemStatusUpdated MessageType = "ORDER_ITEM_STATUS_UPDATED"
	LowStockAlert          MessageType = "LOW_STOCK_ALERT"
)

func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case OrderCreated, OrderCancelled, OrderStatusUpdated, OrderItemStatusUpdated, LowStockAlert:
		return t, nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

type Metadata struct {
	Source        string `json:"source"`
	Version       string `json:"version"`
	CorrelationID string `json:"correlationId"`
	RetryCount    int    `json:"retryCount,omitempty"`
}

// Envelope is the JSON wire format of every message. ID is the dedup key.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

func NewEnvelope(msgType MessageType, source, correlationID string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
		Metadata: Metadata{
			Source:        source,
			Version:       SchemaVersion,
			CorrelationID: correlationID,
		},
	}, nil
}

// Decode parses a wire message and validates the envelope fields.
func Decode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("envelope has no id")
	}
	if _, err := ParseMessageType(string(env.Type)); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload of message %s: %w", e.Type, e.ID, err)
	}
	return nil
}
