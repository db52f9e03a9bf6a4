package domain

import "time"

type RecipientType string

const (
	RecipientVendor   RecipientType = "vendor"
	RecipientCustomer RecipientType = "customer"
	RecipientAdmin    RecipientType = "admin"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification is a recipient-scoped record handed to the notification sink.
type Notification struct {
	ID            string
	Type          string
	Priority      NotificationPriority
	RecipientType RecipientType
	RecipientID   string
	Title         string
	Message       string
	Data          map[string]any
	ActionURL     string
	Source        string
	CreatedAt     time.Time
}
