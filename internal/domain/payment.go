package domain

import (
	"errors"
	"time"
)

var ErrRefundExceedsPayment = errors.New("refund exceeds captured amount")

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
)

type Payment struct {
	ID             string
	OrderID        string
	Amount         float64
	RefundedAmount float64
	Currency       string
	Status         PaymentStatus
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Refund records a refund of amount, keeping RefundedAmount <= Amount.
func (p *Payment) Refund(amount float64) error {
	if amount <= 0 || p.RefundedAmount+amount > p.Amount {
		return ErrRefundExceedsPayment
	}
	p.RefundedAmount += amount
	if p.RefundedAmount == p.Amount {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartiallyRefunded
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// PaymentResult is what the payment collaborator reports for a capture attempt.
type PaymentResult struct {
	PaymentID     string
	Status        PaymentStatus
	FailureReason string
}

type RefundStatus string

const (
	RefundNotApplicable RefundStatus = "not_applicable"
	RefundIssued        RefundStatus = "refunded"
	RefundFailed        RefundStatus = "refund_failed"
)
