package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeEmptyCart             ErrorCode = "EMPTY_CART"
	CodeCartInvalid           ErrorCode = "CART_INVALID"
	CodeAddressNotFound       ErrorCode = "ADDRESS_NOT_FOUND"
	CodePaymentMethodNotFound ErrorCode = "PAYMENT_METHOD_NOT_FOUND"
	CodeCardExpired           ErrorCode = "CARD_EXPIRED"
	CodeOutOfStock            ErrorCode = "OUT_OF_STOCK"
	CodeNotCancellable        ErrorCode = "ORDER_NOT_CANCELLABLE"
	CodeInvalidTransition     ErrorCode = "INVALID_STATUS_TRANSITION"
	CodeForbidden             ErrorCode = "FORBIDDEN"
	CodePaymentDeclined       ErrorCode = "PAYMENT_DECLINED"
)

// ErrTransient marks collaborator or broker unreachability.
var ErrTransient = errors.New("transient infrastructure error")

// ErrNotFound is returned by collaborators for missing resources.
var ErrNotFound = errors.New("resource not found")

// ErrStockUnavailable is returned by the stock collaborator when a reservation cannot be satisfied.
var ErrStockUnavailable = errors.New("stock unavailable")

// ValidationError is a caller-input or precondition failure. Never retried.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code ErrorCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BusinessFailure is a declined business step whose compensation already ran.
type BusinessFailure struct {
	Code   ErrorCode
	Reason string
}

func (e *BusinessFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Code extracts the error code from a ValidationError or BusinessFailure.
func Code(err error) (ErrorCode, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code, true
	}
	var businessErr *BusinessFailure
	if errors.As(err, &businessErr) {
		return businessErr.Code, true
	}
	return "", false
}
