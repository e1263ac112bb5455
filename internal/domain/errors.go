package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrOrderLocked         = errors.New("order_locked")
	ErrOrderNotCancellable = errors.New("order_not_cancellable")
	ErrTradeNotFound       = errors.New("trade_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
