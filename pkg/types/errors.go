package types

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned by cancel when the exchange no longer knows
// the order (already filled or already cancelled). Callers treat it as success.
var ErrOrderNotFound = errors.New("order not found")

// ErrOrderRejected is a logical reject: the exchange refused the order and no
// order id was assigned. The next evaluation retries with fresh prices.
var ErrOrderRejected = errors.New("order rejected")

// APIError is a non-2xx response from the exchange REST API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange API error (status %d): %s", e.StatusCode, e.Message)
}

// Transient reports whether the call may succeed on retry without changes.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}
