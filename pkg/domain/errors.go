package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing means no active platform configuration row
	// exists; nothing can be priced without one.
	ErrConfigurationMissing = errors.New("no active platform configuration")

	// ErrNoRateData means every external rate source failed for a pair.
	ErrNoRateData = errors.New("no rate data available from any source")

	// ErrRateLockExpired means rateLockedUntil has passed; the locked
	// quote must not be trusted.
	ErrRateLockExpired = errors.New("rate lock has expired")

	ErrPaymentNotFound    = errors.New("payment not found")
	ErrConversionNotFound = errors.New("conversion not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrSwapNotFound       = errors.New("atomic swap not found")
	ErrDepositNotFound    = errors.New("manual deposit not found")
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrOrderNotOpen is returned when a status-guarded order update
	// matched zero rows, e.g. a double-match race lost.
	ErrOrderNotOpen = errors.New("order is not open")

	// ErrPaymentNotConvertible means a referenced payment is not in
	// received state, typically because a conversion already claimed it.
	ErrPaymentNotConvertible = errors.New("payment is not in a convertible state")
)

// ValidationError reports bad caller input. It is surfaced synchronously
// and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExternalAPIError wraps a failure talking to an external collaborator
// (rate source, DEX aggregator, blockchain API).
type ExternalAPIError struct {
	Service string
	Err     error
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }
