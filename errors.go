package x402

import (
	"errors"
	"fmt"
)

// PaymentError represents a recoverable negotiation failure. Its Message is
// safe to show to the caller.
type PaymentError struct {
	Code    string
	Message string
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Error codes.
const (
	ErrCodeMissingPayment   = "MISSING_PAYMENT"
	ErrCodeMalformedPayment = "MALFORMED_PAYMENT"
	ErrCodeInvalidVariant   = "INVALID_VARIANT"
	ErrCodeNoMatch          = "NO_MATCHING_REQUIREMENTS"
)

// NewPaymentError creates a new PaymentError.
func NewPaymentError(code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsPaymentError checks if an error is a PaymentError.
func IsPaymentError(err error) bool {
	var pe *PaymentError
	return errors.As(err, &pe)
}

// GetPaymentErrorCode extracts the error code from a PaymentError.
func GetPaymentErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ErrorMessage returns the caller-facing message of err.
func ErrorMessage(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// ConfigurationError aborts service construction.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid x402 configuration (%s): %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid x402 configuration: %s", e.Message)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
