package x402

import (
	"errors"
	"fmt"
)

// PaymentError is a payment processing failure with a stable machine-readable
// code. Every code maps to a distinct error string in the 402 body so clients
// can tell "retry with more funds" apart from "retry with a fresh signature".
type PaymentError struct {
	Code    string
	Message string
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Error codes.
const (
	ErrCodeProductNotFound        = "PRODUCT_NOT_FOUND"
	ErrCodeMalformedPayload       = "MALFORMED_PAYLOAD"
	ErrCodeSchemaViolation        = "SCHEMA_VIOLATION"
	ErrCodeFacilitatorUnavailable = "FACILITATOR_UNAVAILABLE"
	ErrCodeInvalidSignature       = "INVALID_SIGNATURE"
	ErrCodeInsufficientAmount     = "INSUFFICIENT_AMOUNT"
	ErrCodeInvalidConfig          = "INVALID_CONFIG"
	ErrCodeInvalidCart            = "INVALID_CART"
)

// NewPaymentError creates a PaymentError.
func NewPaymentError(code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode extracts the code from a PaymentError anywhere in err's chain.
// Returns "" for non-payment errors.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsPaymentError reports whether err has a PaymentError in its chain.
func IsPaymentError(err error) bool {
	var pe *PaymentError
	return errors.As(err, &pe)
}
