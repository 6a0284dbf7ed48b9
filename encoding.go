package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EncodePayment serializes a PaymentPayload to the X-PAYMENT header format:
// standard-alphabet base64 of canonical JSON, no line wraps. It is the exact
// inverse of DecodePayment.
func EncodePayment(payment *PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment parses an X-PAYMENT header value. Invalid base64 or JSON
// yields MALFORMED_PAYLOAD; a structurally valid document missing required
// fields yields SCHEMA_VIOLATION.
func DecodePayment(headerValue string) (*PaymentPayload, error) {
	payloadBytes, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "failed to decode base64", err)
	}

	var payment PaymentPayload
	if err := json.Unmarshal(payloadBytes, &payment); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayload, "failed to parse JSON", err)
	}

	if payment.X402Version == 0 {
		return nil, NewPaymentError(ErrCodeSchemaViolation, "x402Version is required", nil)
	}
	if payment.Scheme == "" {
		return nil, NewPaymentError(ErrCodeSchemaViolation, "scheme is required", nil)
	}
	if payment.Network == "" {
		return nil, NewPaymentError(ErrCodeSchemaViolation, "network is required", nil)
	}
	if len(payment.Payload) == 0 {
		return nil, NewPaymentError(ErrCodeSchemaViolation, "payload is required", nil)
	}

	return &payment, nil
}

// EncodePaymentInfo serializes PaymentInfo for the X-PAYMENT-RESPONSE header.
func EncodePaymentInfo(info *PaymentInfo) (string, error) {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment info: %w", err)
	}
	return string(infoJSON), nil
}

// DecodePaymentInfo parses an X-PAYMENT-RESPONSE header value.
func DecodePaymentInfo(headerValue string) (*PaymentInfo, error) {
	var info PaymentInfo
	if err := json.Unmarshal([]byte(headerValue), &info); err != nil {
		return nil, fmt.Errorf("failed to parse payment info: %w", err)
	}
	return &info, nil
}

// ReadPaymentRequirements extracts the payment-required body from a 402
// response. Useful for x402-aware clients restarting the flow.
func ReadPaymentRequirements(resp *http.Response) (*PaymentRequiredResponse, error) {
	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("expected status 402, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var required PaymentRequiredResponse
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}
	return &required, nil
}
