package grpc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/oliverpay/x402"
	"google.golang.org/grpc/metadata"
)

const (
	// MetadataKeyPaymentRequirements is the metadata key for the encoded
	// payment-required descriptor.
	MetadataKeyPaymentRequirements = "x402-payment-requirements"

	// MetadataKeyPayment is the metadata key carrying the payment payload,
	// the gRPC counterpart of the X-PAYMENT header.
	MetadataKeyPayment = "x402-payment"

	// MetadataKeyPaymentResponse is the metadata key for payment info
	// returned to the client, the counterpart of X-PAYMENT-RESPONSE.
	MetadataKeyPaymentResponse = "x402-payment-response"
)

// EncodePaymentRequired encodes a PaymentRequiredResponse to base64 JSON for
// inclusion in gRPC status messages and metadata.
func EncodePaymentRequired(response *x402.PaymentRequiredResponse) (string, error) {
	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentRequired decodes base64 JSON payment requirements produced by
// EncodePaymentRequired.
func DecodePaymentRequired(encoded string) (*x402.PaymentRequiredResponse, error) {
	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var response x402.PaymentRequiredResponse
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment requirements: %w", err)
	}
	return &response, nil
}

// EncodePaymentInfo encodes PaymentInfo to base64 JSON for trailer metadata.
func EncodePaymentInfo(info *x402.PaymentInfo) (string, error) {
	jsonBytes, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment info: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentInfo decodes base64 JSON payment info from trailer metadata.
func DecodePaymentInfo(encoded string) (*x402.PaymentInfo, error) {
	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var info x402.PaymentInfo
	if err := json.Unmarshal(jsonBytes, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment info: %w", err)
	}
	return &info, nil
}

// PaymentFromMetadata extracts the raw encoded payment from gRPC metadata.
// Returns "" when no payment is attached.
func PaymentFromMetadata(md metadata.MD) string {
	values := md.Get(MetadataKeyPayment)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// PaymentRequiredFromMetadata extracts and decodes the payment-required
// descriptor from gRPC metadata, for x402-aware clients.
func PaymentRequiredFromMetadata(md metadata.MD) (*x402.PaymentRequiredResponse, error) {
	values := md.Get(MetadataKeyPaymentRequirements)
	if len(values) == 0 {
		return nil, fmt.Errorf("no payment requirements found in metadata")
	}
	return DecodePaymentRequired(values[0])
}
