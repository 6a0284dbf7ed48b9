package x402

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodePayment_RoundTrip(t *testing.T) {
	inner, err := json.Marshal(PermitPayload{
		PaymentID: "0xpay1",
		Payer:     "0xpayer1",
		Recipient: "0x123",
		Amount:    "100000000000000000000",
		Duration:  3600,
		Deadline:  "1735689600",
		Nonce:     "4f2c9a",
		PermitSignature: Signature{
			V: 27,
			R: "0xr1",
			S: "0xs1",
		},
		PaymentSignature: Signature{
			V: 28,
			R: "0xr2",
			S: "0xs2",
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal inner payload: %v", err)
	}

	payment := &PaymentPayload{
		X402Version: 1,
		Scheme:      SchemeEVMPermit,
		Network:     "eip155:43114",
		Payload:     inner,
	}

	encoded, err := EncodePayment(payment)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	// The wire format is standard base64 of JSON, no line wraps.
	if strings.ContainsAny(encoded, "\r\n") {
		t.Error("encoded payment must not contain line breaks")
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		t.Fatalf("encoded payment is not standard base64: %v", err)
	}

	decoded, err := DecodePayment(encoded)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if decoded.X402Version != payment.X402Version {
		t.Errorf("version mismatch: expected %d, got %d", payment.X402Version, decoded.X402Version)
	}
	if decoded.Scheme != payment.Scheme {
		t.Errorf("scheme mismatch: expected %s, got %s", payment.Scheme, decoded.Scheme)
	}
	if decoded.Network != payment.Network {
		t.Errorf("network mismatch: expected %s, got %s", payment.Network, decoded.Network)
	}

	original, err := payment.PermitPayload()
	if err != nil {
		t.Fatalf("failed to parse original inner payload: %v", err)
	}
	roundTripped, err := decoded.PermitPayload()
	if err != nil {
		t.Fatalf("failed to parse decoded inner payload: %v", err)
	}
	if !reflect.DeepEqual(original, roundTripped) {
		t.Errorf("inner payload mismatch: expected %+v, got %+v", original, roundTripped)
	}
}

func TestDecodePayment_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"invalid base64", "!!!not-base64!!!", ErrCodeMalformedPayload},
		{"invalid json", base64.StdEncoding.EncodeToString([]byte("{not json")), ErrCodeMalformedPayload},
		{"missing version", encodeJSON(t, map[string]interface{}{
			"scheme": "evm-permit", "network": "localhost", "payload": map[string]interface{}{},
		}), ErrCodeSchemaViolation},
		{"missing scheme", encodeJSON(t, map[string]interface{}{
			"x402Version": 1, "network": "localhost", "payload": map[string]interface{}{},
		}), ErrCodeSchemaViolation},
		{"missing network", encodeJSON(t, map[string]interface{}{
			"x402Version": 1, "scheme": "evm-permit", "payload": map[string]interface{}{},
		}), ErrCodeSchemaViolation},
		{"missing payload", encodeJSON(t, map[string]interface{}{
			"x402Version": 1, "scheme": "evm-permit", "network": "localhost",
		}), ErrCodeSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayment(tt.header)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if ErrorCode(err) != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, ErrorCode(err))
			}
		})
	}
}

func encodeJSON(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestPayloadAccessors_SchemeMismatch(t *testing.T) {
	inner, _ := json.Marshal(map[string]interface{}{"signature": "0xsig"})
	payment := &PaymentPayload{
		X402Version: 1,
		Scheme:      SchemeExact,
		Network:     "localhost",
		Payload:     inner,
	}

	if _, err := payment.PermitPayload(); err == nil {
		t.Error("expected permit accessor to reject exact scheme")
	}
	if _, err := payment.AuthorizationPayload(); err != nil {
		t.Errorf("expected authorization accessor to succeed: %v", err)
	}
}

func TestEncodeDecodePaymentInfo(t *testing.T) {
	info := &PaymentInfo{
		PaymentID: "0xpay1",
		Payer:     "0xpayer1",
		Amount:    "100000000000000000000",
	}

	encoded, err := EncodePaymentInfo(info)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	decoded, err := DecodePaymentInfo(encoded)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !reflect.DeepEqual(info, decoded) {
		t.Errorf("expected %+v, got %+v", info, decoded)
	}
}

func TestReadPaymentRequirements(t *testing.T) {
	body := `{"x402Version":1,"accepts":[{"scheme":"evm-permit","network":"localhost","maxAmountRequired":"100","resource":"/r","payTo":"0x1","asset":"0x2","maxTimeoutSeconds":3600}],"error":"Payment required"}`

	resp := &http.Response{
		StatusCode: http.StatusPaymentRequired,
		Body:       io.NopCloser(strings.NewReader(body)),
	}

	required, err := ReadPaymentRequirements(resp)
	if err != nil {
		t.Fatalf("failed to read requirements: %v", err)
	}
	if len(required.Accepts) != 1 {
		t.Fatalf("expected 1 accept, got %d", len(required.Accepts))
	}
	if required.Accepts[0].MaxAmountRequired != "100" {
		t.Errorf("expected amount 100, got %s", required.Accepts[0].MaxAmountRequired)
	}

	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}
	if _, err := ReadPaymentRequirements(ok); err == nil {
		t.Error("expected error for non-402 response")
	}
}
