package x402

import (
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version this package speaks.
const X402Version = 1

// Supported payment schemes. The scheme selects the shape of the inner
// payment payload; see PermitPayload and AuthorizationPayload.
const (
	// SchemeEVMPermit is the EIP-712 intent + permit signature scheme.
	SchemeEVMPermit = "evm-permit"

	// SchemeExact is the EIP-3009 transferWithAuthorization scheme.
	SchemeExact = "exact"
)

// HTTP header names used by the negotiation flow.
const (
	// PaymentHeader carries the base64-encoded PaymentPayload on requests.
	PaymentHeader = "X-PAYMENT"

	// PaymentResponseHeader carries payment info back to the client on success.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// PaymentRequirement describes one acceptable way to pay for a resource.
// It is an element of the "accepts" array in a 402 response body.
type PaymentRequirement struct {
	// Scheme identifies the authorization mechanism ("evm-permit", "exact").
	Scheme string `json:"scheme"`

	// Network is the chain identifier (e.g. "eip155:43114").
	Network string `json:"network"`

	// MaxAmountRequired is the minimum sufficient amount in the asset's
	// smallest unit, as a decimal string. A payment strictly below this
	// amount fails verification.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the canonical path of the protected resource.
	Resource string `json:"resource"`

	// Description is a human-readable explanation of the charge.
	Description string `json:"description,omitempty"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType,omitempty"`

	// PayTo is the recipient address.
	PayTo string `json:"payTo"`

	// Asset is the token contract address payments must use.
	Asset string `json:"asset"`

	// MaxTimeoutSeconds is the validity window of the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra carries scheme-specific metadata, such as the token display
	// name and typed-data domain version, or the nonce and deadline a
	// permit signature must bind.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequiredResponse is the JSON body of a 402 response.
// Accepts is non-empty whenever this is returned with status 402.
type PaymentRequiredResponse struct {
	X402Version int                  `json:"x402Version"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Error       string               `json:"error"`
}

// PaymentPayload is the client-constructed payment authorization carried in
// the X-PAYMENT header as base64-encoded JSON. The inner Payload is
// scheme-specific and kept raw until a typed accessor is called, so new
// schemes can be added without weakening decode validation.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// Signature holds the components of an ECDSA signature.
type Signature struct {
	V int    `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// PermitPayload is the inner payload of the "evm-permit" scheme: an EIP-712
// payment intent plus a permit signature authorizing the token transfer.
type PermitPayload struct {
	PaymentID        string    `json:"paymentId"`
	Payer            string    `json:"payer"`
	Recipient        string    `json:"recipient"`
	Amount           string    `json:"amount"`
	Duration         int       `json:"duration"`
	Deadline         string    `json:"deadline"`
	Nonce            string    `json:"nonce"`
	PermitSignature  Signature `json:"permitSignature"`
	PaymentSignature Signature `json:"paymentSignature"`
}

// AuthorizationPayload is the inner payload of the "exact" scheme: EIP-3009
// transferWithAuthorization parameters plus the payer's signature.
type AuthorizationPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization holds transferWithAuthorization parameters.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// PermitPayload decodes the inner payload for the "evm-permit" scheme.
func (p *PaymentPayload) PermitPayload() (*PermitPayload, error) {
	if p.Scheme != SchemeEVMPermit {
		return nil, fmt.Errorf("scheme %q does not carry a permit payload", p.Scheme)
	}
	var inner PermitPayload
	if err := json.Unmarshal(p.Payload, &inner); err != nil {
		return nil, fmt.Errorf("failed to parse permit payload: %w", err)
	}
	return &inner, nil
}

// AuthorizationPayload decodes the inner payload for the "exact" scheme.
func (p *PaymentPayload) AuthorizationPayload() (*AuthorizationPayload, error) {
	if p.Scheme != SchemeExact {
		return nil, fmt.Errorf("scheme %q does not carry an authorization payload", p.Scheme)
	}
	var inner AuthorizationPayload
	if err := json.Unmarshal(p.Payload, &inner); err != nil {
		return nil, fmt.Errorf("failed to parse authorization payload: %w", err)
	}
	return &inner, nil
}

// VerifyResponse is the facilitator's answer to POST /verify.
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	PaymentID string `json:"paymentId"`
	Payer     string `json:"payer"`
	Amount    string `json:"amount"`
}

// SettleResponse is the facilitator's answer to POST /settle.
type SettleResponse struct {
	TxHash      string `json:"txHash"`
	PaymentID   string `json:"paymentId"`
	Settled     bool   `json:"settled"`
	BlockNumber string `json:"blockNumber"`
}

// PaymentInfo is handed to the protected-resource handler once verification
// succeeds. TxHash is populated only after settlement completes, which may
// race the response since settlement is fire-and-forget.
type PaymentInfo struct {
	PaymentID string `json:"paymentId"`
	Payer     string `json:"payer"`
	Amount    string `json:"amount"`
	TxHash    string `json:"txHash,omitempty"`
}

// Result is the outcome of one negotiation. Exactly one of PaymentInfo and
// ErrorResponse is set: PaymentInfo on the VERIFIED path, ErrorResponse (a
// full 402 body) on every REJECTED path.
type Result struct {
	Success       bool
	PaymentInfo   *PaymentInfo
	ErrorResponse *PaymentRequiredResponse
}

type contextKey string

// PaymentContextKey is the key under which verified PaymentInfo is stored in
// the request context.
const PaymentContextKey contextKey = "x402-payment"
