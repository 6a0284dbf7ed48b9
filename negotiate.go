package x402

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
)

// Stable error strings surfaced in 402 bodies. Clients branch on these to
// decide between retrying with more funds and retrying with a fresh
// signature.
const (
	ErrorPaymentRequired    = "Payment required"
	ErrorInvalidSignature   = "Invalid payment intent signature"
	ErrorInsufficientAmount = "Insufficient payment amount"
	ErrorInvalidAmount      = "Invalid payment amount format"
)

// Facilitator is the outbound collaborator contract the negotiator depends
// on. FacilitatorClient is the production implementation.
type Facilitator interface {
	// Verify validates the encoded payment; the facilitator is ground
	// truth for signatures and ledger state.
	Verify(ctx context.Context, encodedPayment string) (*VerifyResponse, error)

	// SettleAsync triggers fire-and-forget settlement.
	SettleAsync(encodedPayment string)
}

// Negotiator runs the x402 negotiation state machine for a single request:
// inspect header, absent means emit a 402 descriptor; present means decode,
// verify, then either grant access and trigger settlement or emit a 402 with
// a specific reason. It holds no mutable state; one instance serves all
// requests.
type Negotiator struct {
	cfg         *Config
	builder     *RequirementBuilder
	facilitator Facilitator
	logger      *slog.Logger
}

// NegotiatorOption customizes a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithFacilitator replaces the facilitator client, e.g. with a test double.
func WithFacilitator(f Facilitator) NegotiatorOption {
	return func(n *Negotiator) { n.facilitator = f }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		n.logger = logger
		if c, ok := n.facilitator.(*FacilitatorClient); ok {
			c.logger = logger
		}
	}
}

// NewNegotiator validates cfg and builds a negotiator. catalog may be nil
// when only flat generic-access pricing is used.
func NewNegotiator(cfg *Config, catalog ProductCatalog, opts ...NegotiatorOption) (*Negotiator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Negotiator{
		cfg:         cfg,
		builder:     NewRequirementBuilder(cfg, catalog),
		facilitator: NewFacilitatorClient(cfg.FacilitatorBaseURL, nil),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Builder exposes the negotiator's requirement builder.
func (n *Negotiator) Builder() *RequirementBuilder {
	return n.builder
}

// Config exposes the negotiator's immutable configuration.
func (n *Negotiator) Config() *Config {
	return n.cfg
}

// Negotiate runs the state machine for one request. paymentHeader is the raw
// X-PAYMENT value ("" when absent); items price the resource (empty cart
// means flat generic access); resource is the protected path echoed in
// requirements.
//
// The returned Result is terminal: Success with PaymentInfo, or a 402 body
// with a distinct error string. A non-nil error is returned only for
// failures that must not become a 402, such as an unknown product id.
func (n *Negotiator) Negotiate(ctx context.Context, paymentHeader string, items []CartItem, resource string) (*Result, error) {
	total, err := n.builder.totalAmount(ctx, items)
	if err != nil {
		return nil, err
	}
	required := total.String()

	if paymentHeader == "" {
		n.logger.Info("no payment header provided", "resource", resource)
		return n.reject(required, resource, ErrorPaymentRequired), nil
	}

	payload, err := DecodePayment(paymentHeader)
	if err != nil {
		n.logger.Warn("invalid payment header", "resource", resource, "error", err)
		return n.reject(required, resource, rejectionMessage(err)), nil
	}

	verifyResp, err := n.facilitator.Verify(ctx, paymentHeader)
	if err != nil {
		// Deliberate: a facilitator outage during verify is surfaced as
		// a 402, not a 5xx. The client can restart the flow.
		n.logger.Error("facilitator verify failed", "resource", resource, "error", err)
		return n.reject(required, resource, rejectionMessage(err)), nil
	}

	if !verifyResp.Valid {
		n.logger.Warn("payment rejected by facilitator",
			"resource", resource, "scheme", payload.Scheme, "network", payload.Network)
		return n.reject(required, resource, ErrorInvalidSignature), nil
	}

	paid, err := parseAmount(verifyResp.Amount)
	if err != nil {
		n.logger.Warn("facilitator returned unparseable amount",
			"resource", resource, "amount", verifyResp.Amount)
		return n.reject(required, resource, ErrorInvalidAmount), nil
	}

	if paid.Cmp(total) < 0 {
		n.logger.Warn("insufficient payment amount",
			"resource", resource, "paid", verifyResp.Amount, "required", required)
		return n.reject(required, resource, ErrorInsufficientAmount), nil
	}

	// Optimistic response: settlement is detached from the response path.
	n.facilitator.SettleAsync(paymentHeader)

	n.logger.Info("payment verified",
		"resource", resource, "paymentId", verifyResp.PaymentID, "payer", verifyResp.Payer)

	return &Result{
		Success: true,
		PaymentInfo: &PaymentInfo{
			PaymentID: verifyResp.PaymentID,
			Payer:     verifyResp.Payer,
			Amount:    verifyResp.Amount,
		},
	}, nil
}

// RequiredAmount computes the total owed for a cart without negotiating.
func (n *Negotiator) RequiredAmount(ctx context.Context, items []CartItem) (*big.Int, error) {
	return n.builder.totalAmount(ctx, items)
}

func (n *Negotiator) reject(amount, resource, message string) *Result {
	return &Result{
		Success:       false,
		ErrorResponse: n.builder.PaymentRequired(amount, resource, message),
	}
}

// rejectionMessage flattens a PaymentError into the 402 error string,
// including the underlying cause so clients see what went wrong.
func rejectionMessage(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		if pe.Cause != nil {
			return pe.Message + ": " + pe.Cause.Error()
		}
		return pe.Message
	}
	return err.Error()
}
