package x402

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Product is the slice of the catalog the builder needs: a unit price in the
// asset's smallest unit, as a decimal string.
type Product struct {
	ID    string
	Price string
}

// ProductCatalog resolves cart items to products. Implementations are
// external collaborators (a database repository, an in-memory table).
type ProductCatalog interface {
	FindByID(ctx context.Context, productID string) (*Product, error)
}

// CartItem is one line of a cart: a product reference and a quantity.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// RequirementBuilder computes the amount owed for a resource and emits the
// payment-required descriptor. It produces exactly one PaymentRequirement per
// accepted scheme/network combination; this implementation supports one.
type RequirementBuilder struct {
	cfg     *Config
	catalog ProductCatalog
}

// NewRequirementBuilder creates a builder. catalog may be nil when only flat
// generic-access pricing is used.
func NewRequirementBuilder(cfg *Config, catalog ProductCatalog) *RequirementBuilder {
	return &RequirementBuilder{cfg: cfg, catalog: catalog}
}

// BuildPaymentRequired computes the total owed for the cart and returns the
// 402 body advertising it. An empty cart means generic access to the resource
// and charges the configured flat amount. Unknown product ids fail with
// PRODUCT_NOT_FOUND; the caller must propagate that instead of emitting a 402
// with a malformed total.
func (b *RequirementBuilder) BuildPaymentRequired(ctx context.Context, items []CartItem, resource string) (*PaymentRequiredResponse, error) {
	total, err := b.totalAmount(ctx, items)
	if err != nil {
		return nil, err
	}
	return b.paymentRequired(total.String(), resource, "Payment required"), nil
}

// PaymentRequired builds the 402 body for a fixed amount and reason, without
// consulting the catalog. The negotiator uses it to re-emit requirements with
// a rejection-specific error string.
func (b *RequirementBuilder) PaymentRequired(amount, resource, errorMessage string) *PaymentRequiredResponse {
	return b.paymentRequired(amount, resource, errorMessage)
}

// FlatAmount returns the configured generic-access amount.
func (b *RequirementBuilder) FlatAmount() string {
	return b.cfg.MaxAmountRequired
}

// totalAmount sums price*quantity over the cart using unsigned big-integer
// arithmetic, plus the configured shipping fee. Never floating point.
func (b *RequirementBuilder) totalAmount(ctx context.Context, items []CartItem) (*big.Int, error) {
	if len(items) == 0 {
		return parseAmount(b.cfg.MaxAmountRequired)
	}

	if b.catalog == nil {
		return nil, NewPaymentError(ErrCodeInvalidConfig, "cart pricing requires a product catalog", nil)
	}

	total := new(big.Int)
	for _, item := range items {
		product, err := b.catalog.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, NewPaymentError(ErrCodeProductNotFound,
				fmt.Sprintf("product not found: %s", item.ProductID), err)
		}
		if product == nil {
			return nil, NewPaymentError(ErrCodeProductNotFound,
				fmt.Sprintf("product not found: %s", item.ProductID), nil)
		}

		price, err := parseAmount(product.Price)
		if err != nil {
			return nil, NewPaymentError(ErrCodeInvalidConfig,
				fmt.Sprintf("product %s has invalid price %q", item.ProductID, product.Price), err)
		}
		if item.Quantity < 0 {
			return nil, NewPaymentError(ErrCodeInvalidCart,
				fmt.Sprintf("invalid quantity %d for product %s", item.Quantity, item.ProductID), nil)
		}

		line := new(big.Int).Mul(price, big.NewInt(int64(item.Quantity)))
		total.Add(total, line)
	}

	shipping, err := parseAmount(b.cfg.ShippingFee)
	if err != nil {
		return nil, err
	}
	total.Add(total, shipping)

	return total, nil
}

func (b *RequirementBuilder) paymentRequired(amount, resource, errorMessage string) *PaymentRequiredResponse {
	deadline := time.Now().Unix() + int64(b.cfg.MaxTimeoutSeconds)

	accept := PaymentRequirement{
		Scheme:            b.cfg.Scheme,
		Network:           b.cfg.Network,
		MaxAmountRequired: amount,
		Resource:          resource,
		Description:       b.cfg.Description,
		MimeType:          "application/json",
		PayTo:             b.cfg.PayTo,
		Asset:             b.cfg.Asset,
		MaxTimeoutSeconds: b.cfg.MaxTimeoutSeconds,
		Extra: map[string]interface{}{
			"name":     currencyName(b.cfg.Asset),
			"version":  permitDomainVersion,
			"nonce":    uuid.NewString(),
			"deadline": strconv.FormatInt(deadline, 10),
		},
	}

	return &PaymentRequiredResponse{
		X402Version: X402Version,
		Accepts:     []PaymentRequirement{accept},
		Error:       errorMessage,
	}
}

// parseAmount parses a non-negative base-10 integer amount string.
func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return amount, nil
}

// permitDomainVersion is the EIP-712 typed-data domain version of the
// accepted token contracts, advertised next to the token name so clients can
// build the permit domain. Unrelated to the x402 protocol version.
const permitDomainVersion = "1"

// currencyNames maps well-known asset addresses (lowercased) to the display
// names used in typed-data domains.
var currencyNames = map[string]string{
	// Avalanche C-Chain USDC
	"0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e": "USD Coin",
}

func currencyName(asset string) string {
	if name, ok := currencyNames[strings.ToLower(asset)]; ok {
		return name
	}
	return "USD Coin"
}
