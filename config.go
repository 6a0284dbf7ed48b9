package x402

import (
	"fmt"
	"path"
	"strings"

	"github.com/caarlos0/env/v6"
)

// Config is the process-wide negotiation configuration. It is loaded once at
// startup and treated as immutable afterwards; every negotiation is stateless
// across requests.
type Config struct {
	// PayTo is the merchant address that receives payments.
	PayTo string `env:"X402_PAY_TO"`

	// Asset is the token contract address of the accepted currency.
	Asset string `env:"X402_ASSET"`

	// Network is the chain identifier emitted in requirements.
	Network string `env:"X402_NETWORK" envDefault:"localhost"`

	// Scheme is the authorization mechanism emitted in requirements.
	Scheme string `env:"X402_SCHEME" envDefault:"evm-permit"`

	// MaxAmountRequired is the flat amount, in the asset's smallest unit,
	// charged for generic access when no cart is involved.
	MaxAmountRequired string `env:"X402_MAX_AMOUNT_REQUIRED"`

	// MaxTimeoutSeconds bounds the validity of a payment authorization.
	MaxTimeoutSeconds int `env:"X402_MAX_TIMEOUT_SECONDS" envDefault:"3600"`

	// FacilitatorBaseURL is the base URL of the verify/settle collaborator.
	FacilitatorBaseURL string `env:"FACILITATOR_URL" envDefault:"http://localhost:8403"`

	// Description explains the charge to humans.
	Description string `env:"X402_DESCRIPTION" envDefault:"Access to protected resource"`

	// ShippingFee is an optional flat fee, in the asset's smallest unit,
	// added to cart totals. Zero disables it.
	ShippingFee string `env:"X402_SHIPPING_FEE" envDefault:"0"`

	// ProtectedPaths lists path patterns the HTTP middleware guards.
	// Patterns support exact matches ("/api/payment") and wildcards
	// ("/api/*"). Empty means every path is guarded.
	ProtectedPaths []string `env:"X402_PROTECTED_PATHS" envSeparator:","`

	// SkipPaths lists paths that bypass payment checks entirely, such as
	// health endpoints. Takes precedence over ProtectedPaths.
	SkipPaths []string `env:"X402_SKIP_PATHS" envSeparator:","`
}

// ConfigFromEnv loads configuration from environment variables and validates
// it. Variable names follow the merchant deployment convention: X402_PAY_TO,
// X402_ASSET, X402_MAX_AMOUNT_REQUIRED, X402_NETWORK, X402_SCHEME,
// X402_MAX_TIMEOUT_SECONDS, X402_DESCRIPTION, X402_SHIPPING_FEE,
// FACILITATOR_URL, X402_PROTECTED_PATHS, X402_SKIP_PATHS.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse x402 environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.PayTo == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "payTo is required", nil)
	}
	if c.Asset == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "asset is required", nil)
	}
	if c.MaxAmountRequired == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "maxAmountRequired is required", nil)
	}
	if _, err := parseAmount(c.MaxAmountRequired); err != nil {
		return NewPaymentError(ErrCodeInvalidConfig,
			fmt.Sprintf("maxAmountRequired %q is not a base-10 integer", c.MaxAmountRequired), nil)
	}
	if c.ShippingFee == "" {
		c.ShippingFee = "0"
	}
	if _, err := parseAmount(c.ShippingFee); err != nil {
		return NewPaymentError(ErrCodeInvalidConfig,
			fmt.Sprintf("shippingFee %q is not a base-10 integer", c.ShippingFee), nil)
	}
	if c.Network == "" {
		c.Network = "localhost"
	}
	if c.Scheme == "" {
		c.Scheme = SchemeEVMPermit
	}
	if c.MaxTimeoutSeconds <= 0 {
		c.MaxTimeoutSeconds = 3600
	}
	if c.FacilitatorBaseURL == "" {
		return NewPaymentError(ErrCodeInvalidConfig, "facilitator base URL is required", nil)
	}
	c.FacilitatorBaseURL = strings.TrimSuffix(c.FacilitatorBaseURL, "/")
	if c.Description == "" {
		c.Description = "Access to protected resource"
	}
	return nil
}

// RequiresPayment reports whether the middleware should negotiate payment for
// the given request path.
func (c *Config) RequiresPayment(requestPath string) bool {
	for _, skip := range c.SkipPaths {
		if matchPath(requestPath, skip) {
			return false
		}
	}

	if len(c.ProtectedPaths) == 0 {
		return true
	}

	for _, pattern := range c.ProtectedPaths {
		if matchPath(requestPath, pattern) {
			return true
		}
	}
	return false
}

// matchPath checks if a request path matches a pattern.
// Supports wildcards: /v1/* matches /v1/foo, /v1/foo/bar, etc.
func matchPath(requestPath, pattern string) bool {
	if requestPath == pattern {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return strings.HasPrefix(requestPath, prefix+"/") || requestPath == prefix
	}

	matched, _ := path.Match(pattern, requestPath)
	return matched
}
