package x402

import (
	"testing"
)

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := &Config{
		PayTo:              "0x123",
		Asset:              "0xabc",
		MaxAmountRequired:  "100",
		FacilitatorBaseURL: "http://localhost:8403/",
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	if cfg.Network != "localhost" {
		t.Errorf("expected default network, got %s", cfg.Network)
	}
	if cfg.Scheme != SchemeEVMPermit {
		t.Errorf("expected default scheme, got %s", cfg.Scheme)
	}
	if cfg.MaxTimeoutSeconds != 3600 {
		t.Errorf("expected default timeout 3600, got %d", cfg.MaxTimeoutSeconds)
	}
	if cfg.ShippingFee != "0" {
		t.Errorf("expected default shipping fee 0, got %s", cfg.ShippingFee)
	}
	if cfg.FacilitatorBaseURL != "http://localhost:8403" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.FacilitatorBaseURL)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing payTo", Config{Asset: "0xabc", MaxAmountRequired: "100", FacilitatorBaseURL: "http://f"}},
		{"missing asset", Config{PayTo: "0x123", MaxAmountRequired: "100", FacilitatorBaseURL: "http://f"}},
		{"missing amount", Config{PayTo: "0x123", Asset: "0xabc", FacilitatorBaseURL: "http://f"}},
		{"non-integer amount", Config{PayTo: "0x123", Asset: "0xabc", MaxAmountRequired: "1.5", FacilitatorBaseURL: "http://f"}},
		{"negative amount", Config{PayTo: "0x123", Asset: "0xabc", MaxAmountRequired: "-1", FacilitatorBaseURL: "http://f"}},
		{"bad shipping fee", Config{PayTo: "0x123", Asset: "0xabc", MaxAmountRequired: "100", ShippingFee: "abc", FacilitatorBaseURL: "http://f"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			} else if ErrorCode(err) != ErrCodeInvalidConfig {
				t.Errorf("expected code %s, got %s", ErrCodeInvalidConfig, ErrorCode(err))
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("X402_PAY_TO", "0xmerchant")
	t.Setenv("X402_ASSET", "0xusdc")
	t.Setenv("X402_MAX_AMOUNT_REQUIRED", "100000000000000000000")
	t.Setenv("X402_NETWORK", "eip155:43114")
	t.Setenv("X402_MAX_TIMEOUT_SECONDS", "600")
	t.Setenv("FACILITATOR_URL", "http://facilitator:8403")
	t.Setenv("X402_SKIP_PATHS", "/health,/metrics")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.PayTo != "0xmerchant" {
		t.Errorf("expected payTo from env, got %s", cfg.PayTo)
	}
	if cfg.Network != "eip155:43114" {
		t.Errorf("expected network from env, got %s", cfg.Network)
	}
	if cfg.MaxTimeoutSeconds != 600 {
		t.Errorf("expected timeout 600, got %d", cfg.MaxTimeoutSeconds)
	}
	if len(cfg.SkipPaths) != 2 {
		t.Fatalf("expected 2 skip paths, got %d", len(cfg.SkipPaths))
	}
	if cfg.SkipPaths[0] != "/health" || cfg.SkipPaths[1] != "/metrics" {
		t.Errorf("unexpected skip paths: %v", cfg.SkipPaths)
	}
}

func TestConfigFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("X402_PAY_TO", "")
	t.Setenv("X402_ASSET", "0xusdc")
	t.Setenv("X402_MAX_AMOUNT_REQUIRED", "100")

	if _, err := ConfigFromEnv(); err == nil {
		t.Error("expected error for missing X402_PAY_TO")
	}
}

func TestRequiresPayment(t *testing.T) {
	cfg := &Config{
		ProtectedPaths: []string{"/api/payment", "/protected/*"},
		SkipPaths:      []string{"/health", "/protected/free"},
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/api/payment", true},
		{"/protected/resource", true},
		{"/protected/deep/resource", true},
		{"/protected/free", false},
		{"/health", false},
		{"/api/products", false},
	}

	for _, tt := range tests {
		if got := cfg.RequiresPayment(tt.path); got != tt.want {
			t.Errorf("RequiresPayment(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRequiresPayment_DefaultGuardsEverything(t *testing.T) {
	cfg := &Config{SkipPaths: []string{"/health"}}

	if !cfg.RequiresPayment("/anything") {
		t.Error("expected all paths guarded when no protected paths configured")
	}
	if cfg.RequiresPayment("/health") {
		t.Error("expected skip path to bypass payment")
	}
}
