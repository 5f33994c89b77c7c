package x402

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// requirementStrategy builds requirements for one kind of configuration.
type requirementStrategy func(cfg *Config, price decimal.Decimal) ([]PaymentRequirements, error)

// selectStrategy picks the construction strategy from the config flags.
// Native wins over a custom token, a custom token wins over the registry.
func selectStrategy(cfg *Config) requirementStrategy {
	switch {
	case cfg.NativeToken:
		return nativeRequirements
	case cfg.Token != nil && cfg.Token.Address != "":
		return customTokenRequirements
	default:
		return registryRequirements
	}
}

// BuildRequirements returns the payment requirements advertised for cfg.
// It performs no I/O; identical configs yield identical requirements.
func BuildRequirements(cfg Config) ([]PaymentRequirements, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	price, err := decimal.NewFromString(cfg.Price)
	if err != nil {
		return nil, &ConfigurationError{Field: "Price", Message: fmt.Sprintf("invalid price %q: %v", cfg.Price, err)}
	}
	if price.IsNegative() {
		return nil, &ConfigurationError{Field: "Price", Message: fmt.Sprintf("price must not be negative, got %s", cfg.Price)}
	}

	return selectStrategy(&cfg)(&cfg, price)
}

// AtomicAmount converts a decimal price into integer token units,
// round(price * 10^decimals), rounding half away from zero.
func AtomicAmount(price decimal.Decimal, decimals int) string {
	return price.Shift(int32(decimals)).Round(0).String()
}

func nativeRequirements(cfg *Config, price decimal.Decimal) ([]PaymentRequirements, error) {
	decimals := DefaultTokenDecimals
	if cfg.Token != nil && cfg.Token.Decimals > 0 {
		decimals = cfg.Token.Decimals
	}

	req := baseRequirement(cfg, WireSchemeNative, NativeTokenAddress, AtomicAmount(price, decimals))
	return []PaymentRequirements{req}, nil
}

func customTokenRequirements(cfg *Config, price decimal.Decimal) ([]PaymentRequirements, error) {
	token := cfg.Token
	decimals := token.Decimals
	if decimals == 0 {
		decimals = DefaultTokenDecimals
	}

	req := baseRequirement(cfg, WireSchemeExact, token.Address, AtomicAmount(price, decimals))
	if token.Name != "" {
		version := token.Version
		if version == "" {
			version = "1"
		}
		req.Extra = map[string]interface{}{
			"name":    token.Name,
			"version": version,
		}
	}
	return []PaymentRequirements{req}, nil
}

func registryRequirements(cfg *Config, price decimal.Decimal) ([]PaymentRequirements, error) {
	key := strings.ToLower(cfg.EIP3009Token)
	if _, ok := eip3009Tokens[key]; !ok {
		return nil, &ConfigurationError{
			Field: "EIP3009Token",
			Message: fmt.Sprintf("Unsupported ERC-3009 token: '%s'. Supported tokens: %v",
				cfg.EIP3009Token, SupportedEIP3009Tokens()),
		}
	}

	info, ok := LookupEIP3009Token(key, cfg.Network)
	if !ok {
		return nil, &ConfigurationError{
			Field: "Network",
			Message: fmt.Sprintf("Token '%s' is not available on network '%s'. Available networks: %v",
				cfg.EIP3009Token, cfg.Network, tokenNetworks(key)),
		}
	}

	req := baseRequirement(cfg, WireSchemeExact, info.Address, AtomicAmount(price, info.Decimals))
	req.Extra = map[string]interface{}{
		"name":    info.Name,
		"version": info.Version,
	}
	return []PaymentRequirements{req}, nil
}

func baseRequirement(cfg *Config, scheme, asset, amount string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            scheme,
		Network:           cfg.Network,
		MaxAmountRequired: amount,
		Resource:          cfg.ResourceURL,
		Description:       cfg.Description,
		MimeType:          cfg.MimeType,
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
		Asset:             asset,
		Extra:             map[string]interface{}{},
		OutputSchema:      map[string]interface{}{},
	}
}
