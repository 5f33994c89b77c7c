package x402

import (
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Defaults applied by Validate.
const (
	DefaultMaxTimeoutSeconds = 60
	DefaultMimeType          = "text/html"
	DefaultEIP3009Token      = "usdc"
	DefaultTokenDecimals     = 18
)

// Config holds the service configuration
type Config struct {
	// AppName and AppLogo are shown on the browser paywall (optional)
	AppName string
	AppLogo string

	// ResourceURL is the resource being sold, advertised in requirements
	ResourceURL string `validate:"required"`

	// Price is the decimal price in whole token units (e.g., "0.01")
	Price string `validate:"required,numeric"`

	// Description explains what this payment is for
	Description string

	// MimeType of the resource being sold, defaults to text/html
	MimeType string

	// Network is the network name (e.g., "base-sepolia", "base")
	Network string `validate:"required"`

	// PayTo is the address receiving payment
	PayTo string `validate:"required"`

	// FacilitatorURL is the base URL of the facilitator service
	FacilitatorURL string `validate:"required,url"`

	// MaxTimeoutSeconds is how long the payer has to complete payment.
	// Defaults to 60
	MaxTimeoutSeconds int `validate:"gte=0"`

	// Token is an optional custom token. With NativeToken it only carries
	// display metadata (symbol, decimals, name).
	Token *TokenConfig

	// NativeToken accepts native-asset payments (ETH, AVAX, etc.)
	NativeToken bool

	// EIP3009Token selects a built-in ERC-3009 token (e.g., "usdc", "kii").
	// Defaults to "usdc"
	EIP3009Token string

	// SkipPaths lists paths that bypass payment checks entirely
	// Useful for health checks, public endpoints, etc.
	SkipPaths []string
}

// TokenConfig describes a custom token
type TokenConfig struct {
	// Address is the token contract address
	Address string `validate:"omitempty,eth_addr"`

	// Decimals of the token; zero means 18
	Decimals int `validate:"gte=0,lte=36"`

	// Name is the EIP-712 domain name
	Name string

	// Symbol is used for display only
	Symbol string

	// Version is the EIP-712 domain version, defaults to "1"
	Version string
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

// configValidator returns the shared validator with english messages
func configValidator() (*validator.Validate, ut.Translator) {
	validateOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		translator, _ = uni.GetTranslator("en")

		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = en_translations.RegisterDefaultTranslations(validate, translator)
	})
	return validate, translator
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.MaxTimeoutSeconds == 0 {
		c.MaxTimeoutSeconds = DefaultMaxTimeoutSeconds
	}
	if c.MimeType == "" {
		c.MimeType = DefaultMimeType
	}
	if c.EIP3009Token == "" {
		c.EIP3009Token = DefaultEIP3009Token
	}
	c.FacilitatorURL = strings.TrimRight(c.FacilitatorURL, "/")

	v, trans := configValidator()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigurationError{
				Field:   fe.Namespace(),
				Message: fe.Translate(trans),
			}
		}
		return &ConfigurationError{Message: err.Error()}
	}

	return nil
}

// ShouldSkip reports whether the request path bypasses payment
func (c *Config) ShouldSkip(requestPath string) bool {
	for _, skipPath := range c.SkipPaths {
		if matchPath(requestPath, skipPath) {
			return true
		}
	}
	return false
}

// matchPath checks if a request path matches a pattern
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
