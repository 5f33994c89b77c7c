// Package config handles application configuration via environment variables
package config

import (
	"os"
	"strconv"
	"strings"

	x402 "github.com/becomeliminal/x402-paywall"
	"github.com/becomeliminal/x402-paywall/internal/logger"
)

// Conf is a namespaced view over environment variables (e.g., "X402_", "API_")
type Conf struct{ prefix string }

// New creates a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix creates a child Conf with an additional prefix, e.g. cfg.Prefix("X402_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

// MustString panics if the given key is missing or empty
func (c Conf) MustString(key string) string {
	k := c.key(key)
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		logger.Get().Panic().Str("key", k).Msg("missing required env")
	}
	return v
}

// MustPort returns a net/http addr like ":4000" after validation 1..65535
func (c Conf) MustPort(key string) string {
	s := c.MustString(key)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		logger.Get().Panic().Str("key", c.key(key)).Str("value", s).Msg("invalid TCP port; expected 1..65535")
	}
	return ":" + s
}

// MayString returns the value or def if missing/empty
func (c Conf) MayString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(c.key(key)))
	if v == "" {
		return def
	}
	return v
}

// MayInt returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayInt(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(c.key(key)))
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Int("default", def).Msg("invalid int; using default")
	return def
}

// MayBool returns the value or def if missing/empty; logs and returns def if invalid
func (c Conf) MayBool(key string, def bool) bool {
	s := strings.TrimSpace(os.Getenv(c.key(key)))
	if s == "" {
		return def
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Bool("default", def).Msg("invalid bool; using default")
	return def
}

// MayList returns a comma-separated list, trimmed and without empty items
func (c Conf) MayList(key string, def []string) []string {
	s := strings.TrimSpace(os.Getenv(c.key(key)))
	if s == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Server holds the gateway process settings
type Server struct {
	Addr        string
	CORSOrigins []string
	Upstream    string
}

// LoadServer reads API_* settings
func LoadServer() Server {
	api := New().Prefix("API_")
	return Server{
		Addr:        ":" + api.MayString("PORT", "8080"),
		CORSOrigins: api.MayList("CORS_ORIGINS", []string{"*"}),
		Upstream:    api.MayString("UPSTREAM_URL", ""),
	}
}

// Load reads the payment service configuration from X402_* variables.
// Validation is left to x402.NewService.
func Load() x402.Config {
	c := New().Prefix("X402_")

	cfg := x402.Config{
		AppName:           c.MayString("APP_NAME", ""),
		AppLogo:           c.MayString("APP_LOGO", ""),
		ResourceURL:       c.MayString("RESOURCE_URL", ""),
		Price:             c.MayString("PRICE", ""),
		Description:       c.MayString("DESCRIPTION", ""),
		MimeType:          c.MayString("MIME_TYPE", ""),
		Network:           c.MayString("NETWORK", "base-sepolia"),
		PayTo:             c.MayString("PAY_TO", ""),
		FacilitatorURL:    c.MayString("FACILITATOR_URL", "https://x402.org/facilitator"),
		MaxTimeoutSeconds: c.MayInt("MAX_TIMEOUT_SECONDS", x402.DefaultMaxTimeoutSeconds),
		NativeToken:       c.MayBool("NATIVE_TOKEN", false),
		EIP3009Token:      c.MayString("EIP3009_TOKEN", x402.DefaultEIP3009Token),
		SkipPaths:         c.MayList("SKIP_PATHS", nil),
	}

	tok := c.Prefix("TOKEN_")
	token := &x402.TokenConfig{
		Address:  tok.MayString("ADDRESS", ""),
		Decimals: tok.MayInt("DECIMALS", 0),
		Name:     tok.MayString("NAME", ""),
		Symbol:   tok.MayString("SYMBOL", ""),
		Version:  tok.MayString("VERSION", ""),
	}
	if *token != (x402.TokenConfig{}) {
		cfg.Token = token
	}

	return cfg
}
