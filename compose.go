package x402

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/becomeliminal/x402-paywall/internal/logger"
	"github.com/becomeliminal/x402-paywall/paywall"

	"github.com/shopspring/decimal"
)

// Composer builds the response sent when payment is required or rejected.
// It is built once per service and shared read-only.
type Composer struct {
	cfg           Config
	renderer      paywall.Renderer
	token         *paywall.DisplayToken
	displayAmount string
	log           *logger.Logger
}

// NewComposer creates a composer for cfg. A nil renderer uses the built-in
// paywall page.
func NewComposer(cfg Config, renderer paywall.Renderer, log *logger.Logger) *Composer {
	if renderer == nil {
		renderer = paywall.DefaultRenderer()
	}
	if log == nil {
		log = logger.Nop()
	}

	amount := "0"
	if price, err := decimal.NewFromString(cfg.Price); err == nil {
		amount = price.Round(10).String()
	}

	return &Composer{
		cfg:           cfg,
		renderer:      renderer,
		token:         displayToken(&cfg),
		displayAmount: amount,
		log:           log,
	}
}

// displayToken decides whether the paywall page needs relabeling and with
// which token. USDC through the registry needs none.
func displayToken(cfg *Config) *paywall.DisplayToken {
	if tok := cfg.Token; tok != nil {
		decimals := tok.Decimals
		if decimals == 0 {
			decimals = DefaultTokenDecimals
		}

		if cfg.NativeToken {
			symbol := orDefault(tok.Symbol, "ETH")
			return &paywall.DisplayToken{
				Symbol:   symbol,
				Decimals: decimals,
				Name:     orDefault(tok.Name, symbol),
				Native:   true,
			}
		}
		if tok.Address != "" {
			symbol := orDefault(tok.Symbol, "TOKEN")
			return &paywall.DisplayToken{
				Symbol:   symbol,
				Address:  tok.Address,
				Decimals: decimals,
				Name:     orDefault(tok.Name, symbol),
				Version:  orDefault(tok.Version, "1"),
			}
		}
		return nil
	}

	if strings.EqualFold(cfg.EIP3009Token, DefaultEIP3009Token) {
		return nil
	}
	info, ok := LookupEIP3009Token(cfg.EIP3009Token, cfg.Network)
	if !ok {
		return nil
	}
	return &paywall.DisplayToken{
		Symbol:   info.Name,
		Address:  info.Address,
		Decimals: info.Decimals,
		Name:     info.Name,
		Version:  info.Version,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Compose returns the response body, content type and status code for a
// payment-required response. Browsers get the HTML paywall with status 400,
// everything else gets the JSON body with status 402.
func (c *Composer) Compose(requirements []PaymentRequirements, errMsg string, isBrowser bool) ([]byte, string, int) {
	if isBrowser {
		html, err := c.paywall(requirements, errMsg)
		if err == nil {
			return []byte(html), "text/html; charset=utf-8", http.StatusBadRequest
		}
		c.log.Error().Err(err).Msg("failed to render paywall, falling back to JSON")
	}

	if requirements == nil {
		requirements = []PaymentRequirements{}
	}
	body, err := json.Marshal(PaymentRequiredResponse{
		X402Version: X402Version,
		Accepts:     requirements,
		Error:       errMsg,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal payment required response")
		body = []byte(`{"x402Version":1,"accepts":[],"error":"internal error"}`)
	}
	return body, "application/json", http.StatusPaymentRequired
}

func (c *Composer) paywall(requirements []PaymentRequirements, errMsg string) (string, error) {
	reqsJSON, err := json.Marshal(requirements)
	if err != nil {
		return "", err
	}

	html, err := c.renderer.Render(paywall.Page{
		AppName:      c.cfg.AppName,
		AppLogo:      c.cfg.AppLogo,
		Error:        errMsg,
		Requirements: reqsJSON,
		CurrentURL:   c.cfg.ResourceURL,
		Testnet:      isTestnet(c.cfg.Network),
	})
	if err != nil {
		return "", err
	}

	return paywall.InjectAdapter(html, c.token, c.displayAmount)
}

func isTestnet(network string) bool {
	n := strings.ToLower(network)
	return strings.Contains(n, "sepolia") || strings.Contains(n, "testnet") || strings.Contains(n, "fuji")
}
