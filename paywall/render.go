package paywall

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
)

// Page is the data a paywall page is rendered from.
type Page struct {
	AppName string
	AppLogo string
	Error   string

	// Requirements is the JSON array of advertised payment requirements
	Requirements json.RawMessage

	// CurrentURL is the resource the payer is trying to reach
	CurrentURL string

	// Testnet marks pages for test networks
	Testnet bool
}

// Renderer produces the HTML paywall shown to browsers.
type Renderer interface {
	Render(page Page) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(page Page) (string, error)

// Render calls f(page).
func (f RendererFunc) Render(page Page) (string, error) { return f(page) }

// TemplateRenderer renders pages from an html/template.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses text as the paywall template. The template
// receives a value with the Page fields plus Config, the window.x402 object
// as a JavaScript literal.
func NewTemplateRenderer(text string) (*TemplateRenderer, error) {
	tmpl, err := template.New("paywall").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse paywall template: %w", err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// DefaultRenderer returns the built-in paywall renderer.
func DefaultRenderer() *TemplateRenderer {
	return &TemplateRenderer{tmpl: defaultTemplate}
}

type windowConfig struct {
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
	CurrentURL          string          `json:"currentUrl"`
	Error               string          `json:"error"`
	Testnet             bool            `json:"testnet"`
	AppName             string          `json:"appName"`
	AppLogo             string          `json:"appLogo"`
}

// Render executes the template for page.
func (r *TemplateRenderer) Render(page Page) (string, error) {
	reqs := page.Requirements
	if len(reqs) == 0 {
		reqs = json.RawMessage("[]")
	}
	cfg, err := json.Marshal(windowConfig{
		PaymentRequirements: reqs,
		CurrentURL:          page.CurrentURL,
		Error:               page.Error,
		Testnet:             page.Testnet,
		AppName:             page.AppName,
		AppLogo:             page.AppLogo,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal paywall config: %w", err)
	}

	data := struct {
		Page
		Config template.JS
	}{Page: page, Config: template.JS(cfg)}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render paywall: %w", err)
	}
	return buf.String(), nil
}

var defaultTemplate = template.Must(template.New("paywall").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .AppName}}{{.AppName}} - {{end}}Payment Required</title>
<script>
window.x402 = {{.Config}};
</script>
</head>
<body>
<main class="paywall">
{{if .AppLogo}}<img class="paywall-logo" src="{{.AppLogo}}" alt="{{.AppName}}">{{end}}
<h1>Payment Required</h1>
<p class="paywall-description">Pay in USDC to access this content.</p>
{{if .Error}}<p class="paywall-error">{{.Error}}</p>{{end}}
<div id="x402-wallet"></div>
</main>
</body>
</html>
`))
